// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"testing"
)

// tv is a two-component test version.
type tv struct {
	maj, min int
}

func v(maj, min int) tv {
	return tv{maj: maj, min: min}
}

func (a tv) String() string {
	return fmt.Sprintf("%d.%d", a.maj, a.min)
}

func (a tv) Compare(other Version) int {
	b := other.(tv)
	if a.maj != b.maj {
		return a.maj - b.maj
	}
	return a.min - b.min
}

func TestVersionSetContains(t *testing.T) {
	tests := []struct {
		name string
		set  VersionSet
		in   []tv
		out  []tv
	}{
		{
			name: "any",
			set:  Any(),
			in:   []tv{v(0, 0), v(9, 9)},
		},
		{
			name: "none",
			set:  None(),
			out:  []tv{v(0, 0), v(1, 0)},
		},
		{
			name: "singleton",
			set:  Singleton(v(1, 0)),
			in:   []tv{v(1, 0)},
			out:  []tv{v(0, 9), v(1, 1)},
		},
		{
			name: "halfopen",
			set:  Between(v(1, 0), v(2, 0)),
			in:   []tv{v(1, 0), v(1, 9)},
			out:  []tv{v(0, 9), v(2, 0)},
		},
		{
			name: "union of disjoint",
			set:  Between(v(1, 0), v(2, 0)).Union(Singleton(v(3, 0))),
			in:   []tv{v(1, 5), v(3, 0)},
			out:  []tv{v(2, 0), v(2, 5), v(3, 1)},
		},
		{
			name: "complement of singleton",
			set:  Singleton(v(1, 0)).Complement(),
			in:   []tv{v(0, 9), v(1, 1)},
			out:  []tv{v(1, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, ver := range tt.in {
				if !tt.set.Contains(ver) {
					t.Errorf("%s should contain %s", tt.set, ver)
				}
			}
			for _, ver := range tt.out {
				if tt.set.Contains(ver) {
					t.Errorf("%s should not contain %s", tt.set, ver)
				}
			}
		})
	}
}

func TestVersionSetAlgebra(t *testing.T) {
	sets := []VersionSet{
		Any(),
		None(),
		Singleton(v(1, 0)),
		Between(v(1, 0), v(2, 0)),
		AtLeast(v(1, 5)),
		Less(v(1, 5)),
		Between(v(0, 5), v(1, 5)).Union(Between(v(2, 0), v(3, 0))),
		Singleton(v(2, 0)).Complement(),
	}

	for i, a := range sets {
		for j, b := range sets {
			name := fmt.Sprintf("%d/%d", i, j)
			if x, y := a.Intersect(b), b.Intersect(a); !x.Equal(y) {
				t.Errorf("%s: intersection not commutative: %s vs %s", name, x, y)
			}
			if x, y := a.Union(b), b.Union(a); !x.Equal(y) {
				t.Errorf("%s: union not commutative: %s vs %s", name, x, y)
			}
		}
	}

	for i, a := range sets {
		if x := a.Intersect(a.Complement()); !x.IsEmpty() {
			t.Errorf("set %d: a ∩ complement(a) = %s, want none", i, x)
		}
		if x := a.Union(a.Complement()); !x.IsAny() {
			t.Errorf("set %d: a ∪ complement(a) = %s, want any", i, x)
		}
		if x := a.Complement().Complement(); !x.Equal(a) {
			t.Errorf("set %d: double complement = %s, want %s", i, x, a)
		}
		if !a.Intersect(Any()).Equal(a) {
			t.Errorf("set %d: intersection with any is not identity", i)
		}
		if !a.Union(None()).Equal(a) {
			t.Errorf("set %d: union with none is not identity", i)
		}
		if !a.SubsetOf(a) {
			t.Errorf("set %d: not a subset of itself", i)
		}
	}
}

func TestVersionSetNormalization(t *testing.T) {
	// Adjacent half-open intervals merge into one.
	a := Between(v(1, 0), v(2, 0)).Union(Between(v(2, 0), v(3, 0)))
	b := Between(v(1, 0), v(3, 0))
	if !a.Equal(b) {
		t.Errorf("adjacent intervals did not merge: %s vs %s", a, b)
	}

	// A hole of exactly one version stays a hole.
	c := AtMost(v(2, 0)).Intersect(Singleton(v(1, 5)).Complement())
	if c.Contains(v(1, 5)) {
		t.Errorf("%s should exclude 1.5", c)
	}
	if !c.Contains(v(1, 4)) || !c.Contains(v(1, 6)) || !c.Contains(v(2, 0)) {
		t.Errorf("%s lost versions around the hole", c)
	}

	// Equality is structural regardless of construction order.
	d := Singleton(v(3, 0)).Union(Between(v(1, 0), v(2, 0)))
	e := Between(v(1, 0), v(2, 0)).Union(Singleton(v(3, 0)))
	if !d.Equal(e) {
		t.Errorf("construction order changed structure: %s vs %s", d, e)
	}
}

func TestVersionSetString(t *testing.T) {
	tests := []struct {
		set  VersionSet
		want string
	}{
		{None(), "none"},
		{Any(), "any"},
		{Singleton(v(1, 0)), "1.0"},
		{Between(v(1, 0), v(2, 0)), ">=1.0, <2.0"},
		{AtLeast(v(1, 0)), ">=1.0"},
		{Between(v(1, 0), v(2, 0)).Union(Singleton(v(3, 0))), ">=1.0, <2.0 || 3.0"},
	}
	for _, tt := range tests {
		if got := tt.set.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestTermRelation(t *testing.T) {
	pkg := Package{Ecosystem: "test", Name: "a"}
	pos := func(s VersionSet) Term { return Term{Pkg: pkg, Set: s, Positive: true} }
	neg := func(s VersionSet) Term { return Term{Pkg: pkg, Set: s, Positive: false} }

	// Positive ∩ negative removes the excluded region.
	got := pos(Between(v(1, 0), v(3, 0))).Intersect(neg(Between(v(2, 0), v(3, 0))))
	if !got.Positive || !got.Set.Equal(Between(v(1, 0), v(2, 0))) {
		t.Errorf("pos ∩ neg = %s", got)
	}

	// Negative ∩ negative unions the exclusions.
	got = neg(Singleton(v(1, 0))).Intersect(neg(Singleton(v(2, 0))))
	if got.Positive || !got.Set.Equal(Singleton(v(1, 0)).Union(Singleton(v(2, 0)))) {
		t.Errorf("neg ∩ neg = %s", got)
	}

	// Subsumption.
	if !pos(Singleton(v(1, 5))).Subsumes(pos(Between(v(1, 0), v(2, 0)))) {
		t.Error("1.5 should subsume [1.0, 2.0)")
	}
	if pos(Between(v(1, 0), v(2, 0))).Subsumes(pos(Singleton(v(1, 5)))) {
		t.Error("[1.0, 2.0) should not subsume 1.5")
	}
	if !pos(Singleton(v(3, 0))).Subsumes(neg(Between(v(1, 0), v(2, 0)))) {
		t.Error("3.0 should subsume the negation of [1.0, 2.0)")
	}
}
