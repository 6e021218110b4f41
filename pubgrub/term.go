// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "fmt"

// Package identifies a package within one ecosystem's namespace. The
// solver only ever compares packages for equality and uses them as map
// keys; the meaning of the name is the adapter's business.
type Package struct {
	Ecosystem string
	Name      string
}

func (p Package) String() string {
	if p.Ecosystem == "" {
		return p.Name
	}
	return p.Ecosystem + ":" + p.Name
}

// pkgLess gives the deterministic package order used everywhere the
// solver has to iterate over a package map.
func pkgLess(a, b Package) bool {
	if a.Ecosystem != b.Ecosystem {
		return a.Ecosystem < b.Ecosystem
	}
	return a.Name < b.Name
}

// Term is a positive or negative statement about a package. A positive
// term asserts the package is selected with a version in Set; a
// negative term asserts it is not, which also holds when the package is
// absent from the solution entirely.
type Term struct {
	Pkg      Package
	Set      VersionSet
	Positive bool
}

// Negate flips the term's polarity.
func (t Term) Negate() Term {
	t.Positive = !t.Positive
	return t
}

// Intersect combines two statements about the same package into one.
func (t Term) Intersect(o Term) Term {
	switch {
	case t.Positive && o.Positive:
		return Term{Pkg: t.Pkg, Set: t.Set.Intersect(o.Set), Positive: true}
	case t.Positive && !o.Positive:
		return Term{Pkg: t.Pkg, Set: t.Set.Intersect(o.Set.Complement()), Positive: true}
	case !t.Positive && o.Positive:
		return Term{Pkg: t.Pkg, Set: o.Set.Intersect(t.Set.Complement()), Positive: true}
	default:
		return Term{Pkg: t.Pkg, Set: t.Set.Union(o.Set), Positive: false}
	}
}

// Union is the dual of Intersect, used when merging prior causes.
func (t Term) Union(o Term) Term {
	return t.Negate().Intersect(o.Negate()).Negate()
}

// Equal reports whether two terms make the same statement.
func (t Term) Equal(o Term) bool {
	return t.Pkg == o.Pkg && t.Positive == o.Positive && t.Set.Equal(o.Set)
}

// Subsumes reports whether t implies o: every solution satisfying t
// also satisfies o.
func (t Term) Subsumes(o Term) bool {
	return t.Intersect(o).Equal(t)
}

// tautological reports whether the term holds in every solution. Only a
// negative term over the empty set qualifies; it carries no information
// and is dropped from incompatibilities.
func (t Term) tautological() bool {
	return !t.Positive && t.Set.IsEmpty()
}

func (t Term) String() string {
	if t.Positive {
		return fmt.Sprintf("%s %s", t.Pkg, t.Set)
	}
	return fmt.Sprintf("not %s %s", t.Pkg, t.Set)
}
