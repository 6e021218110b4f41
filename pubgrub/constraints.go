// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"sort"
	"strings"
)

// Version is an ecosystem-specific, totally-ordered version value. The
// solver never inspects versions beyond comparing and printing them;
// each adapter supplies its own implementation with an order consistent
// with the ecosystem's native rules.
type Version interface {
	fmt.Stringer
	// Compare returns a negative number if the receiver sorts before
	// other, zero if they are equal, and a positive number otherwise.
	Compare(other Version) int
}

// bound is one end of an interval. A nil version means the bound is
// absent (negative or positive infinity, depending on which end).
type bound struct {
	v   Version
	inc bool
}

// interval is a contiguous, non-empty run of versions.
type interval struct {
	lo, hi bound
}

// VersionSet is a set of versions, held in closed form as a normalized
// union of intervals: sorted, pairwise disjoint, non-adjacent and
// non-empty. All operations preserve normalization, so equality is
// structural. The zero value is the empty set.
type VersionSet struct {
	ivs []interval
}

// Interval is the exported view of one interval in a VersionSet. A nil
// Lo or Hi marks an unbounded end.
type Interval struct {
	Lo, Hi       Version
	LoInc, HiInc bool
}

// None returns the empty set.
func None() VersionSet {
	return VersionSet{}
}

// Any returns the set of all versions.
func Any() VersionSet {
	return VersionSet{ivs: []interval{{}}}
}

// Singleton returns the set holding exactly v.
func Singleton(v Version) VersionSet {
	return VersionSet{ivs: []interval{{
		lo: bound{v: v, inc: true},
		hi: bound{v: v, inc: true},
	}}}
}

// AtLeast returns the set of versions greater than or equal to v.
func AtLeast(v Version) VersionSet {
	return VersionSet{ivs: []interval{{lo: bound{v: v, inc: true}}}}
}

// Greater returns the set of versions strictly greater than v.
func Greater(v Version) VersionSet {
	return VersionSet{ivs: []interval{{lo: bound{v: v}}}}
}

// AtMost returns the set of versions less than or equal to v.
func AtMost(v Version) VersionSet {
	return VersionSet{ivs: []interval{{hi: bound{v: v, inc: true}}}}
}

// Less returns the set of versions strictly less than v.
func Less(v Version) VersionSet {
	return VersionSet{ivs: []interval{{hi: bound{v: v}}}}
}

// Between returns the half-open set [lo, hi).
func Between(lo, hi Version) VersionSet {
	iv := interval{lo: bound{v: lo, inc: true}, hi: bound{v: hi}}
	if iv.empty() {
		return None()
	}
	return VersionSet{ivs: []interval{iv}}
}

// NewSet builds a set from arbitrary intervals, normalizing as needed.
func NewSet(ivs ...Interval) VersionSet {
	conv := make([]interval, 0, len(ivs))
	for _, iv := range ivs {
		c := interval{
			lo: bound{v: iv.Lo, inc: iv.LoInc},
			hi: bound{v: iv.Hi, inc: iv.HiInc},
		}
		if !c.empty() {
			conv = append(conv, c)
		}
	}
	return VersionSet{ivs: normalize(conv)}
}

// Intervals returns the set's intervals in order.
func (s VersionSet) Intervals() []Interval {
	out := make([]Interval, len(s.ivs))
	for i, iv := range s.ivs {
		out[i] = Interval{Lo: iv.lo.v, LoInc: iv.lo.inc, Hi: iv.hi.v, HiInc: iv.hi.inc}
	}
	return out
}

// cmpLower orders two lower bounds. A nil version is negative infinity;
// at equal versions an inclusive bound admits more, so it sorts first.
func cmpLower(a, b bound) int {
	if a.v == nil || b.v == nil {
		if a.v == b.v {
			return 0
		}
		if a.v == nil {
			return -1
		}
		return 1
	}
	if c := a.v.Compare(b.v); c != 0 {
		return c
	}
	switch {
	case a.inc == b.inc:
		return 0
	case a.inc:
		return -1
	default:
		return 1
	}
}

// cmpUpper orders two upper bounds. A nil version is positive infinity;
// at equal versions an exclusive bound admits less, so it sorts first.
func cmpUpper(a, b bound) int {
	if a.v == nil || b.v == nil {
		if a.v == b.v {
			return 0
		}
		if a.v == nil {
			return 1
		}
		return -1
	}
	if c := a.v.Compare(b.v); c != 0 {
		return c
	}
	switch {
	case a.inc == b.inc:
		return 0
	case a.inc:
		return 1
	default:
		return -1
	}
}

func (iv interval) empty() bool {
	if iv.lo.v == nil || iv.hi.v == nil {
		return false
	}
	c := iv.lo.v.Compare(iv.hi.v)
	if c != 0 {
		return c > 0
	}
	return !(iv.lo.inc && iv.hi.inc)
}

// gapBetween reports whether there is at least one representable
// position between upper bound hi and lower bound lo. Adjacent
// intervals like [a, v) and [v, b) have no gap and can merge.
func gapBetween(hi, lo bound) bool {
	if hi.v == nil || lo.v == nil {
		return false
	}
	c := hi.v.Compare(lo.v)
	if c != 0 {
		return c < 0
	}
	return !hi.inc && !lo.inc
}

// normalize sorts intervals and merges overlapping or adjacent runs.
// Input intervals must be non-empty.
func normalize(ivs []interval) []interval {
	if len(ivs) == 0 {
		return nil
	}
	sorted := make([]interval, len(ivs))
	copy(sorted, ivs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return cmpLower(sorted[i].lo, sorted[j].lo) < 0
	})

	out := sorted[:1]
	for _, iv := range sorted[1:] {
		cur := &out[len(out)-1]
		if gapBetween(cur.hi, iv.lo) {
			out = append(out, iv)
			continue
		}
		if cmpUpper(iv.hi, cur.hi) > 0 {
			cur.hi = iv.hi
		}
	}
	return out
}

// IsEmpty reports whether the set contains no versions.
func (s VersionSet) IsEmpty() bool {
	return len(s.ivs) == 0
}

// IsAny reports whether the set contains every version.
func (s VersionSet) IsAny() bool {
	return len(s.ivs) == 1 && s.ivs[0].lo.v == nil && s.ivs[0].hi.v == nil
}

// Contains reports whether v is in the set. It binary-searches the
// interval list, so cost is logarithmic in the number of intervals.
func (s VersionSet) Contains(v Version) bool {
	idx := sort.Search(len(s.ivs), func(i int) bool {
		hi := s.ivs[i].hi
		if hi.v == nil {
			return true
		}
		c := v.Compare(hi.v)
		if c != 0 {
			return c < 0
		}
		return hi.inc
	})
	if idx == len(s.ivs) {
		return false
	}
	lo := s.ivs[idx].lo
	if lo.v == nil {
		return true
	}
	c := v.Compare(lo.v)
	if c != 0 {
		return c > 0
	}
	return lo.inc
}

// Intersect returns the set of versions present in both sets.
func (s VersionSet) Intersect(o VersionSet) VersionSet {
	var out []interval
	i, j := 0, 0
	for i < len(s.ivs) && j < len(o.ivs) {
		a, b := s.ivs[i], o.ivs[j]
		lo := a.lo
		if cmpLower(b.lo, lo) > 0 {
			lo = b.lo
		}
		hi := a.hi
		if cmpUpper(b.hi, hi) < 0 {
			hi = b.hi
		}
		if iv := (interval{lo: lo, hi: hi}); !iv.empty() {
			out = append(out, iv)
		}
		if cmpUpper(a.hi, b.hi) <= 0 {
			i++
		} else {
			j++
		}
	}
	return VersionSet{ivs: out}
}

// Union returns the set of versions present in either set.
func (s VersionSet) Union(o VersionSet) VersionSet {
	if s.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return s
	}
	all := make([]interval, 0, len(s.ivs)+len(o.ivs))
	all = append(all, s.ivs...)
	all = append(all, o.ivs...)
	return VersionSet{ivs: normalize(all)}
}

// Complement returns the set of versions not in the set.
func (s VersionSet) Complement() VersionSet {
	if s.IsEmpty() {
		return Any()
	}
	var out []interval
	first := s.ivs[0]
	if first.lo.v != nil {
		out = append(out, interval{hi: bound{v: first.lo.v, inc: !first.lo.inc}})
	}
	for i := 0; i < len(s.ivs)-1; i++ {
		out = append(out, interval{
			lo: bound{v: s.ivs[i].hi.v, inc: !s.ivs[i].hi.inc},
			hi: bound{v: s.ivs[i+1].lo.v, inc: !s.ivs[i+1].lo.inc},
		})
	}
	last := s.ivs[len(s.ivs)-1]
	if last.hi.v != nil {
		out = append(out, interval{lo: bound{v: last.hi.v, inc: !last.hi.inc}})
	}
	return VersionSet{ivs: out}
}

// Equal reports structural equality. Normalization makes this a true
// set-equality test for sets built over the same version type.
func (s VersionSet) Equal(o VersionSet) bool {
	if len(s.ivs) != len(o.ivs) {
		return false
	}
	for i := range s.ivs {
		if !boundEqual(s.ivs[i].lo, o.ivs[i].lo) || !boundEqual(s.ivs[i].hi, o.ivs[i].hi) {
			return false
		}
	}
	return true
}

func boundEqual(a, b bound) bool {
	if a.v == nil || b.v == nil {
		return a.v == b.v
	}
	return a.inc == b.inc && a.v.Compare(b.v) == 0
}

// SubsetOf reports whether every version in s is also in o.
func (s VersionSet) SubsetOf(o VersionSet) bool {
	return s.Intersect(o).Equal(s)
}

// Disjoint reports whether the sets share no versions.
func (s VersionSet) Disjoint(o VersionSet) bool {
	return s.Intersect(o).IsEmpty()
}

func (s VersionSet) String() string {
	if s.IsEmpty() {
		return "none"
	}
	if s.IsAny() {
		return "any"
	}
	parts := make([]string, 0, len(s.ivs))
	for _, iv := range s.ivs {
		parts = append(parts, iv.String())
	}
	return strings.Join(parts, " || ")
}

func (iv interval) String() string {
	// Exact pin.
	if iv.lo.v != nil && iv.hi.v != nil && iv.lo.inc && iv.hi.inc && iv.lo.v.Compare(iv.hi.v) == 0 {
		return iv.lo.v.String()
	}
	var parts []string
	if iv.lo.v != nil {
		op := ">"
		if iv.lo.inc {
			op = ">="
		}
		parts = append(parts, op+iv.lo.v.String())
	}
	if iv.hi.v != nil {
		op := "<"
		if iv.hi.inc {
			op = "<="
		}
		parts = append(parts, op+iv.hi.v.String())
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ", ")
}
