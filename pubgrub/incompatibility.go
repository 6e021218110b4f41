// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"sort"
	"strings"
)

// IncompatKind says where an incompatibility came from. External kinds
// are facts about the index or the request; KindDerived marks a node
// produced by conflict resolution, with Left and Right pointing at its
// two causes in the arena.
type IncompatKind int

const (
	// KindRoot is the initial requirement that the root package be
	// selected at its single version.
	KindRoot IncompatKind = iota
	// KindNoVersions records that no indexed version of a package
	// falls inside a set.
	KindNoVersions
	// KindUnavailable records that a package's candidate list could
	// not be obtained at all.
	KindUnavailable
	// KindDependency records one dependency edge of one version.
	KindDependency
	// KindDerived marks a consequence merged from two earlier
	// incompatibilities.
	KindDerived
)

// Incompatibility is a set of terms that cannot all be satisfied at
// once. Terms hold at most one entry per package and are kept sorted by
// package for deterministic iteration.
type Incompatibility struct {
	Terms []Term
	Kind  IncompatKind

	// Left and Right index the arena for KindDerived, and are -1
	// otherwise.
	Left, Right int

	// Reason carries detail for KindUnavailable.
	Reason string
}

func newIncompat(kind IncompatKind, terms ...Term) Incompatibility {
	kept := terms[:0]
	for _, t := range terms {
		if !t.tautological() {
			kept = append(kept, t)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return pkgLess(kept[i].Pkg, kept[j].Pkg)
	})
	return Incompatibility{Terms: kept, Kind: kind, Left: -1, Right: -1}
}

// depIncompat states that pkg at exactly v requires dep within set:
// {pkg v, not dep set} cannot hold together with the negation dropped.
func depIncompat(pkg Package, v Version, dep Package, set VersionSet) Incompatibility {
	return newIncompat(KindDependency,
		Term{Pkg: pkg, Set: Singleton(v), Positive: true},
		Term{Pkg: dep, Set: set, Positive: false},
	)
}

// get returns the term about pkg, if any.
func (ic Incompatibility) get(pkg Package) (Term, bool) {
	for _, t := range ic.Terms {
		if t.Pkg == pkg {
			return t, true
		}
	}
	return Term{}, false
}

// isTerminal reports whether the incompatibility can never be avoided:
// either it has no terms, or its only term requires the root package,
// which is always selected.
func (ic Incompatibility) isTerminal(root Package) bool {
	if len(ic.Terms) == 0 {
		return true
	}
	return len(ic.Terms) == 1 && ic.Terms[0].Positive && ic.Terms[0].Pkg == root
}

// priorCause resolves ic against the cause of its satisfier: the terms
// of ic minus the conflicting one, the cause's terms minus the
// satisfier's package, and, when the satisfier only partially covered
// the conflicting term, the inverse of the uncovered remainder. Terms
// landing on the same package are intersected.
func priorCause(ic, cause Incompatibility, satPkg Package, difference *Term, icIdx, causeIdx int) Incompatibility {
	merged := make(map[Package]Term)
	add := func(t Term) {
		if prev, ok := merged[t.Pkg]; ok {
			merged[t.Pkg] = prev.Intersect(t)
		} else {
			merged[t.Pkg] = t
		}
	}
	for _, t := range ic.Terms {
		if t.Pkg != satPkg {
			add(t)
		}
	}
	for _, t := range cause.Terms {
		if t.Pkg != satPkg {
			add(t)
		}
	}
	if difference != nil {
		add(difference.Negate())
	}

	terms := make([]Term, 0, len(merged))
	for _, t := range merged {
		terms = append(terms, t)
	}
	out := newIncompat(KindDerived, terms...)
	out.Left, out.Right = icIdx, causeIdx
	return out
}

func (ic Incompatibility) String() string {
	if len(ic.Terms) == 0 {
		return "version solving failed"
	}
	parts := make([]string, len(ic.Terms))
	for i, t := range ic.Terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// incompatStore is the append-only arena. Incompatibilities are
// addressed by index; nothing is ever removed or reordered, so indices
// stay valid for the life of a solve and the derivation tree can refer
// to them after failure.
type incompatStore struct {
	items []Incompatibility
	byPkg map[Package][]int
}

func newIncompatStore() *incompatStore {
	return &incompatStore{byPkg: make(map[Package][]int)}
}

// addRaw appends without indexing. Used for intermediate prior causes,
// which exist only so the derivation tree can cite them.
func (st *incompatStore) addRaw(ic Incompatibility) int {
	st.items = append(st.items, ic)
	return len(st.items) - 1
}

// add appends and indexes the incompatibility for unit propagation.
func (st *incompatStore) add(ic Incompatibility) int {
	idx := st.addRaw(ic)
	for _, t := range ic.Terms {
		st.byPkg[t.Pkg] = append(st.byPkg[t.Pkg], idx)
	}
	return idx
}

// register indexes an already-stored incompatibility.
func (st *incompatStore) register(idx int) {
	for _, t := range st.items[idx].Terms {
		st.byPkg[t.Pkg] = append(st.byPkg[t.Pkg], idx)
	}
}

func (st *incompatStore) mustGet(idx int) Incompatibility {
	if idx < 0 || idx >= len(st.items) {
		panic(fmt.Sprintf("pubgrub: incompatibility index %d out of range", idx))
	}
	return st.items[idx]
}
