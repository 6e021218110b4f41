// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "sort"

// Relation of an incompatibility (or one of its terms) to the partial
// solution.
type relation int

const (
	relSatisfied relation = iota
	relAlmostSatisfied
	relContradicted
	relInconclusive
)

type assignKind int

const (
	decisionAssign assignKind = iota
	derivationAssign
)

// assignment is one entry in the ordered history: either a decision
// (package pinned to a version) or a derivation (a term forced by an
// incompatibility, recorded as its cause).
type assignment struct {
	term  Term
	kind  assignKind
	cause int // arena index for derivations, -1 for decisions
	level int
}

// partialSolution is the ordered assignment history plus per-package
// aggregates kept in sync with it. The aggregate for a package is the
// intersection of every assignment term about it, itself a term.
type partialSolution struct {
	assignments []assignment
	decisions   map[Package]Version
	aggregates  map[Package]Term
	level       int
}

func newPartialSolution() *partialSolution {
	return &partialSolution{
		decisions:  make(map[Package]Version),
		aggregates: make(map[Package]Term),
	}
}

func (ps *partialSolution) apply(t Term) {
	if agg, ok := ps.aggregates[t.Pkg]; ok {
		ps.aggregates[t.Pkg] = agg.Intersect(t)
	} else {
		ps.aggregates[t.Pkg] = t
	}
}

func (ps *partialSolution) decide(pkg Package, v Version) error {
	if _, dup := ps.decisions[pkg]; dup {
		return internalf("duplicate decision for %s", pkg)
	}
	ps.level++
	ps.decisions[pkg] = v
	t := Term{Pkg: pkg, Set: Singleton(v), Positive: true}
	ps.assignments = append(ps.assignments, assignment{
		term:  t,
		kind:  decisionAssign,
		cause: -1,
		level: ps.level,
	})
	ps.apply(t)
	return nil
}

func (ps *partialSolution) derive(t Term, cause int) {
	ps.assignments = append(ps.assignments, assignment{
		term:  t,
		kind:  derivationAssign,
		cause: cause,
		level: ps.level,
	})
	ps.apply(t)
}

// backtrack drops every assignment above level and rebuilds the
// aggregate and decision maps from what remains.
func (ps *partialSolution) backtrack(level int) {
	kept := ps.assignments[:0]
	for _, a := range ps.assignments {
		if a.level <= level {
			kept = append(kept, a)
		}
	}
	ps.assignments = kept
	ps.level = level
	ps.decisions = make(map[Package]Version)
	ps.aggregates = make(map[Package]Term)
	for _, a := range ps.assignments {
		if a.kind == decisionAssign {
			ps.decisions[a.term.Pkg] = mustSingleton(a.term.Set)
		}
		ps.apply(a.term)
	}
}

func mustSingleton(s VersionSet) Version {
	ivs := s.Intervals()
	if len(ivs) != 1 || ivs[0].Lo == nil {
		panic("pubgrub: decision term is not a singleton")
	}
	return ivs[0].Lo
}

// termRelation classifies one term against the aggregate for its
// package. A package with no assignments yields inconclusive.
func (ps *partialSolution) termRelation(t Term) relation {
	agg, ok := ps.aggregates[t.Pkg]
	if !ok {
		return relInconclusive
	}
	if agg.Subsumes(t) {
		return relSatisfied
	}
	if agg.Subsumes(t.Negate()) {
		return relContradicted
	}
	return relInconclusive
}

// relationTo classifies a whole incompatibility. When exactly one term
// is undetermined and the rest are satisfied, that term is returned so
// unit propagation can derive its negation.
func (ps *partialSolution) relationTo(ic Incompatibility) (relation, Term) {
	unsat := Term{}
	found := false
	for _, t := range ic.Terms {
		switch ps.termRelation(t) {
		case relSatisfied:
		case relContradicted:
			return relContradicted, Term{}
		default:
			if found {
				return relInconclusive, Term{}
			}
			unsat, found = t, true
		}
	}
	if !found {
		return relSatisfied, Term{}
	}
	return relAlmostSatisfied, unsat
}

// satisfier returns the index of the assignment that first completes
// satisfaction of t, walking the history in order and accumulating the
// per-package intersection. Returns -1 if the history never satisfies
// the term.
func (ps *partialSolution) satisfier(t Term) int {
	var acc Term
	have := false
	for i, a := range ps.assignments {
		if a.term.Pkg != t.Pkg {
			continue
		}
		if have {
			acc = acc.Intersect(a.term)
		} else {
			acc, have = a.term, true
		}
		if acc.Subsumes(t) {
			return i
		}
	}
	return -1
}

// undecidedPositive lists packages that carry a positive aggregate but
// no decision yet, in deterministic order. These are the packages the
// decision phase may pick from.
func (ps *partialSolution) undecidedPositive() []Package {
	var pkgs []Package
	for pkg, agg := range ps.aggregates {
		if !agg.Positive {
			continue
		}
		if _, done := ps.decisions[pkg]; done {
			continue
		}
		pkgs = append(pkgs, pkg)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgLess(pkgs[i], pkgs[j]) })
	return pkgs
}

// allowedSet returns the versions still admissible for an undecided
// package with a positive aggregate.
func (ps *partialSolution) allowedSet(pkg Package) VersionSet {
	agg, ok := ps.aggregates[pkg]
	if !ok || !agg.Positive {
		return Any()
	}
	return agg.Set
}
