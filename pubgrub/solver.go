// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pubgrub implements conflict-driven dependency resolution.
//
// The solver alternates unit propagation, conflict resolution with
// non-chronological backjumping, and a decision phase that always picks
// the undecided package with the fewest remaining candidates and its
// newest admissible version. It knows nothing about any concrete
// package ecosystem: versions, version sets and candidate lists arrive
// through the Provider interface.
package pubgrub

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Dependency is one requirement edge of a candidate version. Variant
// is an optional ecosystem-specific marker (a crate feature name, for
// example); the solver itself never reads it.
type Dependency struct {
	Pkg     Package
	Set     VersionSet
	Variant string
}

// Candidate is one selectable version of a package together with its
// dependencies.
type Candidate struct {
	Version Version
	Deps    []Dependency
}

// Provider hands the solver candidate lists on demand. Implementations
// must return candidates newest first and must answer identically for
// the same package for the life of a solve. An error marks the
// package's candidates as unavailable; the solver treats that the same
// way as an empty list, but reports the reason.
type Provider interface {
	Versions(pkg Package) ([]Candidate, error)
}

// Pin is one package locked to one version.
type Pin struct {
	Pkg     Package
	Version Version
}

// Solution is the complete assignment, sorted by package.
type Solution []Pin

type solver struct {
	ctx  context.Context
	prov Provider
	root Package
	l    *logrus.Logger

	st *incompatStore
	ps *partialSolution

	vcache    map[Package][]Candidate
	vreason   map[Package]string
	depsAdded map[Package]map[string]bool
}

// Solve finds a version assignment satisfying the root package's
// dependency closure, or fails with a *NoSolutionError carrying the
// full derivation of why none exists. The context is checked once per
// decision; lg may be nil.
func Solve(ctx context.Context, prov Provider, root Package, lg *logrus.Logger) (Solution, error) {
	if lg == nil {
		lg = logrus.New()
	}
	s := &solver{
		ctx:       ctx,
		prov:      prov,
		root:      root,
		l:         lg,
		st:        newIncompatStore(),
		ps:        newPartialSolution(),
		vcache:    make(map[Package][]Candidate),
		vreason:   make(map[Package]string),
		depsAdded: make(map[Package]map[string]bool),
	}

	rootCands := s.versions(root)
	if len(rootCands) == 0 {
		return nil, internalf("root package %s has no candidate version", root)
	}
	rootV := rootCands[0].Version
	s.st.add(newIncompat(KindRoot,
		Term{Pkg: root, Set: Singleton(rootV), Positive: false},
	))

	next := root
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "version solving aborted")
		}
		if err := s.propagate(next); err != nil {
			return nil, err
		}
		pkg, done, err := s.decide()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		next = pkg
	}

	sol := make(Solution, 0, len(s.ps.decisions))
	for pkg, v := range s.ps.decisions {
		sol = append(sol, Pin{Pkg: pkg, Version: v})
	}
	sort.Slice(sol, func(i, j int) bool { return pkgLess(sol[i].Pkg, sol[j].Pkg) })
	return sol, nil
}

// versions memoizes the provider per solve, so repeated decision
// passes cannot observe an index changing underneath them.
func (s *solver) versions(pkg Package) []Candidate {
	if cands, ok := s.vcache[pkg]; ok {
		return cands
	}
	if _, failed := s.vreason[pkg]; failed {
		return nil
	}
	cands, err := s.prov.Versions(pkg)
	if err != nil {
		s.vreason[pkg] = err.Error()
		if s.l.Level >= logrus.WarnLevel {
			s.l.WithFields(logrus.Fields{
				"pkg": pkg.String(),
				"err": err,
			}).Warn("candidate list unavailable")
		}
		return nil
	}
	s.vcache[pkg] = cands
	return cands
}

// propagate runs unit propagation to a fixed point starting from pkg.
// Any fully satisfied incompatibility routes through conflict
// resolution, which backjumps and leaves a learned incompatibility to
// continue from.
func (s *solver) propagate(pkg Package) error {
	changed := []Package{pkg}
	for len(changed) > 0 {
		p := changed[0]
		changed = changed[1:]

		idxs := s.st.byPkg[p]
		for k := len(idxs) - 1; k >= 0; k-- {
			icIdx := idxs[k]
			rel, unsat := s.ps.relationTo(s.st.mustGet(icIdx))
			switch rel {
			case relSatisfied:
				learned, err := s.resolveConflict(icIdx)
				if err != nil {
					return err
				}
				lic := s.st.mustGet(learned)
				rel2, t2 := s.ps.relationTo(lic)
				if rel2 != relAlmostSatisfied {
					return internalf("learned incompatibility %q is not unit after backjump", lic.String())
				}
				s.ps.derive(t2.Negate(), learned)
				if s.l.Level >= logrus.DebugLevel {
					s.l.WithFields(logrus.Fields{
						"term":  t2.Negate().String(),
						"level": s.ps.level,
					}).Debug("derivation after conflict")
				}
				changed = []Package{t2.Pkg}
				k = -1 // restart the worklist from the fresh derivation
			case relAlmostSatisfied:
				s.ps.derive(unsat.Negate(), icIdx)
				if s.l.Level >= logrus.DebugLevel {
					s.l.WithFields(logrus.Fields{
						"term":  unsat.Negate().String(),
						"cause": s.st.mustGet(icIdx).String(),
					}).Debug("derivation")
				}
				changed = appendPkg(changed, unsat.Pkg)
			}
		}
	}
	return nil
}

func appendPkg(pkgs []Package, pkg Package) []Package {
	for _, p := range pkgs {
		if p == pkg {
			return pkgs
		}
	}
	return append(pkgs, pkg)
}

// resolveConflict walks satisfier causes backwards, merging prior
// causes until the conflict hinges on a decision or spans two decision
// levels, then backjumps. The returned index is the learned
// incompatibility, registered for propagation.
func (s *solver) resolveConflict(icIdx int) (int, error) {
	fresh := false
	for {
		ic := s.st.mustGet(icIdx)
		if ic.isTerminal(s.root) {
			return 0, &NoSolutionError{Tree: s.buildTree(icIdx)}
		}

		// Find the latest assignment satisfying one of ic's terms
		// (the satisfier), the outermost level at which the conflict
		// still holds without it, and, when the satisfier covers its
		// term only partially, the uncovered remainder.
		mostRecentSat := -1
		var mostRecentTerm Term
		var difference *Term
		prevLevel := 1
		for _, t := range ic.Terms {
			satIdx := s.ps.satisfier(t)
			if satIdx < 0 {
				return 0, internalf("conflict %q is not satisfied by the partial solution", ic.String())
			}
			if mostRecentSat == -1 || satIdx > mostRecentSat {
				if mostRecentSat != -1 {
					if l := s.ps.assignments[mostRecentSat].level; l > prevLevel {
						prevLevel = l
					}
				}
				mostRecentSat = satIdx
				mostRecentTerm = t
				difference = nil
				sat := s.ps.assignments[satIdx]
				if !sat.term.Subsumes(t) {
					d := sat.term.Intersect(t.Negate())
					difference = &d
					if dIdx := s.ps.satisfier(d.Negate()); dIdx >= 0 {
						if l := s.ps.assignments[dIdx].level; l > prevLevel {
							prevLevel = l
						}
					}
				}
			} else if l := s.ps.assignments[satIdx].level; l > prevLevel {
				prevLevel = l
			}
		}

		sat := s.ps.assignments[mostRecentSat]
		if sat.kind == decisionAssign || prevLevel < sat.level {
			s.ps.backtrack(prevLevel)
			if fresh {
				s.st.register(icIdx)
			}
			if s.l.Level >= logrus.DebugLevel {
				s.l.WithFields(logrus.Fields{
					"level":   prevLevel,
					"learned": ic.String(),
				}).Debug("backjump")
			}
			return icIdx, nil
		}

		prior := priorCause(ic, s.st.mustGet(sat.cause), mostRecentTerm.Pkg, difference, icIdx, sat.cause)
		icIdx = s.st.addRaw(prior)
		fresh = true
	}
}

// decide picks the undecided package with the fewest admissible
// candidates and pins its newest one, after installing that version's
// dependency incompatibilities. Returns done when every positively
// constrained package is decided.
func (s *solver) decide() (Package, bool, error) {
	undecided := s.ps.undecidedPositive()
	if len(undecided) == 0 {
		return Package{}, true, nil
	}

	best := Package{}
	var bestMatches []Candidate
	bestCount := -1
	for _, pkg := range undecided {
		allowed := s.ps.allowedSet(pkg)
		var matches []Candidate
		for _, c := range s.versions(pkg) {
			if allowed.Contains(c.Version) {
				matches = append(matches, c)
			}
		}
		if bestCount == -1 || len(matches) < bestCount {
			best, bestMatches, bestCount = pkg, matches, len(matches)
		}
		if bestCount == 0 {
			break
		}
	}

	allowed := s.ps.allowedSet(best)
	if bestCount == 0 {
		kind := KindNoVersions
		ic := newIncompat(kind, Term{Pkg: best, Set: allowed, Positive: true})
		if reason, failed := s.vreason[best]; failed {
			ic.Kind = KindUnavailable
			ic.Reason = reason
		}
		s.st.add(ic)
		return best, false, nil
	}

	chosen := bestMatches[0]
	v := chosen.Version
	if s.l.Level >= logrus.DebugLevel {
		s.l.WithFields(logrus.Fields{
			"pkg":        best.String(),
			"version":    v.String(),
			"candidates": bestCount,
			"level":      s.ps.level + 1,
		}).Debug("decision")
	}

	newIdxs := s.addDepIncompats(best, v, chosen.Deps)

	// Only decide if the decision would not immediately satisfy one of
	// the version's own incompatibilities; otherwise let propagation
	// derive the exclusion and try the next candidate.
	conflict := false
	for _, idx := range newIdxs {
		if s.depConflicts(s.st.mustGet(idx), best) {
			conflict = true
			break
		}
	}
	if !conflict {
		if err := s.ps.decide(best, v); err != nil {
			return Package{}, false, err
		}
	}
	return best, false, nil
}

// addDepIncompats installs one incompatibility per dependency edge of
// (pkg, v), once per solve.
func (s *solver) addDepIncompats(pkg Package, v Version, deps []Dependency) []int {
	added, ok := s.depsAdded[pkg]
	if !ok {
		added = make(map[string]bool)
		s.depsAdded[pkg] = added
	}
	key := v.String()
	if added[key] {
		return nil
	}
	added[key] = true

	var idxs []int
	for _, d := range deps {
		if d.Pkg == pkg && d.Set.Contains(v) {
			continue
		}
		idxs = append(idxs, s.st.add(depIncompat(pkg, v, d.Pkg, d.Set)))
	}
	return idxs
}

// depConflicts reports whether a dependency incompatibility of a
// just-chosen version is already fully satisfied, counting the pending
// decision itself as satisfied.
func (s *solver) depConflicts(ic Incompatibility, deciding Package) bool {
	for _, t := range ic.Terms {
		if t.Pkg == deciding {
			continue
		}
		if s.ps.termRelation(t) != relSatisfied {
			return false
		}
	}
	return true
}
