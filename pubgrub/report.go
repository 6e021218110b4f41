// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"strings"
)

// DerivationTree is the proof of a failed solve: a DAG of
// incompatibilities rooted at the terminal one, with derived nodes
// pointing at their two causes. Nodes live in the same append-only
// arena the solver built, so sharing is preserved.
type DerivationTree struct {
	nodes []Incompatibility
	root  int
}

func (s *solver) buildTree(root int) *DerivationTree {
	nodes := make([]Incompatibility, len(s.st.items))
	copy(nodes, s.st.items)
	return &DerivationTree{nodes: nodes, root: root}
}

// Root returns the terminal incompatibility.
func (dt *DerivationTree) Root() Incompatibility {
	return dt.nodes[dt.root]
}

// Causes returns the two causes of a derived incompatibility.
func (dt *DerivationTree) Causes(ic Incompatibility) (Incompatibility, Incompatibility, bool) {
	if ic.Kind != KindDerived {
		return Incompatibility{}, Incompatibility{}, false
	}
	return dt.nodes[ic.Left], dt.nodes[ic.Right], true
}

// String renders the derivation as one sentence per derived step, in
// dependency order, ending at the terminal conclusion. Each step cites
// either an external fact or the conclusion of an earlier step, so
// shared sub-derivations are stated once.
func (dt *DerivationTree) String() string {
	var lines []string
	seen := make(map[int]bool)

	var walk func(idx int)
	walk = func(idx int) {
		ic := dt.nodes[idx]
		if ic.Kind != KindDerived || seen[idx] {
			return
		}
		seen[idx] = true
		walk(ic.Left)
		walk(ic.Right)
		lines = append(lines, fmt.Sprintf("Because %s and %s, %s.",
			dt.fact(ic.Left), dt.fact(ic.Right), dt.conclusion(idx)))
	}
	walk(dt.root)

	if len(lines) == 0 {
		// The terminal incompatibility is itself external.
		return fmt.Sprintf("Because %s, version solving failed.", dt.fact(dt.root))
	}
	return strings.Join(lines, "\n")
}

// fact phrases a node as a citable statement: external nodes by their
// origin, derived nodes by their conclusion.
func (dt *DerivationTree) fact(idx int) string {
	ic := dt.nodes[idx]
	if ic.Kind == KindDerived {
		return dt.conclusion(idx)
	}
	return externalPhrase(ic)
}

func externalPhrase(ic Incompatibility) string {
	switch ic.Kind {
	case KindRoot:
		return fmt.Sprintf("we are solving the requirements of %s", ic.Terms[0].Pkg)
	case KindNoVersions:
		t := ic.Terms[0]
		if t.Set.IsAny() {
			return fmt.Sprintf("no versions of %s are available", t.Pkg)
		}
		return fmt.Sprintf("no version of %s satisfies %s", t.Pkg, t.Set)
	case KindUnavailable:
		t := ic.Terms[0]
		return fmt.Sprintf("the candidates of %s are unavailable (%s)", t.Pkg, ic.Reason)
	case KindDependency:
		pos, neg, ok := splitDepTerms(ic)
		if !ok {
			return fmt.Sprintf("%s %s has an unsatisfiable requirement", ic.Terms[0].Pkg, ic.Terms[0].Set)
		}
		return fmt.Sprintf("%s %s depends on %s %s", pos.Pkg, pos.Set, neg.Pkg, neg.Set)
	default:
		return ic.String()
	}
}

func splitDepTerms(ic Incompatibility) (pos, neg Term, ok bool) {
	if len(ic.Terms) != 2 {
		return Term{}, Term{}, false
	}
	npos := 0
	for _, t := range ic.Terms {
		if t.Positive {
			pos = t
			npos++
		} else {
			neg = t
		}
	}
	return pos, neg, npos == 1
}

// conclusion phrases what a derived incompatibility rules out.
func (dt *DerivationTree) conclusion(idx int) string {
	ic := dt.nodes[idx]
	if idx == dt.root || len(ic.Terms) == 0 {
		return "version solving failed"
	}
	switch len(ic.Terms) {
	case 1:
		t := ic.Terms[0]
		if t.Positive {
			if t.Set.IsAny() {
				return fmt.Sprintf("%s is forbidden", t.Pkg)
			}
			return fmt.Sprintf("%s %s is forbidden", t.Pkg, t.Set)
		}
		return fmt.Sprintf("%s must be %s", t.Pkg, t.Set)
	case 2:
		a, b := ic.Terms[0], ic.Terms[1]
		if a.Positive && !b.Positive {
			return fmt.Sprintf("%s %s requires %s %s", a.Pkg, a.Set, b.Pkg, b.Set)
		}
		if !a.Positive && b.Positive {
			return fmt.Sprintf("%s %s requires %s %s", b.Pkg, b.Set, a.Pkg, a.Set)
		}
		if a.Positive && b.Positive {
			return fmt.Sprintf("%s %s is incompatible with %s %s", a.Pkg, a.Set, b.Pkg, b.Set)
		}
	}
	return ic.String() + " cannot all hold"
}
