// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cargo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// ParseConstraint parses a crate requirement. A bare version defaults
// to caret semantics, '~' and wildcards narrow as cargo defines them,
// and the comparison operators apply to versions padded with zeros.
// Comma-separated clauses intersect and "||" groups union. Exclusive
// upper bounds stop below the bound's first pre-release, so ^1.2
// never admits 2.0.0-alpha.
func ParseConstraint(s string) (pubgrub.VersionSet, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		return pubgrub.Any(), nil
	}

	set := pubgrub.None()
	for _, group := range strings.Split(trimmed, "||") {
		one := pubgrub.Any()
		for _, clause := range strings.Split(group, ",") {
			clause = strings.TrimSpace(clause)
			if clause == "" {
				continue
			}
			parsed, err := parseClause(clause)
			if err != nil {
				return pubgrub.None(), err
			}
			one = one.Intersect(parsed)
		}
		set = set.Union(one)
	}
	return set, nil
}

// partial is a requirement version with its stated precision. A
// trailing wildcard caps the precision instead.
type partial struct {
	nums []uint64
	pre  string
	wild bool
}

func (p partial) at(i int) uint64 {
	if i < len(p.nums) {
		return p.nums[i]
	}
	return 0
}

func parseClause(clause string) (pubgrub.VersionSet, error) {
	op := ""
	rest := clause
	for _, candidate := range []string{">=", "<=", ">", "<", "=", "^", "~"} {
		if strings.HasPrefix(clause, candidate) {
			op = candidate
			rest = strings.TrimSpace(clause[len(candidate):])
			break
		}
	}

	p, err := parsePartial(rest)
	if err != nil {
		return pubgrub.None(), errors.Wrapf(err, "requirement %q", clause)
	}

	if p.wild && (op == "" || op == "=") {
		return wildcardSet(p), nil
	}
	if op == "" {
		op = "^"
	}

	switch op {
	case "^":
		return caretSet(p), nil
	case "~":
		return tildeSet(p), nil
	case "=":
		if len(p.nums) == 3 {
			return pubgrub.Singleton(mk(p.at(0), p.at(1), p.at(2), p.pre)), nil
		}
		return wildcardSet(p), nil
	case ">=":
		return pubgrub.AtLeast(mk(p.at(0), p.at(1), p.at(2), p.pre)), nil
	case ">":
		if len(p.nums) == 3 {
			return pubgrub.Greater(mk(p.at(0), p.at(1), p.at(2), p.pre)), nil
		}
		if len(p.nums) == 2 {
			return pubgrub.AtLeast(mk(p.at(0), p.at(1)+1, 0, "")), nil
		}
		return pubgrub.AtLeast(mk(p.at(0)+1, 0, 0, "")), nil
	case "<":
		if p.pre != "" {
			return pubgrub.Less(mk(p.at(0), p.at(1), p.at(2), p.pre)), nil
		}
		return pubgrub.Less(mk(p.at(0), p.at(1), p.at(2), "0")), nil
	case "<=":
		if len(p.nums) == 3 {
			return pubgrub.AtMost(mk(p.at(0), p.at(1), p.at(2), p.pre)), nil
		}
		if len(p.nums) == 2 {
			return pubgrub.Less(mk(p.at(0), p.at(1)+1, 0, "0")), nil
		}
		return pubgrub.Less(mk(p.at(0)+1, 0, 0, "0")), nil
	}
	return pubgrub.None(), errors.Errorf("requirement %q has an unknown operator", clause)
}

// caretSet admits everything compatible with the leftmost nonzero
// component.
func caretSet(p partial) pubgrub.VersionSet {
	lo := mk(p.at(0), p.at(1), p.at(2), p.pre)
	var hi Version
	switch {
	case p.at(0) > 0:
		hi = mk(p.at(0)+1, 0, 0, "0")
	case len(p.nums) == 1:
		hi = mk(1, 0, 0, "0")
	case p.at(1) > 0:
		hi = mk(0, p.at(1)+1, 0, "0")
	case len(p.nums) == 2:
		hi = mk(0, 1, 0, "0")
	default:
		hi = mk(0, 0, p.at(2)+1, "0")
	}
	return pubgrub.Between(lo, hi)
}

// tildeSet pins the stated components and lets the next one float.
func tildeSet(p partial) pubgrub.VersionSet {
	lo := mk(p.at(0), p.at(1), p.at(2), p.pre)
	var hi Version
	if len(p.nums) >= 2 {
		hi = mk(p.at(0), p.at(1)+1, 0, "0")
	} else {
		hi = mk(p.at(0)+1, 0, 0, "0")
	}
	return pubgrub.Between(lo, hi)
}

func wildcardSet(p partial) pubgrub.VersionSet {
	switch len(p.nums) {
	case 0:
		return pubgrub.Any()
	case 1:
		return pubgrub.Between(mk(p.at(0), 0, 0, ""), mk(p.at(0)+1, 0, 0, "0"))
	default:
		return pubgrub.Between(mk(p.at(0), p.at(1), 0, ""), mk(p.at(0), p.at(1)+1, 0, "0"))
	}
}

func parsePartial(s string) (partial, error) {
	if s == "" {
		return partial{}, errors.New("empty version")
	}
	var p partial

	rest := s
	if pos := strings.IndexAny(rest, "-+"); pos >= 0 {
		if rest[pos] == '-' {
			p.pre = rest[pos+1:]
			if cut := strings.IndexByte(p.pre, '+'); cut >= 0 {
				p.pre = p.pre[:cut]
			}
		}
		rest = rest[:pos]
	}

	for _, part := range strings.Split(rest, ".") {
		switch part {
		case "*", "x", "X":
			p.wild = true
			return p, nil
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return partial{}, errors.Errorf("malformed component %q", part)
		}
		if len(p.nums) == 3 {
			return partial{}, errors.New("too many components")
		}
		p.nums = append(p.nums, n)
	}
	return p, nil
}

// mk builds a concrete version from components. The "0" pre-release
// is the smallest possible, used as an exclusive bound that keeps
// pre-releases of the bound itself out.
func mk(maj, min, pat uint64, pre string) Version {
	str := fmt.Sprintf("%d.%d.%d", maj, min, pat)
	if pre != "" {
		str += "-" + pre
	}
	sv, err := semver.NewVersion(str)
	if err != nil {
		panic(err)
	}
	return Version{sv: sv}
}
