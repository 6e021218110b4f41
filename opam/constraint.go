// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package opam

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// ParseConstraint turns an opam relation into a version set. The
// operators are != = >= > <= <, a bare version means exact, and
// comma-separated clauses intersect. The empty string and "*" admit
// everything.
func ParseConstraint(s string) (pubgrub.VersionSet, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		return pubgrub.Any(), nil
	}

	set := pubgrub.Any()
	for _, clause := range strings.Split(trimmed, ",") {
		one, err := parseClause(strings.TrimSpace(clause))
		if err != nil {
			return pubgrub.None(), err
		}
		set = set.Intersect(one)
	}
	return set, nil
}

func parseClause(clause string) (pubgrub.VersionSet, error) {
	op := ""
	rest := clause
	for _, candidate := range []string{"!=", ">=", "<=", "=", ">", "<"} {
		if strings.HasPrefix(clause, candidate) {
			op = candidate
			rest = strings.TrimSpace(clause[len(candidate):])
			break
		}
	}
	if op == "" {
		if strings.IndexAny(clause, "<>=!~^") >= 0 {
			return pubgrub.None(), nil
		}
		op, rest = "=", clause
	}

	v, err := ParseVersion(strings.Trim(rest, `"`))
	if err != nil {
		return pubgrub.None(), errors.Wrapf(err, "constraint %q", clause)
	}
	return opSet(op, v), nil
}

func opSet(op string, v Version) pubgrub.VersionSet {
	switch op {
	case "=":
		return pubgrub.Singleton(v)
	case "!=":
		return pubgrub.Singleton(v).Complement()
	case ">":
		return pubgrub.Greater(v)
	case ">=":
		return pubgrub.AtLeast(v)
	case "<":
		return pubgrub.Less(v)
	case "<=":
		return pubgrub.AtMost(v)
	}
	return pubgrub.None()
}
