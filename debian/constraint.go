// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debian

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// ParseConstraint turns an archive relation into a version set. The
// archive operators are << <= = >= >>, with < and > kept as the
// historical aliases of <= and >=. The empty string and "*" admit
// everything. An unrecognized operator fails closed to the empty set
// rather than silently admitting versions.
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
	for _, candidate := range []string{"<<", ">>", "<=", ">=", "=", "<", ">"} {
		if strings.HasPrefix(clause, candidate) {
			op = candidate
			rest = strings.TrimSpace(clause[len(candidate):])
			break
		}
	}
	if op == "" {
		if strings.IndexAny(clause, "<>=!~^") >= 0 {
			// Looks like an operator we do not know. Fail closed.
			return pubgrub.None(), nil
		}
		// Bare version means exact.
		op, rest = "=", clause
	}

	v, err := ParseVersion(rest)
	if err != nil {
		return pubgrub.None(), errors.Wrapf(err, "constraint %q", clause)
	}
	return opSet(op, v), nil
}

func opSet(op string, v Version) pubgrub.VersionSet {
	switch op {
	case "=":
		return pubgrub.Singleton(v)
	case ">>":
		return pubgrub.Greater(v)
	case ">=", ">":
		return pubgrub.AtLeast(v)
	case "<<":
		return pubgrub.Less(v)
	case "<=", "<":
		return pubgrub.AtMost(v)
	}
	return pubgrub.None()
}
