// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alpine

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// depOps with two-character operators first, so a search for "=" or
// ">" cannot truncate ">=" or "<=".
var depOps = []string{">=", "<=", ">", "<", "="}

// ParseConstraint turns an apk relation into a version set. The empty
// string and "*" admit everything; an unrecognized operator fails
// closed to the empty set.
func ParseConstraint(s string) (pubgrub.VersionSet, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "*" {
		return pubgrub.Any(), nil
	}

	op, rest := "", trimmed
	for _, candidate := range depOps {
		if strings.HasPrefix(trimmed, candidate) {
			op, rest = candidate, strings.TrimSpace(trimmed[len(candidate):])
			break
		}
	}
	if op == "" {
		if strings.IndexAny(trimmed, "<>=!~^") >= 0 {
			return pubgrub.None(), nil
		}
		op, rest = "=", trimmed
	}

	v, err := ParseVersion(rest)
	if err != nil {
		return pubgrub.None(), errors.Wrapf(err, "constraint %q", s)
	}
	return opSet(op, v), nil
}

func opSet(op string, v Version) pubgrub.VersionSet {
	switch op {
	case "=":
		return pubgrub.Singleton(v)
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
