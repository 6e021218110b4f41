// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package opam adapts an opam-style repository tree for version
// solving: opam version ordering, the depends: formula language in
// its installable closed form, and a reader for the
// packages/<name>/<name>.<version>/opam layout.
package opam

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// Version is an opam package version. Ordering follows the opam
// manual's version comparison: alternating non-digit and digit runs,
// '~' sorting before everything including the end of the string, and
// letters sorting before non-letters. Unlike a dpkg version there is
// no epoch or revision split.
type Version struct {
	raw    string
	tokens []token
}

type token struct {
	num   uint64
	str   string
	isNum bool
}

// ParseVersion parses an opam version string. Anything non-empty is a
// valid version.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, errors.New("empty version")
	}
	return Version{raw: trimmed, tokens: tokenize(trimmed)}, nil
}

func (v Version) String() string {
	return v.raw
}

func (v Version) Compare(other pubgrub.Version) int {
	w := other.(Version)
	return compareTokens(v.tokens, w.tokens)
}

// tokenize splits a version into alternating non-digit and digit runs.
// A leading digit gets an empty string token in front, so token types
// always alternate starting with a string.
func tokenize(s string) []token {
	var tokens []token
	if s != "" && isDigit(rune(s[0])) {
		tokens = append(tokens, token{})
	}
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || i > start && isDigit(rune(s[i])) != isDigit(rune(s[start])) {
			run := s[start:i]
			if run == "" {
				continue
			}
			if isDigit(rune(run[0])) {
				n, _ := strconv.ParseUint(run, 10, 64)
				tokens = append(tokens, token{num: n, isNum: true})
			} else {
				tokens = append(tokens, token{str: run})
			}
			start = i
		}
	}
	return tokens
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func compareTokens(a, b []token) int {
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		switch {
		case i >= len(a):
			return -missingCmp(b[i])
		case i >= len(b):
			return missingCmp(a[i])
		}
		if c := compareToken(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// missingCmp orders a present token against a missing one. Shorter
// normally sorts first, except a '~' run sorts before nothing at all.
func missingCmp(t token) int {
	if !t.isNum && strings.HasPrefix(t.str, "~") {
		return -1
	}
	return 1
}

func compareToken(a, b token) int {
	switch {
	case a.isNum && b.isNum:
		if a.num != b.num {
			if a.num < b.num {
				return -1
			}
			return 1
		}
		return 0
	case a.isNum:
		return 1
	case b.isNum:
		return -1
	}
	return compareStrToken(a.str, b.str)
}

func compareStrToken(a, b string) int {
	ar, br := []rune(a), []rune(b)
	for i := 0; ; i++ {
		aEnd, bEnd := i >= len(ar), i >= len(br)
		switch {
		case aEnd && bEnd:
			return 0
		case aEnd:
			if br[i] == '~' {
				return 1
			}
			return -1
		case bEnd:
			if ar[i] == '~' {
				return -1
			}
			return 1
		}
		c1, c2 := ar[i], br[i]
		if c1 == c2 {
			continue
		}
		if c1 == '~' {
			return -1
		}
		if c2 == '~' {
			return 1
		}
		l1, l2 := unicode.IsLetter(c1), unicode.IsLetter(c2)
		if l1 != l2 {
			if l1 {
				return -1
			}
			return 1
		}
		if c1 < c2 {
			return -1
		}
		return 1
	}
}
