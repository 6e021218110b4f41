// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package debian adapts a Debian-style package archive for version
// solving: dpkg version ordering, the archive's relational operators,
// and a parser for Packages control stanzas.
package debian

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// Version is a dpkg version: [epoch:]upstream[-revision]. Ordering
// follows deb-version(7): numeric epoch first, then the upstream part,
// then the revision, each tokenized into alternating non-digit and
// digit runs, with '~' sorting before everything including the end of
// the string and letters sorting before non-letters.
type Version struct {
	raw      string
	epoch    uint64
	upstream []token
	revision []token
}

type token struct {
	num   uint64
	str   string
	isNum bool
}

// ParseVersion parses a dpkg version string. The epoch, when present,
// must be numeric; everything after it is accepted as-is, the way dpkg
// does.
func ParseVersion(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, errors.New("empty version")
	}

	rest := trimmed
	var epoch uint64
	if pos := strings.IndexByte(rest, ':'); pos >= 0 {
		e, err := strconv.ParseUint(rest[:pos], 10, 64)
		if err != nil {
			return Version{}, errors.Wrapf(err, "malformed epoch in %q", s)
		}
		epoch = e
		rest = rest[pos+1:]
	}

	upstream, revision := rest, "0"
	if pos := strings.LastIndexByte(rest, '-'); pos >= 0 {
		upstream, revision = rest[:pos], rest[pos+1:]
	}

	return Version{
		raw:      trimmed,
		epoch:    epoch,
		upstream: tokenize(upstream),
		revision: tokenize(revision),
	}, nil
}

func (v Version) String() string {
	return v.raw
}

func (v Version) Compare(other pubgrub.Version) int {
	w := other.(Version)
	if v.epoch != w.epoch {
		if v.epoch < w.epoch {
			return -1
		}
		return 1
	}
	if c := compareTokens(v.upstream, w.upstream); c != 0 {
		return c
	}
	return compareTokens(v.revision, w.revision)
}

// tokenize splits a version component into alternating non-digit and
// digit runs. A leading digit gets an empty string token in front, so
// token types always alternate starting with a string.
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
				// Leading zeros are insignificant; overflow falls
				// back to zero the way the archive tooling shrugs
				// at nonsense.
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
