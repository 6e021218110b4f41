// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alpine adapts an Alpine-style APKINDEX for version solving:
// apk version ordering with its pre- and post-release suffixes, the
// index's relational operators, and a stanza parser for APKINDEX
// files.
package alpine

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// suffix ranks. Pre-release suffixes sort before the bare version,
// post-release ones after; suffixRelease marks the implicit end of a
// plain version and never appears as a token.
const (
	suffixAlpha = iota
	suffixBeta
	suffixPre
	suffixRc
	suffixRelease
	suffixPatch
	suffixRev
	suffixGit
	suffixSvn
	suffixCvs
	suffixHg
)

var suffixRanks = map[string]int{
	"alpha": suffixAlpha,
	"beta":  suffixBeta,
	"pre":   suffixPre,
	"rc":    suffixRc,
	"p":     suffixPatch,
	"r":     suffixRev,
	"git":   suffixGit,
	"svn":   suffixSvn,
	"cvs":   suffixCvs,
	"hg":    suffixHg,
}

const (
	tokNum = iota
	tokStr
	tokSuffix
)

type token struct {
	kind   int
	text   string // digit run for tokNum, literal text for tokStr
	suffix int
}

// Version is an apk package version, like 1.2.3_rc1-r4.
type Version struct {
	raw    string
	tokens []token
}

// ParseVersion parses an apk version. apk itself accepts nearly
// anything; only the empty string is rejected here.
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

func tokenize(s string) []token {
	var tokens []token
	runes := []rune(s)
	i := 0
	flushFrom := func(start, end int) {
		if start >= end {
			return
		}
		run := string(runes[start:end])
		if isDigit(runes[start]) {
			tokens = append(tokens, token{kind: tokNum, text: run})
		} else {
			tokens = append(tokens, token{kind: tokStr, text: run})
		}
	}

	start := 0
	for i < len(runes) {
		ch := runes[i]

		// '_' introduces a named suffix.
		if ch == '_' {
			flushFrom(start, i)
			i++
			sufStart := i
			for i < len(runes) && unicode.IsLetter(runes[i]) {
				i++
			}
			suf := string(runes[sufStart:i])
			if rank, ok := suffixRanks[suf]; ok {
				tokens = append(tokens, token{kind: tokSuffix, suffix: rank})
			} else {
				tokens = append(tokens, token{kind: tokStr, text: "_" + suf})
			}
			start = i
			continue
		}

		// '-r' introduces the package revision.
		if ch == '-' && i+1 < len(runes) && runes[i+1] == 'r' {
			flushFrom(start, i)
			tokens = append(tokens, token{kind: tokStr, text: "-r"})
			i += 2
			start = i
			continue
		}

		// Break between digit and non-digit runs.
		if i > start && isDigit(ch) != isDigit(runes[start]) {
			flushFrom(start, i)
			start = i
		}
		i++
	}
	flushFrom(start, len(runes))
	return tokens
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func (v Version) Compare(other pubgrub.Version) int {
	w := other.(Version)
	a, b := v.tokens, w.tokens
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	for i := 0; i < max; i++ {
		switch {
		case i >= len(a):
			// A trailing pre-release suffix drags the longer
			// version below the shorter one.
			if b[i].kind == tokSuffix && b[i].suffix < suffixRelease {
				return 1
			}
			return -1
		case i >= len(b):
			if a[i].kind == tokSuffix && a[i].suffix < suffixRelease {
				return -1
			}
			return 1
		}
		if c := compareToken(a[i], b[i], i); c != 0 {
			return c
		}
	}
	return 0
}

func compareToken(a, b token, pos int) int {
	if a.kind == b.kind {
		switch a.kind {
		case tokNum:
			// Numeric components with leading zeros compare
			// lexicographically past the first position, matching
			// apk's handling of versions like 1.05.
			if pos != 0 && (strings.HasPrefix(a.text, "0") || strings.HasPrefix(b.text, "0")) {
				return strings.Compare(a.text, b.text)
			}
			n1, _ := strconv.ParseUint(a.text, 10, 64)
			n2, _ := strconv.ParseUint(b.text, 10, 64)
			switch {
			case n1 < n2:
				return -1
			case n1 > n2:
				return 1
			}
			return 0
		case tokStr:
			return strings.Compare(a.text, b.text)
		default:
			return a.suffix - b.suffix
		}
	}

	// Mixed kinds: a pre-release suffix loses to anything.
	if a.kind == tokSuffix && a.suffix < suffixRelease {
		return -1
	}
	if b.kind == tokSuffix && b.suffix < suffixRelease {
		return 1
	}
	switch {
	case a.kind == tokNum:
		return 1
	case b.kind == tokNum:
		return -1
	case a.kind == tokStr:
		return 1
	}
	return -1
}
