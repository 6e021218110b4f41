// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package opam

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// The depends: field is a formula over package atoms. Each atom names
// a package and optionally carries a filter in braces mixing version
// comparators with boolean variables like with-test. Dependencies are
// extracted in the installable closed form: comparators fold into a
// version set, variables evaluate against the default install
// settings, and a package-level disjunction commits to its first
// installable branch.

// boolVars are the boolean variables with their values at install
// time. build and post stage dependencies are still dependencies;
// test, doc and dev tooling is not pulled in.
var boolVars = map[string]bool{
	"build":          true,
	"post":           true,
	"with-test":      false,
	"with-doc":       false,
	"with-dev-setup": false,
	"dev":            false,
}

// stringVars are the platform variables a comparator filter may probe.
var stringVars = map[string]string{
	"os":        "linux",
	"arch":      "x86_64",
	"os-family": "debian",
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokString
	tokIdent
	tokOp
	tokLBrace
	tokRBrace
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokAmp
	tokBar
	tokBang
)

type lexTok struct {
	kind tokKind
	text string
}

type lexer struct {
	src []rune
	pos int
}

func (lx *lexer) next() (lexTok, error) {
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			lx.pos++
		case ch == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		default:
			goto scan
		}
	}
	return lexTok{kind: tokEOF}, nil

scan:
	ch := lx.src[lx.pos]
	switch ch {
	case '"':
		lx.pos++
		var sb strings.Builder
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '"' {
			if lx.src[lx.pos] == '\\' && lx.pos+1 < len(lx.src) {
				lx.pos++
			}
			sb.WriteRune(lx.src[lx.pos])
			lx.pos++
		}
		if lx.pos >= len(lx.src) {
			return lexTok{}, errors.New("unterminated string")
		}
		lx.pos++
		return lexTok{kind: tokString, text: sb.String()}, nil
	case '{':
		lx.pos++
		return lexTok{kind: tokLBrace}, nil
	case '}':
		lx.pos++
		return lexTok{kind: tokRBrace}, nil
	case '(':
		lx.pos++
		return lexTok{kind: tokLParen}, nil
	case ')':
		lx.pos++
		return lexTok{kind: tokRParen}, nil
	case '[':
		lx.pos++
		return lexTok{kind: tokLBracket}, nil
	case ']':
		lx.pos++
		return lexTok{kind: tokRBracket}, nil
	case '&':
		lx.pos++
		return lexTok{kind: tokAmp}, nil
	case '|':
		lx.pos++
		return lexTok{kind: tokBar}, nil
	case '!':
		if lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '=' {
			lx.pos += 2
			return lexTok{kind: tokOp, text: "!="}, nil
		}
		lx.pos++
		return lexTok{kind: tokBang}, nil
	case '>', '<', '=':
		op := string(ch)
		lx.pos++
		if lx.pos < len(lx.src) && lx.src[lx.pos] == '=' && ch != '=' {
			op += "="
			lx.pos++
		}
		return lexTok{kind: tokOp, text: op}, nil
	}

	if isIdentRune(ch) {
		start := lx.pos
		for lx.pos < len(lx.src) && isIdentRune(lx.src[lx.pos]) {
			lx.pos++
		}
		return lexTok{kind: tokIdent, text: string(lx.src[start:lx.pos])}, nil
	}
	return lexTok{}, errors.Errorf("unexpected character %q", string(ch))
}

func isIdentRune(r rune) bool {
	return r == '-' || r == '_' || r == '+' || r == ':' || r == '.' ||
		r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

type parser struct {
	lx  *lexer
	tok lexTok
}

func newParser(src string) (*parser, error) {
	p := &parser{lx: &lexer{src: []rune(src)}}
	return p, p.advance()
}

func (p *parser) advance() error {
	tok, err := p.lx.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// parseDependsField extracts the dependencies of one depends: field
// body, either a bracketed list or a single atom.
func parseDependsField(src string) ([]pubgrub.Dependency, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var deps []pubgrub.Dependency
		for p.tok.kind != tokRBracket {
			if p.tok.kind == tokEOF {
				return nil, errors.New("unterminated depends list")
			}
			more, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			deps = append(deps, more...)
		}
		return deps, nil
	}
	if p.tok.kind == tokEOF {
		return nil, nil
	}
	return p.parseGroup()
}

// parseGroup parses one formula element: an atom, or a parenthesized
// combination. Conjunctions merge; a disjunction commits to the first
// branch that is installable.
func (p *parser) parseGroup() ([]pubgrub.Dependency, error) {
	var branches [][]pubgrub.Dependency
	current, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	for {
		switch p.tok.kind {
		case tokAmp:
			if err := p.advance(); err != nil {
				return nil, err
			}
			more, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			current = append(current, more...)
		case tokBar:
			if err := p.advance(); err != nil {
				return nil, err
			}
			branches = append(branches, current)
			current, err = p.parseOperand()
			if err != nil {
				return nil, err
			}
		default:
			branches = append(branches, current)
			// First branch wins, like the archive resolvers treat
			// alternatives.
			return branches[0], nil
		}
	}
}

func (p *parser) parseOperand() ([]pubgrub.Dependency, error) {
	switch p.tok.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		deps, err := p.parseGroup()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errors.New("unbalanced parenthesis in depends formula")
		}
		return deps, p.advance()
	case tokString:
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		set := pubgrub.Any()
		keep := true
		if p.tok.kind == tokLBrace {
			var err error
			keep, set, err = p.parseFilter()
			if err != nil {
				return nil, err
			}
		}
		if !keep {
			return nil, nil
		}
		return []pubgrub.Dependency{{
			Pkg: pubgrub.Package{Ecosystem: Ecosystem, Name: name},
			Set: set,
		}}, nil
	}
	return nil, errors.Errorf("unexpected token in depends formula")
}

// parseFilter parses a braced filter and evaluates it. It reports
// whether the dependency applies at all and, when it does, the version
// set the comparators admit.
func (p *parser) parseFilter() (bool, pubgrub.VersionSet, error) {
	if err := p.advance(); err != nil { // consume '{'
		return false, pubgrub.None(), err
	}
	keep, set, err := p.parseFilterOr()
	if err != nil {
		return false, pubgrub.None(), err
	}
	if p.tok.kind != tokRBrace {
		return false, pubgrub.None(), errors.New("unbalanced brace in depends filter")
	}
	return keep, set, p.advance()
}

func (p *parser) parseFilterOr() (bool, pubgrub.VersionSet, error) {
	keep, set, err := p.parseFilterAnd()
	if err != nil {
		return false, pubgrub.None(), err
	}
	for p.tok.kind == tokBar {
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		keep2, set2, err := p.parseFilterAnd()
		if err != nil {
			return false, pubgrub.None(), err
		}
		switch {
		case keep && keep2:
			set = set.Union(set2)
		case keep2:
			keep, set = true, set2
		}
	}
	return keep, set, nil
}

func (p *parser) parseFilterAnd() (bool, pubgrub.VersionSet, error) {
	keep, set, err := p.parseFilterAtom()
	if err != nil {
		return false, pubgrub.None(), err
	}
	for p.tok.kind == tokAmp {
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		keep2, set2, err := p.parseFilterAtom()
		if err != nil {
			return false, pubgrub.None(), err
		}
		keep = keep && keep2
		set = set.Intersect(set2)
	}
	return keep, set, nil
}

func (p *parser) parseFilterAtom() (bool, pubgrub.VersionSet, error) {
	switch p.tok.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		keep, set, err := p.parseFilterOr()
		if err != nil {
			return false, pubgrub.None(), err
		}
		if p.tok.kind != tokRParen {
			return false, pubgrub.None(), errors.New("unbalanced parenthesis in depends filter")
		}
		return keep, set, p.advance()

	case tokBang:
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		if p.tok.kind != tokIdent {
			return false, pubgrub.None(), errors.New("expected variable after '!'")
		}
		val := boolVars[p.tok.text]
		return !val, pubgrub.Any(), p.advance()

	case tokOp:
		// A bare comparator constrains the dependency's own version.
		op := p.tok.text
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		if p.tok.kind != tokString {
			return false, pubgrub.None(), errors.Errorf("expected version after %q", op)
		}
		v, err := ParseVersion(p.tok.text)
		if err != nil {
			return false, pubgrub.None(), errors.Wrapf(err, "filter version %q", p.tok.text)
		}
		return true, opSet(op, v), p.advance()

	case tokIdent:
		name := p.tok.text
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		// ident op string probes a platform variable.
		if p.tok.kind == tokOp {
			op := p.tok.text
			if err := p.advance(); err != nil {
				return false, pubgrub.None(), err
			}
			if p.tok.kind != tokString {
				return false, pubgrub.None(), errors.Errorf("expected string after %q", op)
			}
			lit := p.tok.text
			if err := p.advance(); err != nil {
				return false, pubgrub.None(), err
			}
			return evalStringVar(name, op, lit), pubgrub.Any(), nil
		}
		return boolVars[name], pubgrub.Any(), nil

	case tokString:
		// string op ident, the mirrored comparison.
		lit := p.tok.text
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		if p.tok.kind != tokOp {
			return false, pubgrub.None(), errors.Errorf("stray string %q in depends filter", lit)
		}
		op := p.tok.text
		if err := p.advance(); err != nil {
			return false, pubgrub.None(), err
		}
		if p.tok.kind != tokIdent {
			return false, pubgrub.None(), errors.Errorf("expected variable after %q", op)
		}
		name := p.tok.text
		return evalStringVar(name, mirrorOp(op), lit), pubgrub.Any(), p.advance()
	}
	return false, pubgrub.None(), errors.New("unexpected token in depends filter")
}

func evalStringVar(name, op, lit string) bool {
	val, ok := stringVars[name]
	if !ok {
		return false
	}
	switch op {
	case "=":
		return val == lit
	case "!=":
		return val != lit
	}
	return false
}

func mirrorOp(op string) string {
	switch op {
	case ">":
		return "<"
	case "<":
		return ">"
	case ">=":
		return "<="
	case "<=":
		return ">="
	}
	return op
}
