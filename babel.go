// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package babel resolves package requirements against snapshots of
// four package ecosystems behind one PubGrub solver. Each ecosystem
// contributes an Adapter for its version and constraint syntax and an
// Index over a snapshot; the facade wires them to the solver and
// renders the outcome.
package babel

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RyanGibb/babel/pubgrub"
)

// Adapter is one ecosystem's syntax: how to read a version and a
// constraint string.
type Adapter interface {
	Ecosystem() string
	ParseVersion(string) (pubgrub.Version, error)
	ParseConstraint(string) (pubgrub.VersionSet, error)
}

// Index is one snapshot of an ecosystem. Candidates lists a package's
// versions newest first; an unknown name yields an empty list, not an
// error.
type Index interface {
	Candidates(name string) ([]pubgrub.Candidate, error)
	Names() ([]string, error)
}

// ParseError reports input that an ecosystem's syntax rejects.
type ParseError struct {
	Ecosystem string
	Input     string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse %q: %v", e.Ecosystem, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Requirement is one root constraint to solve for.
type Requirement struct {
	Ecosystem  string
	Name       string
	Constraint string
}

// Request is a set of root requirements solved together.
type Request struct {
	Requirements []Requirement
}

// Pin is one resolved package version.
type Pin struct {
	Ecosystem string
	Name      string
	Version   string
}

// Report is the outcome of a resolution. Either Pins holds the chosen
// versions sorted by ecosystem then name, or Explanation holds the
// rendered derivation of why no assignment exists.
type Report struct {
	Pins        []Pin
	Explanation string
}

// OK reports whether a solution was found.
func (r *Report) OK() bool { return r.Explanation == "" }

// Resolver solves requests against a set of registered ecosystem
// providers.
type Resolver struct {
	providers map[string]*IndexProvider
	log       *logrus.Logger
	cache     *BoltCache
}

// Close releases the persistent cache, when one was configured.
func (r *Resolver) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// NewResolver returns an empty resolver. A nil logger means a default
// one.
func NewResolver(log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.New()
	}
	return &Resolver{
		providers: make(map[string]*IndexProvider),
		log:       log,
	}
}

// Register adds an ecosystem provider. A second registration for the
// same tag replaces the first.
func (r *Resolver) Register(p *IndexProvider) {
	r.providers[p.adapter.Ecosystem()] = p
}

// Provider returns the registered provider for an ecosystem tag.
func (r *Resolver) Provider(ecosystem string) (*IndexProvider, bool) {
	p, ok := r.providers[ecosystem]
	return p, ok
}

// rootVersion is the synthetic version of the request itself.
type rootVersion struct{}

func (rootVersion) String() string              { return "root" }
func (rootVersion) Compare(pubgrub.Version) int { return 0 }

var rootPkg = pubgrub.Package{Ecosystem: "request", Name: "$root"}

// requestProvider routes the solver's fetches: the synthetic root
// package resolves to the request's requirements, everything else goes
// to its ecosystem's provider.
type requestProvider struct {
	r    *Resolver
	deps []pubgrub.Dependency
}

func (rp *requestProvider) Versions(pkg pubgrub.Package) ([]pubgrub.Candidate, error) {
	if pkg == rootPkg {
		return []pubgrub.Candidate{{Version: rootVersion{}, Deps: rp.deps}}, nil
	}
	p, ok := rp.r.providers[pkg.Ecosystem]
	if !ok {
		return nil, errors.Errorf("no index configured for ecosystem %q", pkg.Ecosystem)
	}
	return p.Versions(pkg)
}

// Resolve solves a request. A request that cannot be satisfied returns
// a Report carrying the explanation, not an error; errors are reserved
// for unparseable input, unusable indexes and cancellation.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Report, error) {
	if len(req.Requirements) == 0 {
		return nil, errors.New("empty request")
	}

	deps := make([]pubgrub.Dependency, 0, len(req.Requirements))
	for _, rq := range req.Requirements {
		p, ok := r.providers[rq.Ecosystem]
		if !ok {
			return nil, errors.Errorf("no index configured for ecosystem %q", rq.Ecosystem)
		}
		set, err := p.adapter.ParseConstraint(rq.Constraint)
		if err != nil {
			return nil, &ParseError{Ecosystem: rq.Ecosystem, Input: rq.Constraint, Err: err}
		}
		deps = append(deps, pubgrub.Dependency{
			Pkg: pubgrub.Package{Ecosystem: rq.Ecosystem, Name: rq.Name},
			Set: set,
		})
	}

	sol, err := pubgrub.Solve(ctx, &requestProvider{r: r, deps: deps}, rootPkg, r.log)
	if err != nil {
		var noSol *pubgrub.NoSolutionError
		if errors.As(err, &noSol) {
			return &Report{Explanation: Explain(noSol.Tree)}, nil
		}
		return nil, err
	}

	report := &Report{}
	for _, pin := range sol {
		if pin.Pkg == rootPkg {
			continue
		}
		report.Pins = append(report.Pins, Pin{
			Ecosystem: pin.Pkg.Ecosystem,
			Name:      pin.Pkg.Name,
			Version:   pin.Version.String(),
		})
	}
	sort.Slice(report.Pins, func(i, j int) bool {
		a, b := report.Pins[i], report.Pins[j]
		if a.Ecosystem != b.Ecosystem {
			return a.Ecosystem < b.Ecosystem
		}
		return a.Name < b.Name
	})
	return report, nil
}

// Explain renders a derivation tree as text.
func Explain(tree *pubgrub.DerivationTree) string {
	if tree == nil {
		return ""
	}
	return tree.String()
}
