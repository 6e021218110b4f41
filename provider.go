// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package babel

import (
	"context"
	"sort"
	"sync"

	radix "github.com/armon/go-radix"
	"github.com/pkg/errors"
	"github.com/sdboyer/constext"
	"github.com/sirupsen/logrus"

	"github.com/RyanGibb/babel/pubgrub"
)

// IndexProvider serves one ecosystem's candidates to the solver. It
// memoizes every fetch, so repeated lookups during solving hit the
// snapshot once, and optionally reads through a persistent cache. All
// methods are safe for concurrent use; concurrent misses for the same
// name coalesce onto one index read, and distinct names read in
// parallel.
type IndexProvider struct {
	adapter Adapter
	index   Index
	cache   *BoltCache
	log     *logrus.Logger
	session context.Context

	mu       sync.Mutex
	versions map[string][]pubgrub.Candidate
	inflight map[string]*fetchCall
	trie     *radix.Tree
}

// fetchCall is one in-flight index read. Misses for the same name that
// arrive while it runs wait on done and share its outcome.
type fetchCall struct {
	done  chan struct{}
	cands []pubgrub.Candidate
	err   error
}

// ProviderOption configures an IndexProvider.
type ProviderOption func(*IndexProvider)

// WithLogger sets the provider's logger.
func WithLogger(log *logrus.Logger) ProviderOption {
	return func(p *IndexProvider) { p.log = log }
}

// WithCache makes the provider read through a persistent cache,
// writing back what it fetches from the index.
func WithCache(c *BoltCache) ProviderOption {
	return func(p *IndexProvider) { p.cache = c }
}

// WithSessionContext bounds every prefetch by a session lifetime in
// addition to the caller's context.
func WithSessionContext(ctx context.Context) ProviderOption {
	return func(p *IndexProvider) { p.session = ctx }
}

// NewIndexProvider wires an adapter and a snapshot index together.
func NewIndexProvider(ad Adapter, ix Index, opts ...ProviderOption) *IndexProvider {
	p := &IndexProvider{
		adapter:  ad,
		index:    ix,
		session:  context.Background(),
		versions: make(map[string][]pubgrub.Candidate),
		inflight: make(map[string]*fetchCall),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logrus.New()
	}
	return p
}

// Versions returns a package's candidates newest first. The first
// fetch populates the memo; concurrent callers for the same name
// observe the same result.
func (p *IndexProvider) Versions(pkg pubgrub.Package) ([]pubgrub.Candidate, error) {
	if pkg.Ecosystem != p.adapter.Ecosystem() {
		return nil, errors.Errorf("provider for %s asked about %s", p.adapter.Ecosystem(), pkg)
	}

	p.mu.Lock()
	if cands, ok := p.versions[pkg.Name]; ok {
		p.mu.Unlock()
		return cands, nil
	}
	if c, ok := p.inflight[pkg.Name]; ok {
		p.mu.Unlock()
		<-c.done
		return c.cands, c.err
	}
	c := &fetchCall{done: make(chan struct{})}
	p.inflight[pkg.Name] = c
	p.mu.Unlock()

	// The index read runs outside the lock so other names proceed.
	c.cands, c.err = p.fetch(pkg.Name)

	p.mu.Lock()
	delete(p.inflight, pkg.Name)
	if c.err == nil {
		p.versions[pkg.Name] = c.cands
	}
	p.mu.Unlock()
	close(c.done)
	return c.cands, c.err
}

func (p *IndexProvider) fetch(name string) ([]pubgrub.Candidate, error) {
	if p.cache != nil {
		cands, ok, err := p.cache.Get(p.adapter, name)
		if err != nil {
			p.log.WithFields(logrus.Fields{
				"ecosystem": p.adapter.Ecosystem(),
				"pkg":       name,
				"err":       err,
			}).Warn("cache read failed, falling back to index")
		} else if ok {
			return cands, nil
		}
	}

	cands, err := p.index.Candidates(name)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s candidates of %s", p.adapter.Ecosystem(), name)
	}
	if p.cache != nil {
		if err := p.cache.Put(p.adapter.Ecosystem(), name, cands); err != nil {
			p.log.WithFields(logrus.Fields{
				"ecosystem": p.adapter.Ecosystem(),
				"pkg":       name,
				"err":       err,
			}).Warn("cache write failed")
		}
	}
	return cands, nil
}

// Search lists known package names with the given prefix, sorted. The
// name index is built once, on first use.
func (p *IndexProvider) Search(prefix string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.trie == nil {
		names, err := p.index.Names()
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s package names", p.adapter.Ecosystem())
		}
		p.trie = radix.New()
		for _, name := range names {
			p.trie.Insert(name, struct{}{})
		}
	}

	var out []string
	p.trie.WalkPrefix(prefix, func(name string, _ interface{}) bool {
		out = append(out, name)
		return false
	})
	sort.Strings(out)
	return out, nil
}

const prefetchWorkers = 4

// Prefetch warms the memo for a set of names. It stops at the first
// fetch error, and honors both the caller's context and the provider's
// session context.
func (p *IndexProvider) Prefetch(ctx context.Context, names []string) error {
	merged, cancel := constext.Cons(p.session, ctx)
	defer cancel()

	work := make(chan string)
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		errMu.Unlock()
	}

	for i := 0; i < prefetchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range work {
				if err := merged.Err(); err != nil {
					fail(err)
					return
				}
				pkg := pubgrub.Package{Ecosystem: p.adapter.Ecosystem(), Name: name}
				if _, err := p.Versions(pkg); err != nil {
					fail(err)
					return
				}
			}
		}()
	}

loop:
	for _, name := range names {
		select {
		case work <- name:
		case <-merged.Done():
			break loop
		}
	}
	close(work)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return merged.Err()
}
