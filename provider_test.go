// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package babel

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/debian"
	"github.com/RyanGibb/babel/pubgrub"
)

// memAdapter borrows the archive syntax for an in-memory ecosystem.
type memAdapter struct{}

func (memAdapter) Ecosystem() string { return "mem" }

func (memAdapter) ParseVersion(s string) (pubgrub.Version, error) {
	return debian.ParseVersion(s)
}

func (memAdapter) ParseConstraint(s string) (pubgrub.VersionSet, error) {
	return debian.ParseConstraint(s)
}

type memIndex struct {
	cands   map[string][]pubgrub.Candidate
	fetches int64
	fail    error
}

func (ix *memIndex) Candidates(name string) ([]pubgrub.Candidate, error) {
	atomic.AddInt64(&ix.fetches, 1)
	if ix.fail != nil {
		return nil, ix.fail
	}
	return ix.cands[name], nil
}

func (ix *memIndex) Names() ([]string, error) {
	if ix.fail != nil {
		return nil, ix.fail
	}
	names := make([]string, 0, len(ix.cands))
	for name := range ix.cands {
		names = append(names, name)
	}
	return names, nil
}

func memCandidate(t *testing.T, ver string, deps ...string) pubgrub.Candidate {
	t.Helper()
	v, err := debian.ParseVersion(ver)
	if err != nil {
		t.Fatal(err)
	}
	cand := pubgrub.Candidate{Version: v}
	for _, d := range deps {
		cand.Deps = append(cand.Deps, pubgrub.Dependency{
			Pkg: pubgrub.Package{Ecosystem: "mem", Name: d},
			Set: pubgrub.Any(),
		})
	}
	return cand
}

func memPkg(name string) pubgrub.Package {
	return pubgrub.Package{Ecosystem: "mem", Name: name}
}

func TestProviderMemoizes(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{
		"a": {memCandidate(t, "2.0"), memCandidate(t, "1.0")},
	}}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	for i := 0; i < 5; i++ {
		cands, err := p.Versions(memPkg("a"))
		if err != nil {
			t.Fatal(err)
		}
		if len(cands) != 2 {
			t.Fatalf("got %d candidates", len(cands))
		}
	}
	if n := atomic.LoadInt64(&ix.fetches); n != 1 {
		t.Errorf("index was fetched %d times, want 1", n)
	}
}

func TestProviderConcurrentMissesAgree(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{
		"a": {memCandidate(t, "1.0")},
	}}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	var wg sync.WaitGroup
	results := make([][]pubgrub.Candidate, 8)
	for i := 0; i < len(results); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cands, err := p.Versions(memPkg("a"))
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = cands
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if !reflect.DeepEqual(results[i], results[0]) {
			t.Fatalf("result %d differs", i)
		}
	}
	if n := atomic.LoadInt64(&ix.fetches); n != 1 {
		t.Errorf("index was fetched %d times, want 1", n)
	}
}

// gateIndex stalls the fetch of "slow" until "fast" has been served,
// so the test below only finishes if distinct names fetch in parallel.
type gateIndex struct {
	memIndex
	gate chan struct{}
}

func (ix *gateIndex) Candidates(name string) ([]pubgrub.Candidate, error) {
	if name == "slow" {
		<-ix.gate
	}
	cands, err := ix.memIndex.Candidates(name)
	if name == "fast" {
		close(ix.gate)
	}
	return cands, err
}

func TestProviderDistinctNamesFetchInParallel(t *testing.T) {
	ix := &gateIndex{
		memIndex: memIndex{cands: map[string][]pubgrub.Candidate{
			"slow": {memCandidate(t, "1.0")},
			"fast": {memCandidate(t, "1.0")},
		}},
		gate: make(chan struct{}),
	}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	if err := p.Prefetch(context.Background(), []string{"slow", "fast"}); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt64(&ix.fetches); n != 2 {
		t.Errorf("index was fetched %d times, want 2", n)
	}
}

func TestProviderAbsentPackage(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{}}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))
	cands, err := p.Versions(memPkg("ghost"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Errorf("got %d candidates for an absent package", len(cands))
	}
}

func TestProviderWrongEcosystem(t *testing.T) {
	p := NewIndexProvider(memAdapter{}, &memIndex{}, WithLogger(testLogger()))
	if _, err := p.Versions(pubgrub.Package{Ecosystem: "debian", Name: "libc6"}); err == nil {
		t.Fatal("expected an error for a foreign ecosystem")
	}
}

func TestProviderSearch(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{
		"libfoo":  {memCandidate(t, "1.0")},
		"libbar":  {memCandidate(t, "1.0")},
		"libfool": {memCandidate(t, "1.0")},
		"other":   {memCandidate(t, "1.0")},
	}}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	got, err := p.Search("libf")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"libfoo", "libfool"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Search(libf) = %v, want %v", got, want)
	}

	all, err := p.Search("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("Search(\"\") = %v", all)
	}
}

func TestPrefetch(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{
		"a": {memCandidate(t, "1.0")},
		"b": {memCandidate(t, "1.0")},
		"c": {memCandidate(t, "1.0")},
	}}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	if err := p.Prefetch(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt64(&ix.fetches); n != 3 {
		t.Errorf("index was fetched %d times, want 3", n)
	}
	// Warm now; no further index reads.
	if _, err := p.Versions(memPkg("b")); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt64(&ix.fetches); n != 3 {
		t.Errorf("index was fetched %d times after warmup, want 3", n)
	}
}

func TestPrefetchCancelled(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{}}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Prefetch(ctx, []string{"a", "b"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPrefetchSessionCancelled(t *testing.T) {
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{}}
	session, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewIndexProvider(memAdapter{}, ix,
		WithLogger(testLogger()), WithSessionContext(session))

	if err := p.Prefetch(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected an error when the session is over")
	}
}

func TestPrefetchPropagatesFetchError(t *testing.T) {
	ix := &memIndex{fail: errors.New("index corrupted")}
	p := NewIndexProvider(memAdapter{}, ix, WithLogger(testLogger()))

	err := p.Prefetch(context.Background(), []string{"a", "b"})
	if err == nil || !strings.Contains(err.Error(), "index corrupted") {
		t.Fatalf("err = %v, want the index error", err)
	}
}
