// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package babel

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

func openTestCache(t *testing.T) *BoltCache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), "babel.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ad := memAdapter{}

	set, err := ad.ParseConstraint(">= 1.0, << 2.0")
	if err != nil {
		t.Fatal(err)
	}
	in := []pubgrub.Candidate{
		memCandidate(t, "2.0"),
		{
			Version: memCandidate(t, "1.0").Version,
			Deps: []pubgrub.Dependency{{
				Pkg:     memPkg("dep"),
				Set:     set,
				Variant: "build",
			}},
		},
	}
	if err := c.Put(ad.Ecosystem(), "a", in); err != nil {
		t.Fatal(err)
	}

	out, ok, err := c.Get(ad, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("cache miss after put")
	}
	if len(out) != len(in) {
		t.Fatalf("got %d candidates, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i].Version.Compare(out[i].Version) != 0 {
			t.Errorf("candidate %d version = %s, want %s", i, out[i].Version, in[i].Version)
		}
	}
	dep := out[1].Deps[0]
	if dep.Pkg != memPkg("dep") || dep.Variant != "build" {
		t.Errorf("dep round-trip = %+v", dep)
	}
	if !dep.Set.Equal(set) {
		t.Errorf("dep set = %s, want %s", dep.Set, set)
	}
}

func TestCacheEmptyCandidateList(t *testing.T) {
	c := openTestCache(t)
	ad := memAdapter{}

	if err := c.Put(ad.Ecosystem(), "ghost", nil); err != nil {
		t.Fatal(err)
	}
	out, ok, err := c.Get(ad, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("an empty candidate list should still be a hit")
	}
	if len(out) != 0 {
		t.Errorf("got %d candidates", len(out))
	}
}

func TestCacheMiss(t *testing.T) {
	c := openTestCache(t)
	_, ok, err := c.Get(memAdapter{}, "never-stored")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("unexpected hit")
	}
}

func TestProviderReadsThroughCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "babel.db")
	ad := memAdapter{}
	ix := &memIndex{cands: map[string][]pubgrub.Candidate{
		"a": {memCandidate(t, "2.0", "b"), memCandidate(t, "1.0")},
		"b": {memCandidate(t, "1.0")},
	}}

	// Warm pass populates the cache from the index.
	c1, err := OpenCache(path)
	if err != nil {
		t.Fatal(err)
	}
	p1 := NewIndexProvider(ad, ix, WithLogger(testLogger()), WithCache(c1))
	warm, err := p1.Versions(memPkg("a"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}

	// Cold pass must not touch the index at all.
	c2, err := OpenCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	broken := &memIndex{fail: errors.New("index gone")}
	p2 := NewIndexProvider(ad, broken, WithLogger(testLogger()), WithCache(c2))

	cold, err := p2.Versions(memPkg("a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cold) != len(warm) {
		t.Fatalf("cold read has %d candidates, warm had %d", len(cold), len(warm))
	}
	for i := range warm {
		if warm[i].Version.Compare(cold[i].Version) != 0 {
			t.Errorf("candidate %d = %s, want %s", i, cold[i].Version, warm[i].Version)
		}
	}
	if len(cold[0].Deps) != 1 || cold[0].Deps[0].Pkg != memPkg("b") {
		t.Errorf("cold deps = %+v", cold[0].Deps)
	}
	if n := atomic.LoadInt64(&broken.fetches); n != 0 {
		t.Errorf("cold provider hit the index %d times", n)
	}
}
