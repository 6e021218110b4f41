// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cargo

import (
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func mustVersion(t *testing.T, s string) Version {
	t.Helper()
	v, err := ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q) failed: %v", s, err)
	}
	return v
}

func TestVersionOrdering(t *testing.T) {
	input := []string{"1.0.0", "0.9.9", "1.0.0-alpha", "1.0.0-alpha.2", "1.0.0-beta", "1.10.0", "1.2.0"}
	want := []string{"0.9.9", "1.0.0-alpha", "1.0.0-alpha.2", "1.0.0-beta", "1.0.0", "1.2.0", "1.10.0"}

	versions := make([]Version, len(input))
	for i, s := range input {
		versions[i] = mustVersion(t, s)
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) < 0
	})

	got := make([]string, len(versions))
	for i, v := range versions {
		got[i] = v.String()
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sorted order = %v, want %v", got, want)
	}
}

func TestParseVersionErrors(t *testing.T) {
	for _, s := range []string{"", "not-a-version", "1.x.3"} {
		if _, err := ParseVersion(s); err == nil {
			t.Errorf("ParseVersion(%q) should fail", s)
		}
	}
}

func TestParseConstraint(t *testing.T) {
	tests := []struct {
		req string
		in  []string
		out []string
	}{
		{"*", []string{"0.0.1", "99.0.0"}, nil},
		{"1.2.3", []string{"1.2.3", "1.9.0"}, []string{"2.0.0", "1.2.2", "2.0.0-alpha"}},
		{"^1.2.3", []string{"1.2.3", "1.9.0"}, []string{"2.0.0", "1.2.2"}},
		{"^0.2.3", []string{"0.2.3", "0.2.9"}, []string{"0.3.0", "0.2.2"}},
		{"^0.0.3", []string{"0.0.3"}, []string{"0.0.4", "0.0.2"}},
		{"^0.0", []string{"0.0.1"}, []string{"0.1.0"}},
		{"^0", []string{"0.0.1", "0.9.9"}, []string{"1.0.0", "1.0.0-alpha"}},
		{"~1.2.3", []string{"1.2.3", "1.2.9"}, []string{"1.3.0", "1.2.2"}},
		{"~1.2", []string{"1.2.0", "1.2.9"}, []string{"1.3.0", "1.1.9"}},
		{"~1", []string{"1.0.0", "1.9.9"}, []string{"2.0.0", "0.9.9"}},
		{"1.*", []string{"1.0.0", "1.9.9"}, []string{"2.0.0", "0.9.9"}},
		{"1.2.*", []string{"1.2.0", "1.2.9"}, []string{"1.3.0"}},
		{"=1.2.3", []string{"1.2.3"}, []string{"1.2.4", "1.2.3-beta"}},
		{">=1.2.3", []string{"1.2.3", "9.0.0"}, []string{"1.2.2"}},
		{">1.2.3", []string{"1.2.4"}, []string{"1.2.3"}},
		{"<2.0.0", []string{"1.9.9"}, []string{"2.0.0", "2.0.0-alpha"}},
		{"<=1.2", []string{"1.2.9", "1.0.0"}, []string{"1.3.0"}},
		{">=1.2, <1.5", []string{"1.2.0", "1.4.9"}, []string{"1.5.0", "1.1.0"}},
		{"^0.9 || ^1.0", []string{"0.9.5", "1.2.0"}, []string{"0.8.0", "2.0.0"}},
		{"^1.0.0-alpha", []string{"1.0.0-alpha", "1.0.0-beta", "1.0.0"}, []string{"2.0.0"}},
	}
	for _, tt := range tests {
		set, err := ParseConstraint(tt.req)
		if err != nil {
			t.Errorf("ParseConstraint(%q) failed: %v", tt.req, err)
			continue
		}
		for _, s := range tt.in {
			if !set.Contains(mustVersion(t, s)) {
				t.Errorf("%q should admit %s, set %s", tt.req, s, set)
			}
		}
		for _, s := range tt.out {
			if set.Contains(mustVersion(t, s)) {
				t.Errorf("%q should not admit %s, set %s", tt.req, s, set)
			}
		}
	}
}

func TestParseConstraintErrors(t *testing.T) {
	for _, req := range []string{">= bogus", "1.2.3.4"} {
		if _, err := ParseConstraint(req); err == nil {
			t.Errorf("ParseConstraint(%q) should fail", req)
		}
	}
}

func TestCratePath(t *testing.T) {
	tests := map[string]string{
		"a":     filepath.Join("1", "a"),
		"ab":    filepath.Join("2", "ab"),
		"abc":   filepath.Join("3", "a", "abc"),
		"serde": filepath.Join("se", "rd", "serde"),
		"Rand":  filepath.Join("ra", "nd", "rand"),
	}
	for name, want := range tests {
		if got := cratePath(name); got != want {
			t.Errorf("cratePath(%q) = %q, want %q", name, got, want)
		}
	}
}

func writeIndex(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestIndex(t *testing.T) {
	root := writeIndex(t, map[string]string{
		"se/rd/serde": `{"name":"serde","vers":"1.0.100","deps":[{"name":"serde_derive","req":"=1.0.100","optional":true,"kind":"normal"}],"yanked":false}
{"name":"serde","vers":"1.0.203","deps":[],"yanked":false}
{"name":"serde","vers":"1.0.204","deps":[],"yanked":true}
`,
		"ra/nd/rand": `{"name":"rand","vers":"0.8.5","deps":[{"name":"rand_core","req":"^0.6.0","optional":false,"kind":"normal"},{"name":"bench-tools","req":"*","optional":false,"kind":"dev"},{"name":"cc","req":"^1.0","optional":false,"kind":"build"},{"name":"core06","req":"^0.6","optional":false,"kind":"normal","package":"rand_core"}],"yanked":false}
`,
		"ra/nd/rand_core": `{"name":"rand_core","vers":"0.6.4","deps":[],"yanked":false}
not json at all
`,
		"config.json": `{"dl":"https://example.invalid/api/v1/crates"}`,
	})

	log := newTestLogger()
	ix, err := LoadIndex(root, log)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("yanked and optional drop", func(t *testing.T) {
		cands, err := ix.Candidates("serde")
		if err != nil {
			t.Fatal(err)
		}
		if len(cands) != 2 {
			t.Fatalf("serde has %d candidates, want 2", len(cands))
		}
		if got := cands[0].Version.String(); got != "1.0.203" {
			t.Errorf("first candidate = %s, want 1.0.203", got)
		}
		if len(cands[1].Deps) != 0 {
			t.Errorf("optional dependency was kept: %+v", cands[1].Deps)
		}
	})

	t.Run("dep kinds", func(t *testing.T) {
		cands, err := ix.Candidates("rand")
		if err != nil {
			t.Fatal(err)
		}
		if len(cands) != 1 {
			t.Fatalf("rand has %d candidates, want 1", len(cands))
		}
		byName := make(map[string]string)
		for _, d := range cands[0].Deps {
			byName[d.Pkg.Name] = d.Variant
		}
		if _, ok := byName["bench-tools"]; ok {
			t.Error("dev dependency was kept")
		}
		if v, ok := byName["cc"]; !ok || v != "build" {
			t.Errorf("build dependency variant = %q, present %v", v, ok)
		}
		if _, ok := byName["rand_core"]; !ok {
			t.Error("renamed dependency did not resolve to its registry name")
		}
	})

	t.Run("malformed record is isolated", func(t *testing.T) {
		cands, err := ix.Candidates("rand_core")
		if err != nil {
			t.Fatal(err)
		}
		if len(cands) != 1 || cands[0].Version.String() != "0.6.4" {
			t.Errorf("rand_core candidates = %v", cands)
		}
	})

	t.Run("absent crate has no candidates", func(t *testing.T) {
		cands, err := ix.Candidates("no-such-crate")
		if err != nil || len(cands) != 0 {
			t.Errorf("got %v, %v for an absent crate", cands, err)
		}
	})

	t.Run("names skip config", func(t *testing.T) {
		names, err := ix.Names()
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"rand", "rand_core", "serde"}
		if !reflect.DeepEqual(names, want) {
			t.Errorf("Names() = %v, want %v", names, want)
		}
	})
}
