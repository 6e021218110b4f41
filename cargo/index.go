// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cargo

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RyanGibb/babel/pubgrub"
)

// Ecosystem is the tag under which these packages are solved.
const Ecosystem = "cargo"

// Adapter exposes a registry index checkout to the provider layer.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (*Adapter) Ecosystem() string { return Ecosystem }

func (*Adapter) ParseVersion(s string) (pubgrub.Version, error) {
	return ParseVersion(s)
}

func (*Adapter) ParseConstraint(s string) (pubgrub.VersionSet, error) {
	return ParseConstraint(s)
}

func (a *Adapter) LoadIndex(path string) (*Index, error) {
	return LoadIndex(path, nil)
}

// Index reads a crates.io-style registry index: one file per crate,
// one JSON record per published version, sharded into directories by
// name length and prefix.
type Index struct {
	root string
	log  *logrus.Logger
}

// LoadIndex opens a registry index checkout.
func LoadIndex(path string, log *logrus.Logger) (*Index, error) {
	if log == nil {
		log = logrus.New()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening registry index")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("registry index %s is not a directory", path)
	}
	return &Index{root: path, log: log}, nil
}

type indexDep struct {
	Name     string `json:"name"`
	Req      string `json:"req"`
	Optional bool   `json:"optional"`
	Kind     string `json:"kind"`
	Package  string `json:"package"`
}

type indexRecord struct {
	Name   string     `json:"name"`
	Vers   string     `json:"vers"`
	Deps   []indexDep `json:"deps"`
	Yanked bool       `json:"yanked"`
}

// cratePath shards a crate name the way the registry does: 1/ 2/ and
// 3/<initial>/ for short names, <ab>/<cd>/ for the rest.
func cratePath(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 0:
		return name
	case 1:
		return filepath.Join("1", name)
	case 2:
		return filepath.Join("2", name)
	case 3:
		return filepath.Join("3", name[:1], name)
	}
	return filepath.Join(name[:2], name[2:4], name)
}

// Candidates lists a crate's published versions newest first. Yanked
// versions and dev-dependencies are dropped; optional dependencies
// only apply under a feature, so they are dropped too, while build
// dependencies stay with their kind recorded.
func (ix *Index) Candidates(name string) ([]pubgrub.Candidate, error) {
	f, err := os.Open(filepath.Join(ix.root, cratePath(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading crate %s", name)
	}
	defer f.Close()

	var out []pubgrub.Candidate
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec indexRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			ix.log.WithFields(logrus.Fields{
				"crate": name,
				"err":   err,
			}).Warn("skipping malformed index record")
			continue
		}
		if rec.Yanked {
			continue
		}
		cand, err := ix.candidate(rec)
		if err != nil {
			ix.log.WithFields(logrus.Fields{
				"crate":   name,
				"version": rec.Vers,
				"err":     err,
			}).Warn("skipping malformed index record")
			continue
		}
		out = append(out, cand)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading crate %s", name)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.Compare(out[j].Version) > 0
	})
	return out, nil
}

func (ix *Index) candidate(rec indexRecord) (pubgrub.Candidate, error) {
	ver, err := ParseVersion(rec.Vers)
	if err != nil {
		return pubgrub.Candidate{}, err
	}
	var deps []pubgrub.Dependency
	for _, d := range rec.Deps {
		if d.Kind == "dev" || d.Optional {
			continue
		}
		set, err := ParseConstraint(d.Req)
		if err != nil {
			return pubgrub.Candidate{}, err
		}
		crate := d.Name
		if d.Package != "" {
			// A renamed dependency; the registry name is in package.
			crate = d.Package
		}
		variant := ""
		if d.Kind != "" && d.Kind != "normal" {
			variant = d.Kind
		}
		deps = append(deps, pubgrub.Dependency{
			Pkg:     pubgrub.Package{Ecosystem: Ecosystem, Name: crate},
			Set:     set,
			Variant: variant,
		})
	}
	return pubgrub.Candidate{Version: ver, Deps: deps}, nil
}

// Names walks the index and lists every crate, sorted.
func (ix *Index) Names() ([]string, error) {
	var names []string
	err := godirwalk.Walk(ix.root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			base := de.Name()
			if de.IsDir() {
				if strings.HasPrefix(base, ".") && path != ix.root {
					return filepath.SkipDir
				}
				return nil
			}
			if base == "config.json" || strings.HasPrefix(base, ".") {
				return nil
			}
			names = append(names, base)
			return nil
		},
		Unsorted: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "walking registry index")
	}
	sort.Strings(names)
	return names, nil
}
