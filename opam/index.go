// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package opam

import (
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
const Ecosystem = "opam"

// Adapter exposes a repository tree to the provider layer.
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

// Index reads a repository tree laid out as
// packages/<name>/<name>.<version>/opam. Nothing is parsed up front;
// each package's versions are read on demand.
type Index struct {
	root string
	log  *logrus.Logger
}

// LoadIndex opens a repository tree rooted at the packages directory.
func LoadIndex(path string, log *logrus.Logger) (*Index, error) {
	if log == nil {
		log = logrus.New()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening repository tree")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("repository root %s is not a directory", path)
	}
	return &Index{root: path, log: log}, nil
}

// Candidates lists a package's versions newest first. Versions whose
// opam file fails to parse are skipped and logged.
func (ix *Index) Candidates(name string) ([]pubgrub.Candidate, error) {
	entries, err := os.ReadDir(filepath.Join(ix.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading versions of %s", name)
	}

	var out []pubgrub.Candidate
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), name+".") {
			continue
		}
		ver, err := ParseVersion(strings.TrimPrefix(entry.Name(), name+"."))
		if err != nil {
			continue
		}
		deps, err := ix.readDepends(filepath.Join(ix.root, name, entry.Name(), "opam"))
		if err != nil {
			ix.log.WithFields(logrus.Fields{
				"pkg":     name,
				"version": ver.String(),
				"err":     err,
			}).Warn("skipping version with malformed opam file")
			continue
		}
		out = append(out, pubgrub.Candidate{Version: ver, Deps: deps})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version.Compare(out[j].Version) > 0
	})
	return out, nil
}

// readDepends parses the depends: field of one opam file. A missing
// file or a file without the field means no dependencies.
func (ix *Index) readDepends(path string) ([]pubgrub.Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading opam file")
	}
	body, ok := dependsBody(string(data))
	if !ok {
		return nil, nil
	}
	return parseDependsField(body)
}

// dependsBody slices out everything after the top level depends:
// field. The formula parser stops on its own at the end of the field.
func dependsBody(src string) (string, bool) {
	for pos := 0; pos < len(src); {
		end := strings.IndexByte(src[pos:], '\n')
		if end < 0 {
			end = len(src)
		} else {
			end += pos
		}
		line := src[pos:end]
		if strings.HasPrefix(line, "depends:") {
			return src[pos+len("depends:"):], true
		}
		pos = end + 1
	}
	return "", false
}

// Names lists every package directory in the tree, sorted.
func (ix *Index) Names() ([]string, error) {
	dirents, err := godirwalk.ReadDirents(ix.root, nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing repository tree")
	}
	var names []string
	for _, de := range dirents {
		if de.IsDir() && !strings.HasPrefix(de.Name(), ".") {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
