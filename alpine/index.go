// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alpine

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RyanGibb/babel/pubgrub"
)

// Ecosystem is the tag under which these packages are solved.
const Ecosystem = "alpine"

// Adapter exposes the index to the provider layer.
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

// Index holds one parsed APKINDEX. Provided names, including shared
// object and command aliases, are indexed as virtual packages whose
// single dependency pins the concrete provider.
type Index struct {
	records  map[string][]record
	provides map[string][]provideEntry
}

type record struct {
	version Version
	deps    []pubgrub.Dependency
}

type provideEntry struct {
	version  Version
	provider string
	pinned   Version
}

// LoadIndex parses an APKINDEX, either the bare text file or the
// APKINDEX.tar.gz archive apk mirrors serve. Stanzas that fail to
// parse are skipped and logged.
func LoadIndex(path string, log *logrus.Logger) (*Index, error) {
	if log == nil {
		log = logrus.New()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening APKINDEX")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "decompressing APKINDEX archive")
		}
		defer gz.Close()
		r, err = findArchiveIndex(gz)
		if err != nil {
			return nil, err
		}
	} else if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "decompressing APKINDEX")
		}
		defer gz.Close()
		r = gz
	}
	return parseIndex(r, log)
}

func findArchiveIndex(r io.Reader) (io.Reader, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, errors.New("archive has no APKINDEX entry")
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading APKINDEX archive")
		}
		if strings.TrimPrefix(hdr.Name, "./") == "APKINDEX" {
			return tr, nil
		}
	}
}

func parseIndex(r io.Reader, log *logrus.Logger) (*Index, error) {
	ix := &Index{
		records:  make(map[string][]record),
		provides: make(map[string][]provideEntry),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	stanza := make(map[byte]string)

	flush := func() {
		if len(stanza) > 0 {
			ix.addStanza(stanza, log)
		}
		stanza = make(map[byte]string)
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(line) < 2 || line[1] != ':' {
			continue
		}
		stanza[line[0]] = line[2:]
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading APKINDEX")
	}
	flush()

	ix.sortRecords()
	return ix, nil
}

func (ix *Index) addStanza(stanza map[byte]string, log *logrus.Logger) {
	name := stanza['P']
	if name == "" {
		return
	}
	ver, err := ParseVersion(stanza['V'])
	if err != nil {
		log.WithFields(logrus.Fields{
			"pkg": name,
			"err": err,
		}).Warn("skipping stanza with malformed version")
		return
	}

	deps, err := parseDepends(stanza['D'])
	if err != nil {
		log.WithFields(logrus.Fields{
			"pkg":     name,
			"version": ver.String(),
			"err":     err,
		}).Warn("skipping version with malformed dependency field")
		return
	}

	ix.records[name] = append(ix.records[name], record{version: ver, deps: deps})

	for _, pv := range strings.Fields(stanza['p']) {
		provName, provVer := pv, ver
		if pos := strings.IndexByte(pv, '='); pos >= 0 {
			provName = pv[:pos]
			if v, err := ParseVersion(pv[pos+1:]); err == nil {
				provVer = v
			}
		}
		if provName == "" {
			continue
		}
		ix.provides[provName] = append(ix.provides[provName], provideEntry{
			version:  provVer,
			provider: name,
			pinned:   ver,
		})
	}
}

// parseDepends parses a D: field. The operator can appear anywhere in
// the item since provided names like so:libc.so.1 carry no separator
// before it. A leading '!' marks a conflict, which the index drops.
func parseDepends(field string) ([]pubgrub.Dependency, error) {
	var deps []pubgrub.Dependency
	for _, item := range strings.Fields(field) {
		if strings.HasPrefix(item, "!") {
			continue
		}
		name := item
		set := pubgrub.Any()
		for _, op := range depOps {
			pos := strings.Index(item, op)
			if pos < 0 {
				continue
			}
			name = item[:pos]
			v, err := ParseVersion(item[pos+len(op):])
			if err != nil {
				return nil, errors.Wrapf(err, "dependency %q", item)
			}
			set = opSet(op, v)
			break
		}
		if name == "" {
			return nil, errors.Errorf("empty package name in %q", item)
		}
		deps = append(deps, pubgrub.Dependency{
			Pkg: pubgrub.Package{Ecosystem: Ecosystem, Name: name},
			Set: set,
		})
	}
	return deps, nil
}

func (ix *Index) sortRecords() {
	for _, recs := range ix.records {
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].version.Compare(recs[j].version) > 0
		})
	}
	for _, provs := range ix.provides {
		sort.SliceStable(provs, func(i, j int) bool {
			return provs[i].version.Compare(provs[j].version) > 0
		})
	}
}

// Candidates lists a package's versions newest first, concrete records
// before virtual provides at the same name.
func (ix *Index) Candidates(name string) ([]pubgrub.Candidate, error) {
	var out []pubgrub.Candidate
	for _, rec := range ix.records[name] {
		out = append(out, pubgrub.Candidate{Version: rec.version, Deps: rec.deps})
	}
	for _, prov := range ix.provides[name] {
		out = append(out, pubgrub.Candidate{
			Version: prov.version,
			Deps: []pubgrub.Dependency{{
				Pkg: pubgrub.Package{Ecosystem: Ecosystem, Name: prov.provider},
				Set: pubgrub.Singleton(prov.pinned),
			}},
		})
	}
	return out, nil
}

// Names lists every known package name, concrete and provided, sorted.
func (ix *Index) Names() ([]string, error) {
	seen := make(map[string]bool, len(ix.records)+len(ix.provides))
	for name := range ix.records {
		seen[name] = true
	}
	for name := range ix.provides {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
