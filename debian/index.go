// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debian

import (
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
const Ecosystem = "debian"

// Adapter exposes the archive to the provider layer.
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

// Index holds one parsed Packages file. Virtual packages from Provides
// fields are indexed alongside concrete ones: a provided name gets a
// candidate per provider, pinned back onto the provider's exact
// version.
type Index struct {
	records  map[string][]record
	provides map[string][]provideEntry
}

type record struct {
	version Version
	deps    []pubgrub.Dependency
}

type provideEntry struct {
	version  Version // stated provide version, or the provider's own
	provider string
	pinned   Version
}

// LoadIndex parses a Packages control file, gzipped when the path ends
// in .gz. Stanzas that fail to parse are skipped and logged, so one
// malformed package cannot poison the rest of the archive.
func LoadIndex(path string, log *logrus.Logger) (*Index, error) {
	if log == nil {
		log = logrus.New()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening Packages file")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "decompressing Packages file")
		}
		defer gz.Close()
		r = gz
	}
	return parseIndex(r, log)
}

func parseIndex(r io.Reader, log *logrus.Logger) (*Index, error) {
	ix := &Index{
		records:  make(map[string][]record),
		provides: make(map[string][]provideEntry),
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	stanza := make(map[string]string)
	lastField := ""

	flush := func() {
		if len(stanza) > 0 {
			ix.addStanza(stanza, log)
		}
		stanza = make(map[string]string)
		lastField = ""
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case line[0] == ' ' || line[0] == '\t':
			// Continuation of the previous field.
			if lastField != "" {
				stanza[lastField] += " " + strings.TrimSpace(line)
			}
		default:
			pos := strings.IndexByte(line, ':')
			if pos < 0 {
				continue
			}
			lastField = line[:pos]
			stanza[lastField] = strings.TrimSpace(line[pos+1:])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading Packages file")
	}
	flush()

	ix.sortRecords()
	return ix, nil
}

func (ix *Index) addStanza(stanza map[string]string, log *logrus.Logger) {
	name := stanza["Package"]
	if name == "" {
		return
	}
	ver, err := ParseVersion(stanza["Version"])
	if err != nil {
		log.WithFields(logrus.Fields{
			"pkg": name,
			"err": err,
		}).Warn("skipping stanza with malformed version")
		return
	}

	var deps []pubgrub.Dependency
	for _, field := range []string{"Pre-Depends", "Depends"} {
		parsed, err := parseDepends(stanza[field])
		if err != nil {
			log.WithFields(logrus.Fields{
				"pkg":     name,
				"version": ver.String(),
				"err":     err,
			}).Warn("skipping version with malformed dependency field")
			return
		}
		deps = append(deps, parsed...)
	}

	ix.records[name] = append(ix.records[name], record{version: ver, deps: deps})

	for _, pv := range strings.Split(stanza["Provides"], ",") {
		pv = strings.TrimSpace(pv)
		if pv == "" {
			continue
		}
		provName, provVer := pv, ver
		if pos := strings.IndexByte(pv, '('); pos >= 0 {
			provName = strings.TrimSpace(pv[:pos])
			inner := strings.TrimSuffix(strings.TrimSpace(pv[pos+1:]), ")")
			inner = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(inner), "="))
			if v, err := ParseVersion(inner); err == nil {
				provVer = v
			}
		}
		ix.provides[provName] = append(ix.provides[provName], provideEntry{
			version:  provVer,
			provider: name,
			pinned:   ver,
		})
	}
}

// parseDepends parses a Depends or Pre-Depends field. Alternatives
// follow archive policy: the first branch wins. Architecture
// qualifiers and restrictions are stripped.
func parseDepends(field string) ([]pubgrub.Dependency, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, nil
	}
	var deps []pubgrub.Dependency
	for _, item := range strings.Split(field, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		// a | b: take the first alternative.
		if pos := strings.IndexByte(item, '|'); pos >= 0 {
			item = strings.TrimSpace(item[:pos])
		}

		name := item
		set := pubgrub.Any()
		if pos := strings.IndexByte(item, '('); pos >= 0 {
			name = strings.TrimSpace(item[:pos])
			end := strings.IndexByte(item, ')')
			if end < pos {
				return nil, errors.Errorf("unbalanced relation in %q", item)
			}
			var err error
			set, err = ParseConstraint(item[pos+1 : end])
			if err != nil {
				return nil, err
			}
		}
		// Strip any architecture qualifier or restriction list.
		if pos := strings.IndexByte(name, ':'); pos >= 0 {
			name = name[:pos]
		}
		if pos := strings.IndexByte(name, '['); pos >= 0 {
			name = strings.TrimSpace(name[:pos])
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
