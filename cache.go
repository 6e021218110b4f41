// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package babel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// BoltCache persists candidate lists across runs. One bucket per
// ecosystem, one key per package name, JSON-encoded candidates as the
// value. A file lock guards the database against concurrent processes;
// bolt itself serializes access within one.
type BoltCache struct {
	db *bolt.DB
	fl *flock.Flock
}

// OpenCache opens or creates a cache file, taking the file lock first.
func OpenCache(path string) (*BoltCache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", dir)
	}

	fl := flock.New(path + ".lock")
	if err := fl.Lock(); err != nil {
		return nil, errors.Wrapf(err, "locking cache %s", path)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		fl.Unlock()
		return nil, errors.Wrapf(err, "opening cache %s", path)
	}
	return &BoltCache{db: db, fl: fl}, nil
}

// Close releases the database and the file lock. Must not be called
// concurrently with Get or Put.
func (c *BoltCache) Close() error {
	err := c.db.Close()
	if uerr := c.fl.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// Candidates are stored with versions and bounds as strings in the
// ecosystem's own syntax, re-parsed through the adapter on the way
// out. A nil bound is an open end.
type candidateRecord struct {
	Version string      `json:"version"`
	Deps    []depRecord `json:"deps,omitempty"`
}

type depRecord struct {
	Ecosystem string           `json:"ecosystem"`
	Name      string           `json:"name"`
	Intervals []intervalRecord `json:"intervals"`
	Variant   string           `json:"variant,omitempty"`
}

type intervalRecord struct {
	Lo    *string `json:"lo"`
	LoInc bool    `json:"lo_inc"`
	Hi    *string `json:"hi"`
	HiInc bool    `json:"hi_inc"`
}

// Put stores a package's candidate list.
func (c *BoltCache) Put(ecosystem, name string, cands []pubgrub.Candidate) error {
	recs := make([]candidateRecord, 0, len(cands))
	for _, cand := range cands {
		rec := candidateRecord{Version: cand.Version.String()}
		for _, d := range cand.Deps {
			dr := depRecord{
				Ecosystem: d.Pkg.Ecosystem,
				Name:      d.Pkg.Name,
				Variant:   d.Variant,
			}
			for _, iv := range d.Set.Intervals() {
				ir := intervalRecord{LoInc: iv.LoInc, HiInc: iv.HiInc}
				if iv.Lo != nil {
					s := iv.Lo.String()
					ir.Lo = &s
				}
				if iv.Hi != nil {
					s := iv.Hi.String()
					ir.Hi = &s
				}
				dr.Intervals = append(dr.Intervals, ir)
			}
			rec.Deps = append(rec.Deps, dr)
		}
		recs = append(recs, rec)
	}

	data, err := json.Marshal(recs)
	if err != nil {
		return errors.Wrap(err, "encoding candidates")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ecosystem))
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
}

// Get loads a package's candidate list, reporting whether the cache
// held one. Versions and bounds are re-parsed with the adapter, so a
// cache written against one syntax never leaks into another.
func (c *BoltCache) Get(ad Adapter, name string) ([]pubgrub.Candidate, bool, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(ad.Ecosystem()))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(name)); v != nil {
			data = append(data, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "reading cache")
	}
	if data == nil {
		return nil, false, nil
	}

	var recs []candidateRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, false, errors.Wrap(err, "decoding cached candidates")
	}

	cands := make([]pubgrub.Candidate, 0, len(recs))
	for _, rec := range recs {
		ver, err := ad.ParseVersion(rec.Version)
		if err != nil {
			return nil, false, errors.Wrapf(err, "cached version %q", rec.Version)
		}
		cand := pubgrub.Candidate{Version: ver}
		for _, dr := range rec.Deps {
			ivs := make([]pubgrub.Interval, 0, len(dr.Intervals))
			for _, ir := range dr.Intervals {
				iv := pubgrub.Interval{LoInc: ir.LoInc, HiInc: ir.HiInc}
				if ir.Lo != nil {
					v, err := ad.ParseVersion(*ir.Lo)
					if err != nil {
						return nil, false, errors.Wrapf(err, "cached bound %q", *ir.Lo)
					}
					iv.Lo = v
				}
				if ir.Hi != nil {
					v, err := ad.ParseVersion(*ir.Hi)
					if err != nil {
						return nil, false, errors.Wrapf(err, "cached bound %q", *ir.Hi)
					}
					iv.Hi = v
				}
				ivs = append(ivs, iv)
			}
			cand.Deps = append(cand.Deps, pubgrub.Dependency{
				Pkg:     pubgrub.Package{Ecosystem: dr.Ecosystem, Name: dr.Name},
				Set:     pubgrub.NewSet(ivs...),
				Variant: dr.Variant,
			})
		}
		cands = append(cands, cand)
	}
	return cands, true, nil
}
