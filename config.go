// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package babel

import (
	"context"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RyanGibb/babel/alpine"
	"github.com/RyanGibb/babel/cargo"
	"github.com/RyanGibb/babel/debian"
	"github.com/RyanGibb/babel/opam"
)

// Config maps ecosystem tags to index snapshots. In babel.toml form:
//
//	cache = "/var/cache/babel/babel.db"
//
//	[[ecosystem]]
//	name = "debian"
//	index = "/srv/snapshots/Packages.gz"
type Config struct {
	Cache      string
	Ecosystems []EcosystemConfig
}

// EcosystemConfig names one snapshot.
type EcosystemConfig struct {
	Name  string
	Index string
}

// LoadConfig reads a babel.toml file.
func LoadConfig(path string) (*Config, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	return configFromTree(tree)
}

func configFromTree(tree *toml.Tree) (*Config, error) {
	cfg := &Config{}
	if v := tree.Get("cache"); v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("config key cache should be a string, not %T", v)
		}
		cfg.Cache = s
	}

	v := tree.Get("ecosystem")
	if v == nil {
		return cfg, nil
	}
	tables, ok := v.([]*toml.Tree)
	if !ok {
		return nil, errors.Errorf("config key ecosystem should be an array of tables, not %T", v)
	}
	for _, t := range tables {
		name, _ := t.Get("name").(string)
		index, _ := t.Get("index").(string)
		if name == "" || index == "" {
			return nil, errors.New("each [[ecosystem]] needs a name and an index path")
		}
		cfg.Ecosystems = append(cfg.Ecosystems, EcosystemConfig{Name: name, Index: index})
	}
	return cfg, nil
}

// NewResolverFromConfig opens every configured snapshot and returns a
// resolver over them. The caller owns Close.
func NewResolverFromConfig(ctx context.Context, cfg *Config, log *logrus.Logger) (*Resolver, error) {
	r := NewResolver(log)

	if cfg.Cache != "" {
		cache, err := OpenCache(cfg.Cache)
		if err != nil {
			return nil, err
		}
		r.cache = cache
	}

	for _, eco := range cfg.Ecosystems {
		ad, ix, err := openEcosystem(eco, r.log)
		if err != nil {
			r.Close()
			return nil, err
		}
		opts := []ProviderOption{WithLogger(r.log), WithSessionContext(ctx)}
		if r.cache != nil {
			opts = append(opts, WithCache(r.cache))
		}
		r.Register(NewIndexProvider(ad, ix, opts...))
	}
	return r, nil
}

func openEcosystem(eco EcosystemConfig, log *logrus.Logger) (Adapter, Index, error) {
	switch eco.Name {
	case debian.Ecosystem:
		ix, err := debian.LoadIndex(eco.Index, log)
		return debian.New(), ix, err
	case alpine.Ecosystem:
		ix, err := alpine.LoadIndex(eco.Index, log)
		return alpine.New(), ix, err
	case opam.Ecosystem:
		ix, err := opam.LoadIndex(eco.Index, log)
		return opam.New(), ix, err
	case cargo.Ecosystem:
		ix, err := cargo.LoadIndex(eco.Index, log)
		return cargo.New(), ix, err
	}
	return nil, nil, errors.Errorf("unknown ecosystem %q", eco.Name)
}
