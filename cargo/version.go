// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cargo adapts a crates.io-style registry for version
// solving: semver ordering, the requirement grammar with its caret
// default, and a reader for the registry index's JSON line files.
package cargo

import (
	"github.com/Masterminds/semver"
	"github.com/pkg/errors"

	"github.com/RyanGibb/babel/pubgrub"
)

// Version is a crate version. The registry only publishes semver, so
// parsing defers entirely to the semver library; the original spelling
// is kept for display.
type Version struct {
	sv *semver.Version
}

func ParseVersion(s string) (Version, error) {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, errors.Wrapf(err, "version %q", s)
	}
	return Version{sv: sv}, nil
}

func (v Version) String() string {
	return v.sv.Original()
}

func (v Version) Compare(other pubgrub.Version) int {
	return v.sv.Compare(other.(Version).sv)
}
