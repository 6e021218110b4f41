// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "fmt"

// NoSolutionError reports that the requirements cannot be satisfied.
// It is a structured result, not a fault: Tree holds the complete
// derivation of the failure for rendering or inspection.
type NoSolutionError struct {
	Tree *DerivationTree
}

func (e *NoSolutionError) Error() string {
	return "no version assignment satisfies the requirements"
}

// InternalError reports a broken solver invariant, such as a duplicate
// decision. It is kept distinct from NoSolutionError so callers never
// mistake a bug for an unsatisfiable request.
type InternalError struct {
	msg string
}

func (e *InternalError) Error() string {
	return "internal invariant violation: " + e.msg
}

func internalf(format string, args ...interface{}) error {
	return &InternalError{msg: fmt.Sprintf(format, args...)}
}
