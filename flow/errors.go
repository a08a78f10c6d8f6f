// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package flow

import "fmt"

// UnsupportedAliasMutationError reports that a structured control-flow callable was
// statically detected as potentially mutating or aliasing its inputs. Both are rejected:
// the captured graph assumes pure condition/body functions.
type UnsupportedAliasMutationError struct {
	// Op is the control-flow operator, e.g. "while_loop".
	Op string
	// Fn names the offending callable, "condFn" or "bodyFn".
	Fn string
	// Aliasing distinguishes an output aliasing an input from an input mutation.
	Aliasing bool
}

// Error implements the error interface.
func (e *UnsupportedAliasMutationError) Error() string {
	verb := "modifying"
	if e.Aliasing {
		verb = "aliasing"
	}
	return fmt.Sprintf("%s: %s might be %s its input", e.Op, e.Fn, verb)
}

// AutogradNotImplementedError reports a gradient request flowing through an operator
// that has no backward implementation. It is raised lazily: using the operator under
// autograd succeeds, and the error only surfaces when Backward reaches its outputs.
type AutogradNotImplementedError struct {
	// Op is the operator the gradient was requested through.
	Op string
}

// Error implements the error interface.
func (e *AutogradNotImplementedError) Error() string {
	return fmt.Sprintf("%s: autograd is not implemented, gradients cannot flow through it", e.Op)
}
