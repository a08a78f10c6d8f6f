// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package symbolic implements the shape-tracking environment: allocation of unbacked
// symbolic integers and the scoping needed to keep trace-probe symbols transient.
//
// An unbacked symbolic integer ("u0", "u1", ...) is a placeholder for an integer whose
// concrete value is not known at trace time, typically because it is iteration dependent.
// Allocating one appends it to the environment's pending-fresh arena: symbols the
// enclosing trace is still expected to reconcile (bind to the computation that produced
// them). Probing evaluations -- running a loop body once to learn its structure or its
// metadata -- must not leak their symbols into the caller's pending set, so they run
// inside IgnoreFreshUnbacked, which checkpoints the arena boundary and rolls the pending
// set back to it when the probe completes. The symbols themselves stay valid, and names
// are never reused.
package symbolic

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// SymInt is an unbacked symbolic integer, owned by the ShapeEnv that allocated it.
type SymInt struct {
	env *ShapeEnv
	id  int
}

// Name returns the symbol name, "u<id>".
func (s *SymInt) Name() string { return fmt.Sprintf("u%d", s.id) }

// String implements fmt.Stringer.
func (s *SymInt) String() string { return s.Name() }

// Env returns the ShapeEnv that owns the symbol.
func (s *SymInt) Env() *ShapeEnv { return s.env }

// ShapeEnv allocates and scopes symbolic integers. It persists for as long as the
// governing trace (or metadata-inference context) persists.
//
// It is not safe for concurrent use: allocation happens on the single-threaded dispatch
// call stack.
type ShapeEnv struct {
	nextID int

	// pending is the arena of fresh unbacked symbols awaiting reconciliation by the
	// enclosing trace. IgnoreFreshUnbacked rolls it back to a checkpoint.
	pending []*SymInt

	bindings map[*SymInt]string
}

// NewShapeEnv returns an empty shape-tracking environment.
func NewShapeEnv() *ShapeEnv {
	return &ShapeEnv{bindings: make(map[*SymInt]string)}
}

// NewUnbacked allocates a fresh unbacked symbolic integer and records it as
// pending-fresh. Symbols are never reused across calls.
func (e *ShapeEnv) NewUnbacked() *SymInt {
	s := &SymInt{env: e, id: e.nextID}
	e.nextID++
	e.pending = append(e.pending, s)
	if klog.V(2).Enabled() {
		klog.Infof("symbolic: allocated unbacked symbol %s (%d pending)", s, len(e.pending))
	}
	return s
}

// PendingFresh returns the symbols allocated and not yet discarded by an enclosing
// IgnoreFreshUnbacked scope. The returned slice must not be modified.
func (e *ShapeEnv) PendingFresh() []*SymInt {
	return e.pending
}

// IgnoreFreshUnbacked runs fn and discards from the pending-fresh set every symbol
// allocated during fn: they are reconciled by the nested call that created them, not by
// the caller. Scopes nest; the rollback also happens if fn throws.
func (e *ShapeEnv) IgnoreFreshUnbacked(fn func()) {
	mark := len(e.pending)
	defer func() {
		if klog.V(2).Enabled() && len(e.pending) > mark {
			klog.Infof("symbolic: discarding %d fresh unbacked symbols", len(e.pending)-mark)
		}
		e.pending = e.pending[:mark]
	}()
	fn()
}

// RecordBinding records the binding from a symbol back to the computation that
// originated it, needed when the surrounding trace must reconcile symbols produced by
// nested operator calls.
func (e *ShapeEnv) RecordBinding(s *SymInt, origin string) {
	if s.env != e {
		exceptions.Panicf("symbolic.RecordBinding: symbol %s belongs to a different ShapeEnv", s)
	}
	e.bindings[s] = origin
}

// BindingOf returns the recorded origin of a symbol, if any.
func (e *ShapeEnv) BindingOf(s *SymInt) (origin string, found bool) {
	origin, found = e.bindings[s]
	return
}
