// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dispatch implements the operator dispatch machinery: a registry of logical
// operators, each with one handler per execution Mode, and an explicit Stack of active
// mode layers.
//
// One logical operator invocation is routed to the handler of the topmost (outermost)
// active layer the operator has a handler for. While the handler runs, that layer (and
// anything stacked above it) is removed from the stack, so that re-invoking the operator
// from inside a handler dispatches to the next mode down -- outer modes wrap inner ones.
// With an empty stack (or no participating layer) the eager handler runs: it is the base
// semantics every other mode must reproduce observably.
//
// The active mode stack is an explicit parameter threaded through calls, not ambient
// interpreter state. Layers carry their mode-specific context: a tracer for graph
// capture, a shape environment for metadata inference, a copy-on-write context for
// functionalization.
package dispatch

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// Mode enumerates the execution modes an operator can be dispatched under.
type Mode int

//go:generate go run github.com/dmarkham/enumer -type=Mode -trimprefix=Mode -output=mode_enumer.go

const (
	// ModeEager is the base mode: dense execution on concrete host tensors.
	ModeEager Mode = iota

	// ModeAutograd wraps outputs with gradient bookkeeping. Operators without gradient
	// support register a deferred "not implemented" handler for it.
	ModeAutograd

	// ModeFunctionalize runs operators under copy-on-write semantics so mutation and
	// aliasing can be detected and rejected.
	ModeFunctionalize

	// ModeTracing captures operator invocations as nodes of a computation graph.
	ModeTracing

	// ModeFake runs only shape/dtype metadata inference, on placeholder tensors.
	ModeFake
)

// Layer is one active entry of the mode Stack. Implementations carry the state of their
// mode: *capture.Mode (tracing), *fake.Mode (metadata), *functional.Context
// (functionalization).
type Layer interface {
	DispatchMode() Mode
}

// ModeLayer is a stateless Layer, for modes that carry no context of their own
// (e.g. autograd).
type ModeLayer Mode

// DispatchMode implements Layer.
func (m ModeLayer) DispatchMode() Mode { return Mode(m) }

// Stack is the explicit stack of active mode layers. The last pushed layer is the
// outermost mode. A nil *Stack is valid and behaves as an empty stack for reads, but
// Push requires a non-nil stack.
//
// Stacks are not safe for concurrent use: dispatch is single-threaded, call-stack based.
type Stack struct {
	layers []Layer
}

// NewStack returns an empty mode stack: all dispatch on it is eager.
func NewStack() *Stack {
	return &Stack{}
}

// Push adds a layer as the new outermost mode.
func (s *Stack) Push(layer Layer) {
	if layer == nil {
		exceptions.Panicf("dispatch.Stack.Push: nil layer")
	}
	s.layers = append(s.layers, layer)
}

// Pop removes and returns the outermost layer. It panics on an empty stack.
func (s *Stack) Pop() Layer {
	if len(s.layers) == 0 {
		exceptions.Panicf("dispatch.Stack.Pop: empty stack")
	}
	layer := s.layers[len(s.layers)-1]
	s.layers = s.layers[:len(s.layers)-1]
	return layer
}

// Top returns the outermost layer, or nil if the stack is empty.
func (s *Stack) Top() Layer {
	if s == nil || len(s.layers) == 0 {
		return nil
	}
	return s.layers[len(s.layers)-1]
}

// Len returns the number of active layers.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

// Find returns the outermost layer with the given mode, or nil if the mode is not active.
func (s *Stack) Find(mode Mode) Layer {
	if s == nil {
		return nil
	}
	for ii := len(s.layers) - 1; ii >= 0; ii-- {
		if s.layers[ii].DispatchMode() == mode {
			return s.layers[ii]
		}
	}
	return nil
}

// Scoped pushes the layer, runs fn and pops the layer again, also in case of exceptions.
func (s *Stack) Scoped(layer Layer, fn func()) {
	s.Push(layer)
	defer s.Pop()
	fn()
}

// Suspend removes every layer of the given mode while fn runs, restoring them at their
// original positions afterwards, also in case of exceptions. Handlers use it to re-enter
// an operator without the suspended mode observing the nested call: e.g. a tracing
// handler computing the underlying value must not be recorded by an enclosing trace.
func (s *Stack) Suspend(mode Mode, fn func()) {
	var savedIdx []int
	var savedLayers []Layer
	kept := make([]Layer, 0, len(s.layers))
	for ii, layer := range s.layers {
		if layer.DispatchMode() == mode {
			savedIdx = append(savedIdx, ii)
			savedLayers = append(savedLayers, layer)
			continue
		}
		kept = append(kept, layer)
	}
	if len(savedLayers) == 0 {
		fn()
		return
	}
	s.layers = kept
	defer func() {
		restored := slices.Clone(s.layers)
		for jj, idx := range savedIdx {
			if idx > len(restored) {
				idx = len(restored)
			}
			restored = slices.Insert(restored, idx, savedLayers[jj])
		}
		s.layers = restored
	}()
	fn()
}

// popFrom removes the layers from position idx (inclusive) to the top and returns them,
// restoring is the caller's responsibility -- see Operator.Call.
func (s *Stack) popFrom(idx int) []Layer {
	removed := slices.Clone(s.layers[idx:])
	s.layers = s.layers[:idx]
	return removed
}

// restore pushes back layers previously removed with popFrom.
func (s *Stack) restore(removed []Layer) {
	s.layers = append(s.layers, removed...)
}
