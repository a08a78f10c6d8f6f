// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// Handler implements an operator under one Mode.
//
// The stack is passed with the selected layer (and anything above it) already removed, so
// calling the operator again from inside the handler dispatches to the next mode down.
// layer is the Layer the dispatch selected -- nil for the eager fallback on an empty
// stack.
type Handler func(stack *Stack, layer Layer, args []any) []any

// Operator is a logical operator with per-mode handlers. Create it with NewOperator,
// register handlers during package initialization.
type Operator struct {
	name     string
	handlers map[Mode]Handler
}

var registeredOperators = make(map[string]*Operator)

// NewOperator creates and registers an operator under a unique name. The name is also
// the target used by captured graph call nodes, so it must be stable.
func NewOperator(name string) *Operator {
	if _, found := registeredOperators[name]; found {
		exceptions.Panicf("dispatch.NewOperator: operator %q already registered", name)
	}
	op := &Operator{
		name:     name,
		handlers: make(map[Mode]Handler),
	}
	registeredOperators[name] = op
	return op
}

// Get returns the operator registered under name, or nil.
func Get(name string) *Operator {
	return registeredOperators[name]
}

// MustGet returns the operator registered under name, panicking if absent.
func MustGet(name string) *Operator {
	op := registeredOperators[name]
	if op == nil {
		exceptions.Panicf("dispatch.MustGet: no operator registered under %q", name)
	}
	return op
}

// Name of the operator.
func (op *Operator) Name() string { return op.name }

// RegisterHandler sets the handler for the given mode. Exactly one handler per mode is
// allowed; registering twice panics.
func (op *Operator) RegisterHandler(mode Mode, handler Handler) *Operator {
	if _, found := op.handlers[mode]; found {
		exceptions.Panicf("operator %q already has a handler for mode %s", op.name, mode)
	}
	op.handlers[mode] = handler
	return op
}

// HandlesMode returns whether the operator has a handler registered for mode.
func (op *Operator) HandlesMode(mode Mode) bool {
	_, found := op.handlers[mode]
	return found
}

// Call dispatches the operator on the given mode stack.
//
// It selects the outermost layer whose mode the operator handles -- layers of modes the
// operator doesn't participate in are passed through. The selected layer and everything
// above it are removed from the stack for the duration of the handler and restored
// afterwards. If no layer participates, the eager handler runs.
func (op *Operator) Call(stack *Stack, args ...any) []any {
	if stack != nil {
		for ii := len(stack.layers) - 1; ii >= 0; ii-- {
			layer := stack.layers[ii]
			handler, found := op.handlers[layer.DispatchMode()]
			if !found {
				continue
			}
			if klog.V(2).Enabled() {
				klog.Infof("dispatch: %s -> %s (stack depth %d)", op.name, layer.DispatchMode(), stack.Len())
			}
			removed := stack.popFrom(ii)
			defer stack.restore(removed)
			return handler(stack, layer, args)
		}
	}
	handler, found := op.handlers[ModeEager]
	if !found {
		exceptions.Panicf("operator %q has no eager handler and no active mode handles it", op.name)
	}
	return handler(stack, nil, args)
}
