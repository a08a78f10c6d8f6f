// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package capture

import (
	"fmt"

	"github.com/gomlx/flowops/dispatch"
)

// Fn is the callable form the tracer captures: a function over runtime values, with the
// dispatch stack threaded explicitly.
type Fn func(stack *dispatch.Stack, args ...any) []any

// Proxy pairs a graph node with the underlying value that flowed through it during
// capture. Operators traced into a graph receive proxies, unwrap them to compute (or
// infer) the underlying result, and wrap their outputs as new proxies.
type Proxy struct {
	node  *Node
	value any
}

// NewProxy returns a proxy for value attached to node.
func NewProxy(node *Node, value any) *Proxy {
	return &Proxy{node: node, value: value}
}

// Node the proxy is attached to.
func (p *Proxy) Node() *Node { return p.node }

// Value is the underlying (concrete or placeholder) value.
func (p *Proxy) Value() any { return p.value }

// String implements fmt.Stringer.
func (p *Proxy) String() string { return fmt.Sprintf("proxy(%%%s: %v)", p.node.name, p.value) }

// ProxyValue unwraps one level of proxy, returning the underlying value; non-proxies
// pass through.
func ProxyValue(v any) any {
	if p, ok := v.(*Proxy); ok {
		return p.value
	}
	return v
}

// ProxyValues unwraps a slice of values with ProxyValue.
func ProxyValues(values []any) []any {
	out := make([]any, len(values))
	for ii, v := range values {
		out[ii] = ProxyValue(v)
	}
	return out
}

// ProxyArg converts a value to its graph-argument form: proxies become their nodes,
// grouped slices are converted element-wise, everything else is kept as a literal.
func ProxyArg(v any) any {
	switch t := v.(type) {
	case *Proxy:
		return t.node
	case []any:
		return ProxyArgs(t)
	}
	return v
}

// ProxyArgs converts a slice of values with ProxyArg.
func ProxyArgs(values []any) []any {
	out := make([]any, len(values))
	for ii, v := range values {
		out[ii] = ProxyArg(v)
	}
	return out
}

// Tracer builds one Graph. The root graph of the enclosing trace is where higher-order
// operators register their captured subgraphs.
type Tracer struct {
	graph *Graph
}

// NewTracer returns a tracer with a fresh empty graph of the given name.
func NewTracer(name string) *Tracer {
	return &Tracer{graph: newGraph(name)}
}

// Root returns the graph being built.
func (t *Tracer) Root() *Graph { return t.graph }

// EmitCall appends a call node invoking the operator named target with the given
// graph-form arguments (see ProxyArgs).
func (t *Tracer) EmitCall(target string, args []any) *Node {
	return t.graph.addNode(KindCall, target, target, args)
}

// TrackValues associates operator output values with the call node that produced them,
// returning one proxy per value. Multi-output nodes get one "item" projection node per
// output, so each proxy has its own node.
func (t *Tracer) TrackValues(values []any, node *Node) []any {
	if len(values) == 1 {
		return []any{NewProxy(node, values[0])}
	}
	out := make([]any, len(values))
	for ii, v := range values {
		item := t.graph.addNode(KindCall, "item", "item", []any{node, ii})
		out[ii] = NewProxy(item, v)
	}
	return out
}

// Mode is the tracing dispatch layer: while it is the active mode, operator calls are
// recorded on its tracer's graph.
type Mode struct {
	tracer *Tracer
}

// NewMode returns a tracing layer for the given tracer.
func NewMode(tracer *Tracer) *Mode {
	return &Mode{tracer: tracer}
}

// DispatchMode implements dispatch.Layer.
func (m *Mode) DispatchMode() dispatch.Mode { return dispatch.ModeTracing }

// Tracer returns the tracer recording for this layer.
func (m *Mode) Tracer() *Tracer { return m.tracer }

// Trace captures fn as a standalone Graph by calling it once with proxy placeholders
// wrapping args, under a fresh tracing layer pushed on stack.
//
// The args are the underlying values the probe evaluation runs on -- typically
// placeholder (fake) tensors, so the probe costs only metadata inference. Trace may be
// used re-entrantly: capturing a subgraph while an outer capture is in progress pushes
// an independent tracing layer, and the outer trace is untouched.
func Trace(stack *dispatch.Stack, name string, fn Fn, args []any) *Graph {
	tracer := NewTracer(name)
	g := tracer.graph
	proxies := make([]any, len(args))
	for ii, arg := range args {
		node := g.addNode(KindPlaceholder, fmt.Sprintf("arg%d", ii), "", nil)
		proxies[ii] = NewProxy(node, arg)
	}
	var outs []any
	stack.Scoped(NewMode(tracer), func() {
		outs = fn(stack, proxies...)
	})
	g.addNode(KindOutput, "output", "", ProxyArgs(outs))
	return g
}
