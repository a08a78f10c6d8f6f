// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package capture

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/flowops/dispatch"
)

// Interpret re-executes a captured Graph on the given arguments, one placeholder value
// per placeholder node, dispatching every call node through the operator registry on
// stack.
//
// Subgraph references resolve against the graph and its ancestors, and are passed to the
// target operator as *Graph values -- higher-order operators accept captured graphs in
// place of callables. Re-execution is observably equivalent to calling the original
// function: with an empty stack it runs the eager semantics.
func Interpret(stack *dispatch.Stack, g *Graph, args []any) []any {
	if want := g.NumPlaceholders(); len(args) != want {
		exceptions.Panicf("capture.Interpret: graph %q has %d placeholders, got %d arguments",
			g.name, want, len(args))
	}

	env := make(map[*Node][]any, len(g.nodes))

	var resolve func(arg any) any
	resolve = func(arg any) any {
		switch v := arg.(type) {
		case *Node:
			vals := env[v]
			if len(vals) == 1 {
				return vals[0]
			}
			return vals
		case SubgraphRef:
			sub := g.resolveSubgraph(string(v))
			if sub == nil {
				exceptions.Panicf("capture.Interpret: graph %q has no subgraph %q in scope", g.name, string(v))
			}
			return sub
		case []any:
			out := make([]any, len(v))
			for ii, e := range v {
				out[ii] = resolve(e)
			}
			return out
		}
		return arg
	}

	nextArg := 0
	for _, n := range g.nodes {
		switch n.kind {
		case KindPlaceholder:
			env[n] = []any{args[nextArg]}
			nextArg++
		case KindCall:
			if n.target == "item" {
				src := n.args[0].(*Node)
				idx := n.args[1].(int)
				env[n] = []any{env[src][idx]}
				continue
			}
			op := dispatch.MustGet(n.target)
			callArgs := make([]any, len(n.args))
			for ii, arg := range n.args {
				callArgs[ii] = resolve(arg)
			}
			env[n] = op.Call(stack, callArgs...)
		case KindOutput:
			out := make([]any, len(n.args))
			for ii, arg := range n.args {
				out[ii] = resolve(arg)
			}
			return out
		}
	}
	exceptions.Panicf("capture.Interpret: graph %q has no output node", g.name)
	return nil
}
