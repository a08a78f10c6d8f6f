// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package capture implements the graph-capture mechanism: running a callable with proxy
// placeholders records the operators it invokes as nodes of a Graph, an immutable
// structural representation that can be registered, printed and re-executed.
//
// The contract to callers is "same inputs -> structurally faithful subgraph": the
// capture is driven entirely by the dispatch machinery (operators emit call nodes when a
// tracing layer is active), so any callable expressed over registered operators can be
// captured, including re-entrantly from inside another capture.
package capture

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// NodeKind discriminates the node types of a captured Graph.
type NodeKind int

const (
	// KindPlaceholder marks a function input.
	KindPlaceholder NodeKind = iota
	// KindCall marks an operator invocation.
	KindCall
	// KindOutput marks the function result.
	KindOutput
)

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	switch k {
	case KindPlaceholder:
		return "placeholder"
	case KindCall:
		return "call"
	case KindOutput:
		return "output"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// SubgraphRef is a by-name reference to a subgraph registered on the enclosing graph (or
// one of its ancestors). Call nodes of higher-order operators use it to point at their
// captured condition/body.
type SubgraphRef string

// Node is one operation of a captured Graph. Nodes are created by the Tracer and
// immutable afterwards.
//
// Args may hold *Node (data dependency), SubgraphRef (captured sub-computation), a
// grouped []any of those, or a plain literal value.
type Node struct {
	graph  *Graph
	kind   NodeKind
	name   string
	target string // Operator name, for KindCall.
	args   []any
}

// Kind of the node.
func (n *Node) Kind() NodeKind { return n.kind }

// Name is the node's unique name within its graph.
func (n *Node) Name() string { return n.name }

// Target is the operator name invoked by a call node.
func (n *Node) Target() string { return n.target }

// Args returns the node arguments. The returned slice must not be modified.
func (n *Node) Args() []any { return n.args }

// Graph that owns the node.
func (n *Node) Graph() *Graph { return n.graph }

// String implements fmt.Stringer, printing one line in the graph listing format.
func (n *Node) String() string {
	switch n.kind {
	case KindPlaceholder:
		return fmt.Sprintf("%%%s = placeholder", n.name)
	case KindOutput:
		return fmt.Sprintf("output(%s)", formatArgs(n.args))
	default:
		return fmt.Sprintf("%%%s = call %s(%s)", n.name, n.target, formatArgs(n.args))
	}
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case *Node:
		return "%" + v.name
	case SubgraphRef:
		return "@" + string(v)
	case []any:
		return "(" + formatArgs(v) + ")"
	case string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for ii, arg := range args {
		parts[ii] = formatArg(arg)
	}
	return strings.Join(parts, ", ")
}

// Graph is an immutable captured computation: an ordered list of placeholder, call and
// output nodes, plus named child subgraphs registered by higher-order operators.
//
// The subgraph namespace is a shared mutable resource while the enclosing trace is being
// built: multiple loops traced into the same graph must probe for collision-free names
// before registering (see flow's name probing).
type Graph struct {
	name   string
	parent *Graph

	nodes      []*Node
	nameCounts map[string]int

	subgraphs     map[string]*Graph
	subgraphNames []string
}

func newGraph(name string) *Graph {
	return &Graph{
		name:       name,
		nameCounts: make(map[string]int),
		subgraphs:  make(map[string]*Graph),
	}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Parent is the graph this one was registered on as a subgraph, nil for a root graph.
func (g *Graph) Parent() *Graph { return g.parent }

// Nodes returns the nodes in creation order. The returned slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumPlaceholders returns how many placeholder (input) nodes the graph has.
func (g *Graph) NumPlaceholders() (count int) {
	for _, n := range g.nodes {
		if n.kind == KindPlaceholder {
			count++
		}
	}
	return
}

// HasSubgraph returns whether name is already taken in the graph's subgraph namespace.
func (g *Graph) HasSubgraph(name string) bool {
	_, found := g.subgraphs[name]
	return found
}

// Subgraph returns the subgraph registered under name, or nil.
func (g *Graph) Subgraph(name string) *Graph { return g.subgraphs[name] }

// SubgraphNames returns the registered names in registration order.
func (g *Graph) SubgraphNames() []string { return g.subgraphNames }

// RegisterSubgraph registers sub as a named child of g. The name must be free: callers
// are expected to probe with HasSubgraph first.
func (g *Graph) RegisterSubgraph(name string, sub *Graph) {
	if g.HasSubgraph(name) {
		exceptions.Panicf("capture: graph %q already has a subgraph named %q", g.name, name)
	}
	if sub.parent != nil {
		exceptions.Panicf("capture: subgraph %q is already registered on graph %q", sub.name, sub.parent.name)
	}
	sub.parent = g
	g.subgraphs[name] = sub
	g.subgraphNames = append(g.subgraphNames, name)
	klog.V(1).Infof("capture: registered subgraph %q on graph %q", name, g.name)
}

// resolveSubgraph finds a subgraph by name on g or any of its ancestors.
func (g *Graph) resolveSubgraph(name string) *Graph {
	for current := g; current != nil; current = current.parent {
		if sub := current.subgraphs[name]; sub != nil {
			return sub
		}
	}
	return nil
}

// addNode appends a node, de-duplicating its name within the graph ("add", "add_1", ...).
func (g *Graph) addNode(kind NodeKind, baseName, target string, args []any) *Node {
	name := baseName
	if count := g.nameCounts[baseName]; count > 0 {
		name = fmt.Sprintf("%s_%d", baseName, count)
	}
	g.nameCounts[baseName]++
	n := &Node{graph: g, kind: kind, name: name, target: target, args: args}
	g.nodes = append(g.nodes, n)
	return n
}

// String prints the graph (and its subgraphs) in a readable listing format.
func (g *Graph) String() string {
	var sb strings.Builder
	g.writeTo(&sb, 0)
	return sb.String()
}

func (g *Graph) writeTo(sb *strings.Builder, indent int) {
	prefix := strings.Repeat("  ", indent)
	placeholders := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		if n.kind == KindPlaceholder {
			placeholders = append(placeholders, "%"+n.name)
		}
	}
	fmt.Fprintf(sb, "%sgraph %s(%s):\n", prefix, g.name, strings.Join(placeholders, ", "))
	for _, n := range g.nodes {
		if n.kind == KindPlaceholder {
			continue
		}
		fmt.Fprintf(sb, "%s  %s\n", prefix, n)
	}
	for _, name := range g.subgraphNames {
		fmt.Fprintf(sb, "%s  subgraph %q:\n", prefix, name)
		g.subgraphs[name].writeTo(sb, indent+2)
	}
}
