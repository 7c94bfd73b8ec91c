// Package dg provides a generic dependence graph. Nodes wrap opaque
// elements; each node is either internal (inside the analysed scope) or
// external (a boundary element referenced from inside). Edges carry
// dependence attributes and may summarise a set of sub-edges.
package dg

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNodeNotFound is returned when an element or node is not part of the graph.
	ErrNodeNotFound = errors.New("dg: node not found")
	// ErrDuplicateNode is returned when an element already has a node.
	ErrDuplicateNode = errors.New("dg: element already in graph")
)

// Graph is a directed dependence graph over elements of type T.
// Node and edge iteration follows insertion order.
type Graph[T comparable] struct {
	nodes []*Node[T]
	edges []*Edge[T]
	entry *Node[T]

	internal map[T]*Node[T]
	external map[T]*Node[T]
}

// New creates an empty graph.
func New[T comparable]() *Graph[T] {
	return &Graph[T]{
		internal: make(map[T]*Node[T]),
		external: make(map[T]*Node[T]),
	}
}

// EntryNode returns the designated entry node, or nil.
func (g *Graph[T]) EntryNode() *Node[T] { return g.entry }

// SetEntryNode designates the entry node.
func (g *Graph[T]) SetEntryNode(n *Node[T]) { g.entry = n }

// IsInternal reports whether t is an internal element of the graph.
func (g *Graph[T]) IsInternal(t T) bool {
	_, ok := g.internal[t]
	return ok
}

// IsExternal reports whether t is an external element of the graph.
func (g *Graph[T]) IsExternal(t T) bool {
	_, ok := g.external[t]
	return ok
}

// IsInGraph reports whether t has a node in the graph.
func (g *Graph[T]) IsInGraph(t T) bool { return g.IsInternal(t) || g.IsExternal(t) }

func (g *Graph[T]) NumNodes() int         { return len(g.nodes) }
func (g *Graph[T]) NumInternalNodes() int { return len(g.internal) }
func (g *Graph[T]) NumExternalNodes() int { return len(g.external) }
func (g *Graph[T]) NumEdges() int         { return len(g.edges) }

// Nodes returns all nodes in insertion order.
func (g *Graph[T]) Nodes() []*Node[T] { return append([]*Node[T](nil), g.nodes...) }

// Edges returns all edges in insertion order.
func (g *Graph[T]) Edges() []*Edge[T] { return append([]*Edge[T](nil), g.edges...) }

// InternalNodes returns the internal nodes in insertion order.
func (g *Graph[T]) InternalNodes() []*Node[T] {
	return g.filterNodes(g.internal)
}

// ExternalNodes returns the external nodes in insertion order.
func (g *Graph[T]) ExternalNodes() []*Node[T] {
	return g.filterNodes(g.external)
}

func (g *Graph[T]) filterNodes(index map[T]*Node[T]) []*Node[T] {
	out := make([]*Node[T], 0, len(index))
	for _, n := range g.nodes {
		if index[n.t] == n {
			out = append(out, n)
		}
	}
	return out
}

// AddNode creates a node for t. internal selects the membership map.
func (g *Graph[T]) AddNode(t T, internal bool) (*Node[T], error) {
	if g.IsInGraph(t) {
		return nil, errors.Wrapf(ErrDuplicateNode, "add node %v", t)
	}
	return g.addNode(t, internal), nil
}

func (g *Graph[T]) addNode(t T, internal bool) *Node[T] {
	n := newNode(t)
	g.nodes = append(g.nodes, n)
	if internal {
		g.internal[t] = n
	} else {
		g.external[t] = n
	}
	return n
}

// FetchNode returns the node wrapping t.
func (g *Graph[T]) FetchNode(t T) (*Node[T], bool) {
	if n, ok := g.internal[t]; ok {
		return n, true
	}
	n, ok := g.external[t]
	return n, ok
}

// FetchOrAddNode returns the node wrapping t, creating it if needed.
func (g *Graph[T]) FetchOrAddNode(t T, internal bool) *Node[T] {
	if n, ok := g.FetchNode(t); ok {
		return n
	}
	return g.addNode(t, internal)
}

// AddEdge connects the nodes of from and to. Both must already be in the graph.
func (g *Graph[T]) AddEdge(from, to T) (*Edge[T], error) {
	fromNode, ok := g.FetchNode(from)
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "add edge: source %v", from)
	}
	toNode, ok := g.FetchNode(to)
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "add edge: destination %v", to)
	}
	e := newEdge(fromNode, toNode)
	g.connect(e)
	return e, nil
}

// CopyAddEdge adds a copy of e (attributes and sub-edges) between this
// graph's nodes for the same elements.
func (g *Graph[T]) CopyAddEdge(e *Edge[T]) (*Edge[T], error) {
	fromNode, ok := g.FetchNode(e.FromT())
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "copy edge: source %v", e.FromT())
	}
	toNode, ok := g.FetchNode(e.ToT())
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "copy edge: destination %v", e.ToT())
	}
	edge := copyEdge(e)
	edge.from, edge.to = fromNode, toNode
	g.connect(edge)
	return edge, nil
}

func (g *Graph[T]) connect(e *Edge[T]) {
	g.edges = append(g.edges, e)
	e.from.addOutgoingEdge(e)
	e.to.addIncomingEdge(e)
}

// contains reports whether n is the node registered for its element.
func (g *Graph[T]) contains(n *Node[T]) bool {
	if n == nil {
		return false
	}
	found, ok := g.FetchNode(n.t)
	return ok && found == n
}

// RemoveEdge detaches e from both endpoints and drops it.
func (g *Graph[T]) RemoveEdge(e *Edge[T]) error {
	if !g.contains(e.from) || !g.contains(e.to) {
		return errors.Wrapf(ErrNodeNotFound, "remove edge %v", e)
	}
	e.from.removeConnectedEdge(e)
	if e.to != e.from {
		e.to.removeConnectedEdge(e)
	}
	g.edges = removeEdge(g.edges, e)
	return nil
}

// RemoveNode drops n and every edge touching it.
func (g *Graph[T]) RemoveNode(n *Node[T]) error {
	if !g.contains(n) {
		return errors.Wrapf(ErrNodeNotFound, "remove node %v", n)
	}
	delete(g.internal, n.t)
	delete(g.external, n.t)
	for i, known := range g.nodes {
		if known == n {
			g.nodes = append(g.nodes[:i:i], g.nodes[i+1:]...)
			break
		}
	}
	if g.entry == n {
		g.entry = nil
	}

	touching := make(map[*Edge[T]]struct{})
	for _, e := range n.AllConnectedEdges() {
		touching[e] = struct{}{}
		if other := e.from; other != n {
			other.removeConnectedNode(n)
		}
		if other := e.to; other != n {
			other.removeConnectedNode(n)
		}
	}
	kept := g.edges[:0:0]
	for _, e := range g.edges {
		if _, ok := touching[e]; !ok {
			kept = append(kept, e)
		}
	}
	g.edges = kept
	return nil
}

// ExtractInto copies the given nodes into dst, keeping each node's
// internal/external membership, and copies only the edges whose endpoints
// are both in the subset. entry, when non-nil, names the entry element.
// dst is left untouched when any node is missing from g or already in dst.
func (g *Graph[T]) ExtractInto(dst *Graph[T], subset []*Node[T], entry *Node[T]) error {
	members := make(map[*Node[T]]struct{}, len(subset))
	for _, n := range subset {
		if !g.contains(n) {
			return errors.Wrapf(ErrNodeNotFound, "extract node %v", n)
		}
		if _, dup := members[n]; dup || dst.IsInGraph(n.t) {
			return errors.Wrapf(ErrDuplicateNode, "extract node %v", n)
		}
		members[n] = struct{}{}
	}

	for _, n := range subset {
		if _, err := dst.AddNode(n.t, g.IsInternal(n.t)); err != nil {
			return err
		}
	}

	for _, n := range subset {
		for _, e := range n.outgoing {
			if _, ok := members[e.to]; !ok {
				continue
			}
			if _, err := dst.CopyAddEdge(e); err != nil {
				return err
			}
		}
	}

	if entry != nil {
		if n, ok := dst.FetchNode(entry.t); ok {
			dst.entry = n
		}
	}
	return nil
}

// TopLevelNodes returns the nodes with no incoming edge from another node.
// When every node has one (the graph is a cycle), it walks backward from the
// first node until a node repeats and returns that node alone.
func (g *Graph[T]) TopLevelNodes() []*Node[T] {
	var top []*Node[T]
	for _, n := range g.nodes {
		noOtherIncoming := true
		for _, e := range n.incoming {
			if e.from != n {
				noOtherIncoming = false
				break
			}
		}
		if noOtherIncoming {
			top = append(top, n)
		}
	}
	if len(top) > 0 || len(g.nodes) == 0 {
		return top
	}

	visited := make(map[*Node[T]]struct{})
	n := g.nodes[0]
	for {
		if _, ok := visited[n]; ok {
			break
		}
		visited[n] = struct{}{}
		for _, e := range n.incoming {
			if e.from == n {
				continue
			}
			n = e.from
			break
		}
	}
	return []*Node[T]{n}
}

// DisconnectedSubgraphs returns the weakly connected components of the
// graph. Each node appears in exactly one component.
func (g *Graph[T]) DisconnectedSubgraphs() [][]*Node[T] {
	var components [][]*Node[T]
	visited := make(map[*Node[T]]struct{}, len(g.nodes))

	for _, start := range g.nodes {
		if _, ok := visited[start]; ok {
			continue
		}

		var component []*Node[T]
		queue := []*Node[T]{start}
		visited[start] = struct{}{}
		visit := func(n *Node[T]) {
			if _, ok := visited[n]; ok {
				return
			}
			visited[n] = struct{}{}
			queue = append(queue, n)
		}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, e := range cur.outgoing {
				visit(e.to)
			}
			for _, e := range cur.incoming {
				visit(e.from)
			}
		}
		components = append(components, component)
	}
	return components
}

// NextDepthNodes returns the distinct successors of n, self excluded.
func (g *Graph[T]) NextDepthNodes(n *Node[T]) []*Node[T] {
	return distinctNeighbors(n, n.outgoing, func(e *Edge[T]) *Node[T] { return e.to })
}

// PreviousDepthNodes returns the distinct predecessors of n, self excluded.
func (g *Graph[T]) PreviousDepthNodes(n *Node[T]) []*Node[T] {
	return distinctNeighbors(n, n.incoming, func(e *Edge[T]) *Node[T] { return e.from })
}

func distinctNeighbors[T comparable](self *Node[T], edges []*Edge[T], pick func(*Edge[T]) *Node[T]) []*Node[T] {
	seen := make(map[*Node[T]]struct{})
	var out []*Node[T]
	for _, e := range edges {
		n := pick(e)
		if n == self {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Clear drops every node and edge.
func (g *Graph[T]) Clear() {
	g.nodes = nil
	g.edges = nil
	g.entry = nil
	g.internal = make(map[T]*Node[T])
	g.external = make(map[T]*Node[T])
}

// String dumps the graph in a human readable form.
func (g *Graph[T]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total nodes: %d\n", len(g.nodes))
	fmt.Fprintf(&sb, "Internal nodes: %d\n", len(g.internal))
	for _, n := range g.InternalNodes() {
		fmt.Fprintf(&sb, "  %v\n", n)
	}
	fmt.Fprintf(&sb, "External nodes: %d\n", len(g.external))
	for _, n := range g.ExternalNodes() {
		fmt.Fprintf(&sb, "  %v\n", n)
	}
	fmt.Fprintf(&sb, "All edges: %d\n", len(g.edges))
	for _, e := range g.edges {
		fmt.Fprintf(&sb, "  %v\n", e)
	}
	return sb.String()
}
