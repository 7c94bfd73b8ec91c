package dg

import "fmt"

// Node wraps one element of a graph and tracks the edges touching it.
type Node[T comparable] struct {
	t T

	outgoing []*Edge[T]
	incoming []*Edge[T]

	// neighbors maps an adjacent node to the edges connecting it with this one
	neighbors map[*Node[T]][]*Edge[T]

	// One entry per outgoing edge, duplicates included. Iterative algorithms
	// that must walk every edge instance (self references too) use these.
	outNodeInstances []*Node[T]
	outEdgeInstances []*Edge[T]
}

func newNode[T comparable](t T) *Node[T] {
	return &Node[T]{
		t:         t,
		neighbors: make(map[*Node[T]][]*Edge[T]),
	}
}

// T returns the wrapped element.
func (n *Node[T]) T() T { return n.t }

// OutgoingEdges returns the edges leaving the node.
func (n *Node[T]) OutgoingEdges() []*Edge[T] { return append([]*Edge[T](nil), n.outgoing...) }

// IncomingEdges returns the edges entering the node.
func (n *Node[T]) IncomingEdges() []*Edge[T] { return append([]*Edge[T](nil), n.incoming...) }

// AllConnectedEdges returns every edge touching the node once, outgoing first.
func (n *Node[T]) AllConnectedEdges() []*Edge[T] {
	seen := make(map[*Edge[T]]struct{}, len(n.outgoing)+len(n.incoming))
	all := make([]*Edge[T], 0, len(n.outgoing)+len(n.incoming))
	for _, list := range [][]*Edge[T]{n.outgoing, n.incoming} {
		for _, e := range list {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			all = append(all, e)
		}
	}
	return all
}

func (n *Node[T]) NumOutgoingEdges() int  { return len(n.outgoing) }
func (n *Node[T]) NumIncomingEdges() int  { return len(n.incoming) }
func (n *Node[T]) NumConnectedEdges() int { return len(n.AllConnectedEdges()) }

// EdgesToAndFrom returns the edges between n and other, in either direction.
func (n *Node[T]) EdgesToAndFrom(other *Node[T]) []*Edge[T] {
	return append([]*Edge[T](nil), n.neighbors[other]...)
}

// OutgoingNodeInstances returns one destination per outgoing edge instance.
func (n *Node[T]) OutgoingNodeInstances() []*Node[T] {
	return append([]*Node[T](nil), n.outNodeInstances...)
}

// EdgeInstance returns the outgoing edge at position i of the instance list.
func (n *Node[T]) EdgeInstance(i int) *Edge[T] { return n.outEdgeInstances[i] }

func (n *Node[T]) addOutgoingEdge(e *Edge[T]) {
	n.outgoing = append(n.outgoing, e)
	n.outNodeInstances = append(n.outNodeInstances, e.to)
	n.outEdgeInstances = append(n.outEdgeInstances, e)
	n.addNeighborEdge(e.to, e)
}

func (n *Node[T]) addIncomingEdge(e *Edge[T]) {
	n.incoming = append(n.incoming, e)
	n.addNeighborEdge(e.from, e)
}

func (n *Node[T]) addNeighborEdge(other *Node[T], e *Edge[T]) {
	for _, known := range n.neighbors[other] {
		if known == e {
			return
		}
	}
	n.neighbors[other] = append(n.neighbors[other], e)
}

// removeConnectedEdge detaches a single edge from the node.
func (n *Node[T]) removeConnectedEdge(e *Edge[T]) {
	if e.from == n {
		n.outgoing = removeEdge(n.outgoing, e)
		n.removeInstance(e)
		n.dropNeighborEdge(e.to, e)
	}
	if e.to == n {
		n.incoming = removeEdge(n.incoming, e)
		n.dropNeighborEdge(e.from, e)
	}
}

// removeConnectedNode detaches every edge shared with other.
func (n *Node[T]) removeConnectedNode(other *Node[T]) {
	for _, e := range n.neighbors[other] {
		n.outgoing = removeEdge(n.outgoing, e)
		n.incoming = removeEdge(n.incoming, e)
	}
	delete(n.neighbors, other)
	n.removeInstances(other)
}

func (n *Node[T]) dropNeighborEdge(other *Node[T], e *Edge[T]) {
	edges := removeEdge(n.neighbors[other], e)
	if len(edges) == 0 {
		delete(n.neighbors, other)
		return
	}
	n.neighbors[other] = edges
}

func (n *Node[T]) removeInstance(e *Edge[T]) {
	for i, inst := range n.outEdgeInstances {
		if inst != e {
			continue
		}
		n.outEdgeInstances = append(n.outEdgeInstances[:i], n.outEdgeInstances[i+1:]...)
		n.outNodeInstances = append(n.outNodeInstances[:i], n.outNodeInstances[i+1:]...)
		return
	}
}

func (n *Node[T]) removeInstances(other *Node[T]) {
	for i := len(n.outNodeInstances) - 1; i >= 0; i-- {
		if n.outNodeInstances[i] != other {
			continue
		}
		n.outNodeInstances = append(n.outNodeInstances[:i], n.outNodeInstances[i+1:]...)
		n.outEdgeInstances = append(n.outEdgeInstances[:i], n.outEdgeInstances[i+1:]...)
	}
}

func (n *Node[T]) String() string {
	return fmt.Sprintf("%v", n.t)
}

func removeEdge[T comparable](edges []*Edge[T], e *Edge[T]) []*Edge[T] {
	for i, known := range edges {
		if known == e {
			return append(edges[:i:i], edges[i+1:]...)
		}
	}
	return edges
}
