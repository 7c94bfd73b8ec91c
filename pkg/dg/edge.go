package dg

import (
	"fmt"
	"strings"
)

// Attrs holds the dependence attributes carried by an edge.
type Attrs struct {
	Memory  bool `json:"memory" msgpack:"memory"`   // dependence flows through memory
	Must    bool `json:"must" msgpack:"must"`       // dependence is certain (may otherwise)
	RAW     bool `json:"raw" msgpack:"raw"`         // read after write
	WAW     bool `json:"waw" msgpack:"waw"`         // write after write
	Control bool `json:"control" msgpack:"control"` // control rather than data dependence
}

// May reports whether the dependence is only possible, not certain.
func (a Attrs) May() bool { return !a.Must }

// Data reports whether the dependence carries a value.
func (a Attrs) Data() bool { return !a.Control }

// union folds b into a. Every flag is OR-ed so a summary never hides a
// memory or control dependence carried by one of its parts.
func (a Attrs) union(b Attrs) Attrs {
	return Attrs{
		Memory:  a.Memory || b.Memory,
		Must:    a.Must || b.Must,
		RAW:     a.RAW || b.RAW,
		WAW:     a.WAW || b.WAW,
		Control: a.Control || b.Control,
	}
}

// String renders the attributes in a compact form (e.g. "RAW (must) memory").
func (a Attrs) String() string {
	if a.Control && !a.Memory {
		return "CTRL"
	}
	var parts []string
	switch {
	case a.RAW && a.WAW:
		parts = append(parts, "RAW+WAW")
	case a.RAW:
		parts = append(parts, "RAW")
	case a.WAW:
		parts = append(parts, "WAW")
	}
	if a.Must {
		parts = append(parts, "(must)")
	} else {
		parts = append(parts, "(may)")
	}
	if a.Memory {
		parts = append(parts, "memory")
	}
	if a.Control {
		parts = append(parts, "+ctrl")
	}
	return strings.Join(parts, " ")
}

// SubEdge is an underlying dependence folded into a summary edge. Any *Edge
// satisfies it, whatever its element type.
type SubEdge interface {
	Attributes() Attrs
}

// Edge is a directed dependence between two nodes of the same graph.
type Edge[T comparable] struct {
	from  *Node[T]
	to    *Node[T]
	attrs Attrs

	// subEdges keeps insertion order, subSet deduplicates
	subEdges []SubEdge
	subSet   map[SubEdge]struct{}
}

func newEdge[T comparable](from, to *Node[T]) *Edge[T] {
	return &Edge[T]{from: from, to: to}
}

// copyEdge clones attributes and sub-edges of old; endpoints are set by the caller.
func copyEdge[T comparable](old *Edge[T]) *Edge[T] {
	e := &Edge[T]{attrs: old.attrs}
	for _, sub := range old.subEdges {
		e.addSub(sub)
	}
	return e
}

// From returns the source node.
func (e *Edge[T]) From() *Node[T] { return e.from }

// To returns the destination node.
func (e *Edge[T]) To() *Node[T] { return e.to }

// FromT returns the element wrapped by the source node.
func (e *Edge[T]) FromT() T { return e.from.t }

// ToT returns the element wrapped by the destination node.
func (e *Edge[T]) ToT() T { return e.to.t }

// Attributes returns the dependence attributes of the edge.
func (e *Edge[T]) Attributes() Attrs { return e.attrs }

func (e *Edge[T]) IsMemory() bool  { return e.attrs.Memory }
func (e *Edge[T]) IsMust() bool    { return e.attrs.Must }
func (e *Edge[T]) IsMay() bool     { return !e.attrs.Must }
func (e *Edge[T]) IsRAW() bool     { return e.attrs.RAW }
func (e *Edge[T]) IsWAW() bool     { return e.attrs.WAW }
func (e *Edge[T]) IsControl() bool { return e.attrs.Control }

// SetControl marks the edge as a control dependence.
func (e *Edge[T]) SetControl(ctrl bool) { e.attrs.Control = ctrl }

// SetMemMustRAW sets the data dependence attributes. RAW and WAW are
// exclusive for memory dependences; a register dependence is always RAW.
func (e *Edge[T]) SetMemMustRAW(mem, must, raw bool) {
	e.attrs.Memory = mem
	e.attrs.Must = must
	e.attrs.RAW = raw || !mem
	e.attrs.WAW = mem && !raw
}

// SetAttributes replaces all attributes at once.
func (e *Edge[T]) SetAttributes(a Attrs) { e.attrs = a }

// AddSubEdge folds sub into this edge. Adding the same sub-edge twice is a no-op.
func (e *Edge[T]) AddSubEdge(sub SubEdge) {
	if e.addSub(sub) {
		e.attrs = e.attrs.union(sub.Attributes())
	}
}

func (e *Edge[T]) addSub(sub SubEdge) bool {
	if e.subSet == nil {
		e.subSet = make(map[SubEdge]struct{})
	}
	if _, ok := e.subSet[sub]; ok {
		return false
	}
	e.subSet[sub] = struct{}{}
	e.subEdges = append(e.subEdges, sub)
	return true
}

// RemoveSubEdge drops sub and recomputes the summary attributes from the
// remaining sub-edges.
func (e *Edge[T]) RemoveSubEdge(sub SubEdge) {
	if _, ok := e.subSet[sub]; !ok {
		return
	}
	delete(e.subSet, sub)
	for i, s := range e.subEdges {
		if s == sub {
			e.subEdges = append(e.subEdges[:i], e.subEdges[i+1:]...)
			break
		}
	}
	e.attrs = Attrs{}
	for _, s := range e.subEdges {
		e.attrs = e.attrs.union(s.Attributes())
	}
}

// ClearSubEdges drops every sub-edge but keeps the current attributes.
func (e *Edge[T]) ClearSubEdges() {
	e.subEdges = nil
	e.subSet = nil
}

// SubEdges returns the folded sub-edges in insertion order.
func (e *Edge[T]) SubEdges() []SubEdge {
	out := make([]SubEdge, len(e.subEdges))
	copy(out, e.subEdges)
	return out
}

// NumSubEdges returns the number of folded sub-edges.
func (e *Edge[T]) NumSubEdges() int { return len(e.subEdges) }

func (e *Edge[T]) String() string {
	return fmt.Sprintf("%v -> %v [%s]", e.from.t, e.to.t, e.attrs)
}
