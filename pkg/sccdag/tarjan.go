package sccdag

import (
	"sort"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dg"
)

type pdgNode = dg.Node[*cfg.Instruction]

// components returns the strongly connected components of the internal
// nodes of g in topological order. Edges leaving the internal node set are
// ignored.
//
// This is Tarjan's algorithm as presented by Sedgewick, with "pre" folded
// into "low": low[n] == 0 means unvisited and ^uint(0) means the node
// already belongs to a component.
func components(g *dg.Graph[*cfg.Instruction]) [][]*pdgNode {
	nodes := g.InternalNodes()
	index := make(map[*pdgNode]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	low := make([]uint, len(nodes))
	var stack []int
	next := uint(1)
	var sccs [][]*pdgNode

	var connect func(nid int)
	connect = func(nid int) {
		low[nid] = next
		min := next
		next++
		stack = append(stack, nid)

		for _, e := range nodes[nid].OutgoingEdges() {
			oid, ok := index[e.To()]
			if !ok {
				continue
			}
			if low[oid] == 0 {
				connect(oid)
			}
			if low[oid] < min {
				min = low[oid]
			}
		}

		if min < low[nid] {
			low[nid] = min
			return
		}

		var i int
		for i = len(stack) - 1; i >= 0; i-- {
			low[stack[i]] = ^uint(0)
			if stack[i] == nid {
				break
			}
		}
		members := make([]*pdgNode, 0, len(stack)-i)
		for _, id := range stack[i:] {
			members = append(members, nodes[id])
		}
		sort.Slice(members, func(a, b int) bool { return index[members[a]] < index[members[b]] })
		sccs = append(sccs, members)
		stack = stack[:i]
	}

	for nid := range nodes {
		if low[nid] == 0 {
			connect(nid)
		}
	}

	return topoOrder(sccs, index)
}

// topoOrder lists components sources first. Among components ready at the
// same time, the one holding the earliest node comes first.
func topoOrder(sccs [][]*pdgNode, index map[*pdgNode]int) [][]*pdgNode {
	comp := make(map[*pdgNode]int, len(index))
	for c, members := range sccs {
		for _, m := range members {
			comp[m] = c
		}
	}

	succs := make([]map[int]struct{}, len(sccs))
	indegree := make([]int, len(sccs))
	for c, members := range sccs {
		succs[c] = make(map[int]struct{})
		for _, m := range members {
			for _, e := range m.OutgoingEdges() {
				d, ok := comp[e.To()]
				if !ok || d == c {
					continue
				}
				if _, dup := succs[c][d]; !dup {
					succs[c][d] = struct{}{}
					indegree[d]++
				}
			}
		}
	}

	first := func(c int) int { return index[sccs[c][0]] }
	var ready []int
	insert := func(c int) {
		i := sort.Search(len(ready), func(i int) bool { return first(ready[i]) > first(c) })
		ready = append(ready, 0)
		copy(ready[i+1:], ready[i:])
		ready[i] = c
	}
	for c := range sccs {
		if indegree[c] == 0 {
			insert(c)
		}
	}

	ordered := make([][]*pdgNode, 0, len(sccs))
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		ordered = append(ordered, sccs[c])
		for d := range succs[c] {
			indegree[d]--
			if indegree[d] == 0 {
				insert(d)
			}
		}
	}
	return ordered
}
