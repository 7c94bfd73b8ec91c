package sccdag

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dg"
	"github.com/l3aro/go-dswp/pkg/pdg"
)

// Node and Edge are the condensed graph specialisations of the generic
// graph types.
type (
	Node = dg.Node[*SCC]
	Edge = dg.Edge[*SCC]
)

// SCCDAG is the condensed graph of a PDG. It is acyclic right after
// construction; MergeSCCs callers are responsible for keeping it so.
type SCCDAG struct {
	*dg.Graph[*SCC]

	pdg    *pdg.PDG
	owner  map[*cfg.Instruction]*Node
	nextID int
}

// CreateSCCDAGFrom condenses the internal nodes of p. External nodes and
// the edges reaching them are left out.
func CreateSCCDAGFrom(p *pdg.PDG) (*SCCDAG, error) {
	d := &SCCDAG{
		Graph: dg.New[*SCC](),
		pdg:   p,
		owner: make(map[*cfg.Instruction]*Node),
	}

	for _, members := range components(p.Graph) {
		if _, err := d.addSCC(members); err != nil {
			return nil, err
		}
	}

	for _, e := range p.Edges() {
		if err := d.fold(e); err != nil {
			return nil, err
		}
	}

	if top := d.TopLevelNodes(); len(top) > 0 {
		d.SetEntryNode(top[0])
	}
	return d, nil
}

// PDG returns the graph the SCCDAG condenses.
func (d *SCCDAG) PDG() *pdg.PDG { return d.pdg }

func (d *SCCDAG) addSCC(members []*pdgNode) (*Node, error) {
	scc := &SCC{Graph: dg.New[*cfg.Instruction](), id: d.nextID}
	d.nextID++
	if err := d.pdg.ExtractInto(scc.Graph, members, nil); err != nil {
		return nil, err
	}
	if len(members) > 0 {
		n, _ := scc.FetchNode(members[0].T())
		scc.SetEntryNode(n)
	}

	node, err := d.AddNode(scc, true)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		d.owner[m.T()] = node
	}
	return node, nil
}

// fold records the instruction edge e on the summary edge between the SCCs
// owning its endpoints, creating that summary edge on first use. Edges
// inside one SCC and edges leaving the condensed scope are skipped.
func (d *SCCDAG) fold(e *pdg.Edge) error {
	from, ok := d.owner[e.FromT()]
	if !ok {
		return nil
	}
	to, ok := d.owner[e.ToT()]
	if !ok || from == to {
		return nil
	}

	summary := summaryEdge(from, to)
	if summary == nil {
		var err error
		summary, err = d.AddEdge(from.T(), to.T())
		if err != nil {
			return err
		}
	}
	summary.AddSubEdge(e)
	return nil
}

func summaryEdge(from, to *Node) *Edge {
	for _, e := range from.EdgesToAndFrom(to) {
		if e.From() == from && e.To() == to {
			return e
		}
	}
	return nil
}

// SCCOf returns the SCC holding inst.
func (d *SCCDAG) SCCOf(inst *cfg.Instruction) (*SCC, bool) {
	n, ok := d.owner[inst]
	if !ok {
		return nil, false
	}
	return n.T(), true
}

// NodeOf returns the condensed node holding inst.
func (d *SCCDAG) NodeOf(inst *cfg.Instruction) (*Node, bool) {
	n, ok := d.owner[inst]
	return n, ok
}

// SCCs returns the SCCs in node order.
func (d *SCCDAG) SCCs() []*SCC {
	nodes := d.InternalNodes()
	out := make([]*SCC, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.T())
	}
	return out
}

// MergeSCCs fuses the given nodes into a single SCC node. Summary edges of
// the fused SCC are rebuilt from the instruction dependences. The caller
// must not merge nodes whose fusion closes a cycle through a node left out.
func (d *SCCDAG) MergeSCCs(nodes []*Node) (*Node, error) {
	if len(nodes) == 0 {
		return nil, errors.New("merge SCCs: no nodes")
	}
	seen := make(map[*Node]struct{}, len(nodes))
	var members []*pdgNode
	for _, n := range nodes {
		if _, ok := d.FetchNode(n.T()); !ok {
			return nil, errors.Wrapf(dg.ErrNodeNotFound, "merge SCCs: %v", n.T())
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		for _, inst := range n.T().Instructions() {
			m, ok := d.pdg.FetchNode(inst)
			if !ok {
				return nil, errors.Wrapf(dg.ErrNodeNotFound, "merge SCCs: instruction %s", inst)
			}
			members = append(members, m)
		}
	}
	if len(seen) == 1 {
		return nodes[0], nil
	}

	order := make(map[*pdgNode]int, d.pdg.NumNodes())
	for i, n := range d.pdg.Nodes() {
		order[n] = i
	}
	sort.Slice(members, func(i, j int) bool { return order[members[i]] < order[members[j]] })

	merged, err := d.addSCC(members)
	if err != nil {
		return nil, err
	}
	for n := range seen {
		if err := d.RemoveNode(n); err != nil {
			return nil, err
		}
	}

	for _, m := range members {
		for _, e := range m.AllConnectedEdges() {
			if err := d.fold(e); err != nil {
				return nil, err
			}
		}
	}

	if top := d.TopLevelNodes(); len(top) > 0 {
		d.SetEntryNode(top[0])
	}
	return merged, nil
}

// IsAcyclic reports whether the condensed graph has no cycle between
// distinct nodes.
func (d *SCCDAG) IsAcyclic() bool {
	indegree := make(map[*Node]int, d.NumNodes())
	for _, n := range d.Nodes() {
		indegree[n] += 0
		for _, next := range d.NextDepthNodes(n) {
			indegree[next]++
		}
	}
	var ready []*Node
	for _, n := range d.Nodes() {
		if indegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	visited := 0
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		visited++
		for _, next := range d.NextDepthNodes(n) {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	return visited == d.NumNodes()
}
