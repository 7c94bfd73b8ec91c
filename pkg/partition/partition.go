// Package partition groups the SCCs of a condensed dependence graph into
// subsets, one per future pipeline stage. Memory dependences never cross
// subsets and the graph of subsets stays acyclic.
package partition

import (
	"fmt"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

var (
	// ErrSelfMerge is returned when a subset is merged with itself.
	ErrSelfMerge = errors.New("cannot merge a subset with itself")
	// ErrRetiredSubset is returned when an operation names a subset that
	// was merged away or never registered.
	ErrRetiredSubset = errors.New("subset is not live")
	// ErrSCCAlreadyAssigned is returned when an SCC would join a second subset.
	ErrSCCAlreadyAssigned = errors.New("SCC already belongs to a subset")
	// ErrUnknownSCC is returned for SCCs that are not nodes of the partitioned graph.
	ErrUnknownSCC = errors.New("SCC is not part of the graph")
)

// Options configures a Partition.
type Options struct {
	// IdealThreads is the stage count the heuristics aim for.
	IdealThreads int
	// Loops is used to find the loops each subset fully contains. Optional.
	Loops *cfg.LoopInfoSummary
	// Removable selects the SCCs exempt from partitioning. Defaults to
	// SCCs whose every instruction can be cloned and that share no memory
	// dependence with another SCC.
	Removable func(*sccdag.SCC) bool
}

// Partition owns the live subsets of one SCCDAG.
type Partition struct {
	dag          *sccdag.SCCDAG
	loops        *cfg.LoopInfoSummary
	idealThreads int

	subsets   []*Subset
	valid     map[*Subset]struct{}
	fromSCC   map[*sccdag.SCC]*Subset
	removable map[*sccdag.SCC]struct{}
	totalCost int
	nextID    int
}

// New returns an empty partition of dag.
func New(dag *sccdag.SCCDAG, opts Options) *Partition {
	p := &Partition{
		dag:          dag,
		loops:        opts.Loops,
		idealThreads: opts.IdealThreads,
		valid:        make(map[*Subset]struct{}),
		fromSCC:      make(map[*sccdag.SCC]*Subset),
		removable:    make(map[*sccdag.SCC]struct{}),
	}
	isRemovable := opts.Removable
	if isRemovable == nil {
		isRemovable = func(scc *sccdag.SCC) bool {
			return scc.CanBeCloned() && !touchesMemory(dag, scc)
		}
	}
	for _, scc := range dag.SCCs() {
		if isRemovable(scc) {
			p.removable[scc] = struct{}{}
		}
	}
	return p
}

// touchesMemory reports whether a memory dependence links scc to another SCC.
// Cloning such an SCC would carry the dependence across stages.
func touchesMemory(dag *sccdag.SCCDAG, scc *sccdag.SCC) bool {
	n, ok := dag.FetchNode(scc)
	if !ok {
		return false
	}
	for _, e := range n.AllConnectedEdges() {
		if e.IsMemory() {
			return true
		}
	}
	return false
}

// DAG returns the partitioned graph.
func (p *Partition) DAG() *sccdag.SCCDAG { return p.dag }

// Seed creates one subset for every non-removable SCC not yet assigned.
func (p *Partition) Seed() error {
	for _, scc := range p.dag.SCCs() {
		if p.IsRemovable(scc) || p.SubsetOf(scc) != nil {
			continue
		}
		if _, err := p.AddSubset(scc); err != nil {
			return err
		}
	}
	return nil
}

// AddSubset registers a new subset made of sccs.
func (p *Partition) AddSubset(sccs ...*sccdag.SCC) (*Subset, error) {
	if len(sccs) == 0 {
		return nil, errors.New("add subset: no SCCs")
	}
	for _, scc := range sccs {
		if _, ok := p.dag.FetchNode(scc); !ok {
			return nil, errors.Wrapf(ErrUnknownSCC, "add subset: %v", scc)
		}
		if owner := p.SubsetOf(scc); owner != nil {
			return nil, errors.Wrapf(ErrSCCAlreadyAssigned, "add subset: %v is in %v", scc, owner)
		}
	}
	s := newSubset(p.nextID, sccs, p.loops)
	p.nextID++
	p.register(s)
	return s, nil
}

func (p *Partition) register(s *Subset) {
	p.subsets = append(p.subsets, s)
	p.valid[s] = struct{}{}
	p.totalCost += s.cost
	for _, scc := range s.sccs {
		p.fromSCC[scc] = s
	}
}

func (p *Partition) retire(s *Subset) {
	delete(p.valid, s)
	p.totalCost -= s.cost
	for i, live := range p.subsets {
		if live == s {
			p.subsets = append(p.subsets[:i:i], p.subsets[i+1:]...)
			break
		}
	}
}

// MergeSubsets replaces a and b with their union. Cost and contained loops
// of the union are computed from its members.
func (p *Partition) MergeSubsets(a, b *Subset) (*Subset, error) {
	if a == b {
		return nil, errors.Wrapf(ErrSelfMerge, "merge %v", a)
	}
	if !p.IsValidSubset(a) {
		return nil, errors.Wrapf(ErrRetiredSubset, "merge %v", a)
	}
	if !p.IsValidSubset(b) {
		return nil, errors.Wrapf(ErrRetiredSubset, "merge %v", b)
	}

	merged := p.DemoMergeSubsets(a, b)
	p.nextID++
	p.retire(a)
	p.retire(b)
	p.register(merged)
	return merged, nil
}

// DemoMergeSubsets builds the union of a and b without registering it.
func (p *Partition) DemoMergeSubsets(a, b *Subset) *Subset {
	sccs := make([]*sccdag.SCC, 0, len(a.sccs)+len(b.sccs))
	sccs = append(sccs, a.sccs...)
	sccs = append(sccs, b.sccs...)
	return newSubset(p.nextID, sccs, p.loops)
}

// IsValidSubset reports whether s is live in this partition.
func (p *Partition) IsValidSubset(s *Subset) bool {
	_, ok := p.valid[s]
	return ok
}

// SubsetOf returns the live subset holding scc, or nil.
func (p *Partition) SubsetOf(scc *sccdag.SCC) *Subset {
	return p.fromSCC[scc]
}

// IsRemovable reports whether scc is exempt from partitioning.
func (p *Partition) IsRemovable(scc *sccdag.SCC) bool {
	_, ok := p.removable[scc]
	return ok
}

// RemovableSCCs returns the removable SCCs in graph order.
func (p *Partition) RemovableSCCs() []*sccdag.SCC {
	var out []*sccdag.SCC
	for _, scc := range p.dag.SCCs() {
		if p.IsRemovable(scc) {
			out = append(out, scc)
		}
	}
	return out
}

// Subsets returns the live subsets in creation order.
func (p *Partition) Subsets() []*Subset { return append([]*Subset(nil), p.subsets...) }

// NumSubsets returns the number of live subsets.
func (p *Partition) NumSubsets() int { return len(p.subsets) }

// TotalCost is the summed cost of the live subsets.
func (p *Partition) TotalCost() int { return p.totalCost }

// IdealThreadCount returns the stage count the heuristics aim for.
func (p *Partition) IdealThreadCount() int { return p.idealThreads }

// MaxSubsetCost is the per-stage cost ceiling: the total cost spread evenly
// over the ideal thread count.
func (p *Partition) MaxSubsetCost() int {
	if p.idealThreads <= 0 {
		return p.totalCost
	}
	return p.totalCost / p.idealThreads
}

// MergeAlongMemoryEdges merges subsets until no memory dependence crosses
// two of them. Every subset on a dependence path between the two ends of a
// crossing memory edge joins the merge, so the subset graph stays acyclic.
// It returns the number of pairwise merges performed.
func (p *Partition) MergeAlongMemoryEdges() (int, error) {
	merges := 0
	for {
		a, b, ok := p.crossingMemoryEdge()
		if !ok {
			return merges, nil
		}
		group := p.between(a, b)
		merged := group[0]
		for _, s := range group[1:] {
			var err error
			merged, err = p.MergeSubsets(merged, s)
			if err != nil {
				return merges, err
			}
			merges++
		}
	}
}

func (p *Partition) crossingMemoryEdge() (*Subset, *Subset, bool) {
	for _, e := range p.dag.Edges() {
		if !e.IsMemory() {
			continue
		}
		a, b := p.SubsetOf(e.FromT()), p.SubsetOf(e.ToT())
		if a != nil && b != nil && a != b {
			return a, b, true
		}
	}
	return nil, nil, false
}

// between returns a, b and every subset on a path from one to the other,
// ordered by id.
func (p *Partition) between(a, b *Subset) []*Subset {
	group := map[*Subset]struct{}{a: {}, b: {}}
	for _, pair := range [][2]*Subset{{a, b}, {b, a}} {
		desc := p.closure(pair[0], p.GetDependents)
		anc := p.closure(pair[1], p.GetAncestors)
		for s := range desc {
			if _, ok := anc[s]; ok {
				group[s] = struct{}{}
			}
		}
	}
	return sortedSubsets(group)
}

// closure returns every subset reachable from s through step, s excluded.
func (p *Partition) closure(s *Subset, step func(*Subset) []*Subset) map[*Subset]struct{} {
	seen := make(map[*Subset]struct{})
	queue := []*Subset{s}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range step(cur) {
			if next == s {
				continue
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return seen
}

// CanMergeSubsets reports whether fusing a and b keeps the subset graph
// acyclic: no dependence path may leave one of them, cross any other node
// and come back into the other.
func (p *Partition) CanMergeSubsets(a, b *Subset) bool {
	if a == b || !p.IsValidSubset(a) || !p.IsValidSubset(b) {
		return false
	}
	return !p.reachesThroughOthers(a, b) && !p.reachesThroughOthers(b, a)
}

// reachesThroughOthers reports whether a dependence path leaves from,
// enters at least one third subset and ends in to. Unassigned SCCs are
// cloned into every stage that needs them, so they never close a cycle on
// their own.
func (p *Partition) reachesThroughOthers(from, to *Subset) bool {
	seen := map[*Subset]struct{}{from: {}}
	var queue []*Subset
	for _, s := range p.GetDependents(from) {
		if s == to {
			continue
		}
		seen[s] = struct{}{}
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range p.GetDependents(cur) {
			if next == to {
				return true
			}
			if _, ok := seen[next]; ok {
				continue
			}
			seen[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return false
}

// NumEdgesBetween counts the condensed edges from a to b.
func (p *Partition) NumEdgesBetween(a, b *Subset) int {
	count := 0
	for _, n := range p.sccNodes(a) {
		for _, e := range n.OutgoingEdges() {
			if b.Contains(e.ToT()) {
				count++
			}
		}
	}
	return count
}

func (p *Partition) sccNodes(s *Subset) []*sccdag.Node {
	nodes := make([]*sccdag.Node, 0, len(s.sccs))
	for _, scc := range s.sccs {
		if n, ok := p.dag.FetchNode(scc); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Print writes every live subset and the removable SCCs.
func (p *Partition) Print(w io.Writer, prefix string) {
	for _, s := range p.subsets {
		fmt.Fprintf(w, "%sSubset %d (cost %d):\n", prefix, s.id, s.cost)
		printSCCs(w, prefix, s.sccs)
	}
	fmt.Fprintf(w, "%sRemovable nodes:\n", prefix)
	printSCCs(w, prefix, p.RemovableSCCs())
}

func printSCCs(w io.Writer, prefix string, sccs []*sccdag.SCC) {
	for _, scc := range sccs {
		fmt.Fprintf(w, "%s\tInternal nodes of scc%d:\n", prefix, scc.ID())
		for _, inst := range scc.Instructions() {
			fmt.Fprintf(w, "%s\t\t%s\n", prefix, inst)
		}
	}
}

func sortedSubsets(set map[*Subset]struct{}) []*Subset {
	out := make([]*Subset, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
