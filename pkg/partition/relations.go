package partition

import (
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

// GetDependents returns the nearest subsets depending on s. The walk
// passes through s itself and through unassigned SCCs, and stops at the
// first SCC of any other subset.
func (p *Partition) GetDependents(s *Subset) []*Subset {
	return p.related(p.sccNodes(s), s, p.dag.NextDepthNodes)
}

// GetAncestors returns the nearest subsets s depends on.
func (p *Partition) GetAncestors(s *Subset) []*Subset {
	return p.related(p.sccNodes(s), s, p.dag.PreviousDepthNodes)
}

// GetCousins returns the subsets sharing an ancestor with s, other than s.
func (p *Partition) GetCousins(s *Subset) []*Subset {
	cousins := make(map[*Subset]struct{})
	for _, ancestor := range p.GetAncestors(s) {
		for _, other := range p.GetDependents(ancestor) {
			if other == s {
				continue
			}
			cousins[other] = struct{}{}
		}
	}
	return sortedSubsets(cousins)
}

// TopLevelSubsets returns the subsets without ancestors. When every
// top-level SCC is unassigned, the nearest subsets below them are used.
func (p *Partition) TopLevelSubsets() []*Subset {
	topNodes := p.dag.TopLevelNodes()

	candidates := make(map[*Subset]struct{})
	for _, n := range topNodes {
		if s := p.SubsetOf(n.T()); s != nil {
			candidates[s] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		for _, s := range p.related(topNodes, nil, p.dag.NextDepthNodes) {
			candidates[s] = struct{}{}
		}
	}

	roots := make(map[*Subset]struct{})
	for s := range candidates {
		if len(p.GetAncestors(s)) == 0 {
			roots[s] = struct{}{}
		}
	}
	return sortedSubsets(roots)
}

// NextLevelSubsets returns the dependents of s none of whose ancestors is
// itself a dependent of s.
func (p *Partition) NextLevelSubsets(s *Subset) []*Subset {
	deps := p.GetDependents(s)
	depSet := make(map[*Subset]struct{}, len(deps))
	for _, d := range deps {
		depSet[d] = struct{}{}
	}

	next := make(map[*Subset]struct{})
	for _, d := range deps {
		direct := true
		for _, prev := range p.GetAncestors(d) {
			if _, ok := depSet[prev]; ok {
				direct = false
				break
			}
		}
		if direct {
			next[d] = struct{}{}
		}
	}
	return sortedSubsets(next)
}

// related walks from start with step, treating SCCs of self and unassigned
// SCCs as transparent, and collects the first other subsets met.
func (p *Partition) related(start []*sccdag.Node, self *Subset, step func(*sccdag.Node) []*sccdag.Node) []*Subset {
	found := make(map[*Subset]struct{})
	visited := make(map[*sccdag.Node]struct{}, len(start))
	queue := append([]*sccdag.Node(nil), start...)
	for _, n := range start {
		visited[n] = struct{}{}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if s := p.SubsetOf(n.T()); s != nil && s != self {
			found[s] = struct{}{}
			continue
		}
		for _, next := range step(n) {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return sortedSubsets(found)
}
