package sccdag

import (
	"github.com/l3aro/go-dswp/pkg/cfg"
)

// Normalizer fuses SCCs too small to deserve their own stage into a
// neighbour, so partitioning starts from meaningful units.
type Normalizer struct {
	dag *SCCDAG
}

// NewNormalizer returns a Normalizer for d.
func NewNormalizer(d *SCCDAG) *Normalizer {
	return &Normalizer{dag: d}
}

// Normalize runs every normalization and returns the number of SCCs removed.
func (z *Normalizer) Normalize() (int, error) {
	before := z.dag.NumNodes()
	if err := z.MergeSingleSyntacticSugarInstrs(); err != nil {
		return 0, err
	}
	if err := z.MergeBranchesWithoutOutgoingEdges(); err != nil {
		return 0, err
	}
	return before - z.dag.NumNodes(), nil
}

// MergeSingleSyntacticSugarInstrs fuses every SCC made of one phi, cast or
// address instruction with its only neighbouring SCC.
func (z *Normalizer) MergeSingleSyntacticSugarInstrs() error {
	uf := newUnionFind[*Node]()
	for _, n := range z.dag.Nodes() {
		insts := n.T().Instructions()
		if len(insts) != 1 || !insts[0].Kind.IsSyntacticSugar() {
			continue
		}
		neighbors := z.neighbors(n)
		if len(neighbors) != 1 {
			continue
		}
		uf.union(n, neighbors[0])
	}
	return z.mergeGroups(uf)
}

// MergeBranchesWithoutOutgoingEdges fuses every SCC made only of compares
// and branches, with no dependents and a single predecessor, into that
// predecessor.
func (z *Normalizer) MergeBranchesWithoutOutgoingEdges() error {
	uf := newUnionFind[*Node]()
	for _, n := range z.dag.Nodes() {
		if len(z.dag.NextDepthNodes(n)) > 0 || !onlyControlFlow(n.T()) {
			continue
		}
		preds := z.dag.PreviousDepthNodes(n)
		if len(preds) != 1 {
			continue
		}
		uf.union(preds[0], n)
	}
	return z.mergeGroups(uf)
}

func (z *Normalizer) neighbors(n *Node) []*Node {
	out := z.dag.NextDepthNodes(n)
	for _, p := range z.dag.PreviousDepthNodes(n) {
		dup := false
		for _, o := range out {
			if o == p {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, p)
		}
	}
	return out
}

func (z *Normalizer) mergeGroups(uf *unionFind[*Node]) error {
	for _, group := range uf.groups() {
		if _, err := z.dag.MergeSCCs(group); err != nil {
			return err
		}
	}
	return nil
}

func onlyControlFlow(s *SCC) bool {
	insts := s.Instructions()
	if len(insts) == 0 {
		return false
	}
	for _, inst := range insts {
		if inst.Kind != cfg.KindCompare && !inst.Kind.IsTerminator() {
			return false
		}
	}
	return true
}
