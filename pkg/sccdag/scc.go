// Package sccdag condenses a program dependence graph into its strongly
// connected components. Each component (SCC) keeps the dependence subgraph
// of its instructions; the condensed graph (SCCDAG) has one node per SCC
// and one summary edge per ordered pair of dependent SCCs, whose sub-edges
// are the original instruction dependences.
package sccdag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dg"
)

// SCC is a strongly connected set of instructions together with the
// dependences among them.
type SCC struct {
	*dg.Graph[*cfg.Instruction]

	id int
}

// ID is unique within the SCCDAG that created the SCC.
func (s *SCC) ID() int { return s.id }

// Instructions returns the member instructions in insertion order.
func (s *SCC) Instructions() []*cfg.Instruction {
	nodes := s.InternalNodes()
	out := make([]*cfg.Instruction, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.T())
	}
	return out
}

// HasCycle reports whether the SCC carries a dependence cycle: more than
// one instruction, or one instruction depending on itself.
func (s *SCC) HasCycle() bool {
	if s.NumInternalNodes() > 1 {
		return true
	}
	return s.NumEdges() > 0
}

// Cost sums the cost of the member instructions.
func (s *SCC) Cost() int {
	total := 0
	for _, inst := range s.Instructions() {
		total += inst.Cost
	}
	return total
}

// Blocks returns the sorted ids of the basic blocks the SCC touches.
func (s *SCC) Blocks() []string {
	set := make(map[string]struct{})
	for _, inst := range s.Instructions() {
		if inst.Block != "" {
			set[inst.Block] = struct{}{}
		}
	}
	blocks := make([]string, 0, len(set))
	for b := range set {
		blocks = append(blocks, b)
	}
	sort.Strings(blocks)
	return blocks
}

// CanBeCloned reports whether every instruction may be duplicated into
// each stage that needs it.
func (s *SCC) CanBeCloned() bool {
	insts := s.Instructions()
	if len(insts) == 0 {
		return false
	}
	for _, inst := range insts {
		if !inst.Clonable {
			return false
		}
	}
	return true
}

// Contains reports whether inst is a member of the SCC.
func (s *SCC) Contains(inst *cfg.Instruction) bool { return s.IsInternal(inst) }

func (s *SCC) String() string {
	ids := make([]string, 0, s.NumInternalNodes())
	for _, inst := range s.Instructions() {
		ids = append(ids, inst.ID)
	}
	return fmt.Sprintf("scc%d{%s}", s.id, strings.Join(ids, ","))
}
