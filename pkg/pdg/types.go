// Package pdg defines the Program Dependence Graph: a dependence graph over
// instructions combining control flow (CFG) and data flow (DFG) facts.
package pdg

import (
	"github.com/pkg/errors"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dg"
)

// ErrUnknownInstruction is returned when a dependence names an instruction
// that the function does not define.
var ErrUnknownInstruction = errors.New("unknown instruction")

// Node and Edge are the PDG specialisations of the generic graph types.
type (
	Node = dg.Node[*cfg.Instruction]
	Edge = dg.Edge[*cfg.Instruction]
)

// PDG is the dependence graph of one function or of a region of it.
// Instructions outside the region that share an edge with it are external
// nodes.
type PDG struct {
	*dg.Graph[*cfg.Instruction]

	// Function is the function the graph was built from, nil for graphs
	// assembled from arbitrary values.
	Function *cfg.CFGInfo
}

func newPDG(f *cfg.CFGInfo) *PDG {
	return &PDG{Graph: dg.New[*cfg.Instruction](), Function: f}
}

// Find returns the instruction with the given id if it is a node of the graph.
func (p *PDG) Find(id string) (*cfg.Instruction, bool) {
	if p == nil {
		return nil, false
	}
	for _, n := range p.Nodes() {
		if n.T().ID == id {
			return n.T(), true
		}
	}
	return nil, false
}

// ordering returns the position of every node, used to report instructions
// in program order.
func (p *PDG) ordering() map[*cfg.Instruction]int {
	order := make(map[*cfg.Instruction]int, p.NumNodes())
	if p.Function != nil {
		for i, inst := range p.Function.Instructions() {
			order[inst] = i
		}
	}
	base := len(order)
	for i, n := range p.Nodes() {
		if _, ok := order[n.T()]; !ok {
			order[n.T()] = base + i
		}
	}
	return order
}
