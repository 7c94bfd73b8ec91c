package pdg

import (
	"container/list"
	"sort"

	"github.com/l3aro/go-dswp/pkg/cfg"
)

// EdgeFilter selects the edges a slice may follow. A nil filter follows all.
type EdgeFilter func(*Edge) bool

// Common edge filters.
var (
	DataOnly    EdgeFilter = func(e *Edge) bool { return !e.IsControl() }
	ControlOnly EdgeFilter = func(e *Edge) bool { return e.IsControl() }
	MemoryOnly  EdgeFilter = func(e *Edge) bool { return e.IsMemory() }
)

// DependencyInfo contains the control and data edges touching one instruction.
type DependencyInfo struct {
	ControlIn  []*Edge // Control dependences on this instruction's execution
	ControlOut []*Edge // Instructions whose execution this one controls
	DataIn     []*Edge // Values and memory this instruction reads
	DataOut    []*Edge // Consumers of this instruction
}

// BackwardSlice returns every instruction the start instruction depends on,
// itself included, in program order.
func BackwardSlice(p *PDG, start *cfg.Instruction, filter EdgeFilter) []*cfg.Instruction {
	return slice(p, start, filter, func(n *Node) []*Edge { return n.IncomingEdges() }, func(e *Edge) *Node { return e.From() })
}

// ForwardSlice returns every instruction depending on the start
// instruction, itself included, in program order.
func ForwardSlice(p *PDG, start *cfg.Instruction, filter EdgeFilter) []*cfg.Instruction {
	return slice(p, start, filter, func(n *Node) []*Edge { return n.OutgoingEdges() }, func(e *Edge) *Node { return e.To() })
}

func slice(p *PDG, start *cfg.Instruction, filter EdgeFilter, edges func(*Node) []*Edge, next func(*Edge) *Node) []*cfg.Instruction {
	if p == nil {
		return nil
	}
	startNode, ok := p.FetchNode(start)
	if !ok {
		return nil
	}

	// BFS with visited set to avoid infinite loops
	visited := map[*Node]bool{startNode: true}
	queue := list.New()
	queue.PushBack(startNode)

	var result []*cfg.Instruction
	for queue.Len() > 0 {
		current := queue.Remove(queue.Front()).(*Node)
		result = append(result, current.T())

		for _, e := range edges(current) {
			if filter != nil && !filter(e) {
				continue
			}
			n := next(e)
			if visited[n] {
				continue
			}
			visited[n] = true
			queue.PushBack(n)
		}
	}

	order := p.ordering()
	sort.SliceStable(result, func(i, j int) bool { return order[result[i]] < order[result[j]] })
	return result
}

// GetDependencies returns the edges touching inst, split by kind and direction.
func GetDependencies(p *PDG, inst *cfg.Instruction) DependencyInfo {
	if p == nil {
		return DependencyInfo{}
	}
	n, ok := p.FetchNode(inst)
	if !ok {
		return DependencyInfo{}
	}

	var info DependencyInfo
	for _, e := range n.IncomingEdges() {
		if e.IsControl() {
			info.ControlIn = append(info.ControlIn, e)
		} else {
			info.DataIn = append(info.DataIn, e)
		}
	}
	for _, e := range n.OutgoingEdges() {
		if e.IsControl() {
			info.ControlOut = append(info.ControlOut, e)
		} else {
			info.DataOut = append(info.DataOut, e)
		}
	}
	return info
}
