package pdg

import (
	"github.com/pkg/errors"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dfg"
	"github.com/l3aro/go-dswp/pkg/dg"
)

// PDGBuilder builds a Program Dependence Graph by merging CFG and DFG information.
type PDGBuilder struct {
	cfg *cfg.CFGInfo
	dfg *dfg.DFGInfo

	deriveControl bool
	deriveMemory  bool
}

// NewPDGBuilder creates a new PDGBuilder with the given CFG and DFG information.
func NewPDGBuilder(cfgInfo *cfg.CFGInfo, dfgInfo *dfg.DFGInfo) *PDGBuilder {
	return &PDGBuilder{
		cfg: cfgInfo,
		dfg: dfgInfo,
	}
}

// WithControlDerivation makes Build compute control dependences from
// post-dominance when the DFG carries none.
func (b *PDGBuilder) WithControlDerivation(enabled bool) *PDGBuilder {
	b.deriveControl = enabled
	return b
}

// WithMemoryDerivation makes Build add memory dependences found by a
// reaching-stores analysis over located loads and stores.
func (b *PDGBuilder) WithMemoryDerivation(enabled bool) *PDGBuilder {
	b.deriveMemory = enabled
	return b
}

// Build constructs the PDG: one internal node per instruction, then data
// and memory edges from the DFG, then control edges.
func (b *PDGBuilder) Build() (*PDG, error) {
	if b.cfg == nil {
		return newPDG(nil), nil
	}

	p := newPDG(b.cfg)

	// Step 1: One node per instruction
	for _, inst := range b.cfg.Instructions() {
		if _, err := p.AddNode(inst, true); err != nil {
			return nil, err
		}
	}
	if entry, ok := b.cfg.Block(b.cfg.EntryBlockID); ok && len(entry.Instructions) > 0 {
		n, _ := p.FetchNode(entry.Instructions[0])
		p.SetEntryNode(n)
	}

	// Step 2: Dependences supplied upstream
	var deps []dfg.Dependence
	if b.dfg != nil {
		deps = append(deps, b.dfg.Dependences...)
	}

	// Step 3: Memory dependences derived from located accesses
	if b.deriveMemory {
		deps = append(deps, dfg.NewReachingStoresAnalyzer().ComputeMemoryDependences(b.cfg)...)
	}

	for _, dep := range deps {
		if err := b.addDependence(p, dep); err != nil {
			return nil, err
		}
	}

	// Step 4: Control dependences from post-dominance
	if b.deriveControl && !b.dfg.HasControl() {
		if err := b.addControlEdges(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (b *PDGBuilder) addDependence(p *PDG, dep dfg.Dependence) error {
	from, ok := b.cfg.Instruction(dep.From)
	if !ok {
		return errors.Wrapf(ErrUnknownInstruction, "dependence %s: source %q", dep, dep.From)
	}
	to, ok := b.cfg.Instruction(dep.To)
	if !ok {
		return errors.Wrapf(ErrUnknownInstruction, "dependence %s: destination %q", dep, dep.To)
	}

	e, err := p.AddEdge(from, to)
	if err != nil {
		return err
	}
	if dep.Control {
		e.SetControl(true)
		return nil
	}
	e.SetMemMustRAW(dep.Memory, dep.Must, dep.RAW)
	return nil
}

// addControlEdges adds an edge from the terminator of P to every
// instruction of B whenever B post-dominates a successor D of P without
// strictly post-dominating P itself.
func (b *PDGBuilder) addControlEdges(p *PDG) error {
	pdt := cfg.NewPostDomTree(b.cfg)

	type pair struct{ from, to *cfg.Instruction }
	seen := make(map[pair]struct{})

	for _, block := range b.cfg.Blocks {
		for _, dID := range pdt.Descendants(block.ID) {
			d, _ := b.cfg.Block(dID)
			for _, predID := range d.Predecessors {
				if pdt.ProperlyDominates(block.ID, predID) {
					continue
				}
				pred, _ := b.cfg.Block(predID)
				term := pred.Terminator()
				if term == nil {
					continue
				}
				for _, inst := range block.Instructions {
					key := pair{term, inst}
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}

					e, err := p.AddEdge(term, inst)
					if err != nil {
						return err
					}
					e.SetControl(true)
				}
			}
		}
	}
	return nil
}

// FunctionSubgraph returns the graph restricted to the instructions of f.
// Edges to instructions of other functions are dropped.
func (p *PDG) FunctionSubgraph(f *cfg.CFGInfo) (*PDG, error) {
	var values []*cfg.Instruction
	for _, inst := range f.Instructions() {
		if p.IsInGraph(inst) {
			values = append(values, inst)
		}
	}
	sub, err := p.SubgraphFromValues(values, false)
	if err != nil {
		return nil, err
	}
	sub.Function = f
	return sub, nil
}

// LoopsSubgraph returns the graph of the instructions inside loop. Every
// instruction outside the loop that shares an edge with it becomes an
// external node.
func (p *PDG) LoopsSubgraph(loop *cfg.LoopSummary) (*PDG, error) {
	if p.Function == nil {
		return nil, errors.Errorf("loop %s: graph is not bound to a function", loop)
	}

	var values []*cfg.Instruction
	for _, block := range p.Function.Blocks {
		if !loop.Contains(block.ID) {
			continue
		}
		for _, inst := range block.Instructions {
			if p.IsInGraph(inst) {
				values = append(values, inst)
			}
		}
	}
	sub, err := p.SubgraphFromValues(values, true)
	if err != nil {
		return nil, err
	}
	sub.Function = p.Function
	if header, ok := p.Function.Block(loop.Header); ok && len(header.Instructions) > 0 {
		if n, ok := sub.FetchNode(header.Instructions[0]); ok {
			sub.SetEntryNode(n)
		}
	}
	return sub, nil
}

// SubgraphFromValues returns the graph over values. Edges between two values
// are copied; when linkToExternal is set, edges with one endpoint among the
// values are copied too and the other endpoint becomes an external node.
func (p *PDG) SubgraphFromValues(values []*cfg.Instruction, linkToExternal bool) (*PDG, error) {
	sub := newPDG(nil)
	for _, v := range values {
		if !p.IsInGraph(v) {
			return nil, errors.Wrapf(dg.ErrNodeNotFound, "subgraph value %s", v)
		}
		if sub.IsInGraph(v) {
			continue
		}
		if _, err := sub.AddNode(v, true); err != nil {
			return nil, err
		}
	}
	if len(values) > 0 {
		n, _ := sub.FetchNode(values[0])
		sub.SetEntryNode(n)
	}

	if err := p.copyEdgesInto(sub, linkToExternal); err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *PDG) copyEdgesInto(sub *PDG, linkToExternal bool) error {
	for _, e := range p.Edges() {
		fromIn := sub.IsInternal(e.FromT())
		toIn := sub.IsInternal(e.ToT())

		switch {
		case fromIn && toIn:
		case linkToExternal && fromIn:
			sub.FetchOrAddNode(e.ToT(), false)
		case linkToExternal && toIn:
			sub.FetchOrAddNode(e.FromT(), false)
		default:
			continue
		}

		if _, err := sub.CopyAddEdge(e); err != nil {
			return err
		}
	}
	return nil
}
