package dfg

import (
	"container/list"

	"github.com/l3aro/go-dswp/pkg/cfg"
)

// ReachingStoresAnalyzer derives memory dependences from load and store
// instructions that name the location they touch. It runs a worklist
// reaching-definitions analysis where each store defines its location.
type ReachingStoresAnalyzer struct {
	// blockGen maps block ID to the stores still visible at the block exit
	blockGen map[string]map[*cfg.Instruction]struct{}
	// blockKill maps block ID to the locations it overwrites
	blockKill map[string]map[string]struct{}
}

// NewReachingStoresAnalyzer creates a new ReachingStoresAnalyzer.
func NewReachingStoresAnalyzer() *ReachingStoresAnalyzer {
	return &ReachingStoresAnalyzer{
		blockGen:  make(map[string]map[*cfg.Instruction]struct{}),
		blockKill: make(map[string]map[string]struct{}),
	}
}

// ComputeMemoryDependences returns a read-after-write dependence from every
// store to each load of the same location it reaches, and a write-after-write
// dependence between stores. A dependence is must when it is the only store
// reaching that access.
func (r *ReachingStoresAnalyzer) ComputeMemoryDependences(f *cfg.CFGInfo) []Dependence {
	if f == nil || len(f.Blocks) == 0 {
		return nil
	}

	r.initialize(f)

	in := make(map[string]map[*cfg.Instruction]struct{}, len(f.Blocks))
	out := make(map[string]map[*cfg.Instruction]struct{}, len(f.Blocks))
	for _, b := range f.Blocks {
		in[b.ID] = make(map[*cfg.Instruction]struct{})
		out[b.ID] = make(map[*cfg.Instruction]struct{})
	}

	worklist := list.New()
	for _, b := range f.Blocks {
		worklist.PushBack(b.ID)
	}

	for worklist.Len() > 0 {
		blockID := worklist.Remove(worklist.Front()).(string)
		block, _ := f.Block(blockID)

		oldOut := out[blockID]
		in[blockID] = r.unionPreds(out, block.Predecessors)
		out[blockID] = r.computeOut(in[blockID], blockID)

		if !setsEqual(oldOut, out[blockID]) {
			for _, succ := range block.Successors {
				worklist.PushBack(succ)
			}
		}
	}

	return r.buildDependences(f, in)
}

func (r *ReachingStoresAnalyzer) initialize(f *cfg.CFGInfo) {
	r.blockGen = make(map[string]map[*cfg.Instruction]struct{}, len(f.Blocks))
	r.blockKill = make(map[string]map[string]struct{}, len(f.Blocks))

	for _, b := range f.Blocks {
		last := make(map[string]*cfg.Instruction)
		kill := make(map[string]struct{})
		for _, inst := range b.Instructions {
			if inst.Kind == cfg.KindStore && inst.Location != "" {
				last[inst.Location] = inst
				kill[inst.Location] = struct{}{}
			}
		}
		gen := make(map[*cfg.Instruction]struct{}, len(last))
		for _, st := range last {
			gen[st] = struct{}{}
		}
		r.blockGen[b.ID] = gen
		r.blockKill[b.ID] = kill
	}
}

func (r *ReachingStoresAnalyzer) unionPreds(out map[string]map[*cfg.Instruction]struct{}, preds []string) map[*cfg.Instruction]struct{} {
	result := make(map[*cfg.Instruction]struct{})
	for _, pred := range preds {
		for st := range out[pred] {
			result[st] = struct{}{}
		}
	}
	return result
}

// computeOut computes out[block] = gen[block] U (in[block] - kill[block]).
func (r *ReachingStoresAnalyzer) computeOut(inSet map[*cfg.Instruction]struct{}, blockID string) map[*cfg.Instruction]struct{} {
	outSet := make(map[*cfg.Instruction]struct{}, len(inSet))
	for st := range r.blockGen[blockID] {
		outSet[st] = struct{}{}
	}
	for st := range inSet {
		if _, killed := r.blockKill[blockID][st.Location]; !killed {
			outSet[st] = struct{}{}
		}
	}
	return outSet
}

func setsEqual(a, b map[*cfg.Instruction]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// buildDependences walks each block in order, tracking the stores that reach
// every load and store. Results follow program order of the accesses.
func (r *ReachingStoresAnalyzer) buildDependences(f *cfg.CFGInfo, in map[string]map[*cfg.Instruction]struct{}) []Dependence {
	var deps []Dependence
	for _, b := range f.Blocks {
		// stores reaching the current point, per location, in instruction order
		reaching := make(map[string][]*cfg.Instruction)
		for _, inst := range b.Instructions {
			if inst.Location == "" {
				continue
			}
			if _, seen := reaching[inst.Location]; !seen {
				reaching[inst.Location] = orderedStores(f, in[b.ID], inst.Location)
			}
		}

		for _, inst := range b.Instructions {
			if inst.Location == "" {
				continue
			}
			switch inst.Kind {
			case cfg.KindLoad:
				stores := reaching[inst.Location]
				for _, st := range stores {
					deps = append(deps, Dependence{
						From: st.ID, To: inst.ID,
						Memory: true, Must: len(stores) == 1, RAW: true,
						Label: inst.Location,
					})
				}
			case cfg.KindStore:
				stores := reaching[inst.Location]
				for _, st := range stores {
					if st == inst {
						continue
					}
					deps = append(deps, Dependence{
						From: st.ID, To: inst.ID,
						Memory: true, Must: len(stores) == 1,
						Label: inst.Location,
					})
				}
				reaching[inst.Location] = []*cfg.Instruction{inst}
			}
		}
	}
	return deps
}

// orderedStores returns the stores in set that write location, in program order.
func orderedStores(f *cfg.CFGInfo, set map[*cfg.Instruction]struct{}, location string) []*cfg.Instruction {
	var stores []*cfg.Instruction
	for _, inst := range f.Instructions() {
		if _, ok := set[inst]; ok && inst.Location == location {
			stores = append(stores, inst)
		}
	}
	return stores
}
