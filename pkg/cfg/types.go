// Package cfg defines the program facts consumed by the dependence
// analysis: instructions (the graph elements), basic blocks, functions and
// loop structure. These facts are produced upstream; this package only
// organises and indexes them.
package cfg

import (
	"fmt"
)

// InstKind classifies an instruction.
type InstKind string

const (
	KindPlain    InstKind = "plain"    // Arithmetic or other value computation
	KindArgument InstKind = "argument" // Function argument
	KindPhi      InstKind = "phi"      // Merge of values from predecessors
	KindCast     InstKind = "cast"     // Type conversion
	KindAddress  InstKind = "address"  // Address computation
	KindLoad     InstKind = "load"     // Memory read
	KindStore    InstKind = "store"    // Memory write
	KindCall     InstKind = "call"     // Function call
	KindCompare  InstKind = "compare"  // Comparison feeding a branch
	KindBranch   InstKind = "branch"   // Conditional or unconditional branch
	KindReturn   InstKind = "return"   // Function return
)

// IsTerminator reports whether instructions of this kind end a block.
func (k InstKind) IsTerminator() bool {
	return k == KindBranch || k == KindReturn
}

// IsSyntacticSugar reports whether the kind only reshapes a value
// (phi, cast, address) without doing real work.
func (k InstKind) IsSyntacticSugar() bool {
	return k == KindPhi || k == KindCast || k == KindAddress
}

// Instruction is one program element. Its pointer is its identity.
type Instruction struct {
	ID       string   `json:"id" yaml:"id"`                                  // Unique identifier within the function
	Kind     InstKind `json:"kind" yaml:"kind"`                              // Instruction class
	Block    string   `json:"block,omitempty" yaml:"block,omitempty"`        // Owning block, empty for arguments
	Text     string   `json:"text,omitempty" yaml:"text,omitempty"`          // Optional source text
	Cost     int      `json:"cost" yaml:"cost"`                              // Estimated execution cost
	Clonable bool     `json:"clonable,omitempty" yaml:"clonable,omitempty"` // Cheap enough to duplicate into every stage
	Location string   `json:"location,omitempty" yaml:"location,omitempty"` // Memory location touched by a load or store
}

func (i *Instruction) String() string {
	if i == nil {
		return "<nil>"
	}
	return i.ID
}

// Block is a basic block: a straight-line sequence of instructions.
type Block struct {
	ID           string         `json:"id"`
	Instructions []*Instruction `json:"instructions"`
	Successors   []string       `json:"successors"`
	Predecessors []string       `json:"predecessors"`
}

// Terminator returns the last instruction when it ends the block.
func (b *Block) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !last.Kind.IsTerminator() {
		return nil
	}
	return last
}

// CFGEdge represents a directed edge between two CFG blocks.
type CFGEdge struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// CFGInfo represents the control flow graph of a single function.
type CFGInfo struct {
	FunctionName string         `json:"function_name"`
	Arguments    []*Instruction `json:"arguments"`
	Blocks       []*Block       `json:"blocks"` // First block is the entry
	EntryBlockID string         `json:"entry_block_id"`

	blockIndex map[string]*Block
	instIndex  map[string]*Instruction
}

// NewCFGInfo indexes the function, fills block predecessors and stamps
// each instruction with its owning block.
func NewCFGInfo(name string, args []*Instruction, blocks []*Block) (*CFGInfo, error) {
	info := &CFGInfo{
		FunctionName: name,
		Arguments:    args,
		Blocks:       blocks,
		blockIndex:   make(map[string]*Block, len(blocks)),
		instIndex:    make(map[string]*Instruction),
	}
	if len(blocks) > 0 {
		info.EntryBlockID = blocks[0].ID
	}

	for _, arg := range args {
		if err := info.indexInstruction(arg); err != nil {
			return nil, err
		}
		arg.Kind = KindArgument
		arg.Block = ""
	}

	for _, b := range blocks {
		if _, dup := info.blockIndex[b.ID]; dup {
			return nil, fmt.Errorf("duplicate block %q in function %s", b.ID, name)
		}
		info.blockIndex[b.ID] = b
		b.Predecessors = nil
		for _, inst := range b.Instructions {
			if err := info.indexInstruction(inst); err != nil {
				return nil, err
			}
			inst.Block = b.ID
		}
	}

	for _, b := range blocks {
		for _, succ := range b.Successors {
			target, ok := info.blockIndex[succ]
			if !ok {
				return nil, fmt.Errorf("block %q branches to unknown block %q", b.ID, succ)
			}
			target.Predecessors = append(target.Predecessors, b.ID)
		}
	}

	return info, nil
}

func (f *CFGInfo) indexInstruction(inst *Instruction) error {
	if inst.ID == "" {
		return fmt.Errorf("instruction without id in function %s", f.FunctionName)
	}
	if _, dup := f.instIndex[inst.ID]; dup {
		return fmt.Errorf("duplicate instruction %q in function %s", inst.ID, f.FunctionName)
	}
	if inst.Cost <= 0 {
		inst.Cost = 1
	}
	f.instIndex[inst.ID] = inst
	return nil
}

// Block returns the block with the given id.
func (f *CFGInfo) Block(id string) (*Block, bool) {
	b, ok := f.blockIndex[id]
	return b, ok
}

// Instruction returns the instruction with the given id.
func (f *CFGInfo) Instruction(id string) (*Instruction, bool) {
	inst, ok := f.instIndex[id]
	return inst, ok
}

// Instructions returns arguments followed by block instructions in program order.
func (f *CFGInfo) Instructions() []*Instruction {
	out := make([]*Instruction, 0, len(f.instIndex))
	out = append(out, f.Arguments...)
	for _, b := range f.Blocks {
		out = append(out, b.Instructions...)
	}
	return out
}

// Edges returns the control flow edges in block order.
func (f *CFGInfo) Edges() []CFGEdge {
	var edges []CFGEdge
	for _, b := range f.Blocks {
		for _, succ := range b.Successors {
			edges = append(edges, CFGEdge{SourceID: b.ID, TargetID: succ})
		}
	}
	return edges
}

// Program is the set of functions under analysis.
type Program struct {
	Functions []*CFGInfo `json:"functions"`
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*CFGInfo, bool) {
	for _, f := range p.Functions {
		if f.FunctionName == name {
			return f, true
		}
	}
	return nil, false
}

// Instruction resolves an instruction id across all functions. Ids are
// expected to be unique program-wide.
func (p *Program) Instruction(id string) (*Instruction, bool) {
	for _, f := range p.Functions {
		if inst, ok := f.Instruction(id); ok {
			return inst, true
		}
	}
	return nil, false
}
