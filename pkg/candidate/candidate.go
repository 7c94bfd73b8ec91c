// Package candidate loads loop-candidate description files: one function's
// blocks, loop nest and dependences, plus the loop to parallelize.
package candidate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dfg"
)

// ErrUnknownID is returned when a dependence, loop or successor names an id
// the file does not declare.
var ErrUnknownID = errors.New("unknown id")

// File is the on-disk layout of a candidate. JSON files decode through the
// same YAML decoder.
type File struct {
	Name        string             `yaml:"name"`
	Function    string             `yaml:"function"`
	Threads     int                `yaml:"threads,omitempty"`
	Arguments   []*cfg.Instruction `yaml:"arguments,omitempty"`
	Blocks      []BlockSpec        `yaml:"blocks"`
	Loops       []*cfg.LoopSummary `yaml:"loops,omitempty"`
	Dependences []dfg.Dependence   `yaml:"dependences,omitempty"`
	Loop        string             `yaml:"loop,omitempty"`
}

// BlockSpec declares one basic block.
type BlockSpec struct {
	ID           string             `yaml:"id"`
	Successors   []string           `yaml:"successors,omitempty"`
	Instructions []*cfg.Instruction `yaml:"instructions"`
}

// Candidate is a loaded, cross-checked description ready for analysis.
type Candidate struct {
	Name     string
	Path     string
	Threads  int // 0 when the file does not override the configured count
	Function *cfg.CFGInfo
	Loops    *cfg.LoopInfoSummary
	DFG      *dfg.DFGInfo
	// Loop is the target loop, nil when the file declares no loops and the
	// whole function is the candidate.
	Loop *cfg.LoopSummary
}

// Load reads and validates the candidate file at path.
func Load(path string) (*Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("candidate %s: %w", path, err)
	}
	c.Path = path
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return c, nil
}

// Parse decodes a candidate description. Unknown fields are rejected.
func Parse(data []byte) (*Candidate, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty candidate description")
		}
		return nil, fmt.Errorf("failed to parse candidate: %w", err)
	}
	return file.Build()
}

// Build turns the raw file into indexed program facts.
func (f *File) Build() (*Candidate, error) {
	if len(f.Blocks) == 0 {
		return nil, fmt.Errorf("candidate %q declares no blocks", f.Name)
	}
	if f.Threads < 0 {
		return nil, fmt.Errorf("threads must be non-negative, got %d", f.Threads)
	}

	declared := make(map[string]struct{}, len(f.Blocks))
	for _, b := range f.Blocks {
		declared[b.ID] = struct{}{}
	}
	blocks := make([]*cfg.Block, 0, len(f.Blocks))
	for _, b := range f.Blocks {
		for _, succ := range b.Successors {
			if _, ok := declared[succ]; !ok {
				return nil, fmt.Errorf("%w: block %q branches to %q", ErrUnknownID, b.ID, succ)
			}
		}
		blocks = append(blocks, &cfg.Block{ID: b.ID, Successors: b.Successors, Instructions: b.Instructions})
	}

	function := f.Function
	if function == "" {
		function = f.Name
	}
	info, err := cfg.NewCFGInfo(function, f.Arguments, blocks)
	if err != nil {
		return nil, err
	}

	for _, dep := range f.Dependences {
		for _, id := range []string{dep.From, dep.To} {
			if _, ok := info.Instruction(id); !ok {
				return nil, fmt.Errorf("%w: dependence %v names instruction %q", ErrUnknownID, dep, id)
			}
		}
	}

	for _, l := range f.Loops {
		for _, b := range l.Blocks {
			if _, ok := info.Block(b); !ok {
				return nil, fmt.Errorf("%w: loop %q spans block %q", ErrUnknownID, l.ID, b)
			}
		}
	}
	loops, err := cfg.NewLoopInfoSummary(f.Loops)
	if err != nil {
		return nil, err
	}

	c := &Candidate{
		Name:     f.Name,
		Threads:  f.Threads,
		Function: info,
		Loops:    loops,
		DFG:      &dfg.DFGInfo{FunctionName: function, Dependences: f.Dependences},
	}

	switch {
	case f.Loop != "":
		l, ok := loops.Loop(f.Loop)
		if !ok {
			return nil, fmt.Errorf("%w: target loop %q", ErrUnknownID, f.Loop)
		}
		c.Loop = l
	case len(loops.Loops) > 0:
		c.Loop = loops.Loops[0]
	}
	return c, nil
}
