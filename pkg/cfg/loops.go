package cfg

import (
	"fmt"
	"sort"
)

// LoopSummary describes one natural loop by the blocks it spans.
type LoopSummary struct {
	ID       string         `json:"id" yaml:"id"`
	Header   string         `json:"header" yaml:"header"`
	Blocks   []string       `json:"blocks" yaml:"blocks"`
	Depth    int            `json:"depth" yaml:"-"`
	Parent   *LoopSummary   `json:"-" yaml:"-"`
	Children []*LoopSummary `json:"-" yaml:"-"`

	blockSet map[string]struct{}
}

// Contains reports whether block lies inside the loop.
func (l *LoopSummary) Contains(block string) bool {
	_, ok := l.blockSet[block]
	return ok
}

func (l *LoopSummary) String() string { return l.ID }

// LoopInfoSummary indexes a loop nest: which loops exist, how they nest,
// and the innermost loop of every block.
type LoopInfoSummary struct {
	Loops       []*LoopSummary
	BlockToLoop map[string]*LoopSummary
}

// NewLoopInfoSummary links loops into a nest. Loops must be either nested
// or disjoint; partial overlap is rejected.
func NewLoopInfoSummary(loops []*LoopSummary) (*LoopInfoSummary, error) {
	summary := &LoopInfoSummary{
		Loops:       loops,
		BlockToLoop: make(map[string]*LoopSummary),
	}

	ids := make(map[string]struct{}, len(loops))
	for _, l := range loops {
		if _, dup := ids[l.ID]; dup {
			return nil, fmt.Errorf("duplicate loop %q", l.ID)
		}
		ids[l.ID] = struct{}{}
		l.blockSet = make(map[string]struct{}, len(l.Blocks))
		for _, b := range l.Blocks {
			l.blockSet[b] = struct{}{}
		}
		if l.Header != "" && !l.Contains(l.Header) {
			return nil, fmt.Errorf("loop %q does not contain its header %q", l.ID, l.Header)
		}
		l.Parent = nil
		l.Children = nil
	}

	// Sorting by size puts every parent after its children, so the first
	// strict superset found while scanning forward is the direct parent.
	bySize := append([]*LoopSummary(nil), loops...)
	sort.SliceStable(bySize, func(i, j int) bool { return len(bySize[i].blockSet) < len(bySize[j].blockSet) })

	for i, inner := range bySize {
		for _, outer := range bySize[i+1:] {
			shared := 0
			for b := range inner.blockSet {
				if outer.Contains(b) {
					shared++
				}
			}
			switch {
			case shared == 0:
				continue
			case shared == len(inner.blockSet) && len(outer.blockSet) > len(inner.blockSet):
				if inner.Parent == nil {
					inner.Parent = outer
					outer.Children = append(outer.Children, inner)
				}
			default:
				return nil, fmt.Errorf("loops %q and %q overlap without nesting", inner.ID, outer.ID)
			}
		}
	}

	for _, l := range loops {
		depth := 1
		for p := l.Parent; p != nil; p = p.Parent {
			depth++
		}
		l.Depth = depth
	}

	// innermost loop wins: smallest loops are visited first
	for _, l := range bySize {
		for _, b := range l.Blocks {
			if _, ok := summary.BlockToLoop[b]; !ok {
				summary.BlockToLoop[b] = l
			}
		}
	}

	return summary, nil
}

// Loop returns the loop with the given id.
func (s *LoopInfoSummary) Loop(id string) (*LoopSummary, bool) {
	for _, l := range s.Loops {
		if l.ID == id {
			return l, true
		}
	}
	return nil, false
}

// InnermostLoop returns the innermost loop containing block, or nil.
func (s *LoopInfoSummary) InnermostLoop(block string) *LoopSummary {
	return s.BlockToLoop[block]
}

// TopLevelLoops returns the loops without a parent, in declaration order.
func (s *LoopInfoSummary) TopLevelLoops() []*LoopSummary {
	var top []*LoopSummary
	for _, l := range s.Loops {
		if l.Parent == nil {
			top = append(top, l)
		}
	}
	return top
}
