package partition

import (
	"fmt"
	"strings"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

// Subset is a group of SCCs destined to run in one pipeline stage. A subset
// is immutable; merging two subsets creates a third.
type Subset struct {
	id   int
	sccs []*sccdag.SCC
	set  map[*sccdag.SCC]struct{}

	cost           int
	loopsContained []*cfg.LoopSummary
}

func newSubset(id int, sccs []*sccdag.SCC, loops *cfg.LoopInfoSummary) *Subset {
	s := &Subset{
		id:   id,
		sccs: make([]*sccdag.SCC, 0, len(sccs)),
		set:  make(map[*sccdag.SCC]struct{}, len(sccs)),
	}
	for _, scc := range sccs {
		if _, dup := s.set[scc]; dup {
			continue
		}
		s.set[scc] = struct{}{}
		s.sccs = append(s.sccs, scc)
	}
	s.collectCost()
	s.collectLoops(loops)
	return s
}

func (s *Subset) collectCost() {
	s.cost = 0
	for _, scc := range s.sccs {
		s.cost += scc.Cost()
	}
}

// collectLoops records the loops whose every block lies in the subset.
func (s *Subset) collectLoops(loops *cfg.LoopInfoSummary) {
	s.loopsContained = nil
	if loops == nil {
		return
	}
	blocks := make(map[string]struct{})
	for _, scc := range s.sccs {
		for _, b := range scc.Blocks() {
			blocks[b] = struct{}{}
		}
	}
	for _, loop := range loops.Loops {
		if len(loop.Blocks) == 0 {
			continue
		}
		contained := true
		for _, b := range loop.Blocks {
			if _, ok := blocks[b]; !ok {
				contained = false
				break
			}
		}
		if contained {
			s.loopsContained = append(s.loopsContained, loop)
		}
	}
}

// ID is unique within the owning partition.
func (s *Subset) ID() int { return s.id }

// SCCs returns the members in insertion order.
func (s *Subset) SCCs() []*sccdag.SCC { return append([]*sccdag.SCC(nil), s.sccs...) }

// Len returns the number of SCCs in the subset.
func (s *Subset) Len() int { return len(s.sccs) }

// Contains reports whether scc belongs to the subset.
func (s *Subset) Contains(scc *sccdag.SCC) bool {
	_, ok := s.set[scc]
	return ok
}

// Cost is the summed cost of the member SCCs.
func (s *Subset) Cost() int { return s.cost }

// LoopsContained returns the loops fully inside the subset.
func (s *Subset) LoopsContained() []*cfg.LoopSummary {
	return append([]*cfg.LoopSummary(nil), s.loopsContained...)
}

func (s *Subset) String() string {
	parts := make([]string, 0, len(s.sccs))
	for _, scc := range s.sccs {
		parts = append(parts, fmt.Sprintf("scc%d", scc.ID()))
	}
	return fmt.Sprintf("subset%d{%s}", s.id, strings.Join(parts, ","))
}
