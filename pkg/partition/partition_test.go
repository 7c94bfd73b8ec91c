package partition

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dfg"
	"github.com/l3aro/go-dswp/pkg/pdg"
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

type fixture struct {
	pdg *pdg.PDG
	dag *sccdag.SCCDAG
}

func plain(ids ...string) []*cfg.Instruction {
	out := make([]*cfg.Instruction, 0, len(ids))
	for _, id := range ids {
		out = append(out, &cfg.Instruction{ID: id, Kind: cfg.KindPlain})
	}
	return out
}

func data(from, to string) dfg.Dependence { return dfg.Dependence{From: from, To: to} }

func memory(from, to string) dfg.Dependence {
	return dfg.Dependence{From: from, To: to, Memory: true, Must: true, RAW: true}
}

func build(t *testing.T, insts []*cfg.Instruction, deps ...dfg.Dependence) *fixture {
	t.Helper()
	return buildBlocks(t, []*cfg.Block{{ID: "b0", Instructions: insts}}, deps...)
}

func buildBlocks(t *testing.T, blocks []*cfg.Block, deps ...dfg.Dependence) *fixture {
	t.Helper()
	f, err := cfg.NewCFGInfo("f", nil, blocks)
	require.NoError(t, err)
	p, err := pdg.NewPDGBuilder(f, &dfg.DFGInfo{Dependences: deps}).Build()
	require.NoError(t, err)
	d, err := sccdag.CreateSCCDAGFrom(p)
	require.NoError(t, err)
	return &fixture{pdg: p, dag: d}
}

func (f *fixture) scc(t *testing.T, id string) *sccdag.SCC {
	t.Helper()
	inst, ok := f.pdg.Find(id)
	require.True(t, ok, id)
	scc, ok := f.dag.SCCOf(inst)
	require.True(t, ok, id)
	return scc
}

func (f *fixture) seeded(t *testing.T, threads int) *Partition {
	t.Helper()
	p := New(f.dag, Options{IdealThreads: threads})
	require.NoError(t, p.Seed())
	return p
}

func subsetOf(t *testing.T, f *fixture, p *Partition, id string) *Subset {
	t.Helper()
	s := p.SubsetOf(f.scc(t, id))
	require.NotNil(t, s, id)
	return s
}

func assertCostConserved(t *testing.T, p *Partition) {
	t.Helper()
	sum := 0
	for _, s := range p.Subsets() {
		recomputed := 0
		for _, scc := range s.SCCs() {
			recomputed += scc.Cost()
		}
		assert.Equal(t, recomputed, s.Cost())
		sum += recomputed
	}
	assert.Equal(t, sum, p.TotalCost())
}

func assertNoCrossingMemoryEdge(t *testing.T, p *Partition) {
	t.Helper()
	for _, e := range p.DAG().Edges() {
		if !e.IsMemory() {
			continue
		}
		a, b := p.SubsetOf(e.FromT()), p.SubsetOf(e.ToT())
		if a != nil && b != nil {
			assert.Same(t, a, b, "memory edge %v crosses subsets", e)
		}
	}
}

// assertSubsetGraphAcyclic runs Kahn's algorithm over the graph whose nodes
// are the live subsets.
func assertSubsetGraphAcyclic(t *testing.T, p *Partition) {
	t.Helper()
	indegree := make(map[*Subset]int)
	for _, s := range p.Subsets() {
		indegree[s] += 0
		for _, d := range p.GetDependents(s) {
			indegree[d]++
		}
	}
	var ready []*Subset
	for _, s := range p.Subsets() {
		if indegree[s] == 0 {
			ready = append(ready, s)
		}
	}
	visited := 0
	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]
		visited++
		for _, d := range p.GetDependents(s) {
			indegree[d]--
			if indegree[d] == 0 {
				ready = append(ready, d)
			}
		}
	}
	assert.Equal(t, p.NumSubsets(), visited, "subset graph has a cycle")
}

func TestChainScenario(t *testing.T) {
	f := build(t, plain("X", "Y", "Z"), data("X", "Y"), data("Y", "Z"))
	p := f.seeded(t, 3)

	require.Equal(t, 3, p.NumSubsets())
	merges, err := p.MergeAlongMemoryEdges()
	require.NoError(t, err)
	assert.Equal(t, 0, merges)
	assert.Equal(t, 3, p.NumSubsets())

	x, y, z := subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y"), subsetOf(t, f, p, "Z")
	assert.Equal(t, 3, p.TotalCost())
	assert.Equal(t, 1, p.MaxSubsetCost())
	assert.Equal(t, 3, p.IdealThreadCount())

	assert.Equal(t, []*Subset{x}, p.TopLevelSubsets())
	assert.Equal(t, []*Subset{y}, p.NextLevelSubsets(x))
	assert.Equal(t, []*Subset{z}, p.GetDependents(y))
	assert.Equal(t, []*Subset{x}, p.GetAncestors(y))
	assert.Empty(t, p.GetAncestors(x))
	assert.Equal(t, 1, p.NumEdgesBetween(x, y))
	assert.Equal(t, 0, p.NumEdgesBetween(y, x))
}

func TestMemoryPairScenario(t *testing.T) {
	for _, threads := range []int{1, 2, 8} {
		f := build(t, plain("X", "Y"), memory("X", "Y"))
		p := f.seeded(t, threads)
		require.Equal(t, 2, p.NumSubsets())

		merges, err := p.MergeAlongMemoryEdges()
		require.NoError(t, err)
		assert.Equal(t, 1, merges)
		require.Equal(t, 1, p.NumSubsets())
		assert.Same(t, subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y"))
		assertNoCrossingMemoryEdge(t, p)
		assertCostConserved(t, p)
	}
}

func TestMemoryMergeAbsorbsPath(t *testing.T) {
	// X -> M -> Y carries data, X -> Y carries memory; merging X and Y alone
	// would leave M both after and before the merged subset.
	f := build(t, plain("X", "M", "Y", "W"),
		data("X", "M"), data("M", "Y"), memory("X", "Y"), data("Y", "W"),
	)
	p := f.seeded(t, 4)

	merges, err := p.MergeAlongMemoryEdges()
	require.NoError(t, err)
	assert.Equal(t, 2, merges)
	assert.Equal(t, 2, p.NumSubsets())

	xmy := subsetOf(t, f, p, "X")
	assert.Same(t, xmy, subsetOf(t, f, p, "M"))
	assert.Same(t, xmy, subsetOf(t, f, p, "Y"))
	assert.NotSame(t, xmy, subsetOf(t, f, p, "W"))

	assertNoCrossingMemoryEdge(t, p)
	assertSubsetGraphAcyclic(t, p)
	assertCostConserved(t, p)
}

func TestMemoryMergeFixedPoint(t *testing.T) {
	f := build(t, plain("A", "B", "C", "D", "E"),
		memory("A", "B"), memory("B", "C"), data("C", "D"), memory("E", "D"), data("A", "E"),
	)
	p := f.seeded(t, 2)

	_, err := p.MergeAlongMemoryEdges()
	require.NoError(t, err)

	assertNoCrossingMemoryEdge(t, p)
	assertSubsetGraphAcyclic(t, p)
	assertCostConserved(t, p)

	again, err := p.MergeAlongMemoryEdges()
	require.NoError(t, err)
	assert.Equal(t, 0, again)
}

func TestMemoryMergeLeavesUnrelatedSubsets(t *testing.T) {
	f := build(t, plain("X", "Y", "Z"), memory("X", "Y"))
	p := f.seeded(t, 2)

	_, err := p.MergeAlongMemoryEdges()
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumSubsets())
	assert.Equal(t, 1, subsetOf(t, f, p, "Z").Len())
}

func TestCanMergeSubsets(t *testing.T) {
	tests := []struct {
		name  string
		insts []string
		deps  []dfg.Dependence
		a, b  string
		want  bool
	}{
		{
			name:  "adjacent in chain",
			insts: []string{"X", "Y", "Z"},
			deps:  []dfg.Dependence{data("X", "Y"), data("Y", "Z")},
			a:     "X", b: "Y",
			want: true,
		},
		{
			name:  "ends of chain",
			insts: []string{"X", "Y", "Z"},
			deps:  []dfg.Dependence{data("X", "Y"), data("Y", "Z")},
			a:     "X", b: "Z",
			want: false,
		},
		{
			name:  "ends of chain reversed",
			insts: []string{"X", "Y", "Z"},
			deps:  []dfg.Dependence{data("X", "Y"), data("Y", "Z")},
			a:     "Z", b: "X",
			want: false,
		},
		{
			name:  "deep chain",
			insts: []string{"A", "B", "C", "D"},
			deps:  []dfg.Dependence{data("A", "B"), data("B", "C"), data("C", "D")},
			a:     "A", b: "D",
			want: false,
		},
		{
			name:  "diamond siblings",
			insts: []string{"A", "B", "C", "D"},
			deps:  []dfg.Dependence{data("A", "B"), data("A", "C"), data("B", "D"), data("C", "D")},
			a:     "B", b: "C",
			want: true,
		},
		{
			name:  "diamond source and sink",
			insts: []string{"A", "B", "C", "D"},
			deps:  []dfg.Dependence{data("A", "B"), data("A", "C"), data("B", "D"), data("C", "D")},
			a:     "A", b: "D",
			want: false,
		},
		{
			name:  "unrelated",
			insts: []string{"A", "B"},
			a:     "A", b: "B",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := build(t, plain(tt.insts...), tt.deps...)
			p := f.seeded(t, 2)
			a, b := subsetOf(t, f, p, tt.a), subsetOf(t, f, p, tt.b)
			assert.Equal(t, tt.want, p.CanMergeSubsets(a, b))
		})
	}
}

func TestCanMergeRejectsSelfAndRetired(t *testing.T) {
	f := build(t, plain("X", "Y"), data("X", "Y"))
	p := f.seeded(t, 2)
	x, y := subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y")

	assert.False(t, p.CanMergeSubsets(x, x))
	_, err := p.MergeSubsets(x, y)
	require.NoError(t, err)
	assert.False(t, p.CanMergeSubsets(x, y))
}

func TestGuardedMergesStayAcyclic(t *testing.T) {
	f := build(t, plain("A", "B", "C", "D", "E", "F"),
		data("A", "B"), data("A", "C"), data("B", "D"), data("C", "D"),
		data("D", "E"), data("B", "F"), data("F", "E"),
	)
	p := f.seeded(t, 1)

	for merged := true; merged; {
		merged = false
		subsets := p.Subsets()
		for i := len(subsets) - 1; i >= 0 && !merged; i-- {
			for j := 0; j < i; j++ {
				if !p.CanMergeSubsets(subsets[i], subsets[j]) {
					continue
				}
				_, err := p.MergeSubsets(subsets[i], subsets[j])
				require.NoError(t, err)
				assertSubsetGraphAcyclic(t, p)
				assertCostConserved(t, p)
				merged = true
				break
			}
		}
	}
	assert.Equal(t, 1, p.NumSubsets())
}

func TestRemovableSCCsAreTransparent(t *testing.T) {
	insts := plain("X", "Y")
	iv := &cfg.Instruction{ID: "iv", Kind: cfg.KindPhi, Clonable: true}
	f := build(t, append([]*cfg.Instruction{iv}, insts...),
		data("iv", "iv"), data("iv", "X"), data("iv", "Y"), data("X", "Y"),
	)
	p := f.seeded(t, 2)

	assert.Equal(t, 2, p.NumSubsets())
	assert.True(t, p.IsRemovable(f.scc(t, "iv")))
	assert.Nil(t, p.SubsetOf(f.scc(t, "iv")))
	assert.Equal(t, []*sccdag.SCC{f.scc(t, "iv")}, p.RemovableSCCs())

	x, y := subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y")
	assert.Equal(t, []*Subset{x}, p.TopLevelSubsets(), "falls back to the dependents of removable roots")
	assert.True(t, p.CanMergeSubsets(x, y))
}

func TestRemovableBetweenSubsets(t *testing.T) {
	iv := &cfg.Instruction{ID: "iv", Kind: cfg.KindCast, Clonable: true}
	f := build(t, []*cfg.Instruction{{ID: "X"}, iv, {ID: "Y"}}, data("X", "iv"), data("iv", "Y"))
	p := f.seeded(t, 2)
	x, y := subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y")

	assert.Equal(t, []*Subset{y}, p.GetDependents(x))
	assert.Equal(t, []*Subset{x}, p.GetAncestors(y))
	assert.True(t, p.CanMergeSubsets(x, y))
}

func TestCustomRemovable(t *testing.T) {
	f := build(t, plain("X", "Y"), data("X", "Y"))
	p := New(f.dag, Options{IdealThreads: 2, Removable: func(s *sccdag.SCC) bool { return s.Cost() == 0 }})
	require.NoError(t, p.Seed())
	assert.Equal(t, 2, p.NumSubsets())
	assert.Empty(t, p.RemovableSCCs())
}

func TestClonableMemoryAccessIsNotRemovable(t *testing.T) {
	st := &cfg.Instruction{ID: "st", Kind: cfg.KindStore}
	ld := &cfg.Instruction{ID: "ld", Kind: cfg.KindLoad, Clonable: true}
	use := &cfg.Instruction{ID: "use", Kind: cfg.KindPlain}
	f := build(t, []*cfg.Instruction{st, ld, use}, memory("st", "ld"), data("ld", "use"))

	p := f.seeded(t, 2)
	assert.False(t, p.IsRemovable(f.scc(t, "ld")))
	assert.Empty(t, p.RemovableSCCs())
	assert.Equal(t, 3, p.NumSubsets())

	merges, err := p.MergeAlongMemoryEdges()
	require.NoError(t, err)
	assert.Equal(t, 1, merges)
	assert.Same(t, subsetOf(t, f, p, "st"), subsetOf(t, f, p, "ld"))
	assert.NotSame(t, subsetOf(t, f, p, "ld"), subsetOf(t, f, p, "use"))
	assertNoCrossingMemoryEdge(t, p)
	assertSubsetGraphAcyclic(t, p)
}

func TestCousins(t *testing.T) {
	f := build(t, plain("A", "B", "C", "D"), data("A", "B"), data("A", "C"), data("B", "D"))
	p := f.seeded(t, 2)
	a, b, c, d := subsetOf(t, f, p, "A"), subsetOf(t, f, p, "B"), subsetOf(t, f, p, "C"), subsetOf(t, f, p, "D")

	assert.Equal(t, []*Subset{c}, p.GetCousins(b))
	assert.Equal(t, []*Subset{b}, p.GetCousins(c))
	assert.Empty(t, p.GetCousins(a))
	assert.Empty(t, p.GetCousins(d))
	assert.Equal(t, []*Subset{b, c}, p.NextLevelSubsets(a))
}

func TestNextLevelSkipsTransitiveDependents(t *testing.T) {
	f := build(t, plain("A", "B", "C"), data("A", "B"), data("B", "C"), data("A", "C"))
	p := f.seeded(t, 2)
	a, b, c := subsetOf(t, f, p, "A"), subsetOf(t, f, p, "B"), subsetOf(t, f, p, "C")

	assert.Equal(t, []*Subset{b, c}, p.GetDependents(a))
	assert.Equal(t, []*Subset{b}, p.NextLevelSubsets(a))
}

func TestAddSubsetErrors(t *testing.T) {
	f := build(t, plain("X", "Y"), data("X", "Y"))
	p := New(f.dag, Options{IdealThreads: 2})

	s, err := p.AddSubset(f.scc(t, "X"), f.scc(t, "Y"))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, p.TotalCost())

	_, err = p.AddSubset(f.scc(t, "X"))
	assert.True(t, errors.Is(err, ErrSCCAlreadyAssigned))

	other := build(t, plain("Q"))
	_, err = p.AddSubset(other.scc(t, "Q"))
	assert.True(t, errors.Is(err, ErrUnknownSCC))

	_, err = p.AddSubset()
	assert.Error(t, err)

	require.NoError(t, p.Seed())
	assert.Equal(t, 1, p.NumSubsets(), "seeding skips assigned SCCs")
}

func TestMergeSubsetsErrors(t *testing.T) {
	f := build(t, plain("X", "Y", "Z"))
	p := f.seeded(t, 2)
	x, y, z := subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y"), subsetOf(t, f, p, "Z")

	_, err := p.MergeSubsets(x, x)
	assert.True(t, errors.Is(err, ErrSelfMerge))

	xy, err := p.MergeSubsets(x, y)
	require.NoError(t, err)
	assert.False(t, p.IsValidSubset(x))
	assert.True(t, p.IsValidSubset(xy))
	assert.Same(t, xy, p.SubsetOf(f.scc(t, "X")))

	_, err = p.MergeSubsets(x, z)
	assert.True(t, errors.Is(err, ErrRetiredSubset))
	_, err = p.MergeSubsets(z, y)
	assert.True(t, errors.Is(err, ErrRetiredSubset))

	assert.Equal(t, 2, p.NumSubsets())
	assertCostConserved(t, p)
}

func TestDemoMergeSubsets(t *testing.T) {
	f := build(t, plain("X", "Y"))
	p := f.seeded(t, 2)
	x, y := subsetOf(t, f, p, "X"), subsetOf(t, f, p, "Y")

	demo := p.DemoMergeSubsets(x, y)
	assert.Equal(t, 2, demo.Cost())
	assert.False(t, p.IsValidSubset(demo))
	assert.Equal(t, 2, p.NumSubsets())
	assert.Same(t, x, p.SubsetOf(f.scc(t, "X")))
}

func TestLoopsContained(t *testing.T) {
	blocks := []*cfg.Block{
		{ID: "h", Successors: []string{"b"}, Instructions: plain("hx")},
		{ID: "b", Successors: []string{"h"}, Instructions: []*cfg.Instruction{{ID: "bx", Kind: cfg.KindPlain, Cost: 5}}},
	}
	f := buildBlocks(t, blocks, data("hx", "bx"))
	loops, err := cfg.NewLoopInfoSummary([]*cfg.LoopSummary{{ID: "L0", Header: "h", Blocks: []string{"h", "b"}}})
	require.NoError(t, err)

	p := New(f.dag, Options{IdealThreads: 2, Loops: loops})
	require.NoError(t, p.Seed())
	h, b := subsetOf(t, f, p, "hx"), subsetOf(t, f, p, "bx")
	assert.Empty(t, h.LoopsContained())
	assert.Equal(t, 5, b.Cost())

	hb, err := p.MergeSubsets(h, b)
	require.NoError(t, err)
	require.Len(t, hb.LoopsContained(), 1)
	assert.Equal(t, "L0", hb.LoopsContained()[0].ID)
	assert.Equal(t, 6, hb.Cost())
	assert.Equal(t, 6, p.TotalCost())
}

func TestMaxSubsetCostWithoutThreads(t *testing.T) {
	f := build(t, plain("X", "Y"))
	p := f.seeded(t, 0)
	assert.Equal(t, 2, p.MaxSubsetCost())
}

func TestPrint(t *testing.T) {
	iv := &cfg.Instruction{ID: "iv", Kind: cfg.KindPhi, Clonable: true}
	f := build(t, []*cfg.Instruction{iv, {ID: "X"}}, data("iv", "X"))
	p := f.seeded(t, 1)

	var buf bytes.Buffer
	p.Print(&buf, "> ")
	out := buf.String()
	assert.Contains(t, out, "> Subset")
	assert.Contains(t, out, "> Removable nodes:")
	assert.Contains(t, out, "iv")
	assert.Contains(t, out, "X")
}
