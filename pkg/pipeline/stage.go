// Package pipeline turns a finalized partition into an ordered list of
// pipeline stages and the queues that carry values between them.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/partition"
	"github.com/l3aro/go-dswp/pkg/pdg"
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

var (
	// ErrUnassignedSCC is returned when a non-removable SCC has no subset.
	ErrUnassignedSCC = errors.New("SCC belongs to no subset")
	// ErrCyclicPartition is returned when the subsets depend on each other
	// in a cycle and cannot be ordered.
	ErrCyclicPartition = errors.New("subsets form a dependence cycle")
	// ErrBackwardQueue is returned by Validate for a queue that does not
	// flow from an earlier stage to a later one.
	ErrBackwardQueue = errors.New("queue flows backwards")
	// ErrMemoryQueue is returned by Validate for a memory dependence that
	// crosses stages.
	ErrMemoryQueue = errors.New("memory dependence crosses stages")
)

// Stage is one pipeline stage: the SCCs of one subset.
type Stage struct {
	Order  int
	Subset *partition.Subset
	SCCs   []*sccdag.SCC
}

// Cost is the summed cost of the stage's SCCs.
func (s *Stage) Cost() int { return s.Subset.Cost() }

func (s *Stage) String() string {
	return fmt.Sprintf("stage%d%v", s.Order, s.SCCs)
}

// Queue carries the value of one producer instruction from one stage to
// another.
type Queue struct {
	FromStage int
	ToStage   int
	Producer  *cfg.Instruction
	Consumers []*cfg.Instruction
	Control   bool
	Memory    bool
}

func (q *Queue) String() string {
	kind := "data"
	switch {
	case q.Memory:
		kind = "memory"
	case q.Control:
		kind = "control"
	}
	return fmt.Sprintf("q(%d->%d %s %s)", q.FromStage, q.ToStage, q.Producer, kind)
}

// Pipeline is the ordered stage list of one partition.
type Pipeline struct {
	Stages    []*Stage
	Queues    []*Queue
	Removable []*sccdag.SCC

	sccToStage map[*sccdag.SCC]*Stage
}

// StageOf returns the stage running scc, or nil for removable SCCs.
func (pl *Pipeline) StageOf(scc *sccdag.SCC) *Stage { return pl.sccToStage[scc] }

// CreateStages orders the subsets of p into stages. A breadth-first walk of
// the condensed graph from its top-level nodes ranks every SCC; subsets are
// then emitted in dependence order, earliest ranked first, so every stage
// only receives from earlier stages.
func CreateStages(p *partition.Partition) (*Pipeline, error) {
	dag := p.DAG()
	rank := discoveryRank(dag)

	subsetRank := make(map[*partition.Subset]int)
	for _, scc := range dag.SCCs() {
		if p.IsRemovable(scc) {
			continue
		}
		s := p.SubsetOf(scc)
		if s == nil {
			return nil, errors.Wrapf(ErrUnassignedSCC, "create stages: %v", scc)
		}
		if r, ok := subsetRank[s]; !ok || rank[scc] < r {
			subsetRank[s] = rank[scc]
		}
	}

	pl := &Pipeline{
		Removable:  p.RemovableSCCs(),
		sccToStage: make(map[*sccdag.SCC]*Stage),
	}

	indegree := make(map[*partition.Subset]int, len(subsetRank))
	for s := range subsetRank {
		indegree[s] += 0
		for _, d := range p.GetDependents(s) {
			indegree[d]++
		}
	}

	var ready []*partition.Subset
	insert := func(s *partition.Subset) {
		i := sort.Search(len(ready), func(i int) bool { return subsetRank[ready[i]] > subsetRank[s] })
		ready = append(ready, nil)
		copy(ready[i+1:], ready[i:])
		ready[i] = s
	}
	for s := range subsetRank {
		if indegree[s] == 0 {
			insert(s)
		}
	}

	for len(ready) > 0 {
		s := ready[0]
		ready = ready[1:]

		stage := &Stage{Order: len(pl.Stages), Subset: s, SCCs: s.SCCs()}
		sort.SliceStable(stage.SCCs, func(i, j int) bool { return rank[stage.SCCs[i]] < rank[stage.SCCs[j]] })
		pl.Stages = append(pl.Stages, stage)
		for _, scc := range stage.SCCs {
			pl.sccToStage[scc] = stage
		}

		for _, d := range p.GetDependents(s) {
			indegree[d]--
			if indegree[d] == 0 {
				insert(d)
			}
		}
	}

	if len(pl.Stages) != len(subsetRank) {
		return nil, errors.Wrapf(ErrCyclicPartition, "ordered %d of %d subsets", len(pl.Stages), len(subsetRank))
	}

	pl.Queues = buildQueues(dag, pl)
	return pl, nil
}

// discoveryRank numbers the SCC nodes in breadth-first order from the
// top-level nodes, visiting the successors of a node as it is dequeued.
// Nodes the walk cannot reach start new walks in graph order.
func discoveryRank(dag *sccdag.SCCDAG) map[*sccdag.SCC]int {
	rank := make(map[*sccdag.SCC]int, dag.NumNodes())
	var queue []*sccdag.Node
	visit := func(n *sccdag.Node) {
		if _, seen := rank[n.T()]; seen {
			return
		}
		rank[n.T()] = len(rank)
		queue = append(queue, n)
	}
	drain := func() {
		for len(queue) > 0 {
			n := queue[0]
			queue = queue[1:]
			for _, next := range dag.NextDepthNodes(n) {
				visit(next)
			}
		}
	}

	for _, n := range dag.TopLevelNodes() {
		visit(n)
	}
	drain()
	for _, n := range dag.Nodes() {
		visit(n)
		drain()
	}
	return rank
}

// buildQueues creates one queue per producer instruction and stage pair.
// Values consumed by a removable SCC travel to every stage that clones it.
func buildQueues(dag *sccdag.SCCDAG, pl *Pipeline) []*Queue {
	type key struct {
		producer *cfg.Instruction
		from, to int
		control  bool
		memory   bool
	}
	index := make(map[key]*Queue)
	var queues []*Queue

	add := func(e *pdg.Edge, from, to int) {
		if from == to {
			return
		}
		k := key{e.FromT(), from, to, e.IsControl(), e.IsMemory()}
		q, ok := index[k]
		if !ok {
			q = &Queue{FromStage: from, ToStage: to, Producer: e.FromT(), Control: e.IsControl(), Memory: e.IsMemory()}
			index[k] = q
			queues = append(queues, q)
		}
		for _, c := range q.Consumers {
			if c == e.ToT() {
				return
			}
		}
		q.Consumers = append(q.Consumers, e.ToT())
	}

	clones := cloneTargets(dag, pl)
	for _, e := range dag.Edges() {
		fromStage := pl.StageOf(e.FromT())
		if fromStage == nil {
			continue
		}
		var targets []int
		if toStage := pl.StageOf(e.ToT()); toStage != nil {
			targets = []int{toStage.Order}
		} else {
			targets = clones[e.ToT()]
		}
		for _, sub := range e.SubEdges() {
			inner, ok := sub.(*pdg.Edge)
			if !ok {
				continue
			}
			for _, to := range targets {
				add(inner, fromStage.Order, to)
			}
		}
	}

	sort.SliceStable(queues, func(i, j int) bool {
		if queues[i].FromStage != queues[j].FromStage {
			return queues[i].FromStage < queues[j].FromStage
		}
		return queues[i].ToStage < queues[j].ToStage
	})
	return queues
}

// cloneTargets maps every removable SCC to the sorted orders of the stages
// that consume it, directly or through other removable SCCs.
func cloneTargets(dag *sccdag.SCCDAG, pl *Pipeline) map[*sccdag.SCC][]int {
	targets := make(map[*sccdag.SCC][]int)
	for _, n := range dag.Nodes() {
		if pl.StageOf(n.T()) != nil {
			continue
		}
		seen := map[*sccdag.Node]struct{}{n: {}}
		orders := make(map[int]struct{})
		queue := []*sccdag.Node{n}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range dag.NextDepthNodes(cur) {
				if _, ok := seen[next]; ok {
					continue
				}
				seen[next] = struct{}{}
				if st := pl.StageOf(next.T()); st != nil {
					orders[st.Order] = struct{}{}
					continue
				}
				queue = append(queue, next)
			}
		}
		list := make([]int, 0, len(orders))
		for o := range orders {
			list = append(list, o)
		}
		sort.Ints(list)
		targets[n.T()] = list
	}
	return targets
}

// Validate checks that every queue flows forward, that no queue carries a
// memory dependence and that every SCC with a stage appears in exactly one.
func (pl *Pipeline) Validate() error {
	for _, q := range pl.Queues {
		if q.Memory {
			return errors.Wrapf(ErrMemoryQueue, "validate %v", q)
		}
		if q.FromStage >= q.ToStage {
			return errors.Wrapf(ErrBackwardQueue, "validate %v", q)
		}
	}
	seen := make(map[*sccdag.SCC]int)
	for _, st := range pl.Stages {
		for _, scc := range st.SCCs {
			if prev, dup := seen[scc]; dup {
				return errors.Errorf("validate: %v in stages %d and %d", scc, prev, st.Order)
			}
			seen[scc] = st.Order
		}
	}
	return nil
}
