package dswp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-dswp/internal/config"
	"github.com/l3aro/go-dswp/internal/metrics"
	"github.com/l3aro/go-dswp/pkg/candidate"
	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/dfg"
	"github.com/l3aro/go-dswp/pkg/pdg"
)

const accumulate = `name: accumulate
function: main
blocks:
  - id: entry
    successors: [header]
    instructions:
      - {id: zero, kind: plain}
      - {id: br0, kind: branch}
  - id: header
    successors: [body, exit]
    instructions:
      - {id: i, kind: phi, clonable: true}
      - {id: cmp, kind: compare}
      - {id: br1, kind: branch}
  - id: body
    successors: [header]
    instructions:
      - {id: ld, kind: load, location: acc, cost: 4}
      - {id: add, kind: plain}
      - {id: st, kind: store, location: acc, cost: 4}
      - {id: inc, kind: plain}
      - {id: br2, kind: branch}
  - id: exit
    instructions:
      - {id: ret, kind: return}
loops:
  - {id: L0, header: header, blocks: [header, body]}
dependences:
  - {from: i, to: cmp}
  - {from: cmp, to: br1}
  - {from: i, to: inc}
  - {from: inc, to: i}
  - {from: ld, to: add}
  - {from: add, to: st}
  - {from: st, to: ld, memory: true, must: true, raw: true}
`

func loadAccumulate(t *testing.T) *candidate.Candidate {
	t.Helper()
	c, err := candidate.Parse([]byte(accumulate))
	require.NoError(t, err)
	return c
}

func defaultOptions(threads int) Options {
	opts := OptionsFromConfig(config.DefaultConfig())
	opts.Threads = threads
	return opts
}

func stageIDs(r *Result) [][]string {
	var out [][]string
	for _, st := range r.Pipeline.Stages {
		var ids []string
		for _, scc := range st.SCCs {
			for _, inst := range scc.Instructions() {
				ids = append(ids, inst.ID)
			}
		}
		out = append(out, ids)
	}
	return out
}

func TestApplyTwoStages(t *testing.T) {
	m := metrics.NewMonitor()
	d := New(defaultOptions(2), nil, m)

	res, err := d.Apply(context.Background(), loadAccumulate(t))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Threads)
	assert.Equal(t, Stats{
		Instructions:   8,
		NormalizedAway: 1,
		SCCs:           2,
		SeededSubsets:  2,
		Subsets:        2,
		Stages:         2,
		Queues:         1,
	}, res.Stats)

	assert.Equal(t, [][]string{{"i", "cmp", "br1", "inc", "br2"}, {"ld", "add", "st"}}, stageIDs(res))

	q := res.Pipeline.Queues[0]
	assert.True(t, q.Control)
	assert.Equal(t, "br1", q.Producer.ID)
	var consumers []string
	for _, c := range q.Consumers {
		consumers = append(consumers, c.ID)
	}
	assert.ElementsMatch(t, []string{"ld", "add", "st"}, consumers)

	plan := res.Plan()
	assert.Equal(t, "accumulate", plan.Name)
	assert.Len(t, plan.Stages, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Stages))
}

func TestApplyMergesToThreadCount(t *testing.T) {
	d := New(defaultOptions(1), nil, metrics.NewMonitor())

	res, err := d.Apply(context.Background(), loadAccumulate(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.HeuristicMerges)
	assert.Equal(t, 1, res.Stats.Stages)
	assert.Empty(t, res.Pipeline.Queues)
}

func TestApplyCandidateThreadOverride(t *testing.T) {
	c := loadAccumulate(t)
	c.Threads = 1

	res, err := New(defaultOptions(4), nil, metrics.NewMonitor()).Apply(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Threads)
	assert.Equal(t, 1, res.Stats.Stages)
}

func TestApplyWithoutMerging(t *testing.T) {
	opts := defaultOptions(1)
	opts.EnableMerging = false

	res, err := New(opts, nil, metrics.NewMonitor()).Apply(context.Background(), loadAccumulate(t))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.HeuristicMerges)
	assert.Equal(t, 2, res.Stats.Stages)
}

func TestApplyWholeFunction(t *testing.T) {
	f, err := cfg.NewCFGInfo("f", nil, []*cfg.Block{{ID: "b0", Instructions: []*cfg.Instruction{
		{ID: "x", Kind: cfg.KindPlain},
		{ID: "y", Kind: cfg.KindPlain},
		{ID: "z", Kind: cfg.KindPlain},
	}}})
	require.NoError(t, err)
	c := &candidate.Candidate{
		Name:     "chain",
		Function: f,
		DFG:      &dfg.DFGInfo{Dependences: []dfg.Dependence{{From: "x", To: "y"}, {From: "y", To: "z"}}},
	}

	res, err := New(defaultOptions(3), nil, metrics.NewMonitor()).Apply(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"x"}, {"y"}, {"z"}}, stageIDs(res))
	assert.Len(t, res.Pipeline.Queues, 2)
}

func TestApplyFailures(t *testing.T) {
	t.Run("canceled", func(t *testing.T) {
		m := metrics.NewMonitor()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := New(defaultOptions(2), nil, m).Apply(ctx, loadAccumulate(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))

		var perr *PhaseError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, PhasePDG, perr.Phase)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.StatusCanceled)))
	})

	t.Run("unknown instruction", func(t *testing.T) {
		c := loadAccumulate(t)
		c.DFG.Dependences = append(c.DFG.Dependences, dfg.Dependence{From: "ghost", To: "ld"})

		m := metrics.NewMonitor()
		_, err := New(defaultOptions(2), nil, m).Apply(context.Background(), c)
		require.Error(t, err)
		assert.True(t, errors.Is(err, pdg.ErrUnknownInstruction))
		assert.Contains(t, err.Error(), "accumulate")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.StatusError)))
	})
}

func TestApplyFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(good, []byte(accumulate), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("blocks: []\n"), 0644))

	d := New(defaultOptions(2), nil, metrics.NewMonitor())
	outcomes, err := d.ApplyFiles(context.Background(), []string{good, bad}, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, good, outcomes[0].Path)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, 2, outcomes[0].Result.Stats.Stages)

	assert.Equal(t, bad, outcomes[1].Path)
	assert.Error(t, outcomes[1].Err)
	assert.Nil(t, outcomes[1].Result)
}
