// Package dswp drives one loop candidate through dependence analysis,
// SCC condensation, partitioning and stage scheduling.
package dswp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/l3aro/go-dswp/internal/config"
	"github.com/l3aro/go-dswp/internal/log"
	"github.com/l3aro/go-dswp/internal/metrics"
	"github.com/l3aro/go-dswp/pkg/candidate"
	"github.com/l3aro/go-dswp/pkg/partition"
	"github.com/l3aro/go-dswp/pkg/pdg"
	"github.com/l3aro/go-dswp/pkg/pipeline"
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

// Phase names, used for logging, metrics and error context.
const (
	PhasePDG       = "pdg"
	PhaseSubgraph  = "subgraph"
	PhaseSCCDAG    = "sccdag"
	PhaseNormalize = "normalize"
	PhasePartition = "partition"
	PhaseHeuristic = "heuristic"
	PhaseStages    = "stages"
)

// Options controls one run.
type Options struct {
	Threads            int
	EnableMerging      bool
	MaxMergeIterations int
	CostTolerance      float64
	Normalize          bool
	DeriveControl      bool
	DeriveMemory       bool
	// Heuristic overrides the default MinMaxHeuristic.
	Heuristic partition.Heuristic
}

// OptionsFromConfig maps configuration onto run options.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Threads:            c.Threads,
		EnableMerging:      c.EnableMerging,
		MaxMergeIterations: c.MaxMergeIterations,
		CostTolerance:      c.CostTolerance,
		Normalize:          c.Normalize,
		DeriveControl:      c.DeriveControl,
		DeriveMemory:       c.DeriveMemory,
	}
}

// Stats summarises what each phase did.
type Stats struct {
	Instructions    int
	NormalizedAway  int
	SCCs            int
	Removable       int
	SeededSubsets   int
	MemoryMerges    int
	HeuristicMerges int
	Subsets         int
	Stages          int
	Queues          int
}

// Result is everything a run produced. Graphs are kept so callers can
// print or inspect them.
type Result struct {
	RunID     string
	Candidate *candidate.Candidate
	Threads   int
	PDG       *pdg.PDG // the candidate's loop or function view
	DAG       *sccdag.SCCDAG
	Partition *partition.Partition
	Pipeline  *pipeline.Pipeline
	Stats     Stats
}

// Plan snapshots the pipeline for serialisation.
func (r *Result) Plan() *pipeline.Plan {
	return r.Pipeline.Plan(r.Candidate.Name, r.Threads)
}

// Driver runs candidates. It holds no per-candidate state and can be
// shared between goroutines.
type Driver struct {
	opts    Options
	logger  log.Logger
	monitor *metrics.Monitor
}

// New creates a driver. A nil logger discards output; a nil monitor uses
// the process wide one.
func New(opts Options, logger log.Logger, monitor *metrics.Monitor) *Driver {
	if logger == nil {
		logger = log.Nop()
	}
	if monitor == nil {
		monitor = metrics.GetMonitor()
	}
	if opts.Heuristic == nil {
		opts.Heuristic = partition.MinMaxHeuristic{Tolerance: opts.CostTolerance}
	}
	return &Driver{opts: opts, logger: logger, monitor: monitor}
}

// PhaseError reports the phase a run stopped in.
type PhaseError struct {
	Candidate string
	Phase     string
	Err       error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("candidate %s: %s: %v", e.Candidate, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Apply runs every phase for c. The context is checked between phases;
// the phases themselves run to completion.
func (d *Driver) Apply(ctx context.Context, c *candidate.Candidate) (res *Result, err error) {
	res = &Result{RunID: uuid.NewString(), Candidate: c, Threads: d.opts.Threads}
	if c.Threads > 0 {
		res.Threads = c.Threads
	}
	logger := d.logger.With("run_id", res.RunID, "candidate", c.Name)

	phase := ""
	defer func() {
		status := metrics.StatusOK
		if err != nil {
			status = metrics.StatusError
			if ctx.Err() != nil {
				status = metrics.StatusCanceled
			}
			logger.Error("run failed", "phase", phase, "error", err)
			err = &PhaseError{Candidate: c.Name, Phase: phase, Err: err}
			res = nil
		}
		d.monitor.RunsTotal.WithLabelValues(status).Inc()
	}()

	step := func(name string, fn func() error) error {
		phase = name
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := fn()
		d.monitor.ObservePhase(name, start)
		return err
	}

	if err = step(PhasePDG, func() error {
		full, err := pdg.NewPDGBuilder(c.Function, c.DFG).
			WithControlDerivation(d.opts.DeriveControl).
			WithMemoryDerivation(d.opts.DeriveMemory).
			Build()
		if err != nil {
			return err
		}
		res.PDG = full
		logger.Debug("built dependence graph", "nodes", full.NumNodes(), "edges", full.NumEdges())
		return nil
	}); err != nil {
		return
	}

	if err = step(PhaseSubgraph, func() error {
		var sub *pdg.PDG
		var err error
		if c.Loop != nil {
			sub, err = res.PDG.LoopsSubgraph(c.Loop)
		} else {
			sub, err = res.PDG.FunctionSubgraph(c.Function)
		}
		if err != nil {
			return err
		}
		res.PDG = sub
		res.Stats.Instructions = sub.NumInternalNodes()
		return nil
	}); err != nil {
		return
	}

	if err = step(PhaseSCCDAG, func() error {
		dag, err := sccdag.CreateSCCDAGFrom(res.PDG)
		if err != nil {
			return err
		}
		res.DAG = dag
		return nil
	}); err != nil {
		return
	}

	if d.opts.Normalize {
		if err = step(PhaseNormalize, func() error {
			removed, err := sccdag.NewNormalizer(res.DAG).Normalize()
			res.Stats.NormalizedAway = removed
			return err
		}); err != nil {
			return
		}
	}
	res.Stats.SCCs = res.DAG.NumNodes()
	d.monitor.SCCs.Set(float64(res.Stats.SCCs))
	logger.Info("condensed", "instructions", res.Stats.Instructions, "sccs", res.Stats.SCCs,
		"normalized_away", res.Stats.NormalizedAway)

	if err = step(PhasePartition, func() error {
		p := partition.New(res.DAG, partition.Options{IdealThreads: res.Threads, Loops: c.Loops})
		if err := p.Seed(); err != nil {
			return err
		}
		res.Stats.SeededSubsets = p.NumSubsets()
		res.Stats.Removable = len(p.RemovableSCCs())
		d.monitor.Subsets.WithLabelValues("seed").Set(float64(p.NumSubsets()))

		merges, err := p.MergeAlongMemoryEdges()
		if err != nil {
			return err
		}
		res.Stats.MemoryMerges = merges
		d.monitor.MergesTotal.WithLabelValues("memory").Add(float64(merges))
		d.monitor.Subsets.WithLabelValues("memory").Set(float64(p.NumSubsets()))
		res.Partition = p
		logger.Info("seeded partition", "subsets", res.Stats.SeededSubsets,
			"memory_merges", merges, "after", p.NumSubsets(), "removable", res.Stats.Removable)
		return nil
	}); err != nil {
		return
	}

	if d.opts.EnableMerging {
		if err = step(PhaseHeuristic, func() error {
			before := res.Partition.NumSubsets()
			merges, err := partition.Adjust(res.Partition, d.opts.Heuristic, d.opts.MaxMergeIterations)
			res.Stats.HeuristicMerges = merges
			d.monitor.MergesTotal.WithLabelValues("heuristic").Add(float64(merges))
			d.monitor.Subsets.WithLabelValues("heuristic").Set(float64(res.Partition.NumSubsets()))
			logger.Info("applied heuristic", "before", before, "merges", merges,
				"after", res.Partition.NumSubsets(), "ideal", res.Threads)
			return err
		}); err != nil {
			return
		}
	}
	res.Stats.Subsets = res.Partition.NumSubsets()

	if err = step(PhaseStages, func() error {
		pl, err := pipeline.CreateStages(res.Partition)
		if err != nil {
			return err
		}
		if err := pl.Validate(); err != nil {
			return err
		}
		res.Pipeline = pl
		return nil
	}); err != nil {
		return
	}
	res.Stats.Stages = len(res.Pipeline.Stages)
	res.Stats.Queues = len(res.Pipeline.Queues)
	d.monitor.Stages.Set(float64(res.Stats.Stages))
	logger.Info("scheduled stages", "stages", res.Stats.Stages, "queues", res.Stats.Queues)

	return res, nil
}
