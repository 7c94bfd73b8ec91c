package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-dswp/internal/config"
	"github.com/l3aro/go-dswp/internal/metrics"
	"github.com/l3aro/go-dswp/internal/scanner"
	"github.com/l3aro/go-dswp/pkg/cache"
	"github.com/l3aro/go-dswp/pkg/dswp"
	"github.com/l3aro/go-dswp/pkg/pipeline"
)

const planCacheSize = 512

var partitionCmd = &cobra.Command{
	Use:   "partition <path> [--threads N] [--out FILE] [--json]",
	Short: "Plan pipeline stages for candidate files",
	Long: `Plan pipeline stages for one candidate file or every candidate under a directory.

Directories are scanned for .yaml, .yml and .json files, honouring the
configured ignore file. Each candidate is processed independently: a
failing candidate is reported and the others still run.

With --out the plan of a single candidate is written to FILE, as msgpack
when FILE ends in .msgpack or .mp and as JSON otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runPartition,
}

func init() {
	partitionCmd.Flags().IntP("threads", "t", 0, "Ideal number of stages (default from config)")
	partitionCmd.Flags().Bool("no-merge", false, "Skip the merge heuristic")
	partitionCmd.Flags().Int("max-iterations", 0, "Cap heuristic merges (default from config)")
	partitionCmd.Flags().IntP("parallel", "p", 0, "Candidates processed at once (default GOMAXPROCS)")
	partitionCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	partitionCmd.Flags().StringP("out", "o", "", "Write the plan of a single candidate to this file")
	partitionCmd.Flags().String("metrics", "", "Dump run metrics to this file ('-' for stdout)")
	partitionCmd.Flags().Bool("cache", false, "Reuse plans cached under ~/.dswp")
}

// planKey is the part of the run options that shapes a plan.
type planKey struct {
	Threads            int
	EnableMerging      bool
	MaxMergeIterations int
	CostTolerance      float64
	Normalize          bool
	DeriveControl      bool
	DeriveMemory       bool
}

func keyOptions(o dswp.Options) planKey {
	return planKey{
		Threads:            o.Threads,
		EnableMerging:      o.EnableMerging,
		MaxMergeIterations: o.MaxMergeIterations,
		CostTolerance:      o.CostTolerance,
		Normalize:          o.Normalize,
		DeriveControl:      o.DeriveControl,
		DeriveMemory:       o.DeriveMemory,
	}
}

func runPartition(cmd *cobra.Command, args []string) error {
	opts := dswp.OptionsFromConfig(settings)
	if cmd.Flags().Changed("threads") {
		opts.Threads, _ = cmd.Flags().GetInt("threads")
		if opts.Threads <= 0 {
			return fmt.Errorf("threads must be positive: %d", opts.Threads)
		}
	}
	if cmd.Flags().Changed("max-iterations") {
		opts.MaxMergeIterations, _ = cmd.Flags().GetInt("max-iterations")
	}
	if noMerge, _ := cmd.Flags().GetBool("no-merge"); noMerge {
		opts.EnableMerging = false
	}
	parallel, _ := cmd.Flags().GetInt("parallel")
	outPath, _ := cmd.Flags().GetString("out")
	metricsPath, _ := cmd.Flags().GetString("metrics")
	useCache, _ := cmd.Flags().GetBool("cache")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if !cmd.Flags().Changed("json") {
		jsonOutput = settings.Output == config.OutputJSON
	}

	paths, err := candidateFiles(args[0], settings.IgnoreFile)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no candidate files under %s", args[0])
	}
	if outPath != "" && len(paths) != 1 {
		return fmt.Errorf("--out needs a single candidate, found %d", len(paths))
	}

	monitor := metrics.GetMonitor()
	driver := dswp.New(opts, logger, monitor)

	var plans *cache.PlanCache
	cachePath := planCachePath()
	if useCache {
		plans = cache.New(cache.Options{MaxSize: planCacheSize})
		if err := plans.LoadFile(cachePath); err != nil {
			logger.Warn("ignoring unreadable plan cache", "path", cachePath, "error", err)
			plans = cache.New(cache.Options{MaxSize: planCacheSize})
		}
	}

	reports := make([]report, len(paths))
	keys := make(map[string]cache.Key, len(paths))
	var pending []string
	for i, path := range paths {
		reports[i].Path = path
		if plans == nil {
			pending = append(pending, path)
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			reports[i].Error = err.Error()
			continue
		}
		key, err := cache.KeyFor(content, keyOptions(opts))
		if err != nil {
			return err
		}
		if plan, ok := plans.Get(key); ok {
			reports[i].Name, reports[i].Plan, reports[i].Cached = plan.Name, plan, true
			continue
		}
		keys[path] = key
		pending = append(pending, path)
	}

	outcomes, err := driver.ApplyFiles(cmd.Context(), pending, parallel)
	if err != nil {
		return fmt.Errorf("partition interrupted: %w", err)
	}
	byPath := make(map[string]dswp.Outcome, len(outcomes))
	for _, o := range outcomes {
		byPath[o.Path] = o
	}

	failed := 0
	for i := range reports {
		o, ok := byPath[reports[i].Path]
		if !ok {
			if reports[i].Error != "" {
				failed++
			}
			continue
		}
		if o.Err != nil {
			reports[i].Error = o.Err.Error()
			failed++
			continue
		}
		if o.Result == nil {
			continue
		}
		plan := o.Result.Plan()
		reports[i].Name, reports[i].RunID, reports[i].Plan = plan.Name, o.Result.RunID, plan
		if plans != nil {
			plans.Set(keys[reports[i].Path], plan)
		}
	}

	if plans != nil {
		if err := plans.SaveFile(cachePath); err != nil {
			logger.Warn("failed to save plan cache", "path", cachePath, "error", err)
		}
		hits, misses := plans.Stats()
		logger.Debug("plan cache", "hits", hits, "misses", misses, "entries", plans.Len())
	}

	if outPath != "" && reports[0].Plan != nil {
		if err := writePlan(outPath, reports[0].Plan); err != nil {
			return err
		}
	}

	if err := printReports(cmd.OutOrStdout(), reports, jsonOutput); err != nil {
		return err
	}

	if metricsPath != "" {
		if err := dumpMetrics(cmd.OutOrStdout(), metricsPath, monitor); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d candidates failed", failed, len(reports))
	}
	return nil
}

// candidateFiles lists the candidate files at root, a file or a directory.
func candidateFiles(root, ignoreFile string) ([]string, error) {
	opts := scanner.DefaultOptions()
	if ignoreFile != "" {
		opts.IgnoreFileName = ignoreFile
	}
	files, err := scanner.New(opts).Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.FullPath)
	}
	return paths, nil
}

func planCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(config.DirName, "plans.msgpack")
	}
	return filepath.Join(home, config.DirName, "plans.msgpack")
}

func writePlan(path string, plan *pipeline.Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating plan file: %w", err)
	}
	defer f.Close()
	if err := pipeline.EncodePlan(f, plan, pipeline.FormatForPath(path)); err != nil {
		return fmt.Errorf("writing plan: %w", err)
	}
	return nil
}

func printReports(w io.Writer, reports []report, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	renderSummary(w, reports)
	for _, r := range reports {
		if r.Plan != nil {
			renderPlan(w, r.Plan)
		}
	}
	return nil
}

func dumpMetrics(stdout io.Writer, path string, monitor *metrics.Monitor) error {
	if path == "-" {
		return monitor.Dump(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer f.Close()
	return monitor.Dump(f)
}
