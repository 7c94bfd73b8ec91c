package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-dswp/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize dswp configuration interactively",
	Long: `Guides you through setting up dswp configuration step by step.
Creates a config file with the thread count, merge heuristic and output settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd)
	},
}

// initAnswers holds the raw form values.
type initAnswers struct {
	Threads       string
	EnableMerging bool
	Tolerance     string
	DeriveMemory  bool
	LogLevel      string
	Output        string
	Location      string
}

func defaultAnswers(base *config.Config) initAnswers {
	return initAnswers{
		Threads:       strconv.Itoa(base.Threads),
		EnableMerging: base.EnableMerging,
		Tolerance:     strconv.FormatFloat(base.CostTolerance, 'f', -1, 64),
		DeriveMemory:  base.DeriveMemory,
		LogLevel:      base.LogLevel,
		Output:        string(base.Output),
		Location:      "project",
	}
}

// toConfig builds a validated config from the answers on top of base.
func (a initAnswers) toConfig(base *config.Config) (*config.Config, error) {
	cfg := *base

	threads, err := strconv.Atoi(a.Threads)
	if err != nil {
		return nil, fmt.Errorf("threads: %w", err)
	}
	tolerance, err := strconv.ParseFloat(a.Tolerance, 64)
	if err != nil {
		return nil, fmt.Errorf("cost tolerance: %w", err)
	}

	cfg.Threads = threads
	cfg.EnableMerging = a.EnableMerging
	cfg.CostTolerance = tolerance
	cfg.DeriveMemory = a.DeriveMemory
	cfg.LogLevel = a.LogLevel
	cfg.Output = config.OutputFormat(a.Output)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validateInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("enter a positive whole number")
	}
	return nil
}

func validateTolerance(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 {
		return fmt.Errorf("enter a number of at least 1.0")
	}
	return nil
}

func runInit(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	answers := defaultAnswers(config.DefaultConfig())

	// === SECTION 1: Partitioning ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Threads").
				Description("Ideal number of pipeline stages").
				Validate(validateInt).
				Value(&answers.Threads),
			huh.NewConfirm().
				Title("Merge heuristic").
				Description("Merge subsets down to the thread count?").
				Value(&answers.EnableMerging),
			huh.NewInput().
				Title("Cost tolerance").
				Description("Multiplier on the per-stage cost ceiling (>= 1.0)").
				Validate(validateTolerance).
				Value(&answers.Tolerance),
			huh.NewConfirm().
				Title("Memory dependences").
				Description("Derive dependences between loads and stores of the same location?").
				Value(&answers.DeriveMemory),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Output ===
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&answers.LogLevel),
			huh.NewSelect[string]().
				Title("Output format").
				Options(
					huh.NewOption("Table", string(config.OutputTable)),
					huh.NewOption("JSON", string(config.OutputJSON)),
				).
				Value(&answers.Output),
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.dswp/config.yaml)", "project"),
					huh.NewOption("Global (~/.dswp/config.yaml)", "global"),
				).
				Value(&answers.Location),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if answers.Location == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, config.DirName, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	cfg, err := answers.toConfig(config.DefaultConfig())
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== Configuration Preview ===")
	fmt.Fprintf(out, "Config path: %s\n", configPath)
	fmt.Fprintf(out, "Threads: %d\n", cfg.Threads)
	fmt.Fprintf(out, "Merging: %t (tolerance %g)\n", cfg.EnableMerging, cfg.CostTolerance)
	fmt.Fprintf(out, "Derive memory: %t\n", cfg.DeriveMemory)
	fmt.Fprintf(out, "Log level: %s\n", cfg.LogLevel)
	fmt.Fprintf(out, "Output: %s\n", cfg.Output)
	fmt.Fprintln(out, "================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "Configuration saved to: %s\n", configPath)
	return nil
}
