package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how the CLI prints results
type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
)

// DirName is the per-user and per-project configuration directory.
const DirName = ".dswp"

// Config holds all configuration for go-dswp
type Config struct {
	// Threads is the ideal number of pipeline stages
	Threads int `yaml:"threads" env:"DSWP_THREADS"`

	// EnableMerging runs the merge heuristic after forced memory merges
	EnableMerging bool `yaml:"enable_merging" env:"DSWP_ENABLE_MERGING"`

	// MaxMergeIterations caps heuristic merges, 0 means unbounded
	MaxMergeIterations int `yaml:"max_merge_iterations" env:"DSWP_MAX_MERGE_ITERATIONS"`

	// CostTolerance scales the per-stage cost ceiling of the heuristic
	CostTolerance float64 `yaml:"cost_tolerance" env:"DSWP_COST_TOLERANCE"`

	// Normalize folds syntactic sugar and trailing branches before partitioning
	Normalize bool `yaml:"normalize" env:"DSWP_NORMALIZE"`

	// DeriveControl computes control dependences from post-dominance when
	// a candidate supplies none
	DeriveControl bool `yaml:"derive_control" env:"DSWP_DERIVE_CONTROL"`

	// DeriveMemory adds reaching-store dependences for located loads and stores
	DeriveMemory bool `yaml:"derive_memory" env:"DSWP_DERIVE_MEMORY"`

	// Logging
	LogLevel string `yaml:"log_level" env:"DSWP_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"DSWP_LOG_JSON"`

	// Output is the CLI result format
	Output OutputFormat `yaml:"output" env:"DSWP_OUTPUT"`

	// IgnoreFile names the ignore file honoured when scanning directories
	IgnoreFile string `yaml:"ignore_file" env:"DSWP_IGNORE_FILE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Threads:            2,
		EnableMerging:      true,
		MaxMergeIterations: 0,
		CostTolerance:      1.0,
		Normalize:          true,
		DeriveControl:      true,
		DeriveMemory:       false,
		LogLevel:           "info",
		LogJSON:            false,
		Output:             OutputTable,
		IgnoreFile:         ".dswpignore",
	}
}

// globalConfigFilePath returns the global config file path (~/.dswp/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DirName, "config.yaml")
	}
	return filepath.Join(home, DirName, "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.dswp/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(DirName, "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.dswp/config.yaml)
// 3. Global config (~/.dswp/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{globalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Malformed numbers are reported rather than silently ignored.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DSWP_THREADS"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DSWP_THREADS %q: %w", v, err)
		}
		cfg.Threads = i
	}
	if v := os.Getenv("DSWP_ENABLE_MERGING"); v != "" {
		cfg.EnableMerging = parseBool(v)
	}
	if v := os.Getenv("DSWP_MAX_MERGE_ITERATIONS"); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DSWP_MAX_MERGE_ITERATIONS %q: %w", v, err)
		}
		cfg.MaxMergeIterations = i
	}
	if v := os.Getenv("DSWP_COST_TOLERANCE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid DSWP_COST_TOLERANCE %q: %w", v, err)
		}
		cfg.CostTolerance = f
	}
	if v := os.Getenv("DSWP_NORMALIZE"); v != "" {
		cfg.Normalize = parseBool(v)
	}
	if v := os.Getenv("DSWP_DERIVE_CONTROL"); v != "" {
		cfg.DeriveControl = parseBool(v)
	}
	if v := os.Getenv("DSWP_DERIVE_MEMORY"); v != "" {
		cfg.DeriveMemory = parseBool(v)
	}
	if v := os.Getenv("DSWP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DSWP_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("DSWP_OUTPUT"); v != "" {
		cfg.Output = OutputFormat(v)
	}
	if v := os.Getenv("DSWP_IGNORE_FILE"); v != "" {
		cfg.IgnoreFile = v
	}
	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Threads <= 0 {
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	}
	if c.MaxMergeIterations < 0 {
		return fmt.Errorf("max_merge_iterations must be non-negative")
	}
	if c.CostTolerance < 1.0 {
		return fmt.Errorf("cost_tolerance must be at least 1.0, got %g", c.CostTolerance)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be one of debug, info, warn, error)", c.LogLevel)
	}

	switch c.Output {
	case OutputTable, OutputJSON:
	default:
		return fmt.Errorf("invalid output: %s (must be 'table' or 'json')", c.Output)
	}

	return nil
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
