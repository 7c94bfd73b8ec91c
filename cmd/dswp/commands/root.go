// Package commands provides the CLI commands for the dswp tool.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-dswp/internal/config"
	"github.com/l3aro/go-dswp/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "dswp",
	Short: "dswp - Decoupled software pipelining planner",
	Long: `dswp splits loop candidates into pipeline stages.

A candidate file describes one function: its blocks, loops and the
dependences between instructions. dswp condenses the dependence graph into
strongly connected components, groups them into at most --threads subsets
and orders the subsets into stages linked by queues.

Commands:
  partition   Plan pipeline stages for a candidate file or directory
  scc         Show the strongly connected components of a candidate
  slice       Backward or forward dependence slice of one instruction
  init        Create the project configuration interactively

Use "dswp [command] --help" for more information about a command.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	// settings is the configuration resolved by setup.
	settings *config.Config
	logger   log.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.dswp/config.yaml then ./.dswp/config.yaml)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")

	RootCmd.AddCommand(partitionCmd)
	RootCmd.AddCommand(sccCmd)
	RootCmd.AddCommand(sliceCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(versionCmd)
}

// setup resolves configuration and the logger before every command.
func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	var err error
	if path != "" {
		settings, err = config.LoadFromFile(path)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		settings.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-json") {
		settings.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}

	level, err := log.ParseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: settings.LogJSON,
		Output:     cmd.ErrOrStderr(),
	})
	return nil
}
