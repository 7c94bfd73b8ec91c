package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-dswp/pkg/candidate"
	"github.com/l3aro/go-dswp/pkg/cfg"
	"github.com/l3aro/go-dswp/pkg/pdg"
)

var sliceCmd = &cobra.Command{
	Use:   "slice <file> <instruction> [--backward|--forward] [--edges all|data|control|memory] [--json]",
	Short: "Perform backward or forward slice analysis on an instruction",
	Long: `Perform slice analysis on one instruction of a candidate's function.

Backward slice: every instruction the target depends on.
Forward slice: every instruction depending on the source.

--edges restricts the dependences the slice follows.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		forward, _ := cmd.Flags().GetBool("forward")
		edges, _ := cmd.Flags().GetString("edges")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		filter, err := edgeFilter(edges)
		if err != nil {
			return err
		}

		c, err := candidate.Load(args[0])
		if err != nil {
			return fmt.Errorf("loading candidate: %w", err)
		}
		graph, err := pdg.NewPDGBuilder(c.Function, c.DFG).
			WithControlDerivation(settings.DeriveControl).
			WithMemoryDerivation(settings.DeriveMemory).
			Build()
		if err != nil {
			return fmt.Errorf("building dependence graph: %w", err)
		}

		start, ok := graph.Find(args[1])
		if !ok {
			return fmt.Errorf("instruction %q not found in %s", args[1], args[0])
		}

		var result []*cfg.Instruction
		direction := "backward"
		if forward {
			direction = "forward"
			result = pdg.ForwardSlice(graph, start, filter)
		} else {
			result = pdg.BackwardSlice(graph, start, filter)
		}

		ids := make([]string, 0, len(result))
		for _, inst := range result {
			ids = append(ids, inst.ID)
		}

		if jsonOutput {
			output := map[string]interface{}{
				"candidate":    c.Name,
				"instruction":  args[1],
				"direction":    direction,
				"edges":        edges,
				"instructions": ids,
			}
			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s slice of %s (%s edges): %s\n",
			direction, args[1], edges, strings.Join(ids, " "))
		return nil
	},
}

func init() {
	sliceCmd.Flags().Bool("backward", true, "Backward slice (default)")
	sliceCmd.Flags().Bool("forward", false, "Forward slice")
	sliceCmd.Flags().String("edges", "all", "Dependences to follow: all, data, control or memory")
	sliceCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

func edgeFilter(name string) (pdg.EdgeFilter, error) {
	switch strings.ToLower(name) {
	case "all", "":
		return nil, nil
	case "data":
		return pdg.DataOnly, nil
	case "control":
		return pdg.ControlOnly, nil
	case "memory":
		return pdg.MemoryOnly, nil
	default:
		return nil, fmt.Errorf("unknown edge kind %q (use all, data, control or memory)", name)
	}
}
