package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-dswp/pkg/candidate"
	"github.com/l3aro/go-dswp/pkg/dswp"
)

var sccCmd = &cobra.Command{
	Use:   "scc <file> [--threads N] [--json]",
	Short: "Show the strongly connected components of a candidate",
	Long: `Run the planner on one candidate and list the SCCs of its condensed
dependence graph: members, cost, whether they form a cycle, whether they
are cloned into their consumers, and the stage each one ends up in.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := dswp.OptionsFromConfig(settings)
		if cmd.Flags().Changed("threads") {
			opts.Threads, _ = cmd.Flags().GetInt("threads")
		}
		jsonOutput, _ := cmd.Flags().GetBool("json")

		c, err := candidate.Load(args[0])
		if err != nil {
			return fmt.Errorf("loading candidate: %w", err)
		}
		res, err := dswp.New(opts, logger, nil).Apply(cmd.Context(), c)
		if err != nil {
			return err
		}

		rows, edges := sccTable(res)
		if jsonOutput {
			data, err := json.MarshalIndent(map[string]interface{}{
				"sccs":  rows,
				"edges": edges,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		renderSCCs(cmd.OutOrStdout(), rows, edges)
		return nil
	},
}

func init() {
	sccCmd.Flags().IntP("threads", "t", 0, "Ideal number of stages (default from config)")
	sccCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}

func sccTable(res *dswp.Result) ([]sccRow, []sccEdgeRow) {
	var rows []sccRow
	for _, scc := range res.DAG.SCCs() {
		row := sccRow{
			ID:       scc.ID(),
			Cost:     scc.Cost(),
			Cycle:    scc.HasCycle(),
			Clonable: scc.CanBeCloned(),
			Blocks:   scc.Blocks(),
			Stage:    -1,
		}
		for _, inst := range scc.Instructions() {
			row.Instructions = append(row.Instructions, inst.ID)
		}
		if st := res.Pipeline.StageOf(scc); st != nil {
			row.Stage = st.Order
		}
		rows = append(rows, row)
	}

	var edges []sccEdgeRow
	for _, e := range res.DAG.Edges() {
		edges = append(edges, sccEdgeRow{
			From:     e.FromT().ID(),
			To:       e.ToT().ID(),
			Kind:     edgeKind(e),
			SubEdges: e.NumSubEdges(),
		})
	}
	return rows, edges
}
