package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/l3aro/go-dswp/pkg/pipeline"
	"github.com/l3aro/go-dswp/pkg/sccdag"
)

// report is the outcome of one candidate as printed by partition.
type report struct {
	Path   string         `json:"path"`
	Name   string         `json:"name,omitempty"`
	RunID  string         `json:"run_id,omitempty"`
	Cached bool           `json:"cached,omitempty"`
	Plan   *pipeline.Plan `json:"plan,omitempty"`
	Error  string         `json:"error,omitempty"`
}

func (r report) status() string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Cached:
		return "cached"
	default:
		return "ok"
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(header)
	return table
}

func renderSummary(w io.Writer, reports []report) {
	table := newTable(w, []string{"Candidate", "Status", "Threads", "Stages", "Queues", "Detail"})
	for _, r := range reports {
		name := r.Name
		if name == "" {
			name = r.Path
		}
		row := []string{name, r.status(), "-", "-", "-", r.Error}
		if r.Plan != nil {
			row[2] = strconv.Itoa(r.Plan.Threads)
			row[3] = strconv.Itoa(len(r.Plan.Stages))
			row[4] = strconv.Itoa(len(r.Plan.Queues))
		}
		table.Append(row)
	}
	table.Render()
}

func renderPlan(w io.Writer, plan *pipeline.Plan) {
	fmt.Fprintf(w, "\n%s (%d threads)\n", plan.Name, plan.Threads)

	stages := newTable(w, []string{"Stage", "Cost", "SCCs", "Loops"})
	for _, st := range plan.Stages {
		sccs := make([]string, 0, len(st.SCCs))
		for _, ids := range st.SCCs {
			sccs = append(sccs, "{"+strings.Join(ids, ",")+"}")
		}
		stages.Append([]string{
			strconv.Itoa(st.Order),
			strconv.Itoa(st.Cost),
			strings.Join(sccs, " "),
			strings.Join(st.Loops, ","),
		})
	}
	stages.Render()

	if len(plan.Removable) > 0 {
		cloned := make([]string, 0, len(plan.Removable))
		for _, ids := range plan.Removable {
			cloned = append(cloned, "{"+strings.Join(ids, ",")+"}")
		}
		fmt.Fprintf(w, "cloned: %s\n", strings.Join(cloned, " "))
	}

	if len(plan.Queues) == 0 {
		return
	}
	queues := newTable(w, []string{"From", "To", "Producer", "Consumers", "Kind"})
	for _, q := range plan.Queues {
		kind := "data"
		switch {
		case q.Memory:
			kind = "memory"
		case q.Control:
			kind = "control"
		}
		queues.Append([]string{
			strconv.Itoa(q.From),
			strconv.Itoa(q.To),
			q.Producer,
			strings.Join(q.Consumers, ","),
			kind,
		})
	}
	queues.Render()
}

// sccRow describes one node of the condensed graph.
type sccRow struct {
	ID           int      `json:"id"`
	Instructions []string `json:"instructions"`
	Cost         int      `json:"cost"`
	Cycle        bool     `json:"cycle"`
	Clonable     bool     `json:"clonable"`
	Blocks       []string `json:"blocks"`
	// Stage is -1 for SCCs cloned into their consumers.
	Stage int `json:"stage"`
}

// sccEdgeRow describes one condensed edge.
type sccEdgeRow struct {
	From     int    `json:"from"`
	To       int    `json:"to"`
	Kind     string `json:"kind"`
	SubEdges int    `json:"sub_edges"`
}

func edgeKind(e *sccdag.Edge) string {
	switch {
	case e.IsMemory():
		return "memory"
	case e.IsControl():
		return "control"
	default:
		return "data"
	}
}

func renderSCCs(w io.Writer, rows []sccRow, edges []sccEdgeRow) {
	table := newTable(w, []string{"SCC", "Instructions", "Cost", "Cycle", "Clonable", "Blocks", "Stage"})
	for _, r := range rows {
		stage := "clone"
		if r.Stage >= 0 {
			stage = strconv.Itoa(r.Stage)
		}
		table.Append([]string{
			strconv.Itoa(r.ID),
			strings.Join(r.Instructions, ","),
			strconv.Itoa(r.Cost),
			strconv.FormatBool(r.Cycle),
			strconv.FormatBool(r.Clonable),
			strings.Join(r.Blocks, ","),
			stage,
		})
	}
	table.Render()

	if len(edges) == 0 {
		return
	}
	et := newTable(w, []string{"From", "To", "Kind", "Sub-edges"})
	for _, e := range edges {
		et.Append([]string{strconv.Itoa(e.From), strconv.Itoa(e.To), e.Kind, strconv.Itoa(e.SubEdges)})
	}
	et.Render()
}
