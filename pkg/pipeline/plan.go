package pipeline

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/go-dswp/pkg/cfg"
)

// Format selects the plan encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Plan is the serialisable form of a pipeline, handed to code generation.
type Plan struct {
	Name      string      `json:"name" msgpack:"name"`
	Threads   int         `json:"threads" msgpack:"threads"`
	Stages    []StagePlan `json:"stages" msgpack:"stages"`
	Removable [][]string  `json:"removable,omitempty" msgpack:"removable,omitempty"`
	Queues    []QueuePlan `json:"queues,omitempty" msgpack:"queues,omitempty"`
}

// StagePlan lists the instruction ids of every SCC in a stage.
type StagePlan struct {
	Order int        `json:"order" msgpack:"order"`
	Cost  int        `json:"cost" msgpack:"cost"`
	SCCs  [][]string `json:"sccs" msgpack:"sccs"`
	Loops []string   `json:"loops,omitempty" msgpack:"loops,omitempty"`
}

// QueuePlan is the serialisable form of a Queue.
type QueuePlan struct {
	From      int      `json:"from" msgpack:"from"`
	To        int      `json:"to" msgpack:"to"`
	Producer  string   `json:"producer" msgpack:"producer"`
	Consumers []string `json:"consumers" msgpack:"consumers"`
	Control   bool     `json:"control,omitempty" msgpack:"control,omitempty"`
	Memory    bool     `json:"memory,omitempty" msgpack:"memory,omitempty"`
}

// Plan snapshots the pipeline under the given name.
func (pl *Pipeline) Plan(name string, threads int) *Plan {
	plan := &Plan{Name: name, Threads: threads}
	for _, st := range pl.Stages {
		sp := StagePlan{Order: st.Order, Cost: st.Cost()}
		for _, scc := range st.SCCs {
			sp.SCCs = append(sp.SCCs, instructionIDs(scc.Instructions()))
		}
		for _, l := range st.Subset.LoopsContained() {
			sp.Loops = append(sp.Loops, l.ID)
		}
		plan.Stages = append(plan.Stages, sp)
	}
	for _, scc := range pl.Removable {
		plan.Removable = append(plan.Removable, instructionIDs(scc.Instructions()))
	}
	for _, q := range pl.Queues {
		plan.Queues = append(plan.Queues, QueuePlan{
			From:      q.FromStage,
			To:        q.ToStage,
			Producer:  q.Producer.ID,
			Consumers: instructionIDs(q.Consumers),
			Control:   q.Control,
			Memory:    q.Memory,
		})
	}
	return plan
}

// EncodePlan writes plan to w in the given format.
func EncodePlan(w io.Writer, plan *Plan, format Format) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(plan)
	default:
		return errors.Errorf("unsupported plan format %q", format)
	}
}

// DecodePlan reads a plan written by EncodePlan.
func DecodePlan(r io.Reader, format Format) (*Plan, error) {
	var plan Plan
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(r).Decode(&plan); err != nil {
			return nil, errors.Wrap(err, "failed to decode plan")
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&plan); err != nil {
			return nil, errors.Wrap(err, "failed to decode plan")
		}
	default:
		return nil, errors.Errorf("unsupported plan format %q", format)
	}
	return &plan, nil
}

// FormatForPath picks msgpack for .msgpack/.mp files and JSON otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

func instructionIDs(insts []*cfg.Instruction) []string {
	out := make([]string, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.ID)
	}
	return out
}
