// Package dfg defines the dependence facts produced upstream: which
// instruction depends on which, and through what (register, memory or
// control flow).
package dfg

import "fmt"

// Dependence is one directed dependence between two instructions. From must
// execute before To.
type Dependence struct {
	From    string `json:"from" yaml:"from"`
	To      string `json:"to" yaml:"to"`
	Memory  bool   `json:"memory,omitempty" yaml:"memory,omitempty"`   // Carried through memory rather than a register
	Must    bool   `json:"must,omitempty" yaml:"must,omitempty"`       // Definitely happens (may otherwise)
	RAW     bool   `json:"raw,omitempty" yaml:"raw,omitempty"`         // Read after write; memory write after write otherwise
	Control bool   `json:"control,omitempty" yaml:"control,omitempty"` // Control rather than data dependence
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`     // Optional name of the value or location
}

func (d Dependence) String() string {
	kind := "data"
	switch {
	case d.Control:
		kind = "control"
	case d.Memory && d.RAW:
		kind = "mem-raw"
	case d.Memory:
		kind = "mem-waw"
	}
	return fmt.Sprintf("%s -> %s (%s)", d.From, d.To, kind)
}

// DFGInfo holds every dependence of one function.
type DFGInfo struct {
	FunctionName string       `json:"function_name"`
	Dependences  []Dependence `json:"dependences"`
}

// HasControl reports whether the producer supplied any control dependence.
func (d *DFGInfo) HasControl() bool {
	if d == nil {
		return false
	}
	for _, dep := range d.Dependences {
		if dep.Control {
			return true
		}
	}
	return false
}

// Memory returns the memory dependences in declaration order.
func (d *DFGInfo) Memory() []Dependence {
	if d == nil {
		return nil
	}
	var out []Dependence
	for _, dep := range d.Dependences {
		if dep.Memory {
			out = append(out, dep)
		}
	}
	return out
}
