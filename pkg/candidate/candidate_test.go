package candidate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-dswp/pkg/cfg"
)

const dotProduct = `name: dot-product
function: main
threads: 2
blocks:
  - id: entry
    successors: [header]
    instructions:
      - {id: zero, kind: plain}
      - {id: br0, kind: branch}
  - id: header
    successors: [body, exit]
    instructions:
      - {id: i, kind: phi, clonable: true}
      - {id: cmp, kind: compare}
      - {id: br1, kind: branch}
  - id: body
    successors: [header]
    instructions:
      - {id: ld, kind: load, location: acc, cost: 4}
      - {id: add, kind: plain}
      - {id: st, kind: store, location: acc, cost: 4}
      - {id: inc, kind: plain}
      - {id: br2, kind: branch}
  - id: exit
    instructions:
      - {id: ret, kind: return}
loops:
  - {id: L0, header: header, blocks: [header, body]}
dependences:
  - {from: i, to: cmp}
  - {from: cmp, to: br1}
  - {from: i, to: inc}
  - {from: inc, to: i}
  - {from: ld, to: add}
  - {from: add, to: st}
  - {from: st, to: ld, memory: true, must: true, raw: true}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "dot.yaml", dotProduct)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dot-product", c.Name)
	assert.Equal(t, path, c.Path)
	assert.Equal(t, 2, c.Threads)
	assert.Equal(t, "main", c.Function.FunctionName)
	assert.Len(t, c.Function.Instructions(), 11)
	assert.Len(t, c.DFG.Dependences, 7)
	require.NotNil(t, c.Loop)
	assert.Equal(t, "L0", c.Loop.ID)

	ld, ok := c.Function.Instruction("ld")
	require.True(t, ok)
	assert.Equal(t, cfg.KindLoad, ld.Kind)
	assert.Equal(t, "body", ld.Block)
	assert.Equal(t, "acc", ld.Location)
	assert.Equal(t, 4, ld.Cost)

	cmp, _ := c.Function.Instruction("cmp")
	assert.Equal(t, 1, cmp.Cost, "cost defaults to 1")
	i, _ := c.Function.Instruction("i")
	assert.True(t, i.Clonable)

	header, _ := c.Function.Block("header")
	assert.ElementsMatch(t, []string{"entry", "body"}, header.Predecessors)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "tiny.json", `{
  "function": "f",
  "blocks": [{"id": "b0", "instructions": [{"id": "x", "kind": "plain"}, {"id": "y", "kind": "plain"}]}],
  "dependences": [{"from": "x", "to": "y"}]
}`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny", c.Name, "name falls back to the file name")
	assert.Nil(t, c.Loop, "no loops means the whole function")
	assert.Equal(t, 0, c.Threads)
}

func TestParseTargetLoop(t *testing.T) {
	c, err := Parse([]byte(dotProduct + "loop: L0\n"))
	require.NoError(t, err)
	assert.Equal(t, "L0", c.Loop.ID)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		unknownID bool
	}{
		{name: "empty", content: ""},
		{name: "no blocks", content: "name: x\n"},
		{name: "unknown field", content: "name: x\ncolour: red\nblocks: [{id: b0}]\n"},
		{name: "negative threads", content: "threads: -1\nblocks: [{id: b0}]\n"},
		{
			name:      "unknown dependence target",
			content:   "blocks: [{id: b0, instructions: [{id: x}]}]\ndependences: [{from: x, to: y}]\n",
			unknownID: true,
		},
		{
			name:      "unknown successor",
			content:   "blocks: [{id: b0, successors: [b9]}]\n",
			unknownID: true,
		},
		{
			name:      "loop over unknown block",
			content:   "blocks: [{id: b0}]\nloops: [{id: L0, header: b0, blocks: [b0, b1]}]\n",
			unknownID: true,
		},
		{
			name:      "unknown target loop",
			content:   "blocks: [{id: b0}]\nloop: L7\n",
			unknownID: true,
		},
		{name: "duplicate instruction", content: "blocks: [{id: b0, instructions: [{id: x}, {id: x}]}]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Equal(t, tt.unknownID, errors.Is(err, ErrUnknownID))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
