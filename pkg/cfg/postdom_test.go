package cfg

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostDomTreeDiamond(t *testing.T) {
	f, err := NewCFGInfo("f", nil, diamond())
	require.NoError(t, err)
	pdt := NewPostDomTree(f)

	assert.Equal(t, "join", pdt.ImmediatePostDominator("entry"))
	assert.Equal(t, "join", pdt.ImmediatePostDominator("then"))
	assert.Equal(t, "", pdt.ImmediatePostDominator("join"))

	assert.True(t, pdt.Dominates("join", "entry"))
	assert.True(t, pdt.Dominates("join", "join"))
	assert.False(t, pdt.ProperlyDominates("join", "join"))
	assert.False(t, pdt.Dominates("then", "entry"))
	assert.False(t, pdt.Dominates("missing", "entry"))

	desc := pdt.Descendants("join")
	sort.Strings(desc)
	assert.Equal(t, []string{"else", "entry", "join", "then"}, desc)
	assert.Equal(t, []string{"then"}, pdt.Descendants("then"))
}

func TestPostDomTreeLoop(t *testing.T) {
	blocks := []*Block{
		{ID: "entry", Successors: []string{"header"}},
		{ID: "header", Successors: []string{"body", "exit"}},
		{ID: "body", Successors: []string{"header"}},
		{ID: "exit"},
	}
	f, err := NewCFGInfo("loop", nil, blocks)
	require.NoError(t, err)
	pdt := NewPostDomTree(f)

	assert.Equal(t, "header", pdt.ImmediatePostDominator("body"))
	assert.Equal(t, "exit", pdt.ImmediatePostDominator("header"))
	assert.True(t, pdt.Dominates("exit", "body"))
	assert.False(t, pdt.Dominates("body", "header"))
}

func TestPostDomTreeMultipleExits(t *testing.T) {
	blocks := []*Block{
		{ID: "entry", Successors: []string{"a", "b"}},
		{ID: "a"},
		{ID: "b"},
	}
	f, err := NewCFGInfo("f", nil, blocks)
	require.NoError(t, err)
	pdt := NewPostDomTree(f)

	assert.Equal(t, "", pdt.ImmediatePostDominator("entry"))
	assert.False(t, pdt.Dominates("a", "entry"))
	assert.True(t, pdt.Dominates("entry", "entry"))
}
