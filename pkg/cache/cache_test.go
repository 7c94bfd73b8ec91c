package cache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-dswp/pkg/pipeline"
)

func plan(name string) *pipeline.Plan {
	return &pipeline.Plan{
		Name:    name,
		Threads: 2,
		Stages:  []pipeline.StagePlan{{Order: 0, Cost: 3, SCCs: [][]string{{"x", "y"}}}},
	}
}

func TestPlanCache_Basic(t *testing.T) {
	c := New(Options{MaxSize: 3})

	c.Set("a", plan("a"))
	c.Set("b", plan("b"))
	assert.Equal(t, 2, c.Len())

	got, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "a", got.Name)

	_, found = c.Get("zzz")
	assert.False(t, found)

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestPlanCache_LRU_Eviction(t *testing.T) {
	var evicted []Key
	c := New(Options{MaxSize: 3, OnEvict: func(k Key, _ *pipeline.Plan) { evicted = append(evicted, k) }})

	c.Set("a", plan("a"))
	c.Set("b", plan("b"))
	c.Set("c", plan("c"))

	// Access 'a' to make it most recently used
	c.Get("a")

	c.Set("d", plan("d"))

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []Key{"b"}, evicted)

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
	for _, k := range []Key{"a", "c", "d"} {
		_, found = c.Get(k)
		assert.True(t, found, "%s should still be present", k)
	}
}

func TestPlanCache_Overwrite(t *testing.T) {
	c := New(Options{})
	c.Set("a", plan("first"))
	c.Set("a", plan("second"))

	got, _ := c.Get("a")
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, 1, c.Len())
}

func TestPlanCache_Delete(t *testing.T) {
	c := New(Options{})
	c.Set("a", plan("a"))

	require.NoError(t, c.Delete("a"))
	assert.Equal(t, 0, c.Len())
	assert.ErrorIs(t, c.Delete("a"), ErrKeyNotFound)
}

func TestPlanCache_SaveLoad(t *testing.T) {
	c := New(Options{})
	c.Set("old", plan("old"))
	c.Set("new", plan("new"))

	var buf bytes.Buffer
	require.NoError(t, c.Save(&buf))

	restored := New(Options{MaxSize: 1})
	require.NoError(t, restored.Load(&buf))

	// only the most recent entry survives the smaller limit
	assert.Equal(t, 1, restored.Len())
	got, found := restored.Get("new")
	require.True(t, found)
	assert.Equal(t, plan("new"), got)
}

func TestPlanCache_Files(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "plans.msgpack")

	empty := New(Options{})
	require.NoError(t, empty.LoadFile(path), "missing file is not an error")
	assert.Equal(t, 0, empty.Len())

	c := New(Options{})
	c.Set("k", plan("k"))
	require.NoError(t, c.SaveFile(path))

	loaded := New(Options{})
	require.NoError(t, loaded.LoadFile(path))
	_, found := loaded.Get("k")
	assert.True(t, found)
}

func TestPlanCache_LoadGarbage(t *testing.T) {
	c := New(Options{})
	assert.Error(t, c.Load(bytes.NewReader([]byte{0xc1})))
}

func TestKeyFor(t *testing.T) {
	type opts struct {
		Threads int
		Merge   bool
	}

	k1, err := KeyFor([]byte("name: a"), opts{Threads: 2, Merge: true})
	require.NoError(t, err)
	k2, err := KeyFor([]byte("name: a"), opts{Threads: 2, Merge: true})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, string(k1), 64)

	k3, err := KeyFor([]byte("name: a"), opts{Threads: 3, Merge: true})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	k4, err := KeyFor([]byte("name: b"), opts{Threads: 2, Merge: true})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k4)
}
