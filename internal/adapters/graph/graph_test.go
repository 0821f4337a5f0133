package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDependencies(t *testing.T) {
	t.Run("Missing Dependency", func(t *testing.T) {
		g := New()
		err := g.AddDependencies("b", []string{"a"})
		assert.ErrorIs(t, err, ErrMissingDependency)
		assert.False(t, g.Has("b"), "rejected insert must leave the graph untouched")
	})

	t.Run("Self Dependency", func(t *testing.T) {
		g := New()
		err := g.AddDependencies("a", []string{"a"})
		assert.ErrorIs(t, err, ErrCycle)
		assert.False(t, g.Has("a"))
	})

	t.Run("Cycle Rejected Atomically", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddDependencies("a", nil))
		require.NoError(t, g.AddDependencies("b", []string{"a"}))

		// a -> b would close the cycle b -> a -> b
		err := g.AddDependencies("a", []string{"b"})
		assert.ErrorIs(t, err, ErrCycle)
		assert.Empty(t, g.Dependencies("a"), "a must still have no dependencies")
		assert.Equal(t, []string{"a"}, g.Dependencies("b"))
	})

	t.Run("Transitive Cycle Rejected", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddDependencies("a", nil))
		require.NoError(t, g.AddDependencies("b", []string{"a"}))
		require.NoError(t, g.AddDependencies("c", []string{"b"}))

		err := g.AddDependencies("a", []string{"c"})
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("Diamond Is Fine", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddDependencies("base", nil))
		require.NoError(t, g.AddDependencies("left", []string{"base"}))
		require.NoError(t, g.AddDependencies("right", []string{"base"}))
		require.NoError(t, g.AddDependencies("top", []string{"left", "right"}))
		assert.Equal(t, 4, g.Len())
	})
}

func TestRemoveNode(t *testing.T) {
	t.Run("Unknown Node", func(t *testing.T) {
		g := New()
		assert.ErrorIs(t, g.RemoveNode("ghost"), ErrUnknownNode)
	})

	t.Run("Blocked By Dependents", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddDependencies("a", nil))
		require.NoError(t, g.AddDependencies("b", []string{"a"}))

		assert.ErrorIs(t, g.RemoveNode("a"), ErrHasDependents)
		assert.True(t, g.Has("a"))

		require.NoError(t, g.RemoveNode("b"))
		require.NoError(t, g.RemoveNode("a"))
		assert.Equal(t, 0, g.Len())
	})

	t.Run("Removal Clears Reverse Edges", func(t *testing.T) {
		g := New()
		require.NoError(t, g.AddDependencies("a", nil))
		require.NoError(t, g.AddDependencies("b", []string{"a"}))
		require.NoError(t, g.RemoveNode("b"))

		assert.Empty(t, g.Dependents("a"))
		require.NoError(t, g.RemoveNode("a"))
	})
}

func TestUnloadOrder(t *testing.T) {
	g := New()
	require.NoError(t, g.AddDependencies("store", nil))
	require.NoError(t, g.AddDependencies("index", []string{"store"}))
	require.NoError(t, g.AddDependencies("search", []string{"index", "store"}))

	order := g.UnloadOrder()
	require.Len(t, order, 3)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["search"], pos["index"], "dependents unload before their dependencies")
	assert.Less(t, pos["index"], pos["store"])
}

func TestDependentsSorted(t *testing.T) {
	g := New()
	require.NoError(t, g.AddDependencies("core", nil))
	require.NoError(t, g.AddDependencies("zeta", []string{"core"}))
	require.NoError(t, g.AddDependencies("alpha", []string{"core"}))

	assert.Equal(t, []string{"alpha", "zeta"}, g.Dependents("core"))
}
