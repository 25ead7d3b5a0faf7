package tree

import (
	"testing"
	"time"

	"github.com/ostehost/command-central-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSample(t *testing.T) Result {
	t.Helper()
	b := NewBuilder(Options{Stat: fakeStat(map[string]time.Time{
		"a.ts": now.Add(-time.Hour),
		"b.ts": now.Add(-30 * time.Hour),
		"c.ts": now.Add(-time.Hour),
	})})
	res := b.Build(Input{
		RepoRoot: "/r",
		Staged:   []Record{staged("src/a.ts")},
		Unstaged: []Record{unstaged("src/b.ts"), unstaged("src/c.ts"), unstaged("src/a.ts")},
		Order:    models.SortNewestFirst,
		Grouping: true,
		Now:      now,
	})
	require.Equal(t, StateReady, res.State)
	return res
}

func TestIndexNavigation(t *testing.T) {
	res := buildSample(t)
	idx := res.Index

	roots := idx.GetChildren(nil)
	require.Len(t, roots, 2)
	assert.Equal(t, models.NodeStatusGroup, roots[0].Kind())

	unstagedTGs := idx.GetChildren(roots[1])
	require.Len(t, unstagedTGs, 2)
	assert.Equal(t, "unstaged/today", unstagedTGs[0].Identity())
	assert.Equal(t, "unstaged/yesterday", unstagedTGs[1].Identity())

	items := idx.GetChildren(unstagedTGs[0])
	require.Len(t, items, 2)
	for _, item := range items {
		parent, ok := idx.GetParent(item)
		require.True(t, ok)
		assert.Same(t, unstagedTGs[0], parent)
	}

	grand, ok := idx.GetParent(unstagedTGs[0])
	require.True(t, ok)
	assert.Same(t, roots[1], grand)

	_, ok = idx.GetParent(roots[0])
	assert.False(t, ok)

	assert.Empty(t, idx.GetChildren(items[0]))
}

func TestIndexFindByIdentity(t *testing.T) {
	idx := buildSample(t).Index

	node, ok := idx.FindByIdentity("src/a.ts")
	require.True(t, ok)
	item := node.(*models.ChangeItem)
	assert.True(t, item.Staged, "the staged entry wins for a path listed twice")

	node, ok = idx.FindByIdentity("unstaged:src/a.ts")
	require.True(t, ok)
	assert.False(t, node.(*models.ChangeItem).Staged)

	node, ok = idx.FindByIdentity("src/b.ts")
	require.True(t, ok)
	chain := idx.Ancestors(node)
	require.Len(t, chain, 2)
	assert.Equal(t, "unstaged", chain[0].Identity())
	assert.Equal(t, "unstaged/yesterday", chain[1].Identity())

	_, ok = idx.FindByIdentity("missing.go")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"src/a.ts", "src/b.ts", "src/c.ts"}, idx.Paths())
}

func TestIndexEmpty(t *testing.T) {
	idx := NewIndex(nil)
	assert.Empty(t, idx.GetChildren(nil))
	_, ok := idx.FindByIdentity("x")
	assert.False(t, ok)
}
