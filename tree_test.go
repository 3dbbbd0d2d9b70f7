package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowPaths(rows []sidebarRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.path
	}
	return out
}

func TestBuildTreeGroupsBySegment(t *testing.T) {
	tree := buildTree([]workspaceID{"pkgs/a", "pkgs/b", "apps/web"})

	rows := tree.rows()
	assert.Equal(t, []string{"apps", "apps/web", "pkgs", "pkgs/a", "pkgs/b"}, rowPaths(rows))

	assert.True(t, rows[0].dir)
	assert.Equal(t, 0, rows[0].depth)
	assert.Equal(t, "apps", rows[0].label)
	assert.False(t, rows[1].dir)
	assert.Equal(t, "apps/web", rows[1].id)
	assert.Equal(t, "web", rows[1].label)
	assert.Equal(t, 1, rows[1].depth)
}

func TestBuildTreeIsOrderIndependent(t *testing.T) {
	a := buildTree([]workspaceID{"pkgs/a", "pkgs/b", "apps/web"})
	b := buildTree([]workspaceID{"apps/web", "pkgs/b", "pkgs/a"})
	assert.Equal(t, a.rows(), b.rows())
}

func TestTreeToggleCollapsesAndRestores(t *testing.T) {
	tree := buildTree([]workspaceID{"pkgs/a", "pkgs/b", "apps/web"})
	before := tree.rows()

	require.True(t, tree.toggle("pkgs"))
	collapsed := tree.rows()
	assert.Equal(t, []string{"apps", "apps/web", "pkgs"}, rowPaths(collapsed))
	assert.True(t, collapsed[2].collapsed)

	require.True(t, tree.toggle("pkgs"))
	assert.Equal(t, before, tree.rows())
}

func TestTreeToggleRejectsLeavesAndUnknownPaths(t *testing.T) {
	tree := buildTree([]workspaceID{"pkgs/a"})
	assert.False(t, tree.toggle("pkgs/a"))
	assert.False(t, tree.toggle("missing"))
}

func TestTreeLeafCountIgnoresExpansion(t *testing.T) {
	ids := []workspaceID{"pkgs/a", "pkgs/b", "apps/web", "apps/admin/ui"}
	tree := buildTree(ids)
	assert.Equal(t, len(ids), tree.leafCount())

	tree.toggle("apps")
	tree.toggle("pkgs")
	assert.Equal(t, len(ids), tree.leafCount())
	assert.Len(t, tree.rows(), 2)
}

func TestTreeNestedWorkspaceGetsSelfRow(t *testing.T) {
	for _, ids := range [][]workspaceID{
		{"tools", "tools/cli"},
		{"tools/cli", "tools"},
	} {
		tree := buildTree(ids)
		rows := tree.rows()
		require.Len(t, rows, 3, "ids %v", ids)

		assert.Equal(t, "tools", rows[0].path)
		assert.True(t, rows[0].dir)
		assert.Equal(t, "tools", rows[1].id)
		assert.Equal(t, selfSegment, rows[1].label)
		assert.Equal(t, "tools/cli", rows[2].id)
		assert.Equal(t, 2, tree.leafCount())
	}
}

func TestFlatRowsKeepsDiscoveryOrder(t *testing.T) {
	rows := flatRows([]workspaceID{"pkgs/b", "apps/web", "pkgs/a"})
	require.Len(t, rows, 3)
	for i, id := range []string{"pkgs/b", "apps/web", "pkgs/a"} {
		assert.Equal(t, id, rows[i].id)
		assert.Equal(t, id, rows[i].label)
		assert.False(t, rows[i].dir)
	}
}
