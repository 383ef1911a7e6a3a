package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/sitewatch/internal/graph"
)

func TestNewTrackerSeedsStartURL(t *testing.T) {
	tracker, err := graph.NewTracker("https://Example.com/#top")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/", tracker.StartURL())
	assert.Equal(t, []string{"https://example.com/"}, tracker.Path("https://example.com/"))
	assert.Equal(t, 0, tracker.Depth("https://example.com/"))

	_, hasParent := tracker.Parent("https://example.com/")
	assert.False(t, hasParent)
}

func TestNewTrackerRejectsInvalidURL(t *testing.T) {
	_, err := graph.NewTracker("not a url")
	require.Error(t, err)
}

func TestAddEdgeBuildsPaths(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/about"))
	require.True(t, tracker.AddEdge("https://example.com/about", "https://example.com/about/team"))

	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/about",
		"https://example.com/about/team",
	}, tracker.Path("https://example.com/about/team"))
	assert.Equal(t, 2, tracker.Depth("https://example.com/about/team"))

	parent, ok := tracker.Parent("https://example.com/about/team")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/about", parent)
}

func TestAddEdgeFirstDiscovererWins(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/a"))
	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/b"))
	require.True(t, tracker.AddEdge("https://example.com/a", "https://example.com/shared"))

	// A later edge to an already-tracked child changes nothing.
	assert.False(t, tracker.AddEdge("https://example.com/b", "https://example.com/shared"))

	parent, ok := tracker.Parent("https://example.com/shared")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", parent)
	assert.Equal(t, []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/shared",
	}, tracker.Path("https://example.com/shared"))
	assert.Equal(t, []string{"https://example.com/shared"}, tracker.Children("https://example.com/a"))
	assert.Empty(t, tracker.Children("https://example.com/b"))
}

func TestAddEdgeIgnoresSelfAndStart(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	assert.False(t, tracker.AddEdge("https://example.com/", "https://example.com/"))

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/a"))
	assert.False(t, tracker.AddEdge("https://example.com/a", "https://example.com/"))

	_, hasParent := tracker.Parent("https://example.com/")
	assert.False(t, hasParent)
}

func TestAddEdgeIgnoresUntrackedParent(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	assert.False(t, tracker.AddEdge("https://example.com/never-seen", "https://example.com/orphan"))
	assert.Equal(t, []string{"https://example.com/orphan"}, tracker.Path("https://example.com/orphan"))
}

func TestAddEdgeCanonicalizesBothEnds(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://EXAMPLE.com/#nav", "https://example.com/About#section"))

	parent, ok := tracker.Parent("https://example.com/About")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/", parent)

	// Same URL with a different fragment is the same child.
	assert.False(t, tracker.AddEdge("https://example.com/", "https://example.com/About#other"))
}

func TestChildrenPreserveDiscoveryOrder(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/c"))
	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/a"))
	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/b"))

	assert.Equal(t, []string{
		"https://example.com/c",
		"https://example.com/a",
		"https://example.com/b",
	}, tracker.Children("https://example.com/"))
	assert.True(t, tracker.HasChildren("https://example.com/"))
	assert.False(t, tracker.HasChildren("https://example.com/c"))
}

func TestPathEndsAtURLAndStartsAtRoot(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/docs"))
	require.True(t, tracker.AddEdge("https://example.com/docs", "https://example.com/docs/api"))

	for _, url := range []string{
		"https://example.com/",
		"https://example.com/docs",
		"https://example.com/docs/api",
	} {
		path := tracker.Path(url)
		require.NotEmpty(t, path)
		assert.Equal(t, "https://example.com/", path[0])
		assert.Equal(t, url, path[len(path)-1])
	}
}

func TestPathReturnsCopy(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/a"))

	path := tracker.Path("https://example.com/a")
	path[0] = "mutated"

	assert.Equal(t, []string{"https://example.com/", "https://example.com/a"}, tracker.Path("https://example.com/a"))
}

func TestSnapshotStatistics(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/a"))
	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/b"))
	require.True(t, tracker.AddEdge("https://example.com/a", "https://example.com/a/deep"))

	snapshot := tracker.Snapshot("run-1")
	require.NotNil(t, snapshot)

	assert.Equal(t, "run-1", snapshot.RunID)
	assert.Equal(t, "https://example.com/", snapshot.StartURL)
	assert.Equal(t, 4, snapshot.Statistics.TotalPages)
	assert.Equal(t, 2, snapshot.Statistics.MaxDepth)
	assert.Equal(t, map[int]int{0: 1, 1: 2, 2: 1}, snapshot.Statistics.PagesByDepth)

	assert.Equal(t, "https://example.com/", snapshot.ParentMap["https://example.com/a"])
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, snapshot.ChildrenMap["https://example.com/"])
	assert.Equal(t, []string{"https://example.com/", "https://example.com/a", "https://example.com/a/deep"}, snapshot.PathMap["https://example.com/a/deep"])
}

func TestSnapshotIsDetached(t *testing.T) {
	tracker, err := graph.NewTracker("https://example.com/")
	require.NoError(t, err)

	require.True(t, tracker.AddEdge("https://example.com/", "https://example.com/a"))

	snapshot := tracker.Snapshot("run-1")
	snapshot.PathMap["https://example.com/a"][0] = "mutated"
	snapshot.ChildrenMap["https://example.com/"][0] = "mutated"

	assert.Equal(t, []string{"https://example.com/", "https://example.com/a"}, tracker.Path("https://example.com/a"))
	assert.Equal(t, []string{"https://example.com/a"}, tracker.Children("https://example.com/"))
}
