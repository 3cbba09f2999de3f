package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memcore/internal/graph"
)

func TestMemoryBackendSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	a := g.AddNode(graph.NodeLanguage, "python", nil)
	b := g.AddNode(graph.NodeFramework, "django", nil)
	g.AddEdge(b.ID, a.ID, graph.EdgePartOf, graph.EdgeMetadata{})
	g.StartSession(graph.SessionMeta{Platform: "chatgpt"})

	backend := NewMemoryBackend()
	require.NoError(t, backend.SaveGraph(ctx, g.Snapshot()))

	snap, ok, err := backend.LoadGraph(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)
	require.Len(t, snap.Sessions, 1)

	stats, err := backend.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.NodeCount)
	require.Equal(t, 1, stats.EdgeCount)
	require.False(t, stats.LastSaved.IsZero())
}

func TestMemoryBackendLoadGraphColdStart(t *testing.T) {
	backend := NewMemoryBackend()
	_, ok, err := backend.LoadGraph(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "a backend that was never saved to must report ok=false")
}

func TestMemoryBackendPruneOldNodes(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	old := g.AddNode(graph.NodeLanguage, "cobol", nil)
	old.Metadata.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)
	g.AddNode(graph.NodeLanguage, "go", nil)

	backend := NewMemoryBackend()
	require.NoError(t, backend.SaveGraph(ctx, g.Snapshot()))

	removed, err := backend.PruneOldNodes(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	stats, _ := backend.Stats(ctx)
	require.Equal(t, 1, stats.NodeCount)
}

func TestMemoryBackendPruneOrphanedEdges(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	// construct a snapshot with a dangling edge referencing a missing node
	snap := graph.Snapshot{
		Nodes: []graph.Node{{ID: "n1", Type: graph.NodeLanguage, Content: "go", Metadata: graph.NodeMetadata{CreatedAt: time.Now()}}},
		Edges: []graph.Edge{{ID: "e1", SourceID: "n1", TargetID: "missing", Type: graph.EdgeUses}},
	}
	require.NoError(t, backend.SaveGraph(ctx, snap))

	removed, err := backend.PruneOrphanedEdges(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	stats, _ := backend.Stats(ctx)
	require.Equal(t, 0, stats.EdgeCount)
}

func TestMemoryBackendCompact(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	stale := g.AddNode(graph.NodeLanguage, "lowrelevance", nil)
	stale.Metadata.CreatedAt = time.Now().Add(-10 * 24 * time.Hour)
	stale.Importance = 0.0
	stale.Confidence = 0.0
	stale.Decay = 0.1

	fresh := g.AddNode(graph.NodeLanguage, "highrelevance", nil)
	fresh.Importance = 1.0
	fresh.Confidence = 1.0

	backend := NewMemoryBackend()
	require.NoError(t, backend.SaveGraph(ctx, g.Snapshot()))

	removed, err := backend.Compact(ctx, 0.3)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	stats, _ := backend.Stats(ctx)
	require.Equal(t, 1, stats.NodeCount)
}
