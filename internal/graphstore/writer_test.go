package graphstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memcore/internal/graph"
)

func TestWriterDebouncesBurstsIntoOneSave(t *testing.T) {
	g := graph.New()
	backend := NewMemoryBackend()
	w := NewWriter(g, backend, 30*time.Millisecond)
	defer w.Close()

	for i := 0; i < 5; i++ {
		g.AddNode(graph.NodeLanguage, "python", nil)
		g.AddNode(graph.NodeFramework, "django"+string(rune('a'+i)), nil)
	}

	require.Eventually(t, func() bool {
		_, ok, _ := backend.LoadGraph(context.Background())
		return ok
	}, time.Second, 10*time.Millisecond)

	stats, err := backend.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, g.NodeCount(), stats.NodeCount)
}

func TestWriterFlushIsSynchronous(t *testing.T) {
	g := graph.New()
	g.AddNode(graph.NodeLanguage, "go", nil)
	backend := NewMemoryBackend()
	w := NewWriter(g, backend, time.Hour) // debounce far longer than the test
	defer w.Close()

	require.NoError(t, w.Flush(context.Background()))
	_, ok, err := backend.LoadGraph(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}
