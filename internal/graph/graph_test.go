package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddNodeDedupAndImportanceMax(t *testing.T) {
	g := New()
	imp1 := 0.4
	n1 := g.AddNodeWithAttrs(NodeLanguage, "python", AddNodeAttrs{Importance: &imp1})
	require.Equal(t, 0, n1.Metadata.AccessCount)

	imp2 := 0.9
	n2 := g.AddNodeWithAttrs(NodeLanguage, "python", AddNodeAttrs{Importance: &imp2})

	require.Equal(t, n1.ID, n2.ID, "same (type,content) must dedup to the same node")
	require.Equal(t, 1, n2.Metadata.AccessCount)
	require.Equal(t, 0.9, n2.Importance, "importance must be max(existing, given)")

	imp3 := 0.1
	n3 := g.AddNodeWithAttrs(NodeLanguage, "python", AddNodeAttrs{Importance: &imp3})
	require.Equal(t, 0.9, n3.Importance, "importance must never decrease on touch")
	require.Equal(t, 2, n3.Metadata.AccessCount)
}

func TestRemoveNodeCleansEdgesAndSessions(t *testing.T) {
	g := New()
	b := g.AddNode(NodeFramework, "gin", nil)

	s := g.StartSession(SessionMeta{Platform: "chatgpt"})
	a := g.AddNode(NodeLanguage, "go", nil) // attaches to active session
	e := g.AddEdge(b.ID, a.ID, EdgePartOf, EdgeMetadata{})
	require.NotNil(t, e)

	got, _ := g.GetSession(s.ID)
	_, inSessionBefore := got.NodeIDs[a.ID]
	require.True(t, inSessionBefore)

	g.RemoveNode(a.ID)

	_, ok := g.GetNode(a.ID)
	require.False(t, ok)

	sub := g.GetSubgraph(b.ID, 2)
	for _, edge := range sub.Edges {
		require.NotEqual(t, a.ID, edge.SourceID)
		require.NotEqual(t, a.ID, edge.TargetID)
	}

	got, _ = g.GetSession(s.ID)
	_, inSessionAfter := got.NodeIDs[a.ID]
	require.False(t, inSessionAfter)

	// idempotent
	g.RemoveNode(a.ID)
}

func TestQueryMinRelevance(t *testing.T) {
	g := New()
	g.AddNode(NodeLanguage, "rust", nil)
	g.AddNode(NodeLanguage, "cobol", nil)

	results := g.Query(Criteria{MinRelevance: 0.3})
	now := g.now()
	for _, n := range results {
		require.GreaterOrEqual(t, RelevanceScore(n, now), 0.3)
	}
}

func TestToJSONFromJSONRoundTrip(t *testing.T) {
	g := New()
	a := g.AddNode(NodeLanguage, "python", nil)
	b := g.AddNode(NodeFramework, "django", nil)
	g.AddEdge(b.ID, a.ID, EdgePartOf, EdgeMetadata{})
	g.StartSession(SessionMeta{Platform: "chatgpt", Title: "sess"})

	data, err := g.ToJSON()
	require.NoError(t, err)

	g2 := New()
	require.NoError(t, g2.FromJSON(data))

	require.Equal(t, g.NodeCount(), g2.NodeCount())
	require.Equal(t, g.EdgeCount(), g2.EdgeCount())

	sub1 := g.GetSubgraph(a.ID, 2)
	sub2 := g2.GetSubgraph(a.ID, 2)
	require.Equal(t, len(sub1.Nodes), len(sub2.Nodes))
	require.Equal(t, len(sub1.Edges), len(sub2.Edges))
}

func TestRelevanceMonotonicInImportance(t *testing.T) {
	g := New()
	n := g.AddNode(NodeGoal, "ship the feature", nil)
	now := g.now()
	before := RelevanceScore(n, now)

	higher := 0.99
	g.UpdateNode(n.ID, nil, &higher, nil)
	after := RelevanceScore(n, now)

	require.GreaterOrEqual(t, after, before)
}

func TestRelevanceScoreFormula_E6(t *testing.T) {
	g := New()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	n := g.AddNode(NodeTopic, "never accessed", nil)

	later := fixed.Add(48 * time.Hour)
	score := RelevanceScore(n, later)
	require.InDelta(t, 0.3725, score, 1e-9)
}
