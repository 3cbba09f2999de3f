package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"memcore/internal/graph"
)

// TestExtractMixedSignalConversation checks a single message carrying a
// language, a framework, a topic, an error, and a goal all at once, and
// that the framework's parent language node and part_of edge are
// materialized even when the language's own keyword score alone would
// miss the emit threshold.
func TestExtractMixedSignalConversation(t *testing.T) {
	g := graph.New()
	x := New()

	text := "I'm using Python with Django to build a REST API. Got a TypeError: cannot read property of undefined."
	report, err := x.Extract(g, text, Options{Platform: "chatgpt"})
	require.NoError(t, err)

	var foundPython, foundDjango, foundTopic, foundError, foundGoal bool
	var partOfEdge bool

	for _, n := range report.Nodes {
		switch {
		case n.Type == graph.NodeLanguage && n.Content == "python":
			foundPython = true
			require.GreaterOrEqual(t, n.Confidence, 0.3)
		case n.Type == graph.NodeFramework && n.Content == "django":
			foundDjango = true
			require.GreaterOrEqual(t, n.Confidence, 0.4)
		case n.Type == graph.NodeTopic && n.Content == "web development":
			foundTopic = true
		case n.Type == graph.NodeError:
			foundError = true
		case n.Type == graph.NodeGoal:
			foundGoal = true
		}
	}
	require.True(t, foundPython, "expected a python language node")
	require.True(t, foundDjango, "expected a django framework node")
	require.True(t, foundTopic, "expected a web development topic node")
	require.True(t, foundError, "expected an error node")
	require.True(t, foundGoal, "expected a goal node")

	for _, e := range report.Edges {
		if e.Type == graph.EdgePartOf {
			partOfEdge = true
		}
	}
	require.True(t, partOfEdge, "expected a framework --part_of--> language edge")
}

func TestExtractTooShortText(t *testing.T) {
	g := graph.New()
	x := New()
	_, err := x.Extract(g, "too short", Options{})
	require.ErrorIs(t, err, ErrTextTooShort)
}

func TestDetectLanguagesTopThreeFiltered(t *testing.T) {
	text := "func main() { fmt.Println(\"hi\") } package main go mod tidy"
	got := DetectLanguages(text, DefaultLanguages)
	require.LessOrEqual(t, len(got), 3)
	for _, l := range got {
		require.GreaterOrEqual(t, l.Confidence, 0.3)
	}
}

func TestDetectCodeBlocksRescoresUnknownLanguage(t *testing.T) {
	text := "```\nfunc main() {\n    fmt.Println(\"hello world\")\n}\n```"
	blocks := DetectCodeBlocks(text, DefaultLanguages)
	require.Len(t, blocks, 1)
	require.Equal(t, "go", blocks[0].Language)
}

func TestDetectErrorsDedupesAndCapsContext(t *testing.T) {
	text := "before text\npanic: runtime error: index out of range\nafter text\npanic: runtime error: index out of range\nmore"
	errs := DetectErrors(text, DefaultErrors)
	require.Len(t, errs, 1, "exact duplicate message must be deduped")
}

func TestDetectEntitiesCapsAtTen(t *testing.T) {
	var sb []byte
	for i := 0; i < 20; i++ {
		sb = append(sb, []byte("see main.go and ")...)
	}
	ents := DetectEntities(string(sb))
	require.LessOrEqual(t, len(ents.Files), 10)
}

func TestDetectGoalsTopThree(t *testing.T) {
	text := "i want to ship the new dashboard. i want to fix the login bug. i want to refactor the API layer. i want to write more tests."
	goals := DetectGoals(text)
	require.LessOrEqual(t, len(goals), 3)
	require.NotEmpty(t, goals)
}
