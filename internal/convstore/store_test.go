package convstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }
func tagsp(t []string) *[]string { return &t }

// TestCanonicalIDMigration checks that saving under a tmp id then again
// under the URL's stable c_ id collapses to a single canonical record,
// preserving tags/pinned/notes from the earlier save.
func TestCanonicalIDMigration(t *testing.T) {
	s := New(0, 0)

	s.Save(SaveInput{
		ID:     "tmp_x",
		URL:    "https://chatgpt.com/c/abc",
		Title:  "first pass",
		Text:   "hello",
		Tags:   tagsp([]string{"work"}),
		Pinned: boolp(true),
	})

	final := s.Save(SaveInput{
		ID:    "c_abc",
		URL:   "https://chatgpt.com/c/abc",
		Title: "first pass, continued",
		Text:  "hello world",
	})

	require.Equal(t, "c_abc", final.ID)
	require.Equal(t, []string{"work"}, final.Tags, "tags from the earlier tmp_ save must be preserved")
	require.True(t, final.Pinned, "pinned from the earlier tmp_ save must be preserved")

	_, ok := s.Get("tmp_x")
	require.False(t, ok, "the old tmp_ record must be dropped")

	id, ok := s.GetIDForURL("https://chatgpt.com/c/abc")
	require.True(t, ok)
	require.Equal(t, "c_abc", id)

	all := s.All()
	require.Len(t, all, 1)
	require.Equal(t, "c_abc", all[0].ID)
}

func TestEvictionKeepsMinCountItems(t *testing.T) {
	s := New(3, 0)
	for i := 0; i < 5; i++ {
		s.Save(SaveInput{ID: idFor(i), URL: "", Title: "t", Text: "x"})
	}
	require.Equal(t, 3, s.Len(), "store must keep exactly maxItems after overflow saves")

	all := s.All()
	require.Len(t, all, 3)
	// most recently saved three survive, most-recent first
	require.Equal(t, idFor(4), all[0].ID)
	require.Equal(t, idFor(3), all[1].ID)
	require.Equal(t, idFor(2), all[2].ID)
}

func idFor(i int) string {
	return "tmp_" + string(rune('a'+i))
}

func TestEvictionByByteSize(t *testing.T) {
	s := New(1000, 200) // tiny byte cap, large item cap
	bigText := make([]byte, 300)
	for i := range bigText {
		bigText[i] = 'x'
	}
	s.Save(SaveInput{ID: "tmp_a", Title: "a", Text: string(bigText)})
	s.Save(SaveInput{ID: "tmp_b", Title: "b", Text: string(bigText)})

	require.LessOrEqual(t, s.Len(), 1, "byte-size eviction must pop the tail while over maxBytes and more than one item remains")
}

func TestUpdateMetaMovesToHeadAndNormalizes(t *testing.T) {
	s := New(0, 0)
	s.Save(SaveInput{ID: "tmp_a", Title: "a", Text: "x"})
	s.Save(SaveInput{ID: "tmp_b", Title: "b", Text: "y"})

	c, ok := s.UpdateMeta("tmp_a", MetaPatch{Notes: strp("remember this"), Pinned: boolp(true)})
	require.True(t, ok)
	require.Equal(t, "remember this", c.Notes)
	require.True(t, c.Pinned)

	require.Equal(t, "tmp_a", s.All()[0].ID, "updating meta must move the conversation to the head of order")
}

func TestEmptyQueryReturnsMostRecentPinnedFirst(t *testing.T) {
	s := New(0, 0)
	s.Save(SaveInput{ID: "tmp_a", Title: "a", Text: "x"})
	s.Save(SaveInput{ID: "tmp_b", Title: "b", Text: "y", Pinned: boolp(true)})
	s.Save(SaveInput{ID: "tmp_c", Title: "c", Text: "z"})

	results := s.Search(Query{Limit: 10})
	require.Equal(t, "tmp_b", results[0].ID, "a pinned item must sort before unpinned items of similar recency")
}

func TestSearchTitleMatchScoresHigherThanTextOnlyMatch(t *testing.T) {
	s := New(0, 0)
	s.Save(SaveInput{ID: "tmp_title", Title: "debugging a django error", Text: "nothing relevant"})
	time.Sleep(time.Millisecond)
	s.Save(SaveInput{ID: "tmp_text", Title: "some conversation", Text: "we talked about django today"})

	results := s.Search(Query{Query: "django", Sort: "relevance"})
	require.Len(t, results, 2)
	require.Equal(t, "tmp_title", results[0].ID, "a title match must outscore a text-only match for the same query")
}
