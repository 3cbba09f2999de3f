package convstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestRankingPlacementTitleTagText checks that a conversation with the
// query term in its title must outrank one with it only in a tag, which
// must outrank one with it only in the body text.
func TestRankingPlacementTitleTagText(t *testing.T) {
	s := New(0, 0)

	s.Save(SaveInput{ID: "tmp_c", Title: "random notes", Text: "we discussed django over coffee"})
	s.Save(SaveInput{ID: "tmp_b", Title: "weekend plans", Text: "nothing relevant here", Tags: tagsp([]string{"django"})})
	s.Save(SaveInput{ID: "tmp_a", Title: "django deployment checklist", Text: "unrelated content"})

	results := s.Search(Query{Query: "django", Sort: "relevance"})
	require.Len(t, results, 3)
	require.Equal(t, "tmp_a", results[0].ID, "title match must rank first")
	require.Equal(t, "tmp_b", results[1].ID, "tag match must rank above a text-only match")
	require.Equal(t, "tmp_c", results[2].ID, "text-only match must rank last")
}

func TestSearchFiltersByTagAndPinned(t *testing.T) {
	s := New(0, 0)
	s.Save(SaveInput{ID: "tmp_a", Title: "a", Text: "x", Tags: tagsp([]string{"work"})})
	s.Save(SaveInput{ID: "tmp_b", Title: "b", Text: "x", Pinned: boolp(true)})

	onlyWork := s.Search(Query{Filters: Filters{Tag: "work"}})
	require.Len(t, onlyWork, 1)
	require.Equal(t, "tmp_a", onlyWork[0].ID)

	onlyPinned := s.Search(Query{Filters: Filters{PinnedOnly: true}})
	require.Len(t, onlyPinned, 1)
	require.Equal(t, "tmp_b", onlyPinned[0].ID)
}

func TestSearchNoHitReturnsEmpty(t *testing.T) {
	s := New(0, 0)
	s.Save(SaveInput{ID: "tmp_a", Title: "weekend plans", Text: "going hiking"})

	results := s.Search(Query{Query: "kubernetes"})
	require.Empty(t, results)
}

func TestTokenizeDropsStopWordsAndPunctuation(t *testing.T) {
	got := tokenize("What is the Django ORM, and how does it work?")
	require.Equal(t, []string{"what", "django", "orm", "how", "does", "work"}, got)
}

func TestRecencyBoostFavorsNewerOfEqualTextScore(t *testing.T) {
	s := New(0, 0)
	old := s.Save(SaveInput{ID: "tmp_old", Title: "django notes", Text: "x"})
	old.UpdatedAt = time.Now().Add(-30 * 24 * time.Hour)

	s.Save(SaveInput{ID: "tmp_new", Title: "django notes", Text: "x"})

	results := s.Search(Query{Query: "django", Sort: "relevance"})
	require.Len(t, results, 2)
	require.Equal(t, "tmp_new", results[0].ID, "the more recent of two equal-text matches must rank first")
}
