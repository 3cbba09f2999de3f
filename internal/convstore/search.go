package convstore

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Filters narrows the candidate set before scoring.
type Filters struct {
	PinnedOnly bool      `json:"pinnedOnly,omitempty"`
	HasCode    bool      `json:"hasCode,omitempty"`
	Tag        string    `json:"tag,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Since      time.Time `json:"since,omitempty"`
	Until      time.Time `json:"until,omitempty"`
}

// Query is the full search request ( list_conversations).
type Query struct {
	Query   string  `json:"query"`
	Limit   int     `json:"limit,omitempty"`
	Filters Filters `json:"filters,omitempty"`
	Sort    string  `json:"sort,omitempty"` // "relevance" or "" (recency)
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {},
	"were": {}, "with": {},
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

func tokenize(query string) []string {
	lower := strings.ToLower(query)
	parts := nonAlnumRe.Split(lower, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if _, stop := stopWords[p]; stop {
			continue
		}
		out = append(out, p)
	}
	return out
}

var codeFenceOrStackTraceRe = regexp.MustCompile(`(?i)stack trace|traceback|exception`)

func hasCode(c *Conversation) bool {
	return strings.Contains(c.Text, "```") || codeFenceOrStackTraceRe.MatchString(c.Text)
}

func passesFilters(c *Conversation, f Filters) bool {
	if f.PinnedOnly && !c.Pinned {
		return false
	}
	if f.HasCode && !hasCode(c) {
		return false
	}
	if f.Tag != "" && !containsTag(c.Tags, f.Tag) {
		return false
	}
	for _, tag := range f.Tags {
		if !containsTag(c.Tags, tag) {
			return false
		}
	}
	if !f.Since.IsZero() && c.UpdatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && c.UpdatedAt.After(f.Until) {
		return false
	}
	return true
}

func containsTag(tags []string, target string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, target) {
			return true
		}
	}
	return false
}

// Search implements: tokenize, filter, score, sort, trim.
func (s *Store) Search(q Query) []*Conversation {
	now := s.now()
	candidates := make([]*Conversation, 0)
	for _, c := range s.All() {
		if passesFilters(c, q.Filters) {
			candidates = append(candidates, c)
		}
	}

	limit := q.Limit
	trimmedQuery := strings.TrimSpace(q.Query)
	if trimmedQuery == "" {
		sort.SliceStable(candidates, func(i, j int) bool {
			return recencyLess(candidates[i], candidates[j])
		})
		return trimLimit(candidates, limit)
	}

	tokens := tokenize(trimmedQuery)
	type scored struct {
		c     *Conversation
		score float64
	}
	var scoredOut []scored
	for _, c := range candidates {
		score, hit := scoreConversation(c, trimmedQuery, tokens, now)
		if !hit {
			continue
		}
		scoredOut = append(scoredOut, scored{c: c, score: score})
	}

	sort.SliceStable(scoredOut, func(i, j int) bool {
		if q.Sort == "relevance" {
			if scoredOut[i].score != scoredOut[j].score {
				return scoredOut[i].score > scoredOut[j].score
			}
		}
		return recencyLess(scoredOut[i].c, scoredOut[j].c)
	})

	out := make([]*Conversation, len(scoredOut))
	for i, s := range scoredOut {
		out[i] = s.c
	}
	return trimLimit(out, limit)
}

// recencyLess orders a before b per (pinned desc, updatedAt desc).
func recencyLess(a, b *Conversation) bool {
	if a.Pinned != b.Pinned {
		return a.Pinned
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func trimLimit(items []*Conversation, limit int) []*Conversation {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

const twoWeeks = 14 * 24 * time.Hour

// scoreConversation implements the ranking formula. Returns the
// score and whether at least one phrase or token hit occurred (a
// candidate with no hit is dropped by the caller).
func scoreConversation(c *Conversation, rawQuery string, tokens []string, now time.Time) (float64, bool) {
	q := strings.ToLower(strings.TrimSpace(rawQuery))
	lowerTitle := strings.ToLower(c.Title)
	lowerText := strings.ToLower(c.Text)
	lowerURL := strings.ToLower(c.URL)

	var score float64
	hit := false

	if q != "" && strings.Contains(lowerTitle, q) {
		score += 40
		hit = true
	}
	// A single-token query is also its own whole phrase, so the text
	// phrase check below and the per-token text check further down would
	// otherwise both fire off the same substring match, letting a
	// body-only match outscore a tag match. Only apply the text phrase
	// bonus once the query is genuinely more than one token.
	if q != "" && len(tokens) > 1 && strings.Contains(lowerText, q) {
		score += 10
		hit = true
	}

	for _, t := range tokens {
		matched := false
		if strings.Contains(lowerTitle, t) {
			score += 18
			matched = true
		}
		for _, tag := range c.Tags {
			if strings.Contains(strings.ToLower(tag), t) {
				score += 14
				matched = true
				break
			}
		}
		if strings.Contains(lowerURL, t) {
			score += 4
			matched = true
		}
		if strings.Contains(lowerText, t) {
			score += 4
			matched = true
		}
		if len(t) >= 3 {
			if wordStartsWith(lowerTitle, t) {
				score += 6
				matched = true
			}
			if wordStartsWith(lowerText, t) {
				score += 2
				matched = true
			}
		}
		if matched {
			hit = true
		}
	}

	if !hit {
		return 0, false
	}

	age := now.Sub(c.UpdatedAt)
	boost := (twoWeeks.Hours() - age.Hours()) / twoWeeks.Hours() * 0.2
	if boost < 0 {
		boost = 0
	}
	if boost > 0.2 {
		boost = 0.2
	}
	score *= 1 + boost

	if c.Pinned {
		score += 5
	}
	return score, true
}

func wordStartsWith(haystack, token string) bool {
	for _, word := range nonAlnumRe.Split(haystack, -1) {
		if word != "" && strings.HasPrefix(word, token) {
			return true
		}
	}
	return false
}
