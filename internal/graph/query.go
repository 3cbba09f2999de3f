package graph

import (
	"math"
	"sort"
	"strings"
	"time"
)

// SortBy selects the query result ordering ( query).
type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortCreated   SortBy = "created"
	SortAccessed  SortBy = "accessed"
)

// Criteria is the filter+sort+limit bundle accepted by Query.
type Criteria struct {
	Types           []NodeType
	Platform        string
	SessionID       string
	ContentContains string
	MinRelevance    float64
	WithinHours     float64 // 0 means unbounded
	SortBy          SortBy  // default SortRelevance
	Limit           int     // 0 means unbounded
}

// RelevanceScore computes the composite score at time `at`:
//
//	score = (0.30*importance + 0.20*confidence + 0.25*timeDecay +
//	         0.15*recencyBoost + 0.10*accessBoost) * decay
//
// clamped to [0,1].
func RelevanceScore(n *Node, at time.Time) float64 {
	ageHours := at.Sub(n.Metadata.CreatedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	timeDecay := math.Pow(0.5, ageHours/24)

	var recencyBoost float64
	if !n.Metadata.LastAccessedAt.IsZero() {
		hoursSince := at.Sub(n.Metadata.LastAccessedAt).Hours()
		if hoursSince < 0 {
			hoursSince = 0
		}
		recencyBoost = math.Exp(-hoursSince/4) * 0.3
	}

	accessBoost := math.Log(1+float64(n.Metadata.AccessCount)) * 0.1

	score := (0.30*n.Importance + 0.20*n.Confidence + 0.25*timeDecay + 0.15*recencyBoost + 0.10*accessBoost) * n.Decay
	return clamp(score, 0, 1)
}

// Query implements query: filter, then sort, then limit.
func (g *Graph) Query(c Criteria) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	now := g.now()
	typeSet := make(map[NodeType]struct{}, len(c.Types))
	for _, t := range c.Types {
		typeSet[t] = struct{}{}
	}
	contentNeedle := strings.ToLower(c.ContentContains)

	var out []*Node
	for _, n := range g.nodes {
		if len(typeSet) > 0 {
			if _, ok := typeSet[n.Type]; !ok {
				continue
			}
		}
		if c.Platform != "" && n.Platform != c.Platform {
			continue
		}
		if c.SessionID != "" && n.SessionID != c.SessionID {
			continue
		}
		if contentNeedle != "" {
			if !strings.Contains(strings.ToLower(stableStringify(n.Content)), contentNeedle) {
				continue
			}
		}
		if c.WithinHours > 0 {
			if now.Sub(n.Metadata.CreatedAt).Hours() > c.WithinHours {
				continue
			}
		}
		score := RelevanceScore(n, now)
		if score < c.MinRelevance {
			continue
		}
		out = append(out, n)
	}

	sortBy := c.SortBy
	if sortBy == "" {
		sortBy = SortRelevance
	}
	switch sortBy {
	case SortCreated:
		sort.Slice(out, func(i, j int) bool { return out[i].Metadata.CreatedAt.After(out[j].Metadata.CreatedAt) })
	case SortAccessed:
		sort.Slice(out, func(i, j int) bool {
			return out[i].Metadata.LastAccessedAt.After(out[j].Metadata.LastAccessedAt)
		})
	default:
		sort.Slice(out, func(i, j int) bool {
			return RelevanceScore(out[i], now) > RelevanceScore(out[j], now)
		})
	}

	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out
}
