// Package graphstore implements the Graph Store: durable, indexed async
// persistence for the semantic graph, independent of the in-memory Graph
// itself. A Backend owns the four logical collections
// (nodes, edges, sessions, meta); Writer coalesces live Graph mutations
// into debounced saveGraph calls.
package graphstore

import (
	"context"
	"time"

	"memcore/internal/graph"
)

// Stats mirrors meta.stats plus meta.lastSaved ( schema).
type Stats struct {
	NodeCount    int
	EdgeCount    int
	SessionCount int
	LastSaved    time.Time
}

// Backend is the durable persistence contract every Graph Store
// implementation satisfies: bulk save/load of the whole graph plus
// compaction operations that scan the stored collections directly
// (independent of any live *graph.Graph).
type Backend interface {
	// SaveGraph writes every live node/edge/session in snap as a single
	// batch and records meta.stats/meta.lastSaved.
	SaveGraph(ctx context.Context, snap graph.Snapshot) error

	// LoadGraph reads all three collections and returns a Snapshot ready
	// for graph.Graph.LoadSnapshot. ok is false on a cold start (nothing
	// ever saved).
	LoadGraph(ctx context.Context) (snap graph.Snapshot, ok bool, err error)

	// PruneOldNodes deletes nodes (and their incident edges) with
	// createdAt older than maxAge, by a createdAt-indexed cursor scan.
	// Returns the number of nodes removed.
	PruneOldNodes(ctx context.Context, maxAge time.Duration) (int, error)

	// PruneOrphanedEdges scans every stored edge and drops those whose
	// source or target node no longer exists. Returns the number removed.
	PruneOrphanedEdges(ctx context.Context) (int, error)

	// Compact deletes nodes older than 7 days with a relevance score
	// (evaluated at call time) below minRelevance, then prunes orphaned
	// edges. Returns the number of nodes removed.
	Compact(ctx context.Context, minRelevance float64) (int, error)

	// Stats reports the current collection sizes and last save time.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any held resources (connections, file handles).
	Close() error
}

// compactAge is the fixed node-age threshold used by Compact: nodes
// older than this whose relevance score is below minRelevance are pruned.
const compactAge = 7 * 24 * time.Hour
