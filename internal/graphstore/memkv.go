package graphstore

import (
	"context"
	"sync"
	"time"

	"memcore/internal/graph"
)

// MemoryBackend is the default, zero-dependency Backend: the whole graph
// lives in process memory behind a RWMutex, with defensive copies taken
// on every write.
type MemoryBackend struct {
	mu sync.RWMutex

	nodes    map[string]graph.Node
	edges    map[string]graph.Edge
	sessions map[string]graph.Session

	activeSessionID string
	lastSaved       time.Time
	everSaved       bool
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nodes:    make(map[string]graph.Node),
		edges:    make(map[string]graph.Edge),
		sessions: make(map[string]graph.Session),
	}
}

func (m *MemoryBackend) SaveGraph(_ context.Context, snap graph.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes = make(map[string]graph.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		m.nodes[n.ID] = n
	}
	m.edges = make(map[string]graph.Edge, len(snap.Edges))
	for _, e := range snap.Edges {
		m.edges[e.ID] = e
	}
	m.sessions = make(map[string]graph.Session, len(snap.Sessions))
	for _, sj := range snap.Sessions {
		m.sessions[sj.ID] = sj.Session
	}
	m.activeSessionID = snap.ActiveSessionID
	m.lastSaved = time.Now()
	m.everSaved = true
	return nil
}

func (m *MemoryBackend) LoadGraph(_ context.Context) (graph.Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.everSaved {
		return graph.Snapshot{}, false, nil
	}
	return m.snapshotLocked(), true, nil
}

// NodesByType and NodesCreatedSince below are index-scoped range queries; against an in-memory map they
// degrade to a filtered scan, which is adequate at this scale and keeps
// MemoryBackend dependency-free.

// NodesByType returns every stored node of type t.
func (m *MemoryBackend) NodesByType(t graph.NodeType) []graph.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []graph.Node
	for _, n := range m.nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// NodesCreatedSince returns nodes with createdAt >= cutoff, in no
// particular order.
func (m *MemoryBackend) NodesCreatedSince(cutoff time.Time) []graph.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []graph.Node
	for _, n := range m.nodes {
		if !n.Metadata.CreatedAt.Before(cutoff) {
			out = append(out, n)
		}
	}
	return out
}

func (m *MemoryBackend) PruneOldNodes(_ context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, n := range m.nodes {
		if n.Metadata.CreatedAt.Before(cutoff) {
			delete(m.nodes, id)
			removed++
		}
	}
	if removed > 0 {
		m.removeEdgesReferencingMissingNodesLocked()
	}
	return removed, nil
}

func (m *MemoryBackend) PruneOrphanedEdges(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeEdgesReferencingMissingNodesLocked(), nil
}

func (m *MemoryBackend) removeEdgesReferencingMissingNodesLocked() int {
	removed := 0
	for id, e := range m.edges {
		_, srcOK := m.nodes[e.SourceID]
		_, dstOK := m.nodes[e.TargetID]
		if !srcOK || !dstOK {
			delete(m.edges, id)
			removed++
		}
	}
	return removed
}

func (m *MemoryBackend) Compact(_ context.Context, minRelevance float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-compactAge)
	removed := 0
	for id, n := range m.nodes {
		if n.Metadata.CreatedAt.Before(cutoff) && graph.RelevanceScore(&n, now) < minRelevance {
			delete(m.nodes, id)
			removed++
		}
	}
	if removed > 0 {
		m.removeEdgesReferencingMissingNodesLocked()
	}
	return removed, nil
}

func (m *MemoryBackend) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		NodeCount:    len(m.nodes),
		EdgeCount:    len(m.edges),
		SessionCount: len(m.sessions),
		LastSaved:    m.lastSaved,
	}, nil
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) snapshotLocked() graph.Snapshot {
	snap := graph.Snapshot{
		Nodes:           make([]graph.Node, 0, len(m.nodes)),
		Edges:           make([]graph.Edge, 0, len(m.edges)),
		Sessions:        make([]graph.SessionRecord, 0, len(m.sessions)),
		ActiveSessionID: m.activeSessionID,
		Stats: graph.Stats{
			NodeCount:    len(m.nodes),
			EdgeCount:    len(m.edges),
			SessionCount: len(m.sessions),
			LastModified: m.lastSaved,
		},
	}
	for _, n := range m.nodes {
		snap.Nodes = append(snap.Nodes, n)
	}
	for _, e := range m.edges {
		snap.Edges = append(snap.Edges, e)
	}
	for _, s := range m.sessions {
		ids := make([]string, 0, len(s.NodeIDs))
		for id := range s.NodeIDs {
			ids = append(ids, id)
		}
		snap.Sessions = append(snap.Sessions, graph.SessionRecord{Session: s, NodeIDs: ids})
	}
	return snap
}
