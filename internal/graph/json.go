package graph

import (
	"encoding/json"
	"time"
)

// Stats summarizes the graph for Graph Store meta.stats and Sync's
// full-sync freshness comparison.
type Stats struct {
	NodeCount    int       `json:"nodeCount"`
	EdgeCount    int       `json:"edgeCount"`
	SessionCount int       `json:"sessionCount"`
	LastModified time.Time `json:"lastModified"`
}

// SessionRecord is Session with NodeIDs flattened to a slice for
// serialization (Session.NodeIDs is a set, tagged json:"-"), and the
// Graph Store's on-disk representation of one session record.
type SessionRecord struct {
	Session
	NodeIDs []string `json:"nodeIds"`
}

// Snapshot is the full round-trippable graph state ( toJSON).
type Snapshot struct {
	Nodes           []Node          `json:"nodes"`
	Edges           []Edge          `json:"edges"`
	Sessions        []SessionRecord `json:"sessions"`
	ActiveSessionID string          `json:"activeSessionId"`
	Stats           Stats           `json:"stats"`
}

// Stats returns the current summary.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Stats{
		NodeCount:    len(g.nodes),
		EdgeCount:    len(g.edges),
		SessionCount: len(g.sessions),
		LastModified: g.lastModified,
	}
}

// Snapshot captures the full graph state for persistence or full-sync.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Nodes: make([]Node, 0, len(g.nodes)),
		Edges: make([]Edge, 0, len(g.edges)),
		Stats: Stats{
			NodeCount:    len(g.nodes),
			EdgeCount:    len(g.edges),
			SessionCount: len(g.sessions),
			LastModified: g.lastModified,
		},
		ActiveSessionID: g.activeSessionID,
	}
	for _, n := range g.nodes {
		snap.Nodes = append(snap.Nodes, *n)
	}
	for _, e := range g.edges {
		snap.Edges = append(snap.Edges, *e)
	}
	for _, s := range g.sessions {
		ids := make([]string, 0, len(s.NodeIDs))
		for id := range s.NodeIDs {
			ids = append(ids, id)
		}
		snap.Sessions = append(snap.Sessions, SessionRecord{Session: *s, NodeIDs: ids})
	}
	return snap
}

// LoadSnapshot replaces the entire in-memory graph with snap, rebuilding
// every secondary index from the primary records. Used for full-sync
// catch-up, replacing the receiver's whole graph wholesale.
func (g *Graph) LoadSnapshot(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node, len(snap.Nodes))
	g.edges = make(map[string]*Edge, len(snap.Edges))
	g.sessions = make(map[string]*Session, len(snap.Sessions))
	g.nodesByType = make(map[NodeType]map[string]struct{})
	g.edgesByType = make(map[EdgeType]map[string]struct{})
	g.adjOut = make(map[string]map[string]struct{})
	g.adjIn = make(map[string]map[string]struct{})
	g.contentIndex = make(map[string]string)
	g.activeSessionID = snap.ActiveSessionID
	g.lastModified = snap.Stats.LastModified

	for i := range snap.Nodes {
		n := snap.Nodes[i]
		g.nodes[n.ID] = &n
		g.indexNodeType(n.Type, n.ID)
		g.contentIndex[contentHash(n.Type, n.Content)] = n.ID
	}
	for i := range snap.Edges {
		e := snap.Edges[i]
		g.edges[e.ID] = &e
		g.indexEdgeType(e.Type, e.ID)
		addToAdj(g.adjOut, e.SourceID, e.ID)
		addToAdj(g.adjIn, e.TargetID, e.ID)
		if e.Bidirectional {
			addToAdj(g.adjOut, e.TargetID, e.ID)
			addToAdj(g.adjIn, e.SourceID, e.ID)
		}
	}
	for i := range snap.Sessions {
		sj := snap.Sessions[i]
		s := sj.Session
		s.NodeIDs = make(map[string]struct{}, len(sj.NodeIDs))
		for _, id := range sj.NodeIDs {
			s.NodeIDs[id] = struct{}{}
		}
		g.sessions[s.ID] = &s
	}
}

// ToJSON serializes the full graph ( toJSON).
func (g *Graph) ToJSON() ([]byte, error) {
	return json.Marshal(g.Snapshot())
}

// FromJSON replaces the graph with the state encoded in data (
// fromJSON).
func (g *Graph) FromJSON(data []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	g.LoadSnapshot(snap)
	return nil
}
