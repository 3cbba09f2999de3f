package graph

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Graph is the in-memory authoritative semantic graph. All
// mutations are local and synchronous; persistence and cross-tab
// broadcast are layered above via Sink.
type Graph struct {
	mu sync.RWMutex

	nodes    map[string]*Node
	edges    map[string]*Edge
	sessions map[string]*Session

	activeSessionID string

	nodesByType  map[NodeType]map[string]struct{}
	edgesByType  map[EdgeType]map[string]struct{}
	adjOut       map[string]map[string]struct{} // nodeID -> outgoing edge IDs
	adjIn        map[string]map[string]struct{} // nodeID -> incoming edge IDs
	contentIndex map[string]string              // contentHash -> nodeID

	sink         Sink
	lastModified time.Time

	// now and newID are overridable for deterministic tests.
	now   func() time.Time
	newID func() string
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:        make(map[string]*Node),
		edges:        make(map[string]*Edge),
		sessions:     make(map[string]*Session),
		nodesByType:  make(map[NodeType]map[string]struct{}),
		edgesByType:  make(map[EdgeType]map[string]struct{}),
		adjOut:       make(map[string]map[string]struct{}),
		adjIn:        make(map[string]map[string]struct{}),
		contentIndex: make(map[string]string),
		now:          time.Now,
		newID:        func() string { return uuid.NewString() },
	}
}

func (g *Graph) indexNodeType(t NodeType, id string) {
	m, ok := g.nodesByType[t]
	if !ok {
		m = make(map[string]struct{})
		g.nodesByType[t] = m
	}
	m[id] = struct{}{}
}

func (g *Graph) unindexNodeType(t NodeType, id string) {
	if m, ok := g.nodesByType[t]; ok {
		delete(m, id)
	}
}

func (g *Graph) indexEdgeType(t EdgeType, id string) {
	m, ok := g.edgesByType[t]
	if !ok {
		m = make(map[string]struct{})
		g.edgesByType[t] = m
	}
	m[id] = struct{}{}
}

func (g *Graph) unindexEdgeType(t EdgeType, id string) {
	if m, ok := g.edgesByType[t]; ok {
		delete(m, id)
	}
}

func addToAdj(adj map[string]map[string]struct{}, nodeID, edgeID string) {
	m, ok := adj[nodeID]
	if !ok {
		m = make(map[string]struct{})
		adj[nodeID] = m
	}
	m[edgeID] = struct{}{}
}

func removeFromAdj(adj map[string]map[string]struct{}, nodeID, edgeID string) {
	if m, ok := adj[nodeID]; ok {
		delete(m, edgeID)
	}
}

// AddNode implements addNode: dedup by (type, content hash),
// touching an existing node on a repeat, or creating a new one. It is a
// thin wrapper over AddNodeWithAttrs for callers that don't need
// source/platform/importance overrides.
func (g *Graph) AddNode(t NodeType, content any, extra map[string]any) *Node {
	return g.AddNodeWithAttrs(t, content, AddNodeAttrs{Extra: extra})
}

// AddNodeAttrs carries the non-content, non-metadata Node fields a caller
// may want to set on creation. On a dedup touch only Importance is used
// (raised to max(existing, given)); the other fields are ignored.
type AddNodeAttrs struct {
	Importance *float64
	Confidence *float64
	Source     string
	Platform   string
	Extra      map[string]any
}

// AddNodeWithAttrs is AddNode plus source/platform/importance/confidence
// overrides applied on creation, and importance raised to
// max(existing, given) on a dedup touch.
func (g *Graph) AddNodeWithAttrs(t NodeType, content any, attrs AddNodeAttrs) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	hash := contentHash(t, content)
	if existingID, ok := g.contentIndex[hash]; ok {
		n := g.nodes[existingID]
		n.Metadata.AccessCount++
		n.Metadata.LastAccessedAt = g.now()
		n.Metadata.UpdatedAt = g.now()
		n.Decay = clamp(n.Decay+0.1, MinDecay, MaxDecay)
		if attrs.Importance != nil && *attrs.Importance > n.Importance {
			n.Importance = clamp(*attrs.Importance, MinImportance, MaxImportance)
		}
		g.emit(Event{Type: EventNodeUpdated, Node: n})
		return n
	}

	id := g.newID()
	now := g.now()
	importance := DefaultImportance
	if attrs.Importance != nil {
		importance = clamp(*attrs.Importance, MinImportance, MaxImportance)
	}
	confidence := DefaultConfidence
	if attrs.Confidence != nil {
		confidence = clamp(*attrs.Confidence, MinConfidence, MaxConfidence)
	}
	n := &Node{
		ID:      id,
		Type:    t,
		Content: content,
		Metadata: NodeMetadata{
			CreatedAt:   now,
			UpdatedAt:   now,
			AccessCount: 0,
			Extra:       attrs.Extra,
		},
		Importance: importance,
		Confidence: confidence,
		Decay:      MaxDecay,
		Source:     attrs.Source,
		Platform:   attrs.Platform,
	}
	g.nodes[id] = n
	g.indexNodeType(t, id)
	g.contentIndex[hash] = id

	if g.activeSessionID != "" {
		if s, ok := g.sessions[g.activeSessionID]; ok {
			n.SessionID = s.ID
			s.NodeIDs[id] = struct{}{}
		}
	}

	g.emit(Event{Type: EventNodeAdded, Node: n})
	return n
}

// AddEdge implements addEdge: nil if either endpoint is
// missing, reinforce on an existing (source,target,type) triple,
// otherwise create a directed edge. Bidirectional edges and their reverse
// adjacency come from AddBidirectionalEdge.
func (g *Graph) AddEdge(sourceID, targetID string, t EdgeType, meta EdgeMetadata) *Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[sourceID]; !ok {
		return nil
	}
	if _, ok := g.nodes[targetID]; !ok {
		return nil
	}

	if existing := g.findEdgeLocked(sourceID, targetID, t); existing != nil {
		existing.Weight = clamp(existing.Weight+0.1, MinWeight, MaxWeight)
		existing.Metadata.UpdatedAt = g.now()
		g.emit(Event{Type: EventEdgeAdded, Edge: existing})
		return existing
	}

	id := g.newID()
	now := g.now()
	e := &Edge{
		ID:       id,
		SourceID: sourceID,
		TargetID: targetID,
		Type:     t,
		Weight:   DefaultWeight,
		Metadata: EdgeMetadata{CreatedAt: now, UpdatedAt: now},
	}
	g.edges[id] = e
	g.indexEdgeType(t, id)
	addToAdj(g.adjOut, sourceID, id)
	addToAdj(g.adjIn, targetID, id)

	g.emit(Event{Type: EventEdgeAdded, Edge: e})
	return e
}

// AddBidirectionalEdge is AddEdge with Bidirectional set, which also
// registers the reverse adjacency.
func (g *Graph) AddBidirectionalEdge(sourceID, targetID string, t EdgeType, meta EdgeMetadata) *Edge {
	e := g.AddEdge(sourceID, targetID, t, meta)
	if e == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !e.Bidirectional {
		e.Bidirectional = true
		addToAdj(g.adjOut, targetID, e.ID)
		addToAdj(g.adjIn, sourceID, e.ID)
	}
	return e
}

func (g *Graph) findEdgeLocked(sourceID, targetID string, t EdgeType) *Edge {
	for eid := range g.adjOut[sourceID] {
		e := g.edges[eid]
		if e != nil && e.TargetID == targetID && e.Type == t {
			return e
		}
	}
	return nil
}

// UpdateNode implements updateNode: rehashes the content index
// on content change, never touches CreatedAt.
func (g *Graph) UpdateNode(id string, content *any, importance, confidence *float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return false
	}

	if content != nil {
		oldHash := contentHash(n.Type, n.Content)
		delete(g.contentIndex, oldHash)
		n.Content = *content
		newHash := contentHash(n.Type, n.Content)
		g.contentIndex[newHash] = id
	}
	if importance != nil {
		n.Importance = clamp(*importance, MinImportance, MaxImportance)
	}
	if confidence != nil {
		n.Confidence = clamp(*confidence, MinConfidence, MaxConfidence)
	}
	n.Metadata.UpdatedAt = g.now()

	g.emit(Event{Type: EventNodeUpdated, Node: n})
	return true
}

// RemoveNode implements removeNode: deletes all incident edges
// in both directions, removes the node from every index and session,
// idempotently.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeNodeLocked(id)
}

func (g *Graph) removeNodeLocked(id string) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}

	for eid := range g.adjOut[id] {
		g.removeEdgeLocked(eid)
	}
	for eid := range g.adjIn[id] {
		g.removeEdgeLocked(eid)
	}
	delete(g.adjOut, id)
	delete(g.adjIn, id)

	g.unindexNodeType(n.Type, id)
	delete(g.contentIndex, contentHash(n.Type, n.Content))
	delete(g.nodes, id)

	for _, s := range g.sessions {
		delete(s.NodeIDs, id)
	}

	g.emit(Event{Type: EventNodeRemoved, Node: n})
}

// RemoveEdge deletes a single edge by ID, idempotently.
func (g *Graph) RemoveEdge(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeEdgeLocked(id)
}

func (g *Graph) removeEdgeLocked(id string) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	g.unindexEdgeType(e.Type, id)
	removeFromAdj(g.adjOut, e.SourceID, id)
	removeFromAdj(g.adjIn, e.TargetID, id)
	if e.Bidirectional {
		removeFromAdj(g.adjOut, e.TargetID, id)
		removeFromAdj(g.adjIn, e.SourceID, id)
	}
	delete(g.edges, id)
	g.emit(Event{Type: EventEdgeRemoved, Edge: e})
}

// GetNode returns a copy-free pointer to the node (callers must not
// mutate it outside the package's own methods).
func (g *Graph) GetNode(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// NodeCount and EdgeCount support Graph Store stats ( meta.stats).
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}
