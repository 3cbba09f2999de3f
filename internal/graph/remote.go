package graph

// ApplyRemoteNode implements the node_added/node_updated merge
// rule for a message received from a peer tab: insert if absent,
// otherwise replace iff the incoming metadata is at least as fresh as
// what's stored (newer-wins, ties favor the incoming copy). Returns
// true if the node was inserted or replaced.
func (g *Graph) ApplyRemoteNode(n Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[n.ID]
	if !ok {
		cp := n
		g.nodes[n.ID] = &cp
		g.indexNodeType(n.Type, n.ID)
		g.contentIndex[contentHash(n.Type, n.Content)] = n.ID
		if n.SessionID != "" {
			if s, ok := g.sessions[n.SessionID]; ok {
				s.NodeIDs[n.ID] = struct{}{}
			}
		}
		g.emit(Event{Type: EventNodeAdded, Node: &cp})
		return true
	}

	if n.Metadata.UpdatedAt.Before(existing.Metadata.UpdatedAt) {
		return false
	}

	delete(g.contentIndex, contentHash(existing.Type, existing.Content))
	if existing.Type != n.Type {
		g.unindexNodeType(existing.Type, n.ID)
		g.indexNodeType(n.Type, n.ID)
	}
	cp := n
	g.nodes[n.ID] = &cp
	g.contentIndex[contentHash(n.Type, n.Content)] = n.ID
	g.emit(Event{Type: EventNodeUpdated, Node: &cp})
	return true
}

// ApplyRemoteEdge implements the edge_added merge rule: edges
// are add-once, applied only if absent and both endpoints already exist
// locally. Returns true if the edge was inserted.
func (g *Graph) ApplyRemoteEdge(e Edge) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edges[e.ID]; ok {
		return false
	}
	if _, ok := g.nodes[e.SourceID]; !ok {
		return false
	}
	if _, ok := g.nodes[e.TargetID]; !ok {
		return false
	}

	cp := e
	g.edges[e.ID] = &cp
	g.indexEdgeType(e.Type, e.ID)
	addToAdj(g.adjOut, e.SourceID, e.ID)
	addToAdj(g.adjIn, e.TargetID, e.ID)
	if e.Bidirectional {
		addToAdj(g.adjOut, e.TargetID, e.ID)
		addToAdj(g.adjIn, e.SourceID, e.ID)
	}
	g.emit(Event{Type: EventEdgeAdded, Edge: &cp})
	return true
}
