package graph

// Subgraph is the deduped node/edge set returned by GetSubgraph.
type Subgraph struct {
	Nodes []*Node
	Edges []*Edge
}

// GetSubgraph implements: bidirectional breadth-limited
// traversal from startNodeID out to depth hops, deduping visited nodes
// and edges.
func (g *Graph) GetSubgraph(startNodeID string, depth int) Subgraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[startNodeID]; !ok {
		return Subgraph{}
	}

	visitedNodes := map[string]struct{}{startNodeID: {}}
	visitedEdges := map[string]struct{}{}
	frontier := []string{startNodeID}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for eid := range g.adjOut[id] {
				visitedEdges[eid] = struct{}{}
				e := g.edges[eid]
				if e == nil {
					continue
				}
				if _, seen := visitedNodes[e.TargetID]; !seen {
					visitedNodes[e.TargetID] = struct{}{}
					next = append(next, e.TargetID)
				}
			}
			for eid := range g.adjIn[id] {
				visitedEdges[eid] = struct{}{}
				e := g.edges[eid]
				if e == nil {
					continue
				}
				if _, seen := visitedNodes[e.SourceID]; !seen {
					visitedNodes[e.SourceID] = struct{}{}
					next = append(next, e.SourceID)
				}
			}
		}
		frontier = next
	}

	out := Subgraph{
		Nodes: make([]*Node, 0, len(visitedNodes)),
		Edges: make([]*Edge, 0, len(visitedEdges)),
	}
	for id := range visitedNodes {
		out.Nodes = append(out.Nodes, g.nodes[id])
	}
	for id := range visitedEdges {
		out.Edges = append(out.Edges, g.edges[id])
	}
	return out
}
