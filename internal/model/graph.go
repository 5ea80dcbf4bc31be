// Copyright (c) 2025 Noesis Project
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// GRAPH TYPES
// =============================================================================

// GraphNode is one vertex of the knowledge graph.
type GraphNode struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Kind       string            `json:"kind,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Clone returns a deep copy of the node.
func (n GraphNode) Clone() GraphNode {
	out := n
	if n.Properties != nil {
		out.Properties = make(map[string]string, len(n.Properties))
		for k, v := range n.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// GraphEdge is one relationship between two nodes, referenced by ID.
type GraphEdge struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Target     string            `json:"target"`
	Kind       string            `json:"kind,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Clone returns a deep copy of the edge.
func (e GraphEdge) Clone() GraphEdge {
	out := e
	if e.Properties != nil {
		out.Properties = make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// GraphSnapshot is the node/edge collection representing the knowledge
// graph at a point in time. The backend is authoritative; the client
// only mirrors snapshots and patches them with live deltas.
type GraphSnapshot struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Clone returns a deep copy of the snapshot.
func (g *GraphSnapshot) Clone() *GraphSnapshot {
	if g == nil {
		return nil
	}
	out := &GraphSnapshot{
		Nodes: make([]GraphNode, len(g.Nodes)),
		Edges: make([]GraphEdge, len(g.Edges)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range g.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// HasNode reports whether a node with the given ID is present.
func (g *GraphSnapshot) HasNode(id string) bool {
	for _, n := range g.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// HasEdge reports whether an edge with the given ID is present.
func (g *GraphSnapshot) HasEdge(id string) bool {
	for _, e := range g.Edges {
		if e.ID == id {
			return true
		}
	}
	return false
}
