package etl

import (
	"encoding/json"
	"fmt"
)

// ── Pipeline graph ─────────────────────────────────────────
// Pure data: a DAG of nodes and edges plus run variables.
// Cycles are detected by the executor, not here.

// NodeType classifies what a node does in the graph.
type NodeType string

const (
	NodeSource      NodeType = "SOURCE"
	NodeTransformer NodeType = "TRANSFORMER"
	NodeTarget      NodeType = "TARGET"
)

// Position is editor layout metadata. The executor ignores it.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single step of a pipeline.
type Node struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       NodeType `json:"type"`
	PluginType string   `json:"pluginType"`
	Config     Config   `json:"config"`
	Position   Position `json:"position"`
}

// label returns the node name, falling back to its id.
func (n *Node) label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Edge routes the output of one node into another. Handles are informational.
type Edge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"sourceNodeId"`
	TargetNodeID string `json:"targetNodeId"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Pipeline is a DAG describing one data-integration job.
type Pipeline struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Nodes       []Node         `json:"nodes"`
	Edges       []Edge         `json:"edges"`
	Variables   map[string]any `json:"variables,omitempty"`
	Status      string         `json:"status,omitempty"`
}

// ParsePipeline decodes a pipeline document.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	return &p, nil
}

// Node returns the node with the given id.
func (p *Pipeline) Node(id string) (*Node, bool) {
	for i := range p.Nodes {
		if p.Nodes[i].ID == id {
			return &p.Nodes[i], true
		}
	}
	return nil, false
}

// IncomingEdges returns all edges whose target is nodeID, in definition order.
func (p *Pipeline) IncomingEdges(nodeID string) []Edge {
	var edges []Edge
	for _, e := range p.Edges {
		if e.TargetNodeID == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// OutgoingEdges returns all edges whose source is nodeID, in definition order.
func (p *Pipeline) OutgoingEdges(nodeID string) []Edge {
	var edges []Edge
	for _, e := range p.Edges {
		if e.SourceNodeID == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// Validate checks the document-level invariants: unique node ids, known node
// types, and edges that reference existing nodes.
func (p *Pipeline) Validate() error {
	ids := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if n.ID == "" {
			return StructuralErrorf(nil, "node with empty id")
		}
		if ids[n.ID] {
			return StructuralErrorf(nil, "duplicate node id %q", n.ID)
		}
		ids[n.ID] = true
		switch n.Type {
		case NodeSource, NodeTransformer, NodeTarget:
		default:
			return StructuralErrorf(nil, "node %q has unknown type %q", n.ID, n.Type)
		}
	}
	for _, e := range p.Edges {
		if !ids[e.SourceNodeID] {
			return StructuralErrorf(nil, "edge %q references unknown source node %q", e.ID, e.SourceNodeID)
		}
		if !ids[e.TargetNodeID] {
			return StructuralErrorf(nil, "edge %q references unknown target node %q", e.ID, e.TargetNodeID)
		}
	}
	return nil
}

// TopologicalOrder orders the nodes with Kahn's algorithm. The ready queue is
// seeded in node-definition order and drained first-in first-out, so the
// result is deterministic. A cycle yields a StructuralError wrapping ErrCycle.
func (p *Pipeline) TopologicalOrder() ([]*Node, error) {
	index := make(map[string]int, len(p.Nodes))
	for i, n := range p.Nodes {
		index[n.ID] = i
	}

	indeg := make([]int, len(p.Nodes))
	adj := make([][]int, len(p.Nodes))
	for _, e := range p.Edges {
		from, okFrom := index[e.SourceNodeID]
		to, okTo := index[e.TargetNodeID]
		if !okFrom || !okTo {
			return nil, StructuralErrorf(nil, "edge %q references an unknown node", e.ID)
		}
		adj[from] = append(adj[from], to)
		indeg[to]++
	}

	queue := make([]int, 0, len(p.Nodes))
	for i := range p.Nodes {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]*Node, 0, len(p.Nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, &p.Nodes[n])
		for _, m := range adj[n] {
			indeg[m]--
			if indeg[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) < len(p.Nodes) {
		var stuck []string
		for i, d := range indeg {
			if d > 0 {
				stuck = append(stuck, p.Nodes[i].ID)
			}
		}
		return nil, StructuralErrorf(ErrCycle, "nodes %v never become ready", stuck)
	}
	return order, nil
}
