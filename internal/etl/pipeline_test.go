package etl_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

func ids(nodes []*etl.Node) string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return strings.Join(out, ",")
}

func node(id string, typ etl.NodeType) etl.Node {
	return etl.Node{ID: id, Type: typ, PluginType: "x"}
}

func TestTopologicalOrder_FIFOOfDiscovery(t *testing.T) {
	// Diamond with a second root declared first.
	p := &etl.Pipeline{
		Nodes: []etl.Node{
			node("z", etl.NodeSource),
			node("a", etl.NodeSource),
			node("b", etl.NodeTransformer),
			node("c", etl.NodeTransformer),
			node("d", etl.NodeTarget),
		},
		Edges: []etl.Edge{edge("a", "c"), edge("a", "b"), edge("b", "d"), edge("c", "d"), edge("z", "b")},
	}
	order, err := p.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if got := ids(order); got != "z,a,c,b,d" {
		t.Errorf("order = %s, want z,a,c,b,d", got)
	}
}

func TestTopologicalOrder_EveryNodeAfterItsUpstreams(t *testing.T) {
	p := &etl.Pipeline{
		Nodes: []etl.Node{
			node("t3", etl.NodeTarget),
			node("m2", etl.NodeTransformer),
			node("m1", etl.NodeTransformer),
			node("s1", etl.NodeSource),
			node("s2", etl.NodeSource),
		},
		Edges: []etl.Edge{edge("s1", "m1"), edge("m1", "m2"), edge("s2", "m2"), edge("m2", "t3")},
	}
	order, err := p.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if len(order) != len(p.Nodes) {
		t.Fatalf("visited %d nodes, want %d", len(order), len(p.Nodes))
	}
	pos := map[string]int{}
	for i, n := range order {
		if _, dup := pos[n.ID]; dup {
			t.Fatalf("node %s visited twice", n.ID)
		}
		pos[n.ID] = i
	}
	for _, e := range p.Edges {
		if pos[e.SourceNodeID] >= pos[e.TargetNodeID] {
			t.Errorf("%s ran before its upstream %s", e.TargetNodeID, e.SourceNodeID)
		}
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	p := &etl.Pipeline{
		Nodes: []etl.Node{node("a", etl.NodeTransformer), node("b", etl.NodeTransformer)},
		Edges: []etl.Edge{edge("a", "b"), edge("b", "a")},
	}
	_, err := p.TopologicalOrder()
	if !errors.Is(err, etl.ErrCycle) || !errors.Is(err, etl.ErrStructural) {
		t.Fatalf("err = %v, want structural cycle error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    etl.Pipeline
		want string
	}{
		{"empty id", etl.Pipeline{Nodes: []etl.Node{node("", etl.NodeSource)}}, "empty id"},
		{"duplicate id", etl.Pipeline{Nodes: []etl.Node{node("a", etl.NodeSource), node("a", etl.NodeTarget)}}, "duplicate"},
		{"bad type", etl.Pipeline{Nodes: []etl.Node{node("a", "SINK")}}, "unknown type"},
		{"dangling edge", etl.Pipeline{Nodes: []etl.Node{node("a", etl.NodeSource)}, Edges: []etl.Edge{edge("a", "b")}}, "unknown target node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if !errors.Is(err, etl.ErrStructural) || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want structural error containing %q", err, tt.want)
			}
		})
	}
}

func TestParsePipeline(t *testing.T) {
	doc := `{
		"id": "p1",
		"name": "orders",
		"nodes": [
			{"id": "s", "type": "SOURCE", "pluginType": "csv", "config": {"filePath": "a.csv"}, "position": {"x": 10, "y": 20}},
			{"id": "o", "type": "TARGET", "pluginType": "csv", "config": {"filePath": "b.csv"}}
		],
		"edges": [{"id": "e1", "sourceNodeId": "s", "targetNodeId": "o"}],
		"variables": {"day": "2024-01-01"}
	}`
	p, err := etl.ParsePipeline([]byte(doc))
	if err != nil {
		t.Fatalf("ParsePipeline: %v", err)
	}
	n, ok := p.Node("s")
	if !ok || n.Config.String("filePath", "") != "a.csv" || n.Position.Y != 20 {
		t.Errorf("node s = %+v", n)
	}
	if in := p.IncomingEdges("o"); len(in) != 1 || in[0].SourceNodeID != "s" {
		t.Errorf("IncomingEdges(o) = %+v", in)
	}
	if out := p.OutgoingEdges("o"); len(out) != 0 {
		t.Errorf("OutgoingEdges(o) = %+v", out)
	}
	if p.Variables["day"] != "2024-01-01" {
		t.Errorf("variables = %v", p.Variables)
	}
}
