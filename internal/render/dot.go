// Package render draws pipeline graphs as Graphviz DOT.
package render

import (
	"fmt"

	"github.com/awalterschulze/gographviz"

	"github.com/frankawp/data-pipeline-builder/internal/etl"
)

var nodeStyle = map[etl.NodeType]map[string]string{
	etl.NodeSource:      {"shape": "cylinder", "fillcolor": "#dbeafe"},
	etl.NodeTransformer: {"shape": "box", "fillcolor": "#fef3c7"},
	etl.NodeTarget:      {"shape": "cylinder", "fillcolor": "#dcfce7"},
}

// DOT renders p left to right. When result is non-nil, nodes are coloured by
// their outcome and labelled with record counts.
func DOT(p *etl.Pipeline, result *etl.ExecutionResult) (string, error) {
	g := gographviz.NewEscape()
	name := p.Name
	if name == "" {
		name = "pipeline"
	}
	if err := g.SetName(name); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}
	if err := g.AddAttr(name, "rankdir", "LR"); err != nil {
		return "", err
	}

	for _, n := range p.Nodes {
		label := n.Name
		if label == "" {
			label = n.ID
		}
		label += `\n(` + n.PluginType + `)`

		attrs := map[string]string{"style": "filled"}
		for k, v := range nodeStyle[n.Type] {
			attrs[k] = v
		}
		if result != nil {
			if nr, ok := result.NodeResult(n.ID); ok {
				label += fmt.Sprintf(`\nread %d / written %d`, nr.RecordsRead, nr.RecordsWritten)
				if nr.Status == etl.StatusFailed {
					attrs["fillcolor"] = "#fecaca"
				}
			} else {
				// never ran
				attrs["style"] = "dashed"
			}
		}
		attrs["label"] = label

		if err := g.AddNode(name, n.ID, attrs); err != nil {
			return "", fmt.Errorf("node %q: %w", n.ID, err)
		}
	}

	for _, e := range p.Edges {
		attrs := map[string]string{}
		if e.SourceHandle != "" || e.TargetHandle != "" {
			attrs["label"] = e.SourceHandle + "→" + e.TargetHandle
		}
		if err := g.AddEdge(e.SourceNodeID, e.TargetNodeID, true, attrs); err != nil {
			return "", fmt.Errorf("edge %q: %w", e.ID, err)
		}
	}
	return g.String(), nil
}
