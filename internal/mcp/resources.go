package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	connectorsURI     = "pipeline://connectors"
	transformersURI   = "pipeline://transformers"
	pipelineURIPrefix = "pipeline://pipelines/"
)

func (s *Server) registerResources() {
	// ── pipeline://connectors ──────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		connectorsURI,
		"Connector Types",
		mcp.WithMIMEType("application/json"),
	), s.handleConnectorsResource)

	// ── pipeline://transformers ────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		transformersURI,
		"Transformer Types",
		mcp.WithMIMEType("application/json"),
	), s.handleTransformersResource)

	// ── pipeline://pipelines/{id} ──────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			pipelineURIPrefix+"{id}",
			"Stored Pipeline Document",
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handlePipelineResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleConnectorsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(connectorsURI, s.pipelines.ListConnectors())
}

func (s *Server) handleTransformersResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(transformersURI, s.pipelines.ListTransformers())
}

func (s *Server) handlePipelineResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, pipelineURIPrefix)
	if id == "" || id == uri || strings.Contains(id, "/") {
		return nil, fmt.Errorf("could not extract pipeline id from URI: %s", uri)
	}
	def, err := s.pipelines.GetPipeline(id)
	if err != nil {
		return nil, err
	}
	return jsonContents(uri, def.Pipeline)
}
