package mcpserver

import (
	"context"
	"fmt"

	"github.com/frankawp/data-pipeline-builder/internal/etl"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPluginTools() {
	s.mcp.AddTool(mcp.NewTool("list_connectors",
		mcp.WithDescription("List connector types (sources and targets) with their configuration schemas"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListConnectors)

	s.mcp.AddTool(mcp.NewTool("list_transformers",
		mcp.WithDescription("List transformer types with their configuration schemas"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListTransformers)

	s.mcp.AddTool(mcp.NewTool("test_connection",
		mcp.WithDescription("Validate a connector configuration and test that its file or database is reachable"),
		mcp.WithString("connectorType", mcp.Description("Connector type (use list_connectors to see available types)"), mcp.Required()),
		mcp.WithString("configJSON", mcp.Description("Connector configuration as a JSON object"), mcp.Required()),
	), s.handleTestConnection)
}

func (s *Server) handleListConnectors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.pipelines.ListConnectors())
}

func (s *Server) handleListTransformers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.pipelines.ListTransformers())
}

func (s *Server) handleTestConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ := req.GetString("connectorType", "")
	if typ == "" {
		return nil, fmt.Errorf("connectorType is required")
	}
	var cfg etl.Config
	if _, err := jsonArg(req.GetArguments(), "configJSON", &cfg); err != nil {
		return nil, err
	}
	return jsonResult(s.pipelines.TestConnection(ctx, typ, cfg))
}
