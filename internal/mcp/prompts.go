package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("design_pipeline",
		mcp.WithPromptDescription("Guide through designing, checking and running a data pipeline"),
		mcp.WithArgument("source",
			mcp.ArgumentDescription("Where the data comes from (e.g. a CSV path, a database table)"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("target",
			mcp.ArgumentDescription("Where the data should go"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("description",
			mcp.ArgumentDescription("What the pipeline should do with the data"),
		),
	), s.handleDesignPipelinePrompt)
}

func (s *Server) handleDesignPipelinePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	source := req.Params.Arguments["source"]
	target := req.Params.Arguments["target"]
	description := req.Params.Arguments["description"]
	if description == "" {
		description = "copy the records unchanged"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Design a pipeline from %s to %s", source, target),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a pipeline that reads from %s, writes to %s, and does the following: %s.

1. Use list_connectors and list_transformers to see the available plugins and their config fields
2. Use test_connection on the source and target configs until both succeed
3. Write the pipeline document: one SOURCE node, TRANSFORMER nodes as needed (filter, map, aggregate, dedupe, union), one TARGET node, and edges between them
4. Call validate_pipeline and fix every reported problem
5. Call run_pipeline and report the status and record counts of each node
6. If it should run again later, store it with save_pipeline and a schedule or file_watch trigger`, source, target, description),
				},
			},
		},
	}, nil
}
