package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/frankawp/data-pipeline-builder/internal/domain"
	"github.com/frankawp/data-pipeline-builder/internal/etl"

	"github.com/mark3labs/mcp-go/mcp"
)

const pipelineDocHelp = `Pipeline document as JSON: {"id","name","nodes":[{"id","name","type":"SOURCE|TRANSFORMER|TARGET","pluginType","config":{}}],"edges":[{"id","sourceNodeId","targetNodeId"}],"variables":{}}.
Config string values may reference variables as ${name}.`

func (s *Server) registerPipelineTools() {
	s.mcp.AddTool(mcp.NewTool("validate_pipeline",
		mcp.WithDescription("Check a pipeline document without running it: graph structure, plugin types, node configs, and a connection test for every source and target"),
		mcp.WithString("pipelineJSON", mcp.Description(pipelineDocHelp), mcp.Required()),
		mcp.WithString("variablesJSON", mcp.Description("Optional JSON object of run variables")),
	), s.handleValidatePipeline)

	s.mcp.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("🛑 DESTRUCTIVE: Run a stored pipeline (pipelineId) or an inline document (pipelineJSON). Targets may be overwritten."),
		mcp.WithString("pipelineId", mcp.Description("ID of a stored pipeline")),
		mcp.WithString("pipelineJSON", mcp.Description(pipelineDocHelp)),
		mcp.WithString("variablesJSON", mcp.Description("Optional JSON object of run variables; overrides the pipeline's own")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunPipeline)

	s.mcp.AddTool(mcp.NewTool("save_pipeline",
		mcp.WithDescription("Store a pipeline document, optionally with a schedule (cron) or file_watch trigger"),
		mcp.WithString("pipelineJSON", mcp.Description(pipelineDocHelp), mcp.Required()),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, file path for file_watch")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleSavePipeline)

	s.mcp.AddTool(mcp.NewTool("delete_pipeline",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a stored pipeline and its run history"),
		mcp.WithString("pipelineId", mcp.Description("ID of a stored pipeline"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeletePipeline)

	s.mcp.AddTool(mcp.NewTool("list_pipelines",
		mcp.WithDescription("List stored pipelines with their triggers"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListPipelines)

	s.mcp.AddTool(mcp.NewTool("list_executions",
		mcp.WithDescription("List recent runs, newest first"),
		mcp.WithString("pipelineId", mcp.Description("Only runs of this pipeline (optional)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListExecutions)
}

// pipelineArg decodes the pipelineJSON argument.
func pipelineArg(args map[string]any) (*etl.Pipeline, error) {
	var p etl.Pipeline
	ok, err := jsonArg(args, "pipelineJSON", &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *Server) rejectWrites(tool string) *mcp.CallToolResult {
	if !s.readOnly {
		return nil
	}
	s.logger.Warn("mcp: destructive tool refused", "tool", tool)
	return textResult(fmt.Sprintf("%s rejected: server is read-only", tool))
}

func (s *Server) handleValidatePipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	p, err := pipelineArg(args)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("pipelineJSON is required")
	}
	var vars map[string]any
	if _, err := jsonArg(args, "variablesJSON", &vars); err != nil {
		return nil, err
	}

	checks, err := s.pipelines.CheckPipeline(ctx, p, vars)
	if err != nil {
		// Invalid documents are an answer, not a tool failure.
		out := map[string]any{"valid": false, "error": err.Error()}
		var e *etl.Error
		if errors.As(err, &e) {
			out["kind"] = e.Kind.Error()
		}
		return jsonResult(out)
	}
	return jsonResult(map[string]any{"valid": true, "connections": checks})
}

func (s *Server) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.rejectWrites("run_pipeline"); res != nil {
		return res, nil
	}
	args := req.GetArguments()
	var vars map[string]any
	if _, err := jsonArg(args, "variablesJSON", &vars); err != nil {
		return nil, err
	}

	if id := req.GetString("pipelineId", ""); id != "" {
		result, err := s.pipelines.Run(ctx, id, vars)
		if err != nil {
			return nil, fmt.Errorf("run pipeline: %w", err)
		}
		return jsonResult(result)
	}

	p, err := pipelineArg(args)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("pipelineId or pipelineJSON is required")
	}
	result, err := s.pipelines.RunDocument(ctx, p, vars)
	if err != nil {
		return nil, fmt.Errorf("run pipeline: %w", err)
	}
	return jsonResult(result)
}

func (s *Server) handleSavePipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.rejectWrites("save_pipeline"); res != nil {
		return res, nil
	}
	p, err := pipelineArg(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("pipelineJSON is required")
	}

	def := &domain.PipelineDefinition{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Pipeline:      p,
		TriggerType:   domain.TriggerType(req.GetString("triggerType", string(domain.TriggerManual))),
		TriggerConfig: req.GetString("triggerConfig", ""),
		Enabled:       true,
	}
	if err := s.pipelines.SavePipeline(ctx, def); err != nil {
		return nil, fmt.Errorf("save pipeline: %w", err)
	}
	return jsonResult(def)
}

func (s *Server) handleDeletePipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := s.rejectWrites("delete_pipeline"); res != nil {
		return res, nil
	}
	id := req.GetString("pipelineId", "")
	if id == "" {
		return nil, fmt.Errorf("pipelineId is required")
	}
	if err := s.pipelines.DeletePipeline(ctx, id); err != nil {
		return nil, fmt.Errorf("delete pipeline: %w", err)
	}
	return textResult(fmt.Sprintf("Deleted pipeline %s", id)), nil
}

func (s *Server) handleListPipelines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs, err := s.pipelines.ListPipelines()
	if err != nil {
		return nil, err
	}

	type pipelineSummary struct {
		ID            string             `json:"id"`
		Name          string             `json:"name"`
		Nodes         int                `json:"nodes"`
		TriggerType   domain.TriggerType `json:"triggerType"`
		TriggerConfig string             `json:"triggerConfig,omitempty"`
		Enabled       bool               `json:"enabled"`
	}

	summaries := make([]pipelineSummary, 0, len(defs))
	for _, d := range defs {
		summaries = append(summaries, pipelineSummary{
			ID:            d.ID,
			Name:          d.Name,
			Nodes:         len(d.Pipeline.Nodes),
			TriggerType:   d.TriggerType,
			TriggerConfig: d.TriggerConfig,
			Enabled:       d.Enabled,
		})
	}
	return jsonResult(summaries)
}

func (s *Server) handleListExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.pipelines.ListExecutions(req.GetString("pipelineId", ""), req.GetInt("limit", 20))
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []domain.Execution{}
	}
	return jsonResult(runs)
}
