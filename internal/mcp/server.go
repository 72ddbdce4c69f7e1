package mcpserver

import (
	"log/slog"

	"github.com/frankawp/data-pipeline-builder/internal/service"

	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for the pipeline engine.
// It exposes tools, resources, and prompts so AI agents can design, check
// and run pipelines.
type Server struct {
	mcp       *server.MCPServer
	pipelines *service.PipelineService
	readOnly  bool
	logger    *slog.Logger
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Pipelines *service.PipelineService
	// ReadOnly refuses the destructive tools (run, save, delete).
	ReadOnly bool
	Logger   *slog.Logger
	Version  string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	s := &Server{
		pipelines: deps.Pipelines,
		readOnly:  deps.ReadOnly,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s.mcp = server.NewMCPServer(
		"pipeline-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerPluginTools()
	s.registerPipelineTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("mcp: starting stdio server", "readOnly", s.readOnly)
	return server.ServeStdio(s.mcp)
}
