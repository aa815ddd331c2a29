// Package mcp exposes pipeline validation, explanation and execution to
// agents over the Model Context Protocol.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/history"
)

// Version is reported to clients, set at build time.
var Version = "dev"

// RunContextFactory prepares the context of a pipeline execution.
type RunContextFactory func(pipelineName string, inputs map[string]string, approve bool) *engine.RunContext

// ServerOption configures optional Server behaviour.
type ServerOption func(*Server)

// WithPipelinesDir publishes every pipeline file in dir as its own tool.
func WithPipelinesDir(dir string) ServerOption {
	return func(s *Server) { s.pipelinesDir = dir }
}

// WithHistory enables the pipeline.history tool.
func WithHistory(store *history.Store) ServerOption {
	return func(s *Server) { s.history = store }
}

// WithRunContext replaces the default run context factory.
func WithRunContext(f RunContextFactory) ServerOption {
	return func(s *Server) { s.newRunContext = f }
}

// WithLogger sets the logger used for tool calls.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server wraps an MCP server instance with the pipeline tools registered.
type Server struct {
	mcpServer     *server.MCPServer
	workDir       string
	pipelinesDir  string
	history       *history.Store
	newRunContext RunContextFactory
	logger        *slog.Logger
	pipelineTools []string
}

// NewServer creates a server whose relative pipeline paths resolve against
// workDir.
func NewServer(workDir string, opts ...ServerOption) *Server {
	s := &Server{workDir: workDir, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.newRunContext == nil {
		s.newRunContext = func(_ string, inputs map[string]string, approve bool) *engine.RunContext {
			rc := engine.NewRunContext(workDir, inputs, approve)
			rc.Logger = s.logger
			return rc
		}
	}

	s.mcpServer = server.NewMCPServer(
		"piperun",
		Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("piperun runs ordered build pipelines and stops at the first failing step. "+
			"Validate or explain a pipeline file before running it; destructive steps need approve=true."),
	)
	s.registerTools()
	s.registerPipelineTools()
	return s
}

// MCPServer returns the underlying mcp-go server instance.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// PipelineTools lists the tools generated from the pipelines dir.
func (s *Server) PipelineTools() []string {
	return s.pipelineTools
}

// ServeStdio serves MCP over standard input/output.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	fileArg := mcp.WithString("file",
		mcp.Required(),
		mcp.Description("Path to the pipeline YAML file, relative to the work dir"),
	)
	inputsArg := mcp.WithObject("inputs",
		mcp.Description("Pipeline inputs as name/value pairs"),
	)

	s.mcpServer.AddTool(
		mcp.NewTool("pipeline.validate",
			mcp.WithDescription("Validate a pipeline YAML file without running it"),
			mcp.WithReadOnlyHintAnnotation(true),
			fileArg,
		),
		s.handleValidate,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("pipeline.explain",
			mcp.WithDescription("Show the resolved commands of a pipeline without executing anything"),
			mcp.WithReadOnlyHintAnnotation(true),
			fileArg,
			inputsArg,
		),
		s.handleExecute(engine.ModeExplain),
	)
	s.mcpServer.AddTool(
		mcp.NewTool("pipeline.dry_run",
			mcp.WithDescription("Walk a pipeline in order, reporting what would run and which destructive steps would be blocked"),
			mcp.WithReadOnlyHintAnnotation(true),
			fileArg,
			inputsArg,
			mcp.WithBoolean("approve", mcp.Description("Treat destructive steps as approved")),
		),
		s.handleExecute(engine.ModeDryRun),
	)
	s.mcpServer.AddTool(
		mcp.NewTool("pipeline.run",
			mcp.WithDescription("Run a pipeline; execution stops at the first failing step and the result names it"),
			fileArg,
			inputsArg,
			mcp.WithBoolean("approve", mcp.Description("Allow steps marked destructive")),
		),
		s.handleExecute(engine.ModeRun),
	)
	s.mcpServer.AddTool(
		mcp.NewTool("pipeline.schema",
			mcp.WithDescription("Return the pipeline YAML schema"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleSchema,
	)
	s.mcpServer.AddTool(
		mcp.NewTool("pipeline.history",
			mcp.WithDescription("List recent runs, or the steps of one run when run_id is given"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("run_id", mcp.Description("Run to show in detail")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs to list (default 20)")),
		),
		s.handleHistory,
	)
}
