package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/history"
	"github.com/stevehiehn/piperun/internal/pipeline"
)

func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file := mcp.ParseString(req, "file", "")
	if file == "" {
		return mcp.NewToolResultError("file is required"), nil
	}
	p, err := pipeline.LoadFile(s.resolvePath(file))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := pipeline.Validate(p, nil); err != nil {
		return mcp.NewToolResultError("Validation failed: " + err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Pipeline %q is valid (%d steps).", p.Name, len(p.Steps))), nil
}

func (s *Server) handleExecute(mode engine.Mode) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		file := mcp.ParseString(req, "file", "")
		if file == "" {
			return mcp.NewToolResultError("file is required"), nil
		}
		p, err := pipeline.LoadFile(s.resolvePath(file))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		approve := mcp.ParseBoolean(req, "approve", false)
		return s.execute(ctx, p, stringMap(req.GetArguments()["inputs"]), mode, approve)
	}
}

func (s *Server) execute(ctx context.Context, p *pipeline.Pipeline, inputs map[string]string, mode engine.Mode, approve bool) (*mcp.CallToolResult, error) {
	inputs = p.ApplyDefaults(inputs)
	if err := pipeline.Validate(p, inputs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rc := s.newRunContext(p.Name, inputs, approve)
	if mode != engine.ModeRun {
		// Only real runs are recorded, as on the command line.
		rc.Observers, rc.Recorders = nil, nil
	}
	s.logger.Info("Tool call", "pipeline", p.Name, "mode", mode.String(), "run_id", rc.RunID)
	result, err := engine.Execute(ctx, p, rc, mode)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalToolResult(result)
}

func (s *Server) handleSchema(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(schemaText), nil
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("run history is disabled"), nil
	}
	if runID := mcp.ParseString(req, "run_id", ""); runID != "" {
		run, steps, err := s.history.GetRun(ctx, runID)
		if errors.Is(err, history.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err != nil {
			return nil, err
		}
		return marshalToolResult(map[string]any{"run": run, "steps": steps})
	}
	runs, err := s.history.ListRuns(ctx, mcp.ParseInt(req, "limit", 20))
	if err != nil {
		return nil, err
	}
	return marshalToolResult(map[string]any{"runs": runs})
}

// registerPipelineTools adds one tool per pipeline file in the pipelines
// dir. Files that fail to load are skipped with a warning.
func (s *Server) registerPipelineTools() {
	if s.pipelinesDir == "" {
		return
	}
	entries, err := os.ReadDir(s.resolvePath(s.pipelinesDir))
	if err != nil {
		s.logger.Warn("Cannot read pipelines dir", "dir", s.pipelinesDir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(s.resolvePath(s.pipelinesDir), e.Name())
		p, err := pipeline.LoadFile(path)
		if err != nil {
			s.logger.Warn("Skipping pipeline file", "file", path, "error", err)
			continue
		}
		s.mcpServer.AddTool(pipelineTool(p), s.handlePipeline(path))
		s.pipelineTools = append(s.pipelineTools, p.Name)
	}
}

// pipelineTool turns a pipeline's inputs into string arguments.
func pipelineTool(p *pipeline.Pipeline) mcp.Tool {
	desc := p.Description
	if desc == "" {
		desc = "Run the " + p.Name + " pipeline"
	}
	opts := []mcp.ToolOption{mcp.WithDescription(desc)}

	names := make([]string, 0, len(p.Inputs))
	for name := range p.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		inp := p.Inputs[name]
		var props []mcp.PropertyOption
		if inp.Description != "" {
			props = append(props, mcp.Description(inp.Description))
		}
		if inp.Default != "" {
			props = append(props, mcp.DefaultString(inp.Default))
		}
		if inp.Required && inp.Default == "" {
			props = append(props, mcp.Required())
		}
		opts = append(opts, mcp.WithString(name, props...))
	}
	return mcp.NewTool(p.Name, opts...)
}

// handlePipeline reloads the file on every call so edits are picked up.
func (s *Server) handlePipeline(path string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, err := pipeline.LoadFile(path)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return s.execute(ctx, p, stringMap(req.GetArguments()), engine.ModeRun, false)
	}
}

func marshalToolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// stringMap converts a JSON object argument to string values.
func stringMap(v any) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		switch x := val.(type) {
		case nil:
		case string:
			out[k] = x
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (s *Server) resolvePath(file string) string {
	if filepath.IsAbs(file) || s.workDir == "" {
		return file
	}
	return filepath.Join(s.workDir, file)
}

const schemaText = `Pipeline YAML Schema:
  name: string (required)
  description: string (optional)
  inputs:
    <name>:
      required: bool
      description: string
      default: string
  env: map[string]string (applies to every shell step)
  steps:
    - id: string (required, unique)
      name: string (human-readable step label)
      run: string (shell command)
      dir: string (working directory, relative to the work dir)
      env: map[string]string
      action: string (built-in action: env.get, file.append, file.write, http, json.get, json.set)
      with: map[string]string (for actions)
      http:
        url: string (required)
        method: string (default: GET)
        headers: map[string]string
        body: string
      outputs:
        <name>: stdout | stderr | exit_code | <action output>
      destructive: bool
  Templates: ${{ inputs.<name> }} and ${{ steps.<id>.outputs.<name> }}
  Note: Each step must have exactly one of: run, action, or http.
  Steps run in order; the first failing step stops the pipeline.`
