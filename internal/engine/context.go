package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stevehiehn/piperun/internal/runner"
	"github.com/stevehiehn/piperun/internal/template"
)

// DefaultStateDir holds run artifacts and history, relative to the work dir.
const DefaultStateDir = ".piperun"

// Recorder persists or exports a finished run. Recorder errors are logged
// and never change the run's outcome.
type Recorder interface {
	Record(ctx context.Context, res *Result) error
}

// RunContext holds state for a pipeline execution.
type RunContext struct {
	RunID    string
	WorkDir  string
	StateDir string // empty means <WorkDir>/.piperun
	Inputs   map[string]string
	TmplCtx  *template.Context
	Approve  bool // allow destructive steps

	// Stream, when set, receives shell step output while it is produced.
	Stream io.Writer
	Logger *slog.Logger

	Observers []runner.Observer
	Recorders []Recorder
}

// NewRunContext creates a new execution context.
func NewRunContext(workDir string, inputs map[string]string, approve bool) *RunContext {
	return &RunContext{
		RunID:   uuid.New().String(),
		WorkDir: workDir,
		Inputs:  inputs,
		TmplCtx: template.NewContext(inputs),
		Approve: approve,
	}
}

func (rc *RunContext) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}

func (rc *RunContext) stateDir() string {
	if rc.StateDir != "" {
		return rc.StateDir
	}
	return filepath.Join(rc.WorkDir, DefaultStateDir)
}

// resolvePath joins relative paths onto the work dir.
func (rc *RunContext) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || rc.WorkDir == "" {
		return p
	}
	return filepath.Join(rc.WorkDir, p)
}
