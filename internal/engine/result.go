package engine

import (
	"time"

	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

// Step statuses.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusBlocked   = "blocked"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
	StatusExplain   = "explain"
	StatusDryRun    = "dry-run"
)

// Result is the structured output of a pipeline execution.
type Result struct {
	RunID          string               `json:"run_id"`
	Pipeline       string               `json:"pipeline"`
	Mode           string               `json:"mode"`
	Success        bool                 `json:"success"`
	Output         string               `json:"output,omitempty"`
	FailedStepID   string               `json:"failed_step_id,omitempty"`
	FailedPosition int                  `json:"failed_position,omitempty"`
	Steps          []StepResult         `json:"steps"`
	Outputs        map[string]string    `json:"outputs,omitempty"` // "<step>.<name>"
	Artifacts      []string             `json:"artifacts,omitempty"`
	Errors         []dagerrors.RunError `json:"errors,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	EndedAt        time.Time            `json:"ended_at"`
}

// Failure returns the first recorded error, if any.
func (r *Result) Failure() *dagerrors.RunError {
	if len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}

// StepResult describes the outcome of a single step.
type StepResult struct {
	ID          string `json:"id"`
	Position    int    `json:"position"`
	Status      string `json:"status"`
	ExitCode    int    `json:"exit_code,omitempty"`
	Error       string `json:"error,omitempty"`
	StdoutRef   string `json:"stdout_ref,omitempty"` // artifact path
	StderrRef   string `json:"stderr_ref,omitempty"`
	Duration    string `json:"duration,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
	Description string `json:"description,omitempty"`
	Command     string `json:"command,omitempty"` // resolved command
	DryRunInfo  string `json:"dry_run_info,omitempty"`

	stdout, stderr string
}
