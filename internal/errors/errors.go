package errors

import (
	"errors"
	"fmt"
)

// Error type constants
const (
	ConfigurationError = "CONFIGURATION_ERROR"
	StepFailed         = "STEP_FAILED"
	ToolNotFound       = "TOOL_NOT_FOUND"
	SideEffectBlocked  = "SIDE_EFFECT_BLOCKED"
	Cancelled          = "CANCELLED"
)

// RunError is a structured error for callers that report failures to
// users or agents.
type RunError struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	StepID   string `json:"step_id,omitempty"`
	Position int    `json:"position,omitempty"` // 1-based step position
	Hint     string `json:"hint,omitempty"`

	cause error
}

func (e *RunError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Type, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.cause
}

// WithCause attaches an underlying error.
func (e *RunError) WithCause(err error) *RunError {
	e.cause = err
	return e
}

func NewConfigurationError(msg, hint string) *RunError {
	return &RunError{Type: ConfigurationError, Message: msg, Hint: hint}
}

// NewStepFailure reports that the step at position (1-based) failed with cause.
// A cause that is itself a RunError keeps its type, so blocked or cancelled
// steps are not reported as plain failures.
func NewStepFailure(stepID string, position int, cause error) *RunError {
	e := &RunError{Type: StepFailed, StepID: stepID, Position: position, cause: cause}
	if cause == nil {
		e.Message = "step failed"
		return e
	}
	e.Message = cause.Error()
	var re *RunError
	if errors.As(cause, &re) {
		e.Type = re.Type
		e.Message = re.Message
		e.Hint = re.Hint
	}
	return e
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Type == ConfigurationError
}

// AsStepFailure returns the step-level RunError carried by err, if any.
func AsStepFailure(err error) (*RunError, bool) {
	var re *RunError
	if errors.As(err, &re) && re.StepID != "" && re.Position > 0 {
		return re, true
	}
	return nil, false
}
