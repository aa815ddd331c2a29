package runner

import (
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

// State is a pipeline's position in its lifecycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Result is the outcome of a Run.
type Result struct {
	State State `json:"state"`
	// Output is the last step's output when the pipeline succeeded.
	Output string `json:"output,omitempty"`
	// FailedStep and FailedAt identify the failing step; FailedAt is 1-based.
	FailedStep string `json:"failed_step,omitempty"`
	FailedAt   int    `json:"failed_at,omitempty"`
	// Executed counts the steps whose action was invoked.
	Executed int `json:"executed"`

	failure *dagerrors.RunError
}

// Completed reports whether every step succeeded.
func (r *Result) Completed() bool {
	return r.State == StateSucceeded
}

// Err returns the step failure, or nil when the pipeline completed.
func (r *Result) Err() error {
	if r.failure == nil {
		return nil
	}
	return r.failure
}

// machine tracks NotStarted -> Running(i) -> {Succeeded, Failed(i)}.
type machine struct {
	state    State
	position int
	executed int
	done     bool
}

func (m *machine) enter(position int) {
	if m.done {
		panic("runner: transition after terminal state")
	}
	if position != m.position+1 {
		panic("runner: steps must run in increasing order")
	}
	m.state = StateRunning
	m.position = position
}

func (m *machine) succeed(output string) *Result {
	m.finish(StateSucceeded)
	return &Result{State: StateSucceeded, Output: output, Executed: m.executed}
}

func (m *machine) fail(step string, position int, cause error) *Result {
	m.finish(StateFailed)
	return &Result{
		State:      StateFailed,
		FailedStep: step,
		FailedAt:   position,
		Executed:   m.executed,
		failure:    dagerrors.NewStepFailure(step, position, cause),
	}
}

func (m *machine) finish(s State) {
	if m.done {
		panic("runner: result already produced")
	}
	m.done = true
	m.state = s
}
