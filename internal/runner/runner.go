// Package runner executes an ordered sequence of named steps, stopping at the
// first failure.
//
// Steps run synchronously on the calling goroutine in declared order. Each
// step's action blocks until its work, including any asynchronous work it
// waits on, has finished. The runner never retries a step and never rolls
// back side effects of steps that already ran: a failure is reported to the
// caller together with the failing step's name and 1-based position.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

// Action performs the work of a step and returns its textual output.
// A non-nil error marks the step as failed.
type Action func(ctx context.Context) (string, error)

// Step is a named unit of work. Its position is its index in the slice
// passed to Run, counted from 1.
type Step struct {
	Name   string
	Action Action
}

// Observer receives step lifecycle notifications. Implementations must not
// block for long; they run on the pipeline's goroutine.
type Observer interface {
	StepStarted(step string, position int)
	StepFinished(step string, position int, err error, elapsed time.Duration)
}

type options struct {
	name      string
	logger    *slog.Logger
	observers []Observer
}

// Option configures a Run call.
type Option func(*options)

// WithName sets the pipeline name used in logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger. slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver adds an observer notified around every executed step.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// Run executes steps in order. It returns a configuration error when steps is
// empty or malformed; a failing step is reported through the Result, not the
// returned error.
func Run(ctx context.Context, steps []Step, opts ...Option) (*Result, error) {
	o := options{name: "pipeline"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if err := check(steps); err != nil {
		return nil, err
	}
	// Later mutation of the caller's slice must not change this run.
	steps = append([]Step(nil), steps...)

	m := &machine{}
	o.logger.Info("Pipeline started", "pipeline", o.name, "steps", len(steps))

	var output string
	for i, step := range steps {
		position := i + 1
		m.enter(position)

		if err := ctx.Err(); err != nil {
			cause := (&dagerrors.RunError{
				Type:    dagerrors.Cancelled,
				Message: fmt.Sprintf("pipeline cancelled before step %q: %v", step.Name, err),
			}).WithCause(err)
			return m.fail(step.Name, position, cause), nil
		}

		for _, obs := range o.observers {
			obs.StepStarted(step.Name, position)
		}
		o.logger.Info("Step started", "pipeline", o.name, "step", step.Name, "position", position)

		m.executed++
		start := time.Now()
		out, err := invoke(ctx, step)
		elapsed := time.Since(start)

		for _, obs := range o.observers {
			obs.StepFinished(step.Name, position, err, elapsed)
		}

		if err != nil {
			o.logger.Error("Step failed", "pipeline", o.name, "step", step.Name, "position", position,
				"error", err, "elapsed", elapsed)
			return m.fail(step.Name, position, err), nil
		}
		o.logger.Info("Step completed", "pipeline", o.name, "step", step.Name, "position", position,
			"elapsed", elapsed)
		output = out
	}

	o.logger.Info("Pipeline completed", "pipeline", o.name)
	return m.succeed(output), nil
}

func check(steps []Step) error {
	if len(steps) == 0 {
		return dagerrors.NewConfigurationError("pipeline has no steps", "Declare at least one step")
	}
	seen := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return dagerrors.NewConfigurationError(fmt.Sprintf("step at position %d has no name", i+1), "")
		}
		if prev, dup := seen[s.Name]; dup {
			return dagerrors.NewConfigurationError(
				fmt.Sprintf("duplicate step name %q at positions %d and %d", s.Name, prev, i+1), "")
		}
		seen[s.Name] = i + 1
		if s.Action == nil {
			return dagerrors.NewConfigurationError(fmt.Sprintf("step %q has no action", s.Name), "")
		}
	}
	return nil
}

// invoke runs the action, turning a panic into a step failure.
func invoke(ctx context.Context, step Step) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %q panicked: %v", step.Name, r)
		}
	}()
	return step.Action(ctx)
}
