package cmd

import (
	"errors"
	"fmt"
	"io"

	"charm.land/lipgloss/v2"

	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

// Exit codes. A failing or blocked step k exits with ExitStepBase+k, capped
// at ExitStepMax.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitConfiguration = 2
	ExitStepBase      = 10
	ExitStepMax       = 125
)

// reportedError is a failure whose details were already printed.
type reportedError struct {
	code int
	err  error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// StepExitCode returns the exit code for a failure at position (1-based).
func StepExitCode(position int) int {
	return min(ExitStepBase+position, ExitStepMax)
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var re *reportedError
	if errors.As(err, &re) {
		return re.code
	}
	if dagerrors.IsConfiguration(err) {
		return ExitConfiguration
	}
	if f, ok := dagerrors.AsStepFailure(err); ok {
		return StepExitCode(f.Position)
	}
	return ExitError
}

func reportError(w io.Writer, err error) {
	var re *reportedError
	if errors.As(err, &re) {
		return
	}
	lipgloss.Fprintln(w, failStyle.Render("Error:"), err.Error())
	var runErr *dagerrors.RunError
	if errors.As(err, &runErr) && runErr.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", runErr.Hint)
	}
}
