package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/stevehiehn/piperun/internal/engine"
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// parseInputs converts ["key=value", ...] to a map.
func parseInputs(raw []string) (map[string]string, error) {
	m := map[string]string{}
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, dagerrors.NewConfigurationError(
				fmt.Sprintf("malformed input %q", kv), "Use --input name=value")
		}
		m[k] = v
	}
	return m, nil
}

func statusLabel(status string) string {
	switch status {
	case engine.StatusSuccess:
		return okStyle.Render(status)
	case engine.StatusFailed, engine.StatusCancelled:
		return failStyle.Render(status)
	case engine.StatusBlocked:
		return warnStyle.Render(status)
	case engine.StatusSkipped:
		return dimStyle.Render(status)
	}
	return status
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printSteps lists each step with its status and resolved command.
func printSteps(w io.Writer, result *engine.Result) {
	for _, sr := range result.Steps {
		lipgloss.Fprintf(w, "%d. %s [%s]\n", sr.Position, sr.ID, statusLabel(sr.Status))
		if sr.Description != "" {
			fmt.Fprintf(w, "   Description: %s\n", sr.Description)
		}
		if sr.Command != "" {
			fmt.Fprintf(w, "   Command: %s\n", sr.Command)
		}
		if sr.DryRunInfo != "" && sr.DryRunInfo != sr.Command {
			fmt.Fprintf(w, "   Info: %s\n", sr.DryRunInfo)
		}
	}
}

// printFailure reports the failing step and the reason.
func printFailure(w io.Writer, result *engine.Result) {
	lipgloss.Fprintf(w, "%s pipeline %q failed at step %q (position %d)\n",
		failStyle.Render("✗"), result.Pipeline, result.FailedStepID, result.FailedPosition)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  Error: %s\n", e.Message)
		if e.Hint != "" {
			fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
		}
	}
}

// finish turns an unsuccessful result into the error that carries its exit
// code.
func finish(result *engine.Result) error {
	if result.Success {
		return nil
	}
	var err error = fmt.Errorf("pipeline %q failed at step %q", result.Pipeline, result.FailedStepID)
	if f := result.Failure(); f != nil {
		err = f
	}
	return &reportedError{code: StepExitCode(result.FailedPosition), err: err}
}
