package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/stevehiehn/piperun/internal/config"
	"github.com/stevehiehn/piperun/internal/engine"
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
	"github.com/stevehiehn/piperun/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded pipeline runs, or show one run's steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.History.Enabled {
				return dagerrors.NewConfigurationError("run history is disabled", "Set history.enabled: true in "+config.DefaultFile)
			}
			store, err := history.Open(a.cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, steps, err := store.GetRun(cmd.Context(), args[0])
				if errors.Is(err, history.ErrNotFound) {
					return dagerrors.NewConfigurationError(err.Error(), "List runs with: piperun history")
				}
				if err != nil {
					return err
				}
				if a.jsonOutput {
					return writeJSON(out, map[string]any{"run": run, "steps": steps})
				}
				lipgloss.Fprintf(out, "Run %s: %s [%s]\n", run.RunID, run.Pipeline, statusLabel(runStatus(run.Status)))
				if run.Cause != "" {
					fmt.Fprintf(out, "  Failed at step %q (position %d): %s\n", run.FailedStep, run.FailedPosition, run.Cause)
				}
				t := historyTable("#", "STEP", "STATUS", "EXIT", "DURATION")
				for _, s := range steps {
					t.Row(strconv.Itoa(s.Position), s.StepID, s.Status, strconv.Itoa(s.ExitCode),
						(time.Duration(s.DurationMS) * time.Millisecond).String())
				}
				lipgloss.Fprintln(out, t.Render())
				return nil
			}

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			t := historyTable("RUN", "PIPELINE", "MODE", "STATUS", "FAILED STEP", "STARTED")
			for _, r := range runs {
				t.Row(r.RunID, r.Pipeline, r.Mode, r.Status, r.FailedStep, r.StartedOn.Local().Format(time.DateTime))
			}
			lipgloss.Fprintln(out, t.Render())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

func historyTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// runStatus maps a stored run status onto the step status palette.
func runStatus(s string) string {
	if s == history.StatusSucceeded {
		return engine.StatusSuccess
	}
	return engine.StatusFailed
}
