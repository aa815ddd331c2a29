package cmd

import (
	"context"
	"fmt"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stevehiehn/piperun/internal/engine"
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
	"github.com/stevehiehn/piperun/internal/pipeline"
)

type runOptions struct {
	steps   []string
	inputs  []string
	approve bool
	stream  bool
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [pipeline.yaml | - | yaml] [--step id=command]...",
		Short: "Run a pipeline, stopping at the first failing step",
		Long: "Run executes the pipeline's steps in order. The first step that fails stops the run;\n" +
			"the exit code is 10 plus the failing step's position.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := o.load(cmd, args)
			if err != nil {
				return err
			}
			return a.runPipeline(cmd, p, o.inputs, o.approve, engine.ModeRun, o.stream)
		},
	}
	cmd.Flags().StringArrayVar(&o.steps, "step", nil, "Inline step as id=command (repeatable, runs in order)")
	cmd.Flags().StringArrayVar(&o.inputs, "input", nil, "Input values (key=value)")
	cmd.Flags().BoolVar(&o.approve, "approve", false, "Allow destructive steps")
	cmd.Flags().BoolVar(&o.stream, "stream", term.IsTerminal(int(os.Stderr.Fd())), "Stream step output to stderr while it runs")
	return cmd
}

func (o *runOptions) load(cmd *cobra.Command, args []string) (*pipeline.Pipeline, error) {
	switch {
	case len(args) == 1 && len(o.steps) > 0:
		return nil, dagerrors.NewConfigurationError("both a pipeline and --step given", "Use either a pipeline file or --step flags")
	case len(args) == 1:
		return pipeline.LoadSource(args[0], cmd.InOrStdin())
	case len(o.steps) > 0:
		return pipeline.Inline(o.steps)
	}
	return nil, dagerrors.NewConfigurationError("no pipeline given", "Pass a pipeline file, - for stdin, or --step id=command")
}

// runPipeline validates p and runs it in mode, printing the result.
func (a *app) runPipeline(cmd *cobra.Command, p *pipeline.Pipeline, rawInputs []string, approve bool, mode engine.Mode, stream bool) error {
	inputs, err := parseInputs(rawInputs)
	if err != nil {
		return err
	}
	inputs = p.ApplyDefaults(inputs)
	if err := pipeline.Validate(p, inputs); err != nil {
		return err
	}

	rt, err := a.openRuntime(mode == engine.ModeRun)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(cmd.Context()))

	rc := rt.runContext(p.Name, inputs, approve)
	if stream && !a.jsonOutput {
		rc.Stream = cmd.ErrOrStderr()
	}
	result, err := engine.Execute(cmd.Context(), p, rc, mode)
	if err != nil {
		return err
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if a.jsonOutput {
		if err := writeJSON(out, result); err != nil {
			return err
		}
		return finish(result)
	}

	switch mode {
	case engine.ModeExplain:
		fmt.Fprintf(out, "Pipeline: %s\n", p.Name)
		if p.Description != "" {
			fmt.Fprintf(out, "  %s\n", p.Description)
		}
		printSteps(out, result)
	case engine.ModeDryRun:
		fmt.Fprintf(out, "Dry-run: %s\n", p.Name)
		printSteps(out, result)
	case engine.ModeRun:
		if result.Output != "" {
			fmt.Fprintln(out, result.Output)
		}
	}

	if !result.Success {
		printFailure(errOut, result)
		return finish(result)
	}
	if mode == engine.ModeRun {
		lipgloss.Fprintf(errOut, "%s pipeline %q completed (%d steps, run %s)\n",
			okStyle.Render("✓"), p.Name, len(result.Steps), result.RunID)
	}
	return nil
}
