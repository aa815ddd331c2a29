package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/piperun/internal/pipeline"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Validate a pipeline file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.LoadSource(args[0], cmd.InOrStdin())
			if err == nil {
				err = pipeline.Validate(p, nil)
			}
			if err != nil {
				if !a.jsonOutput {
					return err
				}
				if werr := writeJSON(cmd.OutOrStdout(), map[string]any{"valid": false, "error": err.Error()}); werr != nil {
					return werr
				}
				return &reportedError{code: ExitCode(err), err: err}
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": true, "pipeline": p.Name, "steps": len(p.Steps)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %q is valid (%d steps).\n", p.Name, len(p.Steps))
			return nil
		},
	}
}
