package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/pipeline"
)

func newDryRunCmd(a *app) *cobra.Command {
	var (
		inputs  []string
		approve bool
	)
	cmd := &cobra.Command{
		Use:   "dry-run <pipeline.yaml>",
		Short: "Walk the pipeline in order without running commands",
		Long:  "Dry-run reports what each step would do. A destructive step without --approve is blocked and stops the walk.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.LoadSource(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.runPipeline(cmd, p, inputs, approve, engine.ModeDryRun, false)
		},
	}
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input values (key=value)")
	cmd.Flags().BoolVar(&approve, "approve", false, "Treat destructive steps as approved")
	return cmd
}
