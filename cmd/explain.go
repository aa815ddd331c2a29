package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/pipeline"
)

func newExplainCmd(a *app) *cobra.Command {
	var inputs []string
	cmd := &cobra.Command{
		Use:   "explain <pipeline.yaml>",
		Short: "Show resolved pipeline steps without executing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := pipeline.LoadSource(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.runPipeline(cmd, p, inputs, false, engine.ModeExplain, false)
		},
	}
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "Input values (key=value)")
	return cmd
}
