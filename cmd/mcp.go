package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/piperun/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var pipelinesDir string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve pipeline tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.openRuntime(true)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(cmd.Context()))

			if pipelinesDir == "" {
				pipelinesDir = a.cfg.MCP.PipelinesDir
			}
			if pipelinesDir != "" && !filepath.IsAbs(pipelinesDir) {
				pipelinesDir = filepath.Join(rt.workDir, pipelinesDir)
			}

			mcp.Version = Version
			opts := []mcp.ServerOption{
				mcp.WithLogger(a.logger),
				mcp.WithPipelinesDir(pipelinesDir),
				mcp.WithRunContext(rt.runContext),
			}
			if rt.history != nil {
				opts = append(opts, mcp.WithHistory(rt.history))
			}
			srv := mcp.NewServer(rt.workDir, opts...)
			a.logger.Info("Serving MCP on stdio", "pipeline_tools", len(srv.PipelineTools()), "work_dir", rt.workDir)
			return srv.ServeStdio()
		},
	}
	cmd.Flags().StringVar(&pipelinesDir, "pipelines", "", "Directory whose pipeline files are published as tools")
	return cmd
}
