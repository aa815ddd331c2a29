package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stevehiehn/piperun/internal/config"
	"github.com/stevehiehn/piperun/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// app carries state shared by all subcommands of one invocation.
type app struct {
	jsonOutput bool
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "piperun",
		Short:         "Ordered build pipeline runner",
		Long:          "piperun runs build steps in order and stops at the first failing step, reporting which one failed and why.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().BoolVar(&a.jsonOutput, "json", false, "Output raw JSON")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default ./"+config.DefaultFile+" if present)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newExplainCmd(a),
		newDryRunCmd(a),
		newHistoryCmd(a),
		newMCPCmd(a),
	)
	return root
}

func (a *app) setup(stderr io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.cfg, a.logger = cfg, logger
	return nil
}

// Execute runs the CLI and returns the process exit code. An interrupt
// cancels the running pipeline before its next step.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, newRootCmd(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		reportError(stderr, err)
	}
	return ExitCode(err)
}
