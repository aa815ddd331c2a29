package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/history"
	"github.com/stevehiehn/piperun/internal/metrics"
	"github.com/stevehiehn/piperun/internal/telemetry"
)

// runtime holds the per-invocation services a pipeline run reports to.
type runtime struct {
	a       *app
	workDir string
	history *history.Store
	metrics *metrics.Collector

	closers []func(context.Context) error
}

// openRuntime resolves the work dir and starts history, metrics and tracing
// as configured. record=false skips history and metrics, e.g. for explain.
func (a *app) openRuntime(record bool) (*runtime, error) {
	workDir, err := filepath.Abs(a.cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work dir: %w", err)
	}
	a.cfg.WorkDir = workDir
	rt := &runtime{a: a, workDir: workDir}

	if a.cfg.Tracing.Enabled {
		if err := rt.startTracing(); err != nil {
			rt.Close(context.Background())
			return nil, err
		}
	}
	if !record {
		return rt, nil
	}

	if a.cfg.History.Enabled {
		store, err := history.Open(a.cfg.HistoryPath())
		if err != nil {
			rt.Close(context.Background())
			return nil, err
		}
		rt.history = store
		rt.closers = append(rt.closers, func(context.Context) error { return store.Close() })
	}
	rt.metrics = metrics.NewCollector(a.cfg.Metrics.Textfile)
	return rt, nil
}

func (rt *runtime) startTracing() error {
	var w io.Writer = os.Stderr
	if out := rt.a.cfg.Tracing.Output; out != "" {
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening trace output: %w", err)
		}
		w = f
		// Registered first so it closes after the provider flushes.
		rt.closers = append(rt.closers, func(context.Context) error { return f.Close() })
	}
	shutdown, err := telemetry.InitTracer("piperun", Version, w, rt.a.logger)
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	rt.closers = append(rt.closers, shutdown)
	return nil
}

// runContext builds the engine context for one pipeline execution.
func (rt *runtime) runContext(pipelineName string, inputs map[string]string, approve bool) *engine.RunContext {
	rc := engine.NewRunContext(rt.workDir, inputs, approve)
	rc.StateDir = rt.a.cfg.StatePath()
	rc.Logger = rt.a.logger
	if rt.metrics != nil {
		rc.Observers = append(rc.Observers, rt.metrics.Observer(pipelineName))
		rc.Recorders = append(rc.Recorders, rt.metrics)
	}
	if rt.history != nil {
		rc.Recorders = append(rc.Recorders, rt.history)
	}
	return rc
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.a.logger.Warn("Shutdown failed", "error", err)
		}
	}
}
