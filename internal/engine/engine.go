// Package engine runs a loaded pipeline in explain, dry-run or run mode.
// Every mode drives the steps through the runner, so ordering and
// fail-fast behavior are the same whether or not commands really execute.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stevehiehn/piperun/internal/action"
	"github.com/stevehiehn/piperun/internal/artifact"
	dagerrors "github.com/stevehiehn/piperun/internal/errors"
	"github.com/stevehiehn/piperun/internal/pipeline"
	"github.com/stevehiehn/piperun/internal/runner"
	"github.com/stevehiehn/piperun/internal/shell"
	"github.com/stevehiehn/piperun/internal/template"
)

// Mode controls execution behavior.
type Mode int

const (
	ModeExplain Mode = iota
	ModeDryRun
	ModeRun
)

func (m Mode) String() string {
	switch m {
	case ModeExplain:
		return "explain"
	case ModeDryRun:
		return "dry-run"
	case ModeRun:
		return "run"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

const stderrTail = 2048

var tracer = otel.Tracer("github.com/stevehiehn/piperun/internal/engine")

// Execute runs a pipeline in the given mode. The returned error is non-nil
// only when the pipeline could not be started; step failures are reported
// in the Result.
func Execute(ctx context.Context, p *pipeline.Pipeline, rc *RunContext, mode Mode) (*Result, error) {
	if rc.TmplCtx == nil {
		rc.TmplCtx = template.NewContext(rc.Inputs)
	}
	log := rc.logger().With("run_id", rc.RunID)

	result := &Result{
		RunID:     rc.RunID,
		Pipeline:  p.Name,
		Mode:      mode.String(),
		Outputs:   map[string]string{},
		StartedAt: time.Now().UTC(),
	}

	ctx, span := tracer.Start(ctx, "pipeline "+p.Name, trace.WithAttributes(
		attribute.String("piperun.run_id", rc.RunID),
		attribute.String("piperun.pipeline", p.Name),
		attribute.String("piperun.mode", mode.String()),
	))
	defer span.End()

	x := &executor{p: p, rc: rc, mode: mode, records: make([]StepResult, len(p.Steps))}
	if mode == ModeRun {
		store, err := artifact.New(rc.RunID, rc.stateDir())
		if err != nil {
			return nil, err
		}
		x.store = store
		result.Artifacts = []string{store.BaseDir}
	}

	steps := make([]runner.Step, len(p.Steps))
	for i, s := range p.Steps {
		x.records[i] = StepResult{ID: s.ID, Position: i + 1, Status: StatusSkipped, Description: s.Description}
		steps[i] = runner.Step{Name: s.ID, Action: x.action(i)}
	}

	opts := []runner.Option{runner.WithName(p.Name), runner.WithLogger(log)}
	for _, obs := range rc.Observers {
		opts = append(opts, runner.WithObserver(obs))
	}
	rr, err := runner.Run(ctx, steps, opts...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result.Steps = x.records
	result.Output = rr.Output
	result.Success = rr.Completed()
	if !result.Success {
		result.FailedStepID = rr.FailedStep
		result.FailedPosition = rr.FailedAt
		if re, ok := dagerrors.AsStepFailure(rr.Err()); ok {
			if re.Type == dagerrors.Cancelled {
				result.Steps[rr.FailedAt-1].Status = StatusCancelled
			}
			result.Errors = append(result.Errors, *re)
		}
		span.SetStatus(codes.Error, rr.Err().Error())
	}
	if mode == ModeRun {
		for stepID, outs := range rc.TmplCtx.StepOutputs {
			for name, v := range outs {
				result.Outputs[stepID+"."+name] = v
			}
		}
	}
	result.EndedAt = time.Now().UTC()

	if x.store != nil {
		if err := x.store.WriteResult(result); err != nil {
			log.Warn("Failed to write result artifact", "error", err)
		}
	}
	for _, r := range rc.Recorders {
		if err := r.Record(context.WithoutCancel(ctx), result); err != nil {
			log.Warn("Failed to record run", "error", err)
		}
	}
	return result, nil
}

type executor struct {
	p       *pipeline.Pipeline
	rc      *RunContext
	mode    Mode
	store   *artifact.Store
	records []StepResult
}

// action adapts the step at index i to a runner action that fills records[i].
func (x *executor) action(i int) runner.Action {
	return func(ctx context.Context) (string, error) {
		step := x.p.Steps[i]
		rec := &x.records[i]

		ctx, span := tracer.Start(ctx, "step "+step.ID, trace.WithAttributes(
			attribute.String("piperun.step", step.ID),
			attribute.Int("piperun.position", i+1),
		))
		defer span.End()

		start := time.Now()
		out, err := x.execute(ctx, step, rec)
		elapsed := time.Since(start)
		rec.Duration = elapsed.Round(time.Millisecond).String()
		rec.DurationMS = elapsed.Milliseconds()
		if err != nil && rec.Status != StatusBlocked {
			rec.Status = StatusFailed
			rec.Error = err.Error()
		}
		x.saveOutput(step.ID, rec)

		span.SetAttributes(attribute.String("piperun.status", rec.Status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}

func (x *executor) saveOutput(stepID string, rec *StepResult) {
	if x.store == nil {
		return
	}
	outPath, errPath, err := x.store.WriteStepOutput(stepID, rec.stdout, rec.stderr)
	if err != nil {
		x.rc.logger().Warn("Failed to write step output", "step", stepID, "error", err)
		return
	}
	rec.StdoutRef, rec.StderrRef = outPath, errPath
}

func (x *executor) execute(ctx context.Context, step pipeline.Step, rec *StepResult) (string, error) {
	switch step.Kind() {
	case "run":
		return x.runShell(ctx, step, rec)
	case "http":
		return x.runHTTP(ctx, step, rec)
	case "action":
		return x.runAction(ctx, step, rec)
	}
	return "", dagerrors.NewConfigurationError(fmt.Sprintf("step %q has nothing to run", step.ID), "")
}

// gate handles the modes that do not execute. It returns done=true when the
// step must not run for real.
func (x *executor) gate(step pipeline.Step, rec *StepResult, info string) (string, bool, error) {
	if x.mode == ModeExplain {
		rec.Status = StatusExplain
		rec.DryRunInfo = info
		x.placeholders(step)
		return rec.Command, true, nil
	}
	if step.Destructive && !x.rc.Approve {
		rec.Status = StatusBlocked
		x.placeholders(step)
		return "", true, &dagerrors.RunError{
			Type:    dagerrors.SideEffectBlocked,
			StepID:  step.ID,
			Message: fmt.Sprintf("step %q is destructive and --approve was not set", step.ID),
			Hint:    "Re-run with --approve to allow destructive steps",
		}
	}
	if x.mode == ModeDryRun {
		rec.Status = StatusDryRun
		rec.DryRunInfo = info
		x.placeholders(step)
		return info, true, nil
	}
	return "", false, nil
}

func (x *executor) runShell(ctx context.Context, step pipeline.Step, rec *StepResult) (string, error) {
	resolved, err := template.Resolve(step.Run, x.rc.TmplCtx)
	if err != nil {
		return "", fmt.Errorf("resolving command: %w", err)
	}
	rec.Command = resolved

	dir, err := template.Resolve(step.Dir, x.rc.TmplCtx)
	if err != nil {
		return "", fmt.Errorf("resolving dir: %w", err)
	}
	env, err := x.env(step)
	if err != nil {
		return "", err
	}

	info := "Would run: " + resolved
	if dir != "" {
		info += " (in " + dir + ")"
	}
	if out, done, err := x.gate(step, rec, info); done {
		return out, err
	}

	workDir := x.rc.WorkDir
	if dir != "" {
		workDir = x.rc.resolvePath(dir)
	}
	res := shell.Run(ctx, shell.Command{
		Script: resolved,
		Dir:    workDir,
		Env:    env,
		Tee:    x.rc.Stream,
	})
	rec.ExitCode = res.ExitCode
	rec.stdout, rec.stderr = res.Stdout, res.Stderr

	if err := ctx.Err(); err != nil && res.ExitCode != 0 {
		return "", (&dagerrors.RunError{
			Type:    dagerrors.Cancelled,
			StepID:  step.ID,
			Message: fmt.Sprintf("step %q cancelled while running: %v", step.ID, err),
		}).WithCause(err)
	}
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("exited with code %d", res.ExitCode)
		if tail := tailOf(res.Stderr); tail != "" {
			msg += ": " + tail
		}
		return "", errors.New(msg)
	}
	rec.Status = StatusSuccess

	sources := map[string]string{
		"stdout":    strings.TrimSpace(res.Stdout),
		"stderr":    strings.TrimSpace(res.Stderr),
		"exit_code": "0",
	}
	x.capture(step, sources)
	return sources["stdout"], nil
}

func (x *executor) runHTTP(ctx context.Context, step pipeline.Step, rec *StepResult) (string, error) {
	url, err := template.Resolve(step.HTTP.URL, x.rc.TmplCtx)
	if err != nil {
		return "", fmt.Errorf("resolving url: %w", err)
	}
	method := step.HTTP.Method
	if method == "" {
		method = "GET"
	}
	rec.Command = method + " " + url

	params := map[string]string{"url": url, "method": method}
	body, err := template.Resolve(step.HTTP.Body, x.rc.TmplCtx)
	if err != nil {
		return "", fmt.Errorf("resolving body: %w", err)
	}
	if body != "" {
		params["body"] = body
	}
	headers, err := template.ResolveMap(step.HTTP.Headers, x.rc.TmplCtx)
	if err != nil {
		return "", fmt.Errorf("resolving header: %w", err)
	}
	for k, v := range headers {
		params["header_"+k] = v
	}

	act, _ := action.Get("http")
	if out, done, err := x.gate(step, rec, act.DryRun(params)); done {
		return out, err
	}
	return x.invoke(ctx, step, rec, act, params)
}

func (x *executor) runAction(ctx context.Context, step pipeline.Step, rec *StepResult) (string, error) {
	act, err := action.Get(step.Action)
	if err != nil {
		return "", (&dagerrors.RunError{
			Type:    dagerrors.ToolNotFound,
			StepID:  step.ID,
			Message: err.Error(),
			Hint:    "Known actions: " + strings.Join(action.Names(), ", "),
		}).WithCause(err)
	}
	rec.Command = "action: " + step.Action

	params, err := template.ResolveMap(step.Params, x.rc.TmplCtx)
	if err != nil {
		return "", fmt.Errorf("resolving param: %w", err)
	}
	if params == nil {
		params = map[string]string{}
	}
	for _, k := range action.FileParams(step.Action) {
		if v, ok := params[k]; ok {
			params[k] = x.rc.resolvePath(v)
		}
	}

	if out, done, err := x.gate(step, rec, act.DryRun(params)); done {
		return out, err
	}
	return x.invoke(ctx, step, rec, act, params)
}

func (x *executor) invoke(ctx context.Context, step pipeline.Step, rec *StepResult, act action.Action, params map[string]string) (string, error) {
	outputs, err := act.Execute(ctx, params)
	if err != nil {
		rec.stderr = err.Error()
		return "", err
	}
	rec.Status = StatusSuccess
	rec.stdout = outputs["stdout"]
	x.capture(step, outputs)

	if v, ok := outputs["stdout"]; ok {
		return strings.TrimSpace(v), nil
	}
	return outputs["value"], nil
}

// capture registers the step's declared outputs from sources.
func (x *executor) capture(step pipeline.Step, sources map[string]string) {
	for name, source := range step.Outputs {
		if v, ok := sources[source]; ok {
			x.rc.TmplCtx.SetOutput(step.ID, name, strings.TrimSpace(v))
		}
	}
}

// placeholders lets later steps resolve references in modes that do not
// execute.
func (x *executor) placeholders(step pipeline.Step) {
	for name, source := range step.Outputs {
		x.rc.TmplCtx.SetOutput(step.ID, name, fmt.Sprintf("<%s.%s>", step.ID, source))
	}
}

// env merges pipeline-level and step-level environment, step winning.
func (x *executor) env(step pipeline.Step) (map[string]string, error) {
	if len(x.p.Env) == 0 && len(step.Env) == 0 {
		return nil, nil
	}
	merged := map[string]string{}
	for _, layer := range []map[string]string{x.p.Env, step.Env} {
		resolved, err := template.ResolveMap(layer, x.rc.TmplCtx)
		if err != nil {
			return nil, fmt.Errorf("resolving env: %w", err)
		}
		for k, v := range resolved {
			merged[k] = v
		}
	}
	return merged, nil
}

// tailOf returns the trimmed end of a stream, cut at a line boundary when
// it exceeds stderrTail bytes.
func tailOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTail {
		return s
	}
	s = s[len(s)-stderrTail:]
	if i := strings.IndexByte(s, '\n'); i >= 0 && i < len(s)-1 {
		s = s[i+1:]
	}
	return s
}

// OutputKeys returns the sorted keys of a result's outputs.
func OutputKeys(r *Result) []string {
	keys := make([]string, 0, len(r.Outputs))
	for k := range r.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
