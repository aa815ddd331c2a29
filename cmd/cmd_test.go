package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevehiehn/piperun/internal/engine"
	"github.com/stevehiehn/piperun/internal/history"
)

type cliResult struct {
	code   int
	stdout string
	stderr string
}

// runCLI executes piperun in a fresh temp work dir.
func runCLI(t *testing.T, stdin io.Reader, args ...string) cliResult {
	t.Helper()
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), newRootCmd(), append(args, "--log-level", "error"), stdin, &stdout, &stderr)
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const buildYAML = `
name: build
inputs:
  target:
    default: web
steps:
  - id: install
    name: Install dependencies
    run: echo installed
  - id: bundle
    run: echo "bundle for ${{ inputs.target }}"
    outputs:
      file: stdout
  - id: publish
    run: echo published
    destructive: true
`

func TestRunInlineStepsPrintsLastOutput(t *testing.T) {
	inTempDir(t)
	res := runCLI(t, nil, "run", "--step", "install=echo one", "--step", "bundle=echo two")

	assert.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "two\n", res.stdout)
	assert.Contains(t, res.stderr, `pipeline "inline" completed`)
}

func TestRunFailingStepSetsExitCode(t *testing.T) {
	dir := inTempDir(t)
	marker := filepath.Join(dir, "packaged")
	res := runCLI(t, nil, "run",
		"--step", "install=true",
		"--step", "bundle=echo 'network error' >&2; exit 4",
		"--step", "package=touch "+marker)

	assert.Equal(t, 12, res.code)
	assert.Empty(t, res.stdout)
	assert.Contains(t, res.stderr, `failed at step "bundle" (position 2)`)
	assert.Contains(t, res.stderr, "exited with code 4: network error")
	assert.NoFileExists(t, marker)
}

func TestRunFromFileWithInputsAndApprove(t *testing.T) {
	dir := inTempDir(t)
	path := writeFile(t, dir, "build.yaml", buildYAML)

	blocked := runCLI(t, nil, "run", path, "--input", "target=node")
	assert.Equal(t, 13, blocked.code)
	assert.Contains(t, blocked.stderr, "is destructive and --approve was not set")

	approved := runCLI(t, nil, "run", path, "--input", "target=node", "--approve")
	assert.Equal(t, ExitOK, approved.code, approved.stderr)
	assert.Equal(t, "published\n", approved.stdout)
}

func TestRunJSONOutput(t *testing.T) {
	dir := inTempDir(t)
	path := writeFile(t, dir, "build.yaml", buildYAML)

	res := runCLI(t, nil, "run", path, "--approve", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)

	var result engine.Result
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &result))
	assert.True(t, result.Success)
	assert.Equal(t, "run", result.Mode)
	assert.Equal(t, "bundle for web", result.Outputs["bundle.file"])
	assert.Len(t, result.Steps, 3)
}

func TestRunFromStdin(t *testing.T) {
	inTempDir(t)
	res := runCLI(t, strings.NewReader("name: piped\nsteps:\n  - {id: hello, run: echo from stdin}\n"), "run", "-")

	assert.Equal(t, ExitOK, res.code, res.stderr)
	assert.Equal(t, "from stdin\n", res.stdout)
}

func TestRunConfigurationErrors(t *testing.T) {
	dir := inTempDir(t)
	path := writeFile(t, dir, "build.yaml", buildYAML)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no pipeline", args: []string{"run"}, want: "no pipeline given"},
		{name: "missing file", args: []string{"run", "missing.yaml"}, want: "not found"},
		{name: "file and steps", args: []string{"run", path, "--step", "a=true"}, want: "both a pipeline and --step"},
		{name: "malformed step", args: []string{"run", "--step", "nocommand"}, want: "malformed step"},
		{name: "malformed input", args: []string{"run", path, "--input", "novalue"}, want: "malformed input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runCLI(t, nil, tt.args...)
			assert.Equal(t, ExitConfiguration, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	dir := inTempDir(t)
	good := writeFile(t, dir, "build.yaml", buildYAML)
	bad := writeFile(t, dir, "bad.yaml", "name: bad\nsteps:\n  - {id: a, run: echo a}\n  - {id: a, run: echo b}\n")

	res := runCLI(t, nil, "validate", good)
	assert.Equal(t, ExitOK, res.code)
	assert.Equal(t, "Pipeline \"build\" is valid (3 steps).\n", res.stdout)

	res = runCLI(t, nil, "validate", bad, "--json")
	assert.Equal(t, ExitConfiguration, res.code)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, false, out["valid"])
	assert.Contains(t, out["error"], "duplicate step id")
}

func TestExplainRunsNothing(t *testing.T) {
	dir := inTempDir(t)
	path := writeFile(t, dir, "touch.yaml", "name: touch\nsteps:\n  - {id: mark, name: Create marker, run: touch marker}\n")

	res := runCLI(t, nil, "explain", path)

	assert.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Pipeline: touch")
	assert.Contains(t, res.stdout, "1. mark [explain]")
	assert.Contains(t, res.stdout, "Command: touch marker")
	assert.NoFileExists(t, filepath.Join(dir, "marker"))
}

func TestDryRunStopsAtDestructiveStep(t *testing.T) {
	dir := inTempDir(t)
	path := writeFile(t, dir, "build.yaml", buildYAML)

	res := runCLI(t, nil, "dry-run", path)
	assert.Equal(t, 13, res.code)
	assert.Contains(t, res.stdout, "2. bundle [dry-run]")
	assert.Contains(t, res.stdout, `Command: echo "bundle for web"`)
	assert.Contains(t, res.stdout, "3. publish [blocked]")

	res = runCLI(t, nil, "dry-run", path, "--approve")
	assert.Equal(t, ExitOK, res.code, res.stderr)
}

func TestHistoryListsAndShowsRuns(t *testing.T) {
	inTempDir(t)
	require.Equal(t, 11, runCLI(t, nil, "run", "--step", "bundle=exit 1").code)
	require.Equal(t, ExitOK, runCLI(t, nil, "run", "--step", "bundle=echo ok").code)

	res := runCLI(t, nil, "history", "--json")
	require.Equal(t, ExitOK, res.code, res.stderr)
	var runs []history.Run
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &runs))
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, "inline", r.Pipeline)
	}

	var failed history.Run
	for _, r := range runs {
		if r.Status == history.StatusFailed {
			failed = r
		}
	}
	require.NotEmpty(t, failed.RunID)

	res = runCLI(t, nil, "history", failed.RunID)
	assert.Equal(t, ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, failed.RunID)
	assert.Contains(t, res.stdout, "bundle")

	res = runCLI(t, nil, "history", "no-such-run")
	assert.Equal(t, ExitConfiguration, res.code)
}

func TestHistoryDisabledByEnv(t *testing.T) {
	inTempDir(t)
	t.Setenv("PIPERUN_HISTORY__ENABLED", "false")

	assert.Equal(t, ExitOK, runCLI(t, nil, "run", "--step", "a=true").code)
	res := runCLI(t, nil, "history")
	assert.Equal(t, ExitConfiguration, res.code)
	assert.Contains(t, res.stderr, "history is disabled")
}

func TestStepExitCodeIsCapped(t *testing.T) {
	assert.Equal(t, 11, StepExitCode(1))
	assert.Equal(t, ExitStepMax, StepExitCode(500))
}
