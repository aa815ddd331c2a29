package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(script string) *Result {
	return Run(context.Background(), Command{Script: script})
}

func TestRunEchoHello(t *testing.T) {
	r := run("echo hello")
	require.Equal(t, 0, r.ExitCode)
	assert.Equal(t, "hello", strings.TrimSpace(r.Stdout))
}

func TestRunCaptureStderr(t *testing.T) {
	r := run("echo error >&2")
	require.Equal(t, 0, r.ExitCode)
	assert.Equal(t, "error", strings.TrimSpace(r.Stderr))
}

func TestRunNonZeroExitCode(t *testing.T) {
	assert.Equal(t, 42, run("exit 42").ExitCode)
}

func TestRunPipesWork(t *testing.T) {
	r := run("echo hello world | wc -w")
	require.Equal(t, 0, r.ExitCode)
	assert.Equal(t, "2", strings.TrimSpace(r.Stdout))
}

func TestRunMultiLineStdout(t *testing.T) {
	r := run("printf 'line1\nline2\nline3'")
	require.Equal(t, 0, r.ExitCode)
	assert.Len(t, strings.Split(r.Stdout, "\n"), 3)
}

func TestRunInDirWithEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644))

	r := Run(context.Background(), Command{
		Script: `ls marker && echo "$GREETING"`,
		Dir:    dir,
		Env:    map[string]string{"GREETING": "hi there"},
	})
	require.Equal(t, 0, r.ExitCode, r.Stderr)
	assert.Equal(t, "marker\nhi there\n", r.Stdout)
}

func TestRunWaitsForBackgroundOutput(t *testing.T) {
	// Output written by a subshell just before exit must be captured.
	r := run(`(sleep 0.1; echo late) & wait`)
	require.Equal(t, 0, r.ExitCode)
	assert.Equal(t, "late", strings.TrimSpace(r.Stdout))
}

func TestRunTeesOutput(t *testing.T) {
	var tee bytes.Buffer
	r := Run(context.Background(), Command{Script: "echo out; echo err >&2", Tee: &tee})
	require.Equal(t, 0, r.ExitCode)
	assert.Equal(t, "out\n", r.Stdout)
	assert.Equal(t, "err\n", r.Stderr)
	assert.Contains(t, tee.String(), "out")
	assert.Contains(t, tee.String(), "err")
}

func TestRunMissingDirFails(t *testing.T) {
	r := Run(context.Background(), Command{Script: "echo hi", Dir: filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, 1, r.ExitCode)
	assert.NotEmpty(t, r.Stderr)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := Run(ctx, Command{Script: "sleep 5"})
	assert.NotEqual(t, 0, r.ExitCode)
}
