package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// waitDelay bounds how long a cancelled command's output pipes may stay open
// after the shell is killed, e.g. held by a background grandchild.
const waitDelay = 5 * time.Second

// Command describes a script run through sh -c.
type Command struct {
	Script string
	Dir    string
	Env    map[string]string // layered over the current environment
	// Tee, when set, also receives stdout and stderr while the command runs.
	Tee io.Writer
}

// Result holds the output of a shell command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes the command and captures its output. It returns only after
// the process has exited and its output pipes are drained, so anything the
// program printed from asynchronous callbacks before exiting is included.
func Run(ctx context.Context, c Command) *Result {
	cmd := exec.CommandContext(ctx, "sh", "-c", c.Script)
	cmd.WaitDelay = waitDelay
	if c.Dir != "" {
		cmd.Dir = c.Dir
	}
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	}

	var stdout, stderr bytes.Buffer
	if c.Tee != nil {
		tee := &lockedWriter{w: c.Tee}
		cmd.Stdout = io.MultiWriter(&stdout, tee)
		cmd.Stderr = io.MultiWriter(&stderr, tee)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = 1
			if stderr.Len() == 0 {
				stderr.WriteString(err.Error())
			}
		}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}

// lockedWriter serializes writes from the stdout and stderr copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
