// Package artifact keeps per-run files under <state dir>/runs/<run id>.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store manages artifact storage for a run.
type Store struct {
	RunID   string
	BaseDir string
}

// New creates the run directory for runID under stateDir.
func New(runID, stateDir string) (*Store, error) {
	if runID == "" {
		return nil, fmt.Errorf("artifact store: empty run id")
	}
	base := filepath.Join(stateDir, "runs", runID)
	if err := os.MkdirAll(filepath.Join(base, "steps"), 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &Store{RunID: runID, BaseDir: base}, nil
}

// WriteStepOutput writes a step's captured stdout and stderr, skipping empty
// streams, and returns the paths written.
func (s *Store) WriteStepOutput(stepID, stdout, stderr string) (stdoutPath, stderrPath string, err error) {
	if stdout != "" {
		stdoutPath = filepath.Join(s.BaseDir, "steps", stepID+".stdout")
		if err := os.WriteFile(stdoutPath, []byte(stdout), 0o644); err != nil {
			return "", "", fmt.Errorf("writing stdout of %s: %w", stepID, err)
		}
	}
	if stderr != "" {
		stderrPath = filepath.Join(s.BaseDir, "steps", stepID+".stderr")
		if err := os.WriteFile(stderrPath, []byte(stderr), 0o644); err != nil {
			return "", "", fmt.Errorf("writing stderr of %s: %w", stepID, err)
		}
	}
	return stdoutPath, stderrPath, nil
}

// WriteResult writes the final result JSON.
func (s *Store) WriteResult(result any) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.BaseDir, "result.json"), data, 0o644)
}

// ReadResult decodes a stored result.json into v.
func ReadResult(stateDir, runID string, v any) error {
	data, err := os.ReadFile(filepath.Join(stateDir, "runs", runID, "result.json"))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
