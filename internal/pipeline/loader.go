package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	dagerrors "github.com/stevehiehn/piperun/internal/errors"
)

// InlineName is the name given to pipelines built from --step flags.
const InlineName = "inline"

// LoadFile reads and parses a pipeline YAML file.
func LoadFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dagerrors.NewConfigurationError(
				fmt.Sprintf("pipeline file %q not found", path), "").WithCause(err)
		}
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	return Load(data)
}

// Load parses pipeline YAML bytes.
func Load(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, dagerrors.NewConfigurationError(fmt.Sprintf("parsing YAML: %v", err), "").WithCause(err)
	}
	if len(p.Steps) == 0 {
		return nil, dagerrors.NewConfigurationError("pipeline has no steps", "Declare at least one entry under steps:")
	}
	if p.Name == "" {
		return nil, dagerrors.NewConfigurationError("pipeline has no name", "Set the top-level name: field")
	}
	return &p, nil
}

// LoadSource resolves the argument of `run`: "-" reads YAML from stdin, an
// existing path is read as a file, and anything that looks like a YAML
// document (multi-line or a flow mapping) is parsed directly.
func LoadSource(src string, stdin io.Reader) (*Pipeline, error) {
	if src == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading pipeline from stdin: %w", err)
		}
		return Load(data)
	}
	if _, err := os.Stat(src); err == nil {
		return LoadFile(src)
	}
	trimmed := strings.TrimSpace(src)
	if strings.Contains(trimmed, "\n") || strings.HasPrefix(trimmed, "{") {
		return Load([]byte(src))
	}
	return nil, dagerrors.NewConfigurationError(
		fmt.Sprintf("pipeline file %q not found", src),
		"Pass a pipeline file, - for stdin, inline YAML, or --step id=command flags")
}

// Inline builds a pipeline from "id=command" specs, one shell step each.
func Inline(specs []string) (*Pipeline, error) {
	if len(specs) == 0 {
		return nil, dagerrors.NewConfigurationError("pipeline has no steps", "Pass at least one --step id=command")
	}
	p := &Pipeline{Name: InlineName}
	for i, spec := range specs {
		id, command, ok := strings.Cut(spec, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" || strings.TrimSpace(command) == "" {
			return nil, dagerrors.NewConfigurationError(
				fmt.Sprintf("malformed step %d %q", i+1, spec), "Use --step id=command")
		}
		p.Steps = append(p.Steps, Step{ID: id, Run: command})
	}
	return p, nil
}
