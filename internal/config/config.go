package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read from the current directory when no --config is given.
const DefaultFile = "piperun.yaml"

// EnvPrefix marks environment overrides; "__" separates levels, so
// PIPERUN_LOG__LEVEL sets log.level.
const EnvPrefix = "PIPERUN_"

type Config struct {
	WorkDir  string        `koanf:"work_dir"`
	StateDir string        `koanf:"state_dir"`
	Log      LogConfig     `koanf:"log"`
	History  HistoryConfig `koanf:"history"`
	Metrics  MetricsConfig `koanf:"metrics"`
	Tracing  TracingConfig `koanf:"tracing"`
	MCP      MCPConfig     `koanf:"mcp"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"` // default <state_dir>/history.db
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

type TracingConfig struct {
	Enabled bool   `koanf:"enabled"`
	Output  string `koanf:"output"` // file path, empty for stderr
}

type MCPConfig struct {
	PipelinesDir string `koanf:"pipelines_dir"`
}

var defaults = map[string]any{
	"work_dir":        ".",
	"state_dir":       ".piperun",
	"log.level":       "info",
	"log.format":      "text",
	"history.enabled": true,
}

// Load reads path (or DefaultFile when path is empty), then environment
// overrides. A missing default file is not an error; a missing explicit
// path is.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	name := path
	if name == "" {
		name = DefaultFile
	}
	if err := k.Load(file.Provider(name), yaml.Parser()); err != nil {
		if path != "" || !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading config %s: %w", name, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// StatePath returns the state dir, resolved against the work dir.
func (c *Config) StatePath() string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	return filepath.Join(c.WorkDir, c.StateDir)
}

// HistoryPath returns the SQLite history file.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.StatePath(), "history.db")
}
