package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.History.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, filepath.Join(".piperun", "history.db"), cfg.HistoryPath())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
work_dir: /srv/qrcode
state_dir: /var/lib/piperun
log:
  level: debug
  format: json
history:
  enabled: false
metrics:
  textfile: /var/lib/node_exporter/piperun.prom
mcp:
  pipelines_dir: pipelines
`), 0o644))
	t.Setenv("PIPERUN_LOG__LEVEL", "warn")
	t.Setenv("PIPERUN_TRACING__ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/qrcode", cfg.WorkDir)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.History.Enabled)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "/var/lib/node_exporter/piperun.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "pipelines", cfg.MCP.PipelinesDir)
	assert.Equal(t, "/var/lib/piperun", cfg.StatePath())
	assert.Equal(t, "/var/lib/piperun/history.db", cfg.HistoryPath())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestStatePathRelativeToWorkDir(t *testing.T) {
	cfg := &Config{WorkDir: "/work", StateDir: ".piperun"}
	assert.Equal(t, "/work/.piperun", cfg.StatePath())
}
