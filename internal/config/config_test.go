package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLEETWATCH_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "siv_Inverter.csv", cfg.Input.Path)
	assert.Equal(t, "result_events.txt", cfg.Output.Path)
	assert.Equal(t, "auto", cfg.Engine.Strategy)
	assert.Equal(t, 4096, cfg.Engine.ChunkSize)
	assert.Zero(t, cfg.Engine.MaxBufferedRows)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  path: /data/export.csv
  delimiter: ";"
engine:
  strategy: streaming
  maxBufferedRows: 50000
logging:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/export.csv", cfg.Input.Path)
	r, err := cfg.Input.DelimiterRune()
	require.NoError(t, err)
	assert.Equal(t, ';', r)
	assert.Equal(t, "streaming", cfg.Engine.Strategy)
	assert.Equal(t, 50000, cfg.Engine.MaxBufferedRows)
	assert.Equal(t, 4096, cfg.Engine.ChunkSize, "unset keys keep their defaults")
	assert.Equal(t, "result_events.txt", cfg.Output.Path)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "output:\n  path: out.txt\n")
	t.Setenv("FLEETWATCH_CONFIG", path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "out.txt", cfg.Output.Path)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfig(t, "engine:\n  chunkSize: 10\n")
	t.Setenv("FLEETWATCH_ENGINE_CHUNK_SIZE", "64")
	t.Setenv("FLEETWATCH_ENGINE_MAX_GROUPS", "9")
	t.Setenv("FLEETWATCH_INPUT_PATH", "env.csv")
	t.Setenv("FLEETWATCH_LOG_FORMAT", "json")
	t.Setenv("FLEETWATCH_METRICS_TEXTFILE", "/tmp/fleetwatch.prom")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Engine.ChunkSize)
	assert.Equal(t, 9, cfg.Engine.MaxGroups)
	assert.Equal(t, "env.csv", cfg.Input.Path)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, "/tmp/fleetwatch.prom", cfg.Metrics.Textfile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "input: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	base := defaultConfig()

	bad := base
	bad.Engine.ChunkSize = 0
	assert.Error(t, bad.Validate())

	bad = base
	bad.Input.Path = ""
	assert.Error(t, bad.Validate())

	bad = base
	bad.Input.Delimiter = "||"
	assert.Error(t, bad.Validate())

	bad = base
	bad.Engine.MaxGroups = -1
	assert.Error(t, bad.Validate())

	assert.NoError(t, base.Validate())
}

func TestDelimiterRune(t *testing.T) {
	cases := map[string]rune{"": ',', ",": ',', "tab": '\t', `\t`: '\t', "|": '|'}
	for in, want := range cases {
		got, err := InputConfig{Delimiter: in}.DelimiterRune()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := InputConfig{Delimiter: `"`}.DelimiterRune()
	assert.Error(t, err)
}
