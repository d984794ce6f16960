package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Detection.Thresholds.MinQualificationDays)
	assert.Equal(t, 100, cfg.Outcome.Horizon)
	assert.Equal(t, 19, cfg.Collection.Dimension)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
detection:
  thresholds:
    max_bbw_percentile: 25
    max_adx: 30
    max_volume_ratio: 0.35
    max_range_ratio: 0.65
    min_qualification_days: 8
outcome:
  horizon: 60
writer:
  label_interval: 15m
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 25.0, cfg.Detection.Thresholds.MaxBBWPercentile)
	assert.Equal(t, 8, cfg.Detection.Thresholds.MinQualificationDays)
	assert.Equal(t, 60, cfg.Outcome.Horizon)
	assert.Equal(t, 20, cfg.Outcome.MinForwardBars)
	assert.Equal(t, 15*time.Minute, cfg.Writer.LabelInterval)
	assert.Equal(t, 1.005, cfg.Detection.PowerBuffer)

	tc := cfg.Tracker("AAA")
	assert.Equal(t, "AAA", tc.Symbol)
	assert.Equal(t, 8, tc.Thresholds.MinQualificationDays)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COIL_DUCKDB_PATH", "/tmp/x.duckdb")
	t.Setenv("COIL_OUTCOME_HORIZON", "40")
	t.Setenv("COIL_LOG_FORMAT", "console")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.duckdb", cfg.DuckDB.Path)
	assert.Equal(t, 40, cfg.Outcome.Horizon)
	assert.True(t, cfg.Log.Console(false))

	t.Setenv("COIL_OUTCOME_HORIZON", "forty")
	_, err = Load("")
	assert.ErrorContains(t, err, "COIL_OUTCOME_HORIZON")
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"qualification days": func(c *Config) { c.Detection.Thresholds.MinQualificationDays = 0 },
		"power buffer":       func(c *Config) { c.Detection.PowerBuffer = 1 },
		"breakdown buffer":   func(c *Config) { c.Detection.BreakdownBuffer = 1.2 },
		"forward bars":       func(c *Config) { c.Outcome.MinForwardBars = 200 },
		"log level":          func(c *Config) { c.Log.Level = "loud" },
		"log format":         func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = Load(writeFile(t, "outcome: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestLogConfig_Console(t *testing.T) {
	assert.True(t, LogConfig{Format: "auto"}.Console(true))
	assert.False(t, LogConfig{Format: "auto"}.Console(false))
	assert.True(t, LogConfig{Format: "console"}.Console(false))
	assert.False(t, LogConfig{Format: "json"}.Console(true))
}
