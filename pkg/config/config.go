// Package config loads the YAML configuration shared by the coil commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/tunogya/coil/pkg/cache"
	"github.com/tunogya/coil/pkg/indicator"
	"github.com/tunogya/coil/pkg/outcome"
	"github.com/tunogya/coil/pkg/queue/nats"
	"github.com/tunogya/coil/pkg/rerank"
	"github.com/tunogya/coil/pkg/store/milvus"
	"github.com/tunogya/coil/pkg/tracker"
)

// Config is the root configuration
type Config struct {
	Log        LogConfig               `yaml:"log"`
	Detection  DetectionConfig         `yaml:"detection"`
	Indicator  indicator.Config        `yaml:"indicator"`
	Outcome    outcome.Config          `yaml:"outcome"`
	Scan       ScanConfig              `yaml:"scan"`
	DuckDB     DuckDBConfig            `yaml:"duckdb"`
	Milvus     milvus.Config           `yaml:"milvus"`
	Collection milvus.CollectionConfig `yaml:"collection"`
	Rerank     rerank.TimeDecayConfig  `yaml:"rerank"`
	NATS       nats.Config             `yaml:"nats"`
	Redis      cache.Config            `yaml:"redis"`
	Writer     WriterConfig            `yaml:"writer"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console, or auto (console on a terminal)
}

// DetectionConfig holds the qualification limits and resolution buffers
type DetectionConfig struct {
	Thresholds      tracker.Thresholds `yaml:"thresholds"`
	PowerBuffer     float64            `yaml:"power_buffer"`
	BreakdownBuffer float64            `yaml:"breakdown_buffer"`
}

// ScanConfig configures the historical scan
type ScanConfig struct {
	MinHistory int `yaml:"min_history"`
	Workers    int `yaml:"workers"`
}

// DuckDBConfig locates the DuckDB database file
type DuckDBConfig struct {
	Path string `yaml:"path"`
}

// WriterConfig configures the streaming worker
type WriterConfig struct {
	MetricsAddr   string        `yaml:"metrics_addr"`
	LabelInterval time.Duration `yaml:"label_interval"` // How often pending patterns are labelled
	LabelBatch    int           `yaml:"label_batch"`
	Consumer      string        `yaml:"consumer"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	detection := tracker.DefaultConfig("")
	return Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Detection: DetectionConfig{
			Thresholds:      detection.Thresholds,
			PowerBuffer:     detection.PowerBuffer,
			BreakdownBuffer: detection.BreakdownBuffer,
		},
		Indicator:  indicator.DefaultConfig(),
		Outcome:    outcome.DefaultConfig(),
		Scan:       ScanConfig{MinHistory: 200, Workers: 4},
		DuckDB:     DuckDBConfig{Path: "data/coil.duckdb"},
		Milvus:     milvus.DefaultConfig(),
		Collection: milvus.DefaultCollectionConfig(),
		Rerank:     rerank.DefaultTimeDecayConfig(),
		NATS:       nats.DefaultConfig(),
		Redis:      cache.DefaultConfig(),
		Writer: WriterConfig{
			MetricsAddr:   ":9090",
			LabelInterval: time.Hour,
			LabelBatch:    500,
			Consumer:      "coil-writer",
		},
	}
}

// Load reads an optional .env file, then path over the defaults, then COIL_* overrides.
// An empty path skips the YAML file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"COIL_LOG_LEVEL":      &c.Log.Level,
		"COIL_LOG_FORMAT":     &c.Log.Format,
		"COIL_DUCKDB_PATH":    &c.DuckDB.Path,
		"COIL_MILVUS_ADDRESS": &c.Milvus.Address,
		"COIL_MILVUS_USER":    &c.Milvus.Username,
		"COIL_MILVUS_PASS":    &c.Milvus.Password,
		"COIL_NATS_URL":       &c.NATS.URL,
		"COIL_REDIS_ADDR":     &c.Redis.Addr,
		"COIL_REDIS_PASSWORD": &c.Redis.Password,
		"COIL_METRICS_ADDR":   &c.Writer.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("COIL_OUTCOME_HORIZON"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COIL_OUTCOME_HORIZON %q: %w", v, err)
		}
		c.Outcome.Horizon = n
	}
	return nil
}

// Validate checks the values the detectors depend on
func (c Config) Validate() error {
	t := c.Detection.Thresholds
	switch {
	case t.MinQualificationDays < 1:
		return fmt.Errorf("detection.thresholds.min_qualification_days must be >= 1, got %d", t.MinQualificationDays)
	case t.MaxBBWPercentile <= 0 || t.MaxBBWPercentile > 100:
		return fmt.Errorf("detection.thresholds.max_bbw_percentile must be in (0, 100], got %g", t.MaxBBWPercentile)
	case t.MaxADX <= 0 || t.MaxVolumeRatio <= 0 || t.MaxRangeRatio <= 0:
		return errors.New("detection.thresholds limits must be positive")
	case c.Detection.PowerBuffer <= 1:
		return fmt.Errorf("detection.power_buffer must be > 1, got %g", c.Detection.PowerBuffer)
	case c.Detection.BreakdownBuffer <= 0 || c.Detection.BreakdownBuffer > 1:
		return fmt.Errorf("detection.breakdown_buffer must be in (0, 1], got %g", c.Detection.BreakdownBuffer)
	case c.Outcome.Horizon < 1:
		return fmt.Errorf("outcome.horizon must be >= 1, got %d", c.Outcome.Horizon)
	case c.Outcome.MinForwardBars < 1 || c.Outcome.MinForwardBars > c.Outcome.Horizon:
		return fmt.Errorf("outcome.min_forward_bars must be in [1, horizon], got %d", c.Outcome.MinForwardBars)
	case c.Indicator.LookbackDays < 1:
		return fmt.Errorf("indicator.lookback_days must be >= 1, got %d", c.Indicator.LookbackDays)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "auto", "json", "console":
	default:
		return fmt.Errorf("log.format must be json, console or auto, got %q", c.Log.Format)
	}
	return nil
}

// Tracker returns the tracker configuration for symbol
func (c Config) Tracker(symbol string) tracker.Config {
	return tracker.Config{
		Symbol:          symbol,
		Indicator:       c.Indicator,
		Thresholds:      c.Detection.Thresholds,
		PowerBuffer:     c.Detection.PowerBuffer,
		BreakdownBuffer: c.Detection.BreakdownBuffer,
	}
}

// SetupLogger configures the global zerolog logger
func (c Config) SetupLogger() {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Log.Console(term.IsTerminal(int(os.Stderr.Fd()))) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}
}

// Console reports whether logs should use the console writer
func (l LogConfig) Console(tty bool) bool {
	switch l.Format {
	case "console":
		return true
	case "json":
		return false
	}
	return tty
}
