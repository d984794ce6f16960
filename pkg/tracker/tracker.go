// Package tracker runs the consolidation lifecycle for a single symbol.
//
// A Tracker is fed the bar history known "today", one day at a time. Each
// call computes a metrics snapshot, appends it to the snapshot history and
// advances the current pattern through NONE, QUALIFYING and ACTIVE until it
// resolves as COMPLETED or FAILED and is archived. Trackers share nothing,
// so one per symbol can run on its own goroutine.
package tracker

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunogya/coil/pkg/feature"
	"github.com/tunogya/coil/pkg/indicator"
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/telemetry"
	"github.com/tunogya/coil/pkg/window"
)

// MetricsCalculator computes the snapshot for the last bar of a history
type MetricsCalculator interface {
	Calculate(history []model.Bar, bounds *model.Boundaries) (model.MetricsSnapshot, bool)
}

// Thresholds are the qualification limits; every one must hold on the same day
type Thresholds struct {
	MaxBBWPercentile     float64 `yaml:"max_bbw_percentile"`
	MaxADX               float64 `yaml:"max_adx"`
	MaxVolumeRatio       float64 `yaml:"max_volume_ratio"`
	MaxRangeRatio        float64 `yaml:"max_range_ratio"`
	MinQualificationDays int     `yaml:"min_qualification_days"`
}

// DefaultThresholds returns the standard qualification limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxBBWPercentile:     30,
		MaxADX:               32,
		MaxVolumeRatio:       0.35,
		MaxRangeRatio:        0.65,
		MinQualificationDays: 10,
	}
}

// Qualifies reports whether a snapshot satisfies all four limits
func (t Thresholds) Qualifies(s model.MetricsSnapshot) bool {
	return s.BBWPercentile < t.MaxBBWPercentile &&
		s.ADX < t.MaxADX &&
		s.VolumeRatio < t.MaxVolumeRatio &&
		s.RangeRatio < t.MaxRangeRatio
}

// Config holds configuration for a tracker
type Config struct {
	Symbol          string
	Indicator       indicator.Config
	Thresholds      Thresholds
	PowerBuffer     float64 // Power boundary = upper * PowerBuffer
	BreakdownBuffer float64 // Breakdown when close < lower * BreakdownBuffer

	Logger  *zerolog.Logger    // Defaults to the global logger
	Metrics *telemetry.Metrics // Optional
}

// DefaultConfig returns a Config with the standard thresholds and buffers
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:          symbol,
		Indicator:       indicator.DefaultConfig(),
		Thresholds:      DefaultThresholds(),
		PowerBuffer:     1.005,
		BreakdownBuffer: 0.98,
	}
}

// Tracker owns the pattern state, snapshot history and archive for one symbol
type Tracker struct {
	cfg        Config
	calc       MetricsCalculator
	boundaries *BoundaryEstablisher
	extractor  *feature.Extractor
	log        zerolog.Logger

	current   *model.Pattern
	snapshots []model.MetricsSnapshot
	archive   []model.Pattern
	lastDate  time.Time
	discarded int
}

// New creates a tracker backed by the indicator calculator
func New(cfg Config) *Tracker {
	return NewWithCalculator(cfg, indicator.NewCalculator(cfg.Indicator))
}

// NewWithCalculator creates a tracker with a custom metrics calculator
func NewWithCalculator(cfg Config, calc MetricsCalculator) *Tracker {
	defaults := DefaultConfig(cfg.Symbol)
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = defaults.Thresholds
	}
	if cfg.Thresholds.MinQualificationDays <= 0 {
		cfg.Thresholds.MinQualificationDays = defaults.Thresholds.MinQualificationDays
	}
	if cfg.PowerBuffer <= 1 {
		cfg.PowerBuffer = defaults.PowerBuffer
	}
	if cfg.BreakdownBuffer <= 0 || cfg.BreakdownBuffer > 1 {
		cfg.BreakdownBuffer = defaults.BreakdownBuffer
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Tracker{
		cfg:        cfg,
		calc:       calc,
		boundaries: NewBoundaryEstablisher(cfg.PowerBuffer),
		extractor:  feature.NewExtractor(),
		log:        logger.With().Str("component", "tracker").Str("symbol", cfg.Symbol).Logger(),
	}
}

// Update processes the last bar of history, which must be "today".
// It returns a copy of the current pattern, or nil when there is none.
// Insufficient history is not an error: nothing changes and the current
// pattern is returned as is.
func (t *Tracker) Update(history []model.Bar) (*model.Pattern, error) {
	if len(history) == 0 {
		return t.Current(), nil
	}
	started := time.Now()

	latest := history[len(history)-1]
	if !t.lastDate.IsZero() && !latest.Date.After(t.lastDate) {
		return nil, fmt.Errorf("%w: %s %s does not follow %s", window.ErrOutOfOrder, t.cfg.Symbol,
			latest.Date.Format(model.DateLayout), t.lastDate.Format(model.DateLayout))
	}

	var bounds *model.Boundaries
	if t.current != nil {
		bounds = t.current.Boundaries
	}
	snap, ok := t.calc.Calculate(history, bounds)
	if !ok {
		t.log.Debug().Int("bars", len(history)).Str("date", latest.Date.Format(model.DateLayout)).Msg("Insufficient data")
		return t.Current(), nil
	}

	t.snapshots = append(t.snapshots, snap)
	t.lastDate = latest.Date

	if err := t.advance(history, snap); err != nil {
		return nil, err
	}

	t.cfg.Metrics.ObserveUpdate(time.Since(started))
	return t.Current(), nil
}

// Symbol returns the tracked symbol
func (t *Tracker) Symbol() string {
	return t.cfg.Symbol
}

// Config returns the effective configuration
func (t *Tracker) Config() Config {
	return t.cfg
}

// Current returns a copy of the current pattern, nil when there is none
func (t *Tracker) Current() *model.Pattern {
	if t.current == nil {
		return nil
	}
	p := t.current.Clone()
	return &p
}

// Archive returns copies of every resolved pattern, oldest first
func (t *Tracker) Archive() []model.Pattern {
	return t.ArchiveSince(0)
}

// ArchiveSince returns copies of the resolved patterns from index i on
func (t *Tracker) ArchiveSince(i int) []model.Pattern {
	if i < 0 {
		i = 0
	}
	if i >= len(t.archive) {
		return nil
	}
	out := make([]model.Pattern, 0, len(t.archive)-i)
	for _, p := range t.archive[i:] {
		out = append(out, p.Clone())
	}
	return out
}

// ArchiveLen returns the number of resolved patterns
func (t *Tracker) ArchiveLen() int {
	return len(t.archive)
}

// Snapshots returns a copy of the snapshot history
func (t *Tracker) Snapshots() []model.MetricsSnapshot {
	out := make([]model.MetricsSnapshot, len(t.snapshots))
	copy(out, t.snapshots)
	return out
}

// LastDate returns the date of the latest processed bar
func (t *Tracker) LastDate() time.Time {
	return t.lastDate
}

// Features aggregates the snapshot history over p's lifetime
func (t *Tracker) Features(p model.Pattern) *model.PatternFeatures {
	return t.extractor.Extract(p, t.snapshots)
}
