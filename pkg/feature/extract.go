package feature

import (
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/stats"
)

// Extractor aggregates metric snapshots over a pattern's lifetime
type Extractor struct{}

// NewExtractor creates a new feature extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract summarises every snapshot dated from the pattern start through its
// resolution (or the latest snapshot for an unresolved pattern).
// Returns nil when no snapshot falls in that range.
func (e *Extractor) Extract(p model.Pattern, snapshots []model.MetricsSnapshot) *model.PatternFeatures {
	window := Lifetime(p, snapshots)
	if len(window) == 0 {
		return nil
	}

	bbw := make([]float64, len(window))
	pct := make([]float64, len(window))
	adx := make([]float64, len(window))
	vol := make([]float64, len(window))
	rng := make([]float64, len(window))
	atr := make([]float64, len(window))
	volatility := make([]float64, len(window))
	for i, s := range window {
		bbw[i] = s.BBW
		pct[i] = s.BBWPercentile
		adx[i] = s.ADX
		vol[i] = s.VolumeRatio
		rng[i] = s.RangeRatio
		atr[i] = s.ATR
		volatility[i] = s.Volatility
	}

	return &model.PatternFeatures{
		PatternID:        p.ID,
		Duration:         float64(p.Duration()),
		RangePercentage:  p.RangePercentage(),
		AvgBBW:           stats.Mean(bbw),
		MinBBW:           stats.Min(bbw),
		MaxBBW:           stats.Max(bbw),
		AvgBBWPercentile: stats.Mean(pct),
		AvgADX:           stats.Mean(adx),
		MaxADX:           stats.Max(adx),
		AvgVolumeRatio:   stats.Mean(vol),
		MinVolumeRatio:   stats.Min(vol),
		AvgRangeRatio:    stats.Mean(rng),
		AvgATR:           stats.Mean(atr),
		AvgVolatility:    stats.Mean(volatility),
		BBWSlope:         stats.Slope(bbw),
		ADXSlope:         stats.Slope(adx),
		VolumeSlope:      stats.Slope(vol),
		SnapshotCount:    len(window),
	}
}

// Lifetime returns the snapshots dated within [start, resolution]
func Lifetime(p model.Pattern, snapshots []model.MetricsSnapshot) []model.MetricsSnapshot {
	var out []model.MetricsSnapshot
	for _, s := range snapshots {
		if s.Date.Before(p.StartDate) {
			continue
		}
		if !p.ResolvedAt.IsZero() && s.Date.After(p.ResolvedAt) {
			break
		}
		out = append(out, s)
	}
	return out
}
