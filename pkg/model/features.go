package model

// PatternFeatures summarises the metrics history over a pattern's lifetime.
// These are the inputs handed to the offline training collaborator.
type PatternFeatures struct {
	PatternID        string  `json:"pattern_id"`
	Duration         float64 `json:"pattern_duration"`
	RangePercentage  float64 `json:"range_percentage"`
	AvgBBW           float64 `json:"avg_bbw"`
	MinBBW           float64 `json:"min_bbw"`
	MaxBBW           float64 `json:"max_bbw"`
	AvgBBWPercentile float64 `json:"avg_bbw_percentile"`
	AvgADX           float64 `json:"avg_adx"`
	MaxADX           float64 `json:"max_adx"`
	AvgVolumeRatio   float64 `json:"avg_volume_ratio"`
	MinVolumeRatio   float64 `json:"min_volume_ratio"`
	AvgRangeRatio    float64 `json:"avg_daily_range_ratio"`
	AvgATR           float64 `json:"avg_atr"`
	AvgVolatility    float64 `json:"avg_volatility"`
	BBWSlope         float64 `json:"bbw_slope"`
	ADXSlope         float64 `json:"adx_slope"`
	VolumeSlope      float64 `json:"volume_slope"`
	SnapshotCount    int     `json:"snapshot_count"`
}

// FeatureNames is the fixed column order of Vector and Map
var FeatureNames = []string{
	"pattern_duration",
	"range_percentage",
	"avg_bbw",
	"min_bbw",
	"max_bbw",
	"avg_bbw_percentile",
	"avg_adx",
	"max_adx",
	"avg_volume_ratio",
	"min_volume_ratio",
	"avg_daily_range_ratio",
	"avg_atr",
	"avg_volatility",
	"bbw_slope",
	"adx_slope",
	"volume_slope",
	"range_to_duration_ratio",
	"volatility_to_bbw_ratio",
	"volume_consistency",
}

// RangeToDurationRatio is range % per day of pattern life
func (f *PatternFeatures) RangeToDurationRatio() float64 {
	return f.RangePercentage / (f.Duration + 1)
}

// VolatilityToBBWRatio relates return volatility to band width
func (f *PatternFeatures) VolatilityToBBWRatio() float64 {
	return f.AvgVolatility / (f.AvgBBW + 0.01)
}

// VolumeConsistency is high when volume stays low without drifting
func (f *PatternFeatures) VolumeConsistency() float64 {
	slope := f.VolumeSlope
	if slope < 0 {
		slope = -slope
	}
	return f.AvgVolumeRatio / (slope + 0.01)
}

// Vector returns the features in FeatureNames order
func (f *PatternFeatures) Vector() []float64 {
	return []float64{
		f.Duration,
		f.RangePercentage,
		f.AvgBBW,
		f.MinBBW,
		f.MaxBBW,
		f.AvgBBWPercentile,
		f.AvgADX,
		f.MaxADX,
		f.AvgVolumeRatio,
		f.MinVolumeRatio,
		f.AvgRangeRatio,
		f.AvgATR,
		f.AvgVolatility,
		f.BBWSlope,
		f.ADXSlope,
		f.VolumeSlope,
		f.RangeToDurationRatio(),
		f.VolatilityToBBWRatio(),
		f.VolumeConsistency(),
	}
}

// Map returns the features keyed by name
func (f *PatternFeatures) Map() map[string]float64 {
	vec := f.Vector()
	out := make(map[string]float64, len(vec))
	for i, name := range FeatureNames {
		out[name] = vec[i]
	}
	return out
}

// LabeledSample pairs a resolved pattern's features with its realized outcome
type LabeledSample struct {
	Pattern  Pattern         `json:"pattern"`
	Features PatternFeatures `json:"features"`
	Outcome  PatternOutcome  `json:"outcome"`
}
