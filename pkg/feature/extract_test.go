package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
)

var day0 = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func snapshots(n int) []model.MetricsSnapshot {
	out := make([]model.MetricsSnapshot, n)
	for i := range out {
		out[i] = model.MetricsSnapshot{
			Date:          day0.AddDate(0, 0, i),
			BBW:           10 - float64(i),
			BBWPercentile: 20,
			ADX:           20 + 2*float64(i),
			VolumeRatio:   0.3,
			RangeRatio:    0.5,
			ATR:           1.5,
			Volatility:    2,
		}
	}
	return out
}

func resolvedPattern(start, end int) model.Pattern {
	return model.Pattern{
		ID:                "p-1",
		Phase:             model.PhaseCompleted,
		StartDate:         day0.AddDate(0, 0, start),
		ResolvedAt:        day0.AddDate(0, 0, end),
		QualificationDays: 3,
		ActiveDays:        2,
		Boundaries:        &model.Boundaries{Upper: 110, Lower: 100, Power: 110.55},
	}
}

func TestExtract_UsesOnlyLifetimeSnapshots(t *testing.T) {
	snaps := snapshots(10)
	p := resolvedPattern(2, 6)

	f := NewExtractor().Extract(p, snaps)
	require.NotNil(t, f)

	// snapshots 2..6: bbw 8,7,6,5,4 and adx 24,26,28,30,32
	assert.Equal(t, 5, f.SnapshotCount)
	assert.Equal(t, "p-1", f.PatternID)
	assert.Equal(t, 5.0, f.Duration)
	assert.InDelta(t, 10.0, f.RangePercentage, 1e-12)
	assert.InDelta(t, 6.0, f.AvgBBW, 1e-12)
	assert.Equal(t, 4.0, f.MinBBW)
	assert.Equal(t, 8.0, f.MaxBBW)
	assert.InDelta(t, 28.0, f.AvgADX, 1e-12)
	assert.Equal(t, 32.0, f.MaxADX)
	assert.InDelta(t, 0.3, f.AvgVolumeRatio, 1e-12)
	assert.InDelta(t, 0.3, f.MinVolumeRatio, 1e-12)
	assert.InDelta(t, 0.5, f.AvgRangeRatio, 1e-12)
	assert.InDelta(t, 1.5, f.AvgATR, 1e-12)
	assert.InDelta(t, 2.0, f.AvgVolatility, 1e-12)
	assert.InDelta(t, 20.0, f.AvgBBWPercentile, 1e-12)

	assert.InDelta(t, -1.0, f.BBWSlope, 1e-12)
	assert.InDelta(t, 2.0, f.ADXSlope, 1e-12)
	assert.InDelta(t, 0.0, f.VolumeSlope, 1e-12)
}

func TestExtract_UnresolvedRunsToLatest(t *testing.T) {
	p := resolvedPattern(7, 0)
	p.ResolvedAt = time.Time{}
	p.Phase = model.PhaseActive

	f := NewExtractor().Extract(p, snapshots(10))
	require.NotNil(t, f)
	assert.Equal(t, 3, f.SnapshotCount)
}

func TestExtract_EmptyWhenNothingInRange(t *testing.T) {
	p := resolvedPattern(20, 25)
	assert.Nil(t, NewExtractor().Extract(p, snapshots(10)))
	assert.Nil(t, NewExtractor().Extract(p, nil))
}

func TestFeatures_MapFollowsNames(t *testing.T) {
	f := NewExtractor().Extract(resolvedPattern(2, 6), snapshots(10))
	require.NotNil(t, f)

	m := f.Map()
	assert.Len(t, m, len(model.FeatureNames))
	assert.Equal(t, f.AvgBBW, m["avg_bbw"])
	assert.InDelta(t, 10.0/6.0, m["range_to_duration_ratio"], 1e-12)
	assert.InDelta(t, 2.0/6.01, m["volatility_to_bbw_ratio"], 1e-12)
	assert.InDelta(t, 0.3/0.01, m["volume_consistency"], 1e-9)
}
