package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/indicator"
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/telemetry"
	"github.com/tunogya/coil/pkg/window"
)

var day1 = time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

// scripted returns pre-set snapshots by bar index, with the real price position
type scripted struct {
	warmup    int
	snapshots []model.MetricsSnapshot
}

func (s *scripted) Calculate(history []model.Bar, bounds *model.Boundaries) (model.MetricsSnapshot, bool) {
	if len(history) < s.warmup {
		return model.MetricsSnapshot{}, false
	}
	latest := history[len(history)-1]
	snap := s.snapshots[len(history)-1]
	snap.Date = latest.Date
	snap.PricePosition = indicator.PricePosition(latest.Close, bounds)
	return snap, true
}

var (
	quiet = model.MetricsSnapshot{BBWPercentile: 20, ADX: 25, VolumeRatio: 0.30, RangeRatio: 0.60, BBW: 2}
	loud  = model.MetricsSnapshot{BBWPercentile: 20, ADX: 25, VolumeRatio: 0.90, RangeRatio: 0.60, BBW: 5}
)

// fixture builds n bars (day 1 is index 0) and a snapshot script.
// Highs cycle 100..103 and lows 98..96 so the extrema are known.
func fixture(n int, loudDays ...int) ([]model.Bar, *scripted) {
	bars := make([]model.Bar, n)
	script := &scripted{warmup: 1, snapshots: make([]model.MetricsSnapshot, n)}
	isLoud := map[int]bool{}
	for _, d := range loudDays {
		isLoud[d] = true
	}
	for i := range bars {
		day := i + 1
		bars[i] = model.Bar{
			Symbol: "TEST",
			Date:   day1.AddDate(0, 0, i),
			Open:   99,
			High:   100 + float64(day%4),
			Low:    98 - float64(day%3),
			Close:  99,
			Volume: 1000 + float64(day),
		}
		script.snapshots[i] = quiet
		if isLoud[day] {
			script.snapshots[i] = loud
		}
	}
	return bars, script
}

func newTracker(calc MetricsCalculator) *Tracker {
	nop := zerolog.Nop()
	cfg := DefaultConfig("TEST")
	cfg.Logger = &nop
	return NewWithCalculator(cfg, calc)
}

// replay feeds days 1..upTo and returns the pattern after each day
func replay(t *testing.T, tr *Tracker, bars []model.Bar, upTo int) []*model.Pattern {
	t.Helper()
	out := make([]*model.Pattern, 0, upTo)
	for i := 0; i < upTo; i++ {
		p, err := tr.Update(bars[:i+1])
		require.NoError(t, err, "day %d", i+1)
		out = append(out, p)
	}
	return out
}

func TestScenarioA_ActivatesOnDayTenAndBreaksOut(t *testing.T) {
	bars, script := fixture(15, 12, 13, 14, 15)
	// day 11 closes 1% above the range high, over the power boundary
	bars[10].Close = 103 * 1.01
	bars[10].High = bars[10].Close

	tr := newTracker(script)
	states := replay(t, tr, bars, 15)

	for day := 1; day <= 9; day++ {
		require.NotNil(t, states[day-1])
		assert.Equal(t, model.PhaseQualifying, states[day-1].Phase, "day %d", day)
		assert.Equal(t, day, states[day-1].QualificationDays)
		assert.Nil(t, states[day-1].Boundaries)
	}

	active := states[9]
	require.NotNil(t, active)
	assert.Equal(t, model.PhaseActive, active.Phase)
	assert.Equal(t, 10, active.QualificationDays)
	assert.Equal(t, bars[9].Date, active.ActivatedAt)
	require.NotNil(t, active.Boundaries)
	assert.Equal(t, 103.0, active.Boundaries.Upper)
	assert.Equal(t, 96.0, active.Boundaries.Lower)
	upper, buffer := 103.0, 1.005
	assert.Equal(t, upper*buffer, active.Boundaries.Power)

	assert.Nil(t, states[10], "resolved pattern leaves no current pattern")
	for day := 12; day <= 15; day++ {
		assert.Nil(t, states[day-1])
	}

	archive := tr.Archive()
	require.Len(t, archive, 1)
	done := archive[0]
	assert.Equal(t, model.PhaseCompleted, done.Phase)
	assert.Equal(t, bars[10].Date, done.ResolvedAt)
	assert.Equal(t, 1, done.ActiveDays)
	assert.Equal(t, active.ID, done.ID)
}

func TestScenarioB_FailureOnDayFiveRestartsStreak(t *testing.T) {
	bars, script := fixture(15, 5)
	tr := newTracker(script)
	states := replay(t, tr, bars, 15)

	first := states[3]
	require.NotNil(t, first)
	assert.Equal(t, 4, first.QualificationDays)

	assert.Nil(t, states[4], "day 5 fails the predicate and discards the pattern")

	restarted := states[5]
	require.NotNil(t, restarted)
	assert.Equal(t, 1, restarted.QualificationDays)
	assert.Equal(t, bars[5].Date, restarted.StartDate)
	assert.NotEqual(t, first.ID, restarted.ID)

	require.NotNil(t, states[13])
	assert.Equal(t, model.PhaseQualifying, states[13].Phase, "day 14 is only the ninth day")
	assert.Equal(t, 9, states[13].QualificationDays)

	active := states[14]
	require.NotNil(t, active)
	assert.Equal(t, model.PhaseActive, active.Phase)
	assert.Equal(t, bars[14].Date, active.ActivatedAt)

	qualified := bars[5:15]
	assert.Equal(t, maxOf(model.Highs(qualified)), active.Boundaries.Upper)
	assert.Equal(t, minOf(model.Lows(qualified)), active.Boundaries.Lower)

	stats := tr.Statistics()
	assert.Equal(t, 1, stats.Discarded)
	assert.Equal(t, 0, stats.TotalResolved)
	assert.Equal(t, model.PhaseActive, stats.CurrentPhase)
	assert.Empty(t, tr.Archive(), "discarded patterns are not archived")
}

func TestActivation_Summary(t *testing.T) {
	bars, script := fixture(10)
	tr := newTracker(script)
	states := replay(t, tr, bars, 10)

	p := states[9]
	require.NotNil(t, p)
	require.Equal(t, model.PhaseActive, p.Phase)

	var volume float64
	for _, b := range bars {
		volume += b.Volume
	}
	assert.InDelta(t, (103.0-96.0)/96.0*100, p.Metrics[model.MetricRangePercent], 1e-12)
	assert.Equal(t, 10.0, p.Metrics[model.MetricQualificationDays])
	assert.InDelta(t, volume/10, p.Metrics[model.MetricAvgVolume], 1e-9)
	assert.InDelta(t, 2.0, p.Metrics[model.MetricAvgBBW], 1e-12)
	assert.InDelta(t, p.RangePercentage(), p.Metrics[model.MetricRangePercent], 1e-12)
}

func TestBreakout_PricePositionIsNotClamped(t *testing.T) {
	bars, script := fixture(11)
	bars[10].Close = 104
	bars[10].High = 104

	tr := newTracker(script)
	replay(t, tr, bars, 11)

	snaps := tr.Snapshots()
	require.Len(t, snaps, 11)
	// computed with the active boundaries before the lifecycle sees the breakout
	assert.InDelta(t, (104.0-96.0)/(103.0-96.0), snaps[10].PricePosition, 1e-12)
	assert.Greater(t, snaps[10].PricePosition, 1.0)
	assert.Equal(t, 0.5, snaps[8].PricePosition)
}

func TestBreakdown_Fails(t *testing.T) {
	bars, script := fixture(12)
	// 96 * 0.98 = 94.08: a close at 94.5 holds, 94 breaks down
	bars[10].Close, bars[10].Low = 94.5, 94.5
	bars[11].Close, bars[11].Low = 94, 94

	tr := newTracker(script)
	states := replay(t, tr, bars, 12)

	require.NotNil(t, states[10])
	assert.Equal(t, model.PhaseActive, states[10].Phase)
	assert.Less(t, tr.Snapshots()[10].PricePosition, 0.0)
	assert.Nil(t, states[11])

	archive := tr.Archive()
	require.Len(t, archive, 1)
	assert.Equal(t, model.PhaseFailed, archive[0].Phase)
	assert.Equal(t, 2, archive[0].ActiveDays)
	assert.Equal(t, bars[11].Date, archive[0].ResolvedAt)

	stats := tr.Statistics()
	assert.Equal(t, 1, stats.Breakdowns)
	assert.Equal(t, 0.0, stats.SuccessRate)
}

func TestActive_PowerBoundaryMustBeExceeded(t *testing.T) {
	bars, script := fixture(11)
	upper, buffer := 103.0, 1.005
	bars[10].Close = upper * buffer
	bars[10].High = bars[10].Close

	tr := newTracker(script)
	states := replay(t, tr, bars, 11)
	require.NotNil(t, states[10])
	assert.Equal(t, model.PhaseActive, states[10].Phase)
}

func TestTerminal_ArchiveIsImmutable(t *testing.T) {
	bars, script := fixture(30, 12, 13)
	bars[10].Close, bars[10].High = 110, 110

	tr := newTracker(script)
	replay(t, tr, bars, 11)

	archived := tr.Archive()
	require.Len(t, archived, 1)
	before := tr.Archive()[0]

	// mutating a copy leaves the archive alone
	archived[0].Boundaries.Upper = 1
	archived[0].Metrics[model.MetricAvgBBW] = -1
	require.Error(t, archived[0].Resolve(model.PhaseFailed, bars[11].Date))

	// later updates start new patterns but never touch the resolved one
	for i := 11; i < 30; i++ {
		_, err := tr.Update(bars[:i+1])
		require.NoError(t, err)
	}
	after := tr.Archive()
	require.GreaterOrEqual(t, len(after), 1)
	assert.Equal(t, before, after[0])
	assert.Equal(t, 103.0, after[0].Boundaries.Upper)

	err := after[0].Transition(model.PhaseActive)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))
}

func TestUpdate_InsufficientHistoryIsSoft(t *testing.T) {
	bars, script := fixture(12)
	script.warmup = 3

	tr := newTracker(script)
	p, err := tr.Update(bars[:2])
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Empty(t, tr.Snapshots())
	assert.True(t, tr.LastDate().IsZero())

	p, err = tr.Update(bars[:3])
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, bars[2].Date, p.StartDate)
	assert.Len(t, tr.Snapshots(), 1)
}

func TestUpdate_RejectsOutOfOrder(t *testing.T) {
	bars, script := fixture(5)
	tr := newTracker(script)
	replay(t, tr, bars, 3)

	_, err := tr.Update(bars[:3])
	assert.ErrorIs(t, err, window.ErrOutOfOrder)

	_, err = tr.Update(bars[:2])
	assert.ErrorIs(t, err, window.ErrOutOfOrder)
	assert.Len(t, tr.Snapshots(), 3)
}

func TestUpdate_ReturnsCopies(t *testing.T) {
	bars, script := fixture(10)
	tr := newTracker(script)
	states := replay(t, tr, bars, 10)

	states[9].Boundaries.Upper = 0
	states[9].QualificationDays = 99

	cur := tr.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 103.0, cur.Boundaries.Upper)
	assert.Equal(t, 10, cur.QualificationDays)
}

func TestFeatures_CoverLifetime(t *testing.T) {
	bars, script := fixture(14, 13, 14)
	bars[11].Close, bars[11].High = 110, 110

	tr := newTracker(script)
	replay(t, tr, bars, 14)

	archive := tr.Archive()
	require.Len(t, archive, 1)
	f := tr.Features(archive[0])
	require.NotNil(t, f)
	assert.Equal(t, 12, f.SnapshotCount)
	assert.Equal(t, 12.0, f.Duration)
	assert.InDelta(t, 2.0, f.AvgBBW, 1e-12)
}

func TestTracker_RecordsMetrics(t *testing.T) {
	bars, script := fixture(11)
	bars[10].Close, bars[10].High = 110, 110

	nop := zerolog.Nop()
	cfg := DefaultConfig("TEST")
	cfg.Logger = &nop
	cfg.Metrics = telemetry.NewMetrics(prometheus.NewRegistry())
	tr := NewWithCalculator(cfg, script)
	replay(t, tr, bars, 11)

	assert.Equal(t, 11.0, testutil.ToFloat64(cfg.Metrics.BarsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.Transitions.WithLabelValues("QUALIFYING")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.Transitions.WithLabelValues("ACTIVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.Transitions.WithLabelValues("COMPLETED")))
}

func TestThresholds_StrictLimits(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, th.Qualifies(quiet))

	edge := quiet
	edge.ADX = 32
	assert.False(t, th.Qualifies(edge))

	edge = quiet
	edge.BBWPercentile = 30
	assert.False(t, th.Qualifies(edge))

	edge = quiet
	edge.VolumeRatio = 0.35
	assert.False(t, th.Qualifies(edge))

	edge = quiet
	edge.RangeRatio = 0.65
	assert.False(t, th.Qualifies(edge))
}

func TestBoundaryEstablisher_EmptyWindow(t *testing.T) {
	_, _, err := NewBoundaryEstablisher(1.005).Establish(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyWindow)
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = max(m, x)
	}
	return m
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		m = min(m, x)
	}
	return m
}
