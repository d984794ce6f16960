package outcome

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
)

var resolvedOn = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func completed() model.Pattern {
	return model.Pattern{
		ID:         "p-1",
		Symbol:     "TEST",
		Phase:      model.PhaseCompleted,
		Boundaries: &model.Boundaries{Upper: 100, Lower: 90, Power: 100.5},
		ResolvedAt: resolvedOn,
	}
}

// forwardBars builds bars from (high, low, close) triples starting the day after resolution
func forwardBars(hlc ...[3]float64) []model.Bar {
	out := make([]model.Bar, len(hlc))
	for i, v := range hlc {
		out[i] = model.Bar{
			Symbol: "TEST",
			Date:   resolvedOn.AddDate(0, 0, i+1),
			Open:   v[2],
			High:   v[0],
			Low:    v[1],
			Close:  v[2],
			Volume: 100,
		}
	}
	return out
}

func TestEvaluate_ClassifiesByMaxGain(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	forward := forwardBars(
		[3]float64{104, 99, 103},
		[3]float64{120, 101, 110},
		[3]float64{111, 95, 96},
	)

	o, err := e.Evaluate(completed(), forward)
	require.NoError(t, err)
	require.NotNil(t, o)

	assert.Equal(t, "p-1", o.PatternID)
	assert.InDelta(t, 20.0, o.MaxGain, 1e-12)
	assert.InDelta(t, -5.0, o.MaxLoss, 1e-12)
	assert.InDelta(t, -4.0, o.ActualGain, 1e-12)
	assert.Equal(t, model.K2, o.Class)
	assert.Equal(t, 1.0, o.StrategicValue)
	assert.Equal(t, 3, o.DaysObserved)
	assert.Equal(t, forward[2].Date, o.EvaluatedAt)
}

func TestEvaluate_FailedUsesLowerBoundary(t *testing.T) {
	p := completed()
	p.Phase = model.PhaseFailed

	o, err := NewEvaluator(DefaultConfig()).Evaluate(p, forwardBars([3]float64{89, 80, 81}))
	require.NoError(t, err)
	require.NotNil(t, o)

	// every high stays under the 90 lower boundary
	assert.InDelta(t, -100.0/90.0, o.MaxGain, 1e-12)
	assert.Equal(t, model.K5, o.Class)
	assert.Equal(t, -10.0, o.StrategicValue)
	assert.InDelta(t, -10.0/90.0*100, o.MaxLoss, 1e-12)
}

func TestEvaluate_HorizonTruncates(t *testing.T) {
	e := NewEvaluator(Config{Horizon: 2, MinForwardBars: 1})
	forward := forwardBars(
		[3]float64{101, 99, 100},
		[3]float64{102, 99, 102},
		[3]float64{200, 99, 190},
	)

	o, err := e.Evaluate(completed(), forward)
	require.NoError(t, err)
	assert.Equal(t, 2, o.DaysObserved)
	assert.InDelta(t, 2.0, o.MaxGain, 1e-12)
	assert.InDelta(t, 2.0, o.ActualGain, 1e-12)
	assert.Equal(t, model.K0, o.Class)
}

func TestEvaluate_NoForwardBars(t *testing.T) {
	o, err := NewEvaluator(DefaultConfig()).Evaluate(completed(), nil)
	assert.NoError(t, err)
	assert.Nil(t, o)
}

func TestEvaluate_RejectsLookahead(t *testing.T) {
	forward := forwardBars([3]float64{101, 99, 100})
	forward[0].Date = resolvedOn

	_, err := NewEvaluator(DefaultConfig()).Evaluate(completed(), forward)
	assert.ErrorIs(t, err, ErrLookahead)
}

func TestEvaluate_RejectsUnresolved(t *testing.T) {
	p := completed()
	p.Phase = model.PhaseActive

	_, err := NewEvaluator(DefaultConfig()).Evaluate(p, forwardBars([3]float64{101, 99, 100}))
	assert.ErrorIs(t, err, ErrNotResolved)
}

func TestEvaluate_IgnoresDetectionHistory(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	forward := forwardBars(
		[3]float64{140, 98, 130},
		[3]float64{150, 120, 121},
	)

	p := completed()
	a, err := e.Evaluate(p, forward)
	require.NoError(t, err)

	// a pattern with a long history behind it evaluates the same
	p.QualificationDays = 40
	p.ActiveDays = 200
	p.Metrics = map[string]float64{model.MetricAvgBBW: 3}
	b, err := e.Evaluate(p, forward)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, model.K3, a.Class)
}

func TestNewEvaluator_Defaults(t *testing.T) {
	e := NewEvaluator(Config{})
	assert.Equal(t, 100, e.Config().Horizon)
	assert.Equal(t, 20, e.Config().MinForwardBars)
	assert.True(t, e.Ready(20))
	assert.False(t, e.Ready(19))
}

type memorySource struct {
	bars []model.Bar
}

func (m *memorySource) GetAfter(_ context.Context, _ string, after time.Time, limit int) ([]model.Bar, error) {
	var out []model.Bar
	for _, b := range m.bars {
		if b.Date.After(after) {
			out = append(out, b)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func TestLabeler_WaitsForForwardData(t *testing.T) {
	all := forwardBars(
		[3]float64{180, 99, 170},
		[3]float64{101, 99, 100},
		[3]float64{102, 98, 101},
	)
	src := &memorySource{bars: all[:2]}
	e := NewEvaluator(Config{Horizon: 3})
	l := NewLabeler(src, e, 0, zerolog.Nop())

	outcomes, err := l.Label(context.Background(), []model.Pattern{completed()})
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	src.bars = all
	outcomes, err = l.Label(context.Background(), []model.Pattern{completed()})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.K4, outcomes[0].Class)
	assert.Equal(t, 3, outcomes[0].DaysObserved)
}
