package tracker

import (
	"errors"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/stats"
)

// ErrEmptyWindow is returned when boundaries are requested without bars
var ErrEmptyWindow = errors.New("empty qualification window")

// BoundaryEstablisher derives the trading range of a qualification window
type BoundaryEstablisher struct {
	PowerBuffer float64
}

// NewBoundaryEstablisher creates an establisher with the given breakout buffer
func NewBoundaryEstablisher(powerBuffer float64) *BoundaryEstablisher {
	return &BoundaryEstablisher{PowerBuffer: powerBuffer}
}

// Establish returns the boundaries and the activation summary.
// Upper is the highest high and lower the lowest low of bars; power sits
// PowerBuffer above upper. snapshots are the qualification-day snapshots.
func (e *BoundaryEstablisher) Establish(bars []model.Bar, snapshots []model.MetricsSnapshot) (model.Boundaries, map[string]float64, error) {
	if len(bars) == 0 {
		return model.Boundaries{}, nil, ErrEmptyWindow
	}

	upper := stats.Max(model.Highs(bars))
	lower := stats.Min(model.Lows(bars))
	b := model.Boundaries{
		Upper: upper,
		Lower: lower,
		Power: upper * e.PowerBuffer,
	}

	rangePercent := 0.0
	if lower > 0 {
		rangePercent = (upper - lower) / lower * 100
	}

	bbw := make([]float64, len(snapshots))
	for i, s := range snapshots {
		bbw[i] = s.BBW
	}

	summary := map[string]float64{
		model.MetricRangePercent:      rangePercent,
		model.MetricQualificationDays: float64(len(bars)),
		model.MetricAvgVolume:         stats.Mean(model.Volumes(bars)),
		model.MetricAvgBBW:            stats.Mean(bbw),
	}
	return b, summary, nil
}
