// Package indicator computes the per-bar consolidation metrics: bollinger
// band width and its percentile rank, ADX, volume and range ratios, ATR,
// short-term volatility and the price position inside an established range.
package indicator

import (
	"math"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/stats"
	"github.com/tunogya/coil/pkg/window"
)

// Config holds the window lengths used by the calculator
type Config struct {
	LookbackDays     int     `yaml:"lookback_days"`     // Minimum bars before a snapshot is produced
	BandPeriod       int     `yaml:"band_period"`       // Bollinger period
	BandStdDevs      float64 `yaml:"band_std_devs"`     // Bollinger width in standard deviations
	ADXPeriod        int     `yaml:"adx_period"`        // Directional index period
	ATRPeriod        int     `yaml:"atr_period"`        // Average true range period
	AveragePeriod    int     `yaml:"average_period"`    // Volume and range average period
	VolatilityPeriod int     `yaml:"volatility_period"` // Return volatility period
	NeutralADX       float64 `yaml:"neutral_adx"`       // Substituted when ADX is undefined
}

// DefaultConfig returns the standard 20/14 period configuration
func DefaultConfig() Config {
	return Config{
		LookbackDays:     60,
		BandPeriod:       20,
		BandStdDevs:      2,
		ADXPeriod:        14,
		ATRPeriod:        14,
		AveragePeriod:    20,
		VolatilityPeriod: 20,
		NeutralADX:       25.0,
	}
}

// MinBars returns the fewest bars every window needs to be defined
func (c Config) MinBars() int {
	n := c.BandPeriod
	n = max(n, 2*c.ADXPeriod)
	n = max(n, c.ATRPeriod)
	n = max(n, c.AveragePeriod)
	n = max(n, c.VolatilityPeriod+1)
	return n
}

// Calculator computes metric snapshots from a bar history
type Calculator struct {
	cfg Config
}

// NewCalculator creates a calculator; the lookback is raised to MinBars if needed
func NewCalculator(cfg Config) *Calculator {
	if cfg.LookbackDays < cfg.MinBars() {
		cfg.LookbackDays = cfg.MinBars()
	}
	return &Calculator{cfg: cfg}
}

// Config returns the effective configuration
func (c *Calculator) Config() Config {
	return c.cfg
}

// Calculate returns the snapshot for the last bar of history.
// The bool is false when fewer than LookbackDays bars are available, in which
// case no snapshot is produced. bounds may be nil when no range is established.
func (c *Calculator) Calculate(history []model.Bar, bounds *model.Boundaries) (model.MetricsSnapshot, bool) {
	if len(history) < c.cfg.LookbackDays {
		return model.MetricsSnapshot{}, false
	}

	latest := history[len(history)-1]
	closes := model.Closes(history)

	bbwSeries := c.bandWidthSeries(closes)
	bbw := bbwSeries[len(bbwSeries)-1]

	return model.MetricsSnapshot{
		Date:          latest.Date,
		BBW:           bbw,
		BBWPercentile: stats.PercentileRank(bbwSeries, bbw),
		ADX:           c.adx(history),
		VolumeRatio:   c.volumeRatio(history),
		RangeRatio:    c.rangeRatio(history),
		ATR:           c.atr(history),
		Volatility:    c.volatility(closes),
		PricePosition: PricePosition(latest.Close, bounds),
	}, true
}

// bandWidthSeries returns the band width for every bar with a full window.
// The last element belongs to the latest bar.
func (c *Calculator) bandWidthSeries(closes []float64) []float64 {
	ring := window.NewRingBuffer[float64](c.cfg.BandPeriod)
	series := make([]float64, 0, len(closes)-c.cfg.BandPeriod+1)

	for _, v := range closes {
		ring.Push(v)
		if !ring.IsFull() {
			continue
		}
		series = append(series, c.bandWidth(ring.ToSlice()))
	}
	return series
}

// bandWidth is (upper - lower) / mean * 100 with bands at mean +- k*std
func (c *Calculator) bandWidth(closes []float64) float64 {
	mean := stats.Mean(closes)
	if mean == 0 {
		return 0
	}
	std := stats.SampleStdDev(closes)
	upper := mean + c.cfg.BandStdDevs*std
	lower := mean - c.cfg.BandStdDevs*std
	return (upper - lower) / mean * 100
}

func (c *Calculator) volumeRatio(history []model.Bar) float64 {
	volumes := model.Volumes(history)
	avg := stats.Mean(stats.Tail(volumes, c.cfg.AveragePeriod))
	if avg <= 0 {
		return 1.0
	}
	return volumes[len(volumes)-1] / avg
}

func (c *Calculator) rangeRatio(history []model.Bar) float64 {
	ranges := make([]float64, len(history))
	for i := range history {
		ranges[i] = history[i].RangeRatio()
	}
	avg := stats.Mean(stats.Tail(ranges, c.cfg.AveragePeriod))
	current := ranges[len(ranges)-1]
	if avg <= 0 || !stats.Defined(current/avg) {
		return 1.0
	}
	return current / avg
}

func (c *Calculator) atr(history []model.Bar) float64 {
	return stats.Mean(stats.Tail(trueRanges(history), c.cfg.ATRPeriod))
}

// volatility is the sample std of the last N daily % returns, times 100
func (c *Calculator) volatility(closes []float64) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	std := stats.SampleStdDev(stats.Tail(returns, c.cfg.VolatilityPeriod))
	if !stats.Defined(std) {
		return 0
	}
	return std * 100
}

// PricePosition returns (close - lower) / (upper - lower), or 0.5 without a range.
// The result is deliberately not clamped: a breakout bar reads above 1.
func PricePosition(close float64, bounds *model.Boundaries) float64 {
	if bounds == nil {
		return 0.5
	}
	width := bounds.Width()
	if width == 0 {
		return 0.5
	}
	return (close - bounds.Lower) / width
}

// trueRanges returns the true range of every bar; the first bar uses high-low
func trueRanges(history []model.Bar) []float64 {
	tr := make([]float64, len(history))
	for i := range history {
		if i == 0 {
			tr[i] = history[i].High - history[i].Low
			continue
		}
		tr[i] = history[i].TrueRange(history[i-1].Close)
	}
	return tr
}

// rollingMean returns the mean of values[end-period+1 .. end]
func rollingMean(values []float64, end, period int) float64 {
	if end+1 < period {
		return math.NaN()
	}
	return stats.Mean(values[end-period+1 : end+1])
}
