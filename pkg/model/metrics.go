package model

import "time"

// MetricsSnapshot holds the indicator values computed for one processed bar
type MetricsSnapshot struct {
	Date          time.Time `json:"date"`
	BBW           float64   `json:"bbw"`            // bollinger band width, % of the 20-period mean
	BBWPercentile float64   `json:"bbw_percentile"` // rank of BBW against its own history (0-100)
	ADX           float64   `json:"adx"`            // trend strength index
	VolumeRatio   float64   `json:"volume_ratio"`   // volume vs 20-period average
	RangeRatio    float64   `json:"range_ratio"`    // daily range vs 20-period average
	ATR           float64   `json:"atr"`            // 14-period average true range
	Volatility    float64   `json:"volatility"`     // 20-period std of daily returns, %
	PricePosition float64   `json:"price_position"` // position within the pattern range, not clamped
}
