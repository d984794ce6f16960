package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidBar is returned when a bar or bar series fails validation
var ErrInvalidBar = errors.New("invalid bar")

// DateLayout is the layout used for daily bar dates in files and messages
const DateLayout = "2006-01-02"

// Bar represents a single daily OHLCV record
type Bar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// RangeRatio returns the high-low range as a fraction of the close
func (b *Bar) RangeRatio() float64 {
	if b.Close == 0 {
		return 0
	}
	return (b.High - b.Low) / b.Close
}

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|)
func (b *Bar) TrueRange(prevClose float64) float64 {
	return math.Max(
		b.High-b.Low,
		math.Max(
			math.Abs(b.High-prevClose),
			math.Abs(b.Low-prevClose),
		),
	)
}

// Validate checks low <= open,close <= high, a positive close and non-negative volume
func (b *Bar) Validate() error {
	switch {
	case b.Date.IsZero():
		return fmt.Errorf("%w: %s has no date", ErrInvalidBar, b.Symbol)
	case b.Close <= 0:
		return fmt.Errorf("%w: %s %s close %.4f is not positive", ErrInvalidBar, b.Symbol, b.Date.Format(DateLayout), b.Close)
	case b.Volume < 0:
		return fmt.Errorf("%w: %s %s negative volume", ErrInvalidBar, b.Symbol, b.Date.Format(DateLayout))
	case b.Low > b.High,
		b.Open < b.Low || b.Open > b.High,
		b.Close < b.Low || b.Close > b.High:
		return fmt.Errorf("%w: %s %s prices outside [low, high]", ErrInvalidBar, b.Symbol, b.Date.Format(DateLayout))
	}
	return nil
}

// ValidateSeries validates every bar and checks strictly ascending dates
func ValidateSeries(bars []Bar) error {
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return err
		}
		if i > 0 && !bars[i].Date.After(bars[i-1].Date) {
			return fmt.Errorf("%w: %s dates not strictly ascending at %s",
				ErrInvalidBar, bars[i].Symbol, bars[i].Date.Format(DateLayout))
		}
	}
	return nil
}

// Highs returns the high of every bar
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows returns the low of every bar
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Closes returns the close of every bar
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes returns the volume of every bar
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
