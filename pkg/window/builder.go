package window

import (
	"fmt"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

// ErrOutOfOrder is returned when a bar does not strictly follow the previous one
var ErrOutOfOrder = fmt.Errorf("%w: bar out of chronological order", model.ErrInvalidBar)

// Builder replays bars one at a time and exposes the history known "today".
// The view returned by Push never contains a bar later than the one pushed,
// which is what keeps detection free of lookahead.
type Builder struct {
	Symbol string
	Warmup int // Minimum bars before the history is handed out

	history []model.Bar
	recent  *RingBuffer[model.Bar]
}

// Config holds configuration for the bar builder
type Config struct {
	Symbol string
	Warmup int // Minimum bars before output (defaults to 60)
	Recent int // Size of the recent-bars ring (defaults to 20)
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol: symbol,
		Warmup: 60,
		Recent: 20,
	}
}

// NewBuilder creates a new bar builder with the given configuration
func NewBuilder(cfg Config) *Builder {
	if cfg.Warmup <= 0 {
		cfg.Warmup = 60
	}
	if cfg.Recent <= 0 {
		cfg.Recent = 20
	}
	return &Builder{
		Symbol: cfg.Symbol,
		Warmup: cfg.Warmup,
		recent: NewRingBuffer[model.Bar](cfg.Recent),
	}
}

// Push validates and appends a bar, returning the history up to and including it.
// The bool is false until Warmup bars have been seen.
func (b *Builder) Push(bar model.Bar) ([]model.Bar, bool, error) {
	if err := bar.Validate(); err != nil {
		return nil, false, err
	}
	if b.Symbol != "" && bar.Symbol != "" && bar.Symbol != b.Symbol {
		return nil, false, fmt.Errorf("%w: builder for %s got bar for %s", model.ErrInvalidBar, b.Symbol, bar.Symbol)
	}
	if last, ok := b.recent.Last(); ok && !bar.Date.After(last.Date) {
		return nil, false, fmt.Errorf("%w: %s %s does not follow %s", ErrOutOfOrder,
			b.Symbol, bar.Date.Format(model.DateLayout), last.Date.Format(model.DateLayout))
	}

	b.history = append(b.history, bar)
	b.recent.Push(bar)

	// full-slice expression so callers appending to the view cannot clobber later bars
	view := b.history[:len(b.history):len(b.history)]
	return view, len(b.history) >= b.Warmup, nil
}

// IsWarmedUp returns true if the warmup period is complete
func (b *Builder) IsWarmedUp() bool {
	return len(b.history) >= b.Warmup
}

// CurrentSize returns the number of bars seen
func (b *Builder) CurrentSize() int {
	return len(b.history)
}

// Recent returns the most recent bars, oldest first
func (b *Builder) Recent() []model.Bar {
	return b.recent.ToSlice()
}

// LastDate returns the date of the latest bar, zero if none
func (b *Builder) LastDate() time.Time {
	if last, ok := b.recent.Last(); ok {
		return last.Date
	}
	return time.Time{}
}

// After returns up to limit bars dated strictly after date
func (b *Builder) After(date time.Time, limit int) []model.Bar {
	var out []model.Bar
	for _, bar := range b.history {
		if !bar.Date.After(date) {
			continue
		}
		out = append(out, bar)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Reset clears the builder state
func (b *Builder) Reset() {
	b.history = nil
	b.recent.Clear()
}

// ProcessBars pushes a batch and calls fn with every warmed-up history view
func (b *Builder) ProcessBars(bars []model.Bar, fn func(history []model.Bar) error) error {
	for _, bar := range bars {
		view, ready, err := b.Push(bar)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		if err := fn(view); err != nil {
			return err
		}
	}
	return nil
}
