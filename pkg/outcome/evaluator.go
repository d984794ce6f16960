// Package outcome labels resolved patterns with what price did afterwards.
package outcome

import (
	"errors"
	"fmt"

	"github.com/tunogya/coil/pkg/model"
)

var (
	// ErrNotResolved is returned when the pattern is not COMPLETED or FAILED
	ErrNotResolved = errors.New("pattern is not resolved")
	// ErrLookahead is returned when a forward bar is dated at or before resolution
	ErrLookahead = errors.New("forward bars must start after the resolution date")
)

// Config holds configuration for outcome evaluation
type Config struct {
	Horizon        int `yaml:"horizon"`          // Forward bars considered (defaults to 100)
	MinForwardBars int `yaml:"min_forward_bars"` // Fewest forward bars a caller should wait for (defaults to 20)
}

// DefaultConfig returns the standard evaluation horizon
func DefaultConfig() Config {
	return Config{
		Horizon:        100,
		MinForwardBars: 20,
	}
}

// Evaluator computes realized outcomes from forward bars
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates a new outcome evaluator
func NewEvaluator(cfg Config) *Evaluator {
	defaults := DefaultConfig()
	if cfg.Horizon <= 0 {
		cfg.Horizon = defaults.Horizon
	}
	if cfg.MinForwardBars <= 0 {
		cfg.MinForwardBars = defaults.MinForwardBars
	}
	if cfg.MinForwardBars > cfg.Horizon {
		cfg.MinForwardBars = cfg.Horizon
	}
	return &Evaluator{cfg: cfg}
}

// Config returns the effective configuration
func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate labels p from the bars that follow its resolution.
// forward must start strictly after p.ResolvedAt; only the first Horizon
// bars are read. Returns nil without error when forward is empty.
func (e *Evaluator) Evaluate(p model.Pattern, forward []model.Bar) (*model.PatternOutcome, error) {
	if !p.Phase.IsTerminal() {
		return nil, fmt.Errorf("%w: pattern %s is %s", ErrNotResolved, p.ID, p.Phase)
	}
	if p.Boundaries == nil {
		return nil, fmt.Errorf("pattern %s: resolved without boundaries", p.ID)
	}
	if len(forward) == 0 {
		return nil, nil
	}
	if !forward[0].Date.After(p.ResolvedAt) {
		return nil, fmt.Errorf("%w: pattern %s resolved %s, first bar %s", ErrLookahead, p.ID,
			p.ResolvedAt.Format(model.DateLayout), forward[0].Date.Format(model.DateLayout))
	}

	base := CompletionPrice(p)
	if base <= 0 {
		return nil, fmt.Errorf("pattern %s: completion price %.4f is not positive", p.ID, base)
	}

	bars := forward[:min(e.cfg.Horizon, len(forward))]

	maxGain := gain(bars[0].High, base)
	maxLoss := gain(bars[0].Low, base)
	for _, b := range bars[1:] {
		maxGain = max(maxGain, gain(b.High, base))
		maxLoss = min(maxLoss, gain(b.Low, base))
	}

	last := bars[len(bars)-1]
	class := model.ClassifyGain(maxGain)

	return &model.PatternOutcome{
		PatternID:      p.ID,
		Class:          class,
		ActualGain:     gain(last.Close, base),
		DaysObserved:   len(bars),
		MaxGain:        maxGain,
		MaxLoss:        maxLoss,
		StrategicValue: class.StrategicValue(),
		EvaluatedAt:    last.Date,
	}, nil
}

// Ready reports whether enough forward bars exist to label now
func (e *Evaluator) Ready(forward int) bool {
	return forward >= e.cfg.MinForwardBars
}

// CompletionPrice is the upper boundary for a breakout and the lower one for a breakdown
func CompletionPrice(p model.Pattern) float64 {
	if p.Boundaries == nil {
		return 0
	}
	if p.Phase == model.PhaseFailed {
		return p.Boundaries.Lower
	}
	return p.Boundaries.Upper
}

// gain returns the percentage move from base to price
func gain(price, base float64) float64 {
	return (price - base) / base * 100
}
