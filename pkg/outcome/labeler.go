package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunogya/coil/pkg/model"
)

// BarSource returns up to limit bars dated strictly after a date
type BarSource interface {
	GetAfter(ctx context.Context, symbol string, after time.Time, limit int) ([]model.Bar, error)
}

// Labeler evaluates resolved patterns once enough forward bars are stored.
// Patterns that are not ready are skipped and picked up on a later run.
type Labeler struct {
	source    BarSource
	evaluator *Evaluator
	minBars   int
	log       zerolog.Logger
}

// NewLabeler creates a labeler that waits for minBars forward bars.
// minBars <= 0 waits for the full horizon.
func NewLabeler(source BarSource, evaluator *Evaluator, minBars int, logger zerolog.Logger) *Labeler {
	if minBars <= 0 || minBars > evaluator.cfg.Horizon {
		minBars = evaluator.cfg.Horizon
	}
	return &Labeler{
		source:    source,
		evaluator: evaluator,
		minBars:   minBars,
		log:       logger.With().Str("component", "labeler").Logger(),
	}
}

// Label returns outcomes for the patterns whose forward window is available
func (l *Labeler) Label(ctx context.Context, patterns []model.Pattern) ([]*model.PatternOutcome, error) {
	var outcomes []*model.PatternOutcome

	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		forward, err := l.source.GetAfter(ctx, p.Symbol, p.ResolvedAt, l.evaluator.cfg.Horizon)
		if err != nil {
			return outcomes, fmt.Errorf("failed to fetch forward bars for %s: %w", p.ID, err)
		}
		if len(forward) < l.minBars {
			l.log.Debug().Str("pattern", p.ID).Int("forward", len(forward)).Int("need", l.minBars).Msg("Waiting for forward data")
			continue
		}

		o, err := l.evaluator.Evaluate(p, forward)
		if err != nil {
			return outcomes, err
		}
		if o == nil {
			continue
		}
		outcomes = append(outcomes, o)
	}

	return outcomes, nil
}
