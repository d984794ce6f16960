package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunogya/coil/pkg/cache"
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/monitor"
	"github.com/tunogya/coil/pkg/outcome"
	"github.com/tunogya/coil/pkg/queue/nats"
	"github.com/tunogya/coil/pkg/store/duckdb"
	"github.com/tunogya/coil/pkg/telemetry"
)

// publisher sends lifecycle events
type publisher interface {
	PublishJSON(ctx context.Context, subject string, v any) error
}

// worker applies bar batches to the monitor and persists the results
type worker struct {
	bars      *duckdb.BarRepo
	patterns  *duckdb.PatternRepo
	samples   *duckdb.SampleRepo
	cache     *cache.PatternCache // nil without Redis
	publisher publisher
	monitor   *monitor.Monitor
	labeler   *outcome.Labeler
	metrics   *telemetry.Metrics
	log       zerolog.Logger

	mu     sync.Mutex
	seeded map[string]bool
}

// handleBars stores a batch and advances the symbol's tracker
func (w *worker) handleBars(ctx context.Context, data []byte) error {
	batch, err := nats.DecodeBarBatch(data)
	if err != nil {
		// redelivery cannot fix a malformed batch
		w.log.Error().Err(err).Msg("Dropping invalid bar batch")
		return nil
	}
	if len(batch.Bars) == 0 {
		return nil
	}

	if err := w.seed(ctx, batch.Symbol, batch.Bars[0].Date); err != nil {
		return err
	}
	if err := w.bars.InsertBatch(ctx, batch.Bars); err != nil {
		return err
	}

	u, err := w.monitor.Ingest(batch.Symbol, batch.Bars)
	if err != nil {
		return err
	}
	if err := w.apply(ctx, u, true); err != nil {
		return err
	}

	w.log.Debug().Str("symbol", batch.Symbol).Int("bars", len(batch.Bars)).Msg("Ingested bars")
	return nil
}

// seed replays the stored history before the first live batch of a symbol.
// Pattern ids are derived from symbol and start date, so replayed writes are idempotent.
func (w *worker) seed(ctx context.Context, symbol string, before time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seeded[symbol] {
		return nil
	}

	stored, err := w.bars.GetByDateRange(ctx, symbol, time.Time{}, before.Add(-time.Nanosecond))
	if err != nil {
		return err
	}
	if len(stored) > 0 {
		u, err := w.monitor.Ingest(symbol, stored)
		if err != nil {
			return err
		}
		if err := w.apply(ctx, u, false); err != nil {
			return err
		}
		w.log.Info().Str("symbol", symbol).Int("bars", len(stored)).Msg("Replayed stored history")
	}

	w.seeded[symbol] = true
	return nil
}

// apply persists what a batch did; events are only published for live batches
func (w *worker) apply(ctx context.Context, u *monitor.Update, publish bool) error {
	for i := range u.Activated {
		p := &u.Activated[i]
		if err := w.patterns.Upsert(ctx, p); err != nil {
			return err
		}
		if publish {
			w.publish(ctx, nats.SubjectPatternActive, nats.PatternEventMsg{Pattern: *p, Phase: p.Phase})
		}
	}

	for i := range u.Resolved {
		p := &u.Resolved[i]
		if err := w.patterns.Upsert(ctx, p); err != nil {
			return err
		}
		if f := u.Features[p.ID]; f != nil {
			if err := w.samples.InsertFeatures(ctx, f); err != nil {
				return err
			}
		}
		if publish {
			w.publish(ctx, nats.SubjectPatternResolved, nats.PatternEventMsg{Pattern: *p, Phase: p.Phase})
		}
	}

	if u.Current != nil && u.Current.Phase == model.PhaseActive {
		if err := w.patterns.Upsert(ctx, u.Current); err != nil {
			return err
		}
	}
	if w.cache != nil {
		if err := w.cache.SetCurrent(ctx, u.Symbol, u.Current); err != nil {
			w.log.Warn().Err(err).Str("symbol", u.Symbol).Msg("Failed to cache current pattern")
		}
	}
	return nil
}

func (w *worker) publish(ctx context.Context, subject string, msg any) {
	if err := w.publisher.PublishJSON(ctx, subject, msg); err != nil {
		w.log.Warn().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}

// labelLoop labels pending patterns every interval until ctx is done
func (w *worker) labelLoop(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.label(ctx, batch); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Labelling failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// label evaluates resolved patterns whose forward window is now complete
func (w *worker) label(ctx context.Context, batch int) error {
	pending, err := w.patterns.ListPendingEvaluation(ctx, batch)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	outcomes, err := w.labeler.Label(ctx, pending)
	if err != nil {
		return err
	}

	symbols := make(map[string]string, len(pending))
	for _, p := range pending {
		symbols[p.ID] = p.Symbol
	}
	for _, o := range outcomes {
		if err := w.samples.InsertOutcome(ctx, o); err != nil {
			return err
		}
		w.metrics.ObserveOutcome(o.Class)
		w.publish(ctx, nats.SubjectOutcomeLabelled, nats.OutcomeMsg{Symbol: symbols[o.PatternID], Outcome: *o})
	}

	w.log.Info().Int("pending", len(pending)).Int("labelled", len(outcomes)).Msg("Labelled patterns")
	return nil
}
