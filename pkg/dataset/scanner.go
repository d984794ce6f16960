// Package dataset replays historical bars through a tracker and labels every
// resolved pattern with its forward outcome, producing training samples.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/outcome"
	"github.com/tunogya/coil/pkg/tracker"
	"github.com/tunogya/coil/pkg/window"
)

// ErrInsufficientHistory is returned for a symbol with fewer than MinHistory bars
var ErrInsufficientHistory = errors.New("insufficient history")

// Config holds configuration for the historical scan
type Config struct {
	Tracker    tracker.Config
	Outcome    outcome.Config
	MinHistory int // Bars required before a symbol is scanned (defaults to 200)
	Workers    int // Symbols scanned in parallel (defaults to 4)

	// Calculator overrides the indicator calculator of each tracker
	Calculator func() tracker.MetricsCalculator
}

// DefaultConfig returns the standard scan configuration
func DefaultConfig() Config {
	return Config{
		Tracker:    tracker.DefaultConfig(""),
		Outcome:    outcome.DefaultConfig(),
		MinHistory: 200,
		Workers:    4,
	}
}

// Result holds everything a scan produced for one symbol
type Result struct {
	Symbol     string
	Samples    []model.LabeledSample
	Pending    []model.Pattern // resolved but short of forward data, or still open
	Snapshots  []model.MetricsSnapshot
	Statistics tracker.Statistics
}

// Outcomes returns the labelled outcomes of the result
func (r *Result) Outcomes() []*model.PatternOutcome {
	out := make([]*model.PatternOutcome, len(r.Samples))
	for i := range r.Samples {
		out[i] = &r.Samples[i].Outcome
	}
	return out
}

// Scanner replays bar histories day by day
type Scanner struct {
	cfg       Config
	evaluator *outcome.Evaluator
	log       zerolog.Logger
}

// NewScanner creates a new historical scanner
func NewScanner(cfg Config) *Scanner {
	defaults := DefaultConfig()
	if cfg.MinHistory <= 0 {
		cfg.MinHistory = defaults.MinHistory
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}

	logger := log.Logger
	if cfg.Tracker.Logger != nil {
		logger = *cfg.Tracker.Logger
	}

	evaluator := outcome.NewEvaluator(cfg.Outcome)
	cfg.Outcome = evaluator.Config()

	return &Scanner{
		cfg:       cfg,
		evaluator: evaluator,
		log:       logger.With().Str("component", "scanner").Logger(),
	}
}

// Scan replays bars through a fresh tracker. Detection only sees bars up to
// "today" and stops Horizon bars before the end; every pattern resolved on
// the way is labelled from the bars that follow its resolution date.
func (s *Scanner) Scan(ctx context.Context, symbol string, bars []model.Bar) (*Result, error) {
	if len(bars) < s.cfg.MinHistory {
		return nil, fmt.Errorf("%w: %s has %d bars, need %d", ErrInsufficientHistory, symbol, len(bars), s.cfg.MinHistory)
	}
	if err := model.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("invalid series for %s: %w", symbol, err)
	}

	tcfg := s.cfg.Tracker
	tcfg.Symbol = symbol
	var tr *tracker.Tracker
	if s.cfg.Calculator != nil {
		tr = tracker.NewWithCalculator(tcfg, s.cfg.Calculator())
	} else {
		tr = tracker.New(tcfg)
	}

	// the whole series is the forward source, detection never reads past its cursor
	feed := window.NewBuilder(window.Config{Symbol: symbol, Warmup: 1})
	for _, b := range bars {
		if _, _, err := feed.Push(b); err != nil {
			return nil, err
		}
	}

	end := len(bars) - s.cfg.Outcome.Horizon
	res := &Result{Symbol: symbol}
	for i := 0; i < end; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		seen := tr.ArchiveLen()
		if _, err := tr.Update(bars[: i+1 : i+1]); err != nil {
			return nil, err
		}

		for _, p := range tr.ArchiveSince(seen) {
			forward := feed.After(p.ResolvedAt, s.cfg.Outcome.Horizon)
			if !s.evaluator.Ready(len(forward)) {
				res.Pending = append(res.Pending, p)
				continue
			}
			o, err := s.evaluator.Evaluate(p, forward)
			if err != nil {
				return nil, err
			}
			f := tr.Features(p)
			if o == nil || f == nil {
				res.Pending = append(res.Pending, p)
				continue
			}
			res.Samples = append(res.Samples, model.LabeledSample{Pattern: p, Features: *f, Outcome: *o})
		}
	}

	if cur := tr.Current(); cur != nil {
		res.Pending = append(res.Pending, *cur)
	}
	res.Snapshots = tr.Snapshots()
	res.Statistics = tr.Statistics()

	s.log.Info().
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Int("samples", len(res.Samples)).
		Int("pending", len(res.Pending)).
		Msg("Scan complete")
	return res, nil
}

// ScanAll scans every symbol with its own tracker, Workers at a time.
// Symbols without enough history are skipped. Results are sorted by symbol.
func (s *Scanner) ScanAll(ctx context.Context, series map[string][]model.Bar) ([]*Result, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	var (
		mu      sync.Mutex
		results []*Result
	)
	for symbol, bars := range series {
		g.Go(func() error {
			res, err := s.Scan(ctx, symbol, bars)
			if errors.Is(err, ErrInsufficientHistory) {
				s.log.Warn().Str("symbol", symbol).Int("bars", len(bars)).Msg("Insufficient data, skipping")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to scan %s: %w", symbol, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })
	return results, nil
}

// Samples flattens the samples of many results
func Samples(results []*Result) []model.LabeledSample {
	var out []model.LabeledSample
	for _, r := range results {
		out = append(out, r.Samples...)
	}
	return out
}
