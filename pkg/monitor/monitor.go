// Package monitor keeps one tracker per symbol for live bar ingestion.
package monitor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/tracker"
	"github.com/tunogya/coil/pkg/window"
)

// Config holds configuration for the monitor
type Config struct {
	Tracker tracker.Config // Symbol is set per session

	// Calculator overrides the indicator calculator of each tracker
	Calculator func() tracker.MetricsCalculator
	Logger     *zerolog.Logger
}

// Update is what one ingested batch did to a symbol
type Update struct {
	Symbol    string
	Current   *model.Pattern
	Activated []model.Pattern // patterns that became ACTIVE during the batch
	Resolved  []model.Pattern
	Features  map[string]*model.PatternFeatures // by resolved pattern id
}

type session struct {
	mu      sync.Mutex
	feed    *window.Builder
	tracker *tracker.Tracker
}

// Monitor routes bar batches to independent per-symbol sessions
type Monitor struct {
	cfg      Config
	log      zerolog.Logger
	mu       sync.Mutex
	sessions map[string]*session
}

// New creates an empty monitor
func New(cfg Config) *Monitor {
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Monitor{
		cfg:      cfg,
		log:      logger.With().Str("component", "monitor").Logger(),
		sessions: make(map[string]*session),
	}
}

func (m *Monitor) session(symbol string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[symbol]; ok {
		return s
	}

	tcfg := m.cfg.Tracker
	tcfg.Symbol = symbol
	var tr *tracker.Tracker
	if m.cfg.Calculator != nil {
		tr = tracker.NewWithCalculator(tcfg, m.cfg.Calculator())
	} else {
		tr = tracker.New(tcfg)
	}

	s := &session{
		feed:    window.NewBuilder(window.Config{Symbol: symbol, Warmup: 1}),
		tracker: tr,
	}
	m.sessions[symbol] = s
	m.log.Info().Str("symbol", symbol).Msg("Session started")
	return s
}

// Ingest feeds bars, oldest first, to the symbol's tracker one day at a time.
// Bars not later than the last ingested one are skipped, so redelivered
// batches are harmless.
func (m *Monitor) Ingest(symbol string, bars []model.Bar) (*Update, error) {
	s := m.session(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &Update{Symbol: symbol, Features: make(map[string]*model.PatternFeatures)}
	for _, bar := range bars {
		if last := s.feed.LastDate(); !last.IsZero() && !bar.Date.After(last) {
			continue
		}
		history, _, err := s.feed.Push(bar)
		if err != nil {
			return nil, fmt.Errorf("failed to ingest %s: %w", symbol, err)
		}

		before := s.tracker.Current()
		seen := s.tracker.ArchiveLen()
		cur, err := s.tracker.Update(history)
		if err != nil {
			return nil, err
		}

		if cur != nil && cur.Phase == model.PhaseActive && (before == nil || before.Phase != model.PhaseActive) {
			u.Activated = append(u.Activated, *cur)
		}
		for _, p := range s.tracker.ArchiveSince(seen) {
			u.Resolved = append(u.Resolved, p)
			u.Features[p.ID] = s.tracker.Features(p)
		}
	}

	u.Current = s.tracker.Current()
	return u, nil
}

// Current returns a copy of the symbol's current pattern
func (m *Monitor) Current(symbol string) *model.Pattern {
	m.mu.Lock()
	s, ok := m.sessions[symbol]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Current()
}

// Statistics returns the tracker statistics of every session, sorted by symbol
func (m *Monitor) Statistics() []tracker.Statistics {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]tracker.Statistics, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.tracker.Statistics())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns the symbols with a session
func (m *Monitor) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for sym := range m.sessions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
