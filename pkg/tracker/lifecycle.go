package tracker

import (
	"fmt"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

// advance applies one day's snapshot to the current pattern
func (t *Tracker) advance(history []model.Bar, snap model.MetricsSnapshot) error {
	latest := history[len(history)-1]

	phase := model.PhaseNone
	if t.current != nil {
		phase = t.current.Phase
	}

	switch phase {
	case model.PhaseNone:
		if !t.cfg.Thresholds.Qualifies(snap) {
			return nil
		}
		t.startQualification(latest.Date)
		return t.maybeActivate(history, latest.Date)

	case model.PhaseQualifying:
		if !t.cfg.Thresholds.Qualifies(snap) {
			return t.discard(latest.Date)
		}
		if err := t.current.Qualify(); err != nil {
			return err
		}
		return t.maybeActivate(history, latest.Date)

	case model.PhaseActive:
		t.current.ActiveDays++
		return t.checkResolution(latest)

	default:
		// terminal patterns are archived as soon as they resolve
		return &model.TransitionError{PatternID: t.current.ID, From: phase, To: phase}
	}
}

func (t *Tracker) startQualification(date time.Time) {
	t.current = model.NewPattern(t.cfg.Symbol, date)
	t.cfg.Metrics.ObserveTransition(model.PhaseQualifying)
	t.log.Info().
		Str("pattern", t.current.ID).
		Str("date", date.Format(model.DateLayout)).
		Msg("Qualification started")
}

// discard drops a qualifying pattern; nothing carries over to the next streak
func (t *Tracker) discard(date time.Time) error {
	if err := t.current.Transition(model.PhaseNone); err != nil {
		return err
	}
	t.log.Info().
		Str("pattern", t.current.ID).
		Int("qualification_days", t.current.QualificationDays).
		Str("date", date.Format(model.DateLayout)).
		Msg("Qualification failed")
	t.cfg.Metrics.ObserveTransition(model.PhaseNone)
	t.current = nil
	t.discarded++
	return nil
}

// maybeActivate establishes boundaries once enough consecutive days qualify
func (t *Tracker) maybeActivate(history []model.Bar, date time.Time) error {
	qd := t.current.QualificationDays
	if qd < t.cfg.Thresholds.MinQualificationDays {
		return nil
	}
	if qd > len(history) || qd > len(t.snapshots) {
		return fmt.Errorf("pattern %s: qualification window of %d days exceeds history", t.current.ID, qd)
	}

	bounds, summary, err := t.boundaries.Establish(history[len(history)-qd:], t.snapshots[len(t.snapshots)-qd:])
	if err != nil {
		return err
	}
	if err := t.current.Activate(bounds, summary, date); err != nil {
		return err
	}

	t.cfg.Metrics.ObserveTransition(model.PhaseActive)
	t.log.Info().
		Str("pattern", t.current.ID).
		Float64("upper", bounds.Upper).
		Float64("lower", bounds.Lower).
		Float64("power", bounds.Power).
		Float64("range_percent", summary[model.MetricRangePercent]).
		Msg("Pattern activated")
	return nil
}

// checkResolution resolves an ACTIVE pattern on a breakout or breakdown close
func (t *Tracker) checkResolution(bar model.Bar) error {
	b := t.current.Boundaries
	if b == nil {
		return fmt.Errorf("pattern %s: active without boundaries", t.current.ID)
	}

	switch {
	case bar.Close > b.Power:
		return t.resolve(model.PhaseCompleted, bar)
	case bar.Close < b.Lower*t.cfg.BreakdownBuffer:
		return t.resolve(model.PhaseFailed, bar)
	}
	return nil
}

func (t *Tracker) resolve(to model.Phase, bar model.Bar) error {
	if err := t.current.Resolve(to, bar.Date); err != nil {
		return err
	}

	msg := "Breakout"
	if to == model.PhaseFailed {
		msg = "Breakdown"
	}
	t.log.Info().
		Str("pattern", t.current.ID).
		Float64("close", bar.Close).
		Int("active_days", t.current.ActiveDays).
		Str("date", bar.Date.Format(model.DateLayout)).
		Msg(msg)
	t.cfg.Metrics.ObserveTransition(to)

	t.archive = append(t.archive, t.current.Clone())
	t.current = nil
	return nil
}
