package tracker

import (
	"fmt"

	"github.com/tunogya/coil/pkg/model"
)

// Statistics summarises a tracker's resolved patterns
type Statistics struct {
	Symbol               string      `json:"symbol"`
	TotalResolved        int         `json:"total_resolved"`
	Breakouts            int         `json:"breakouts"`
	Breakdowns           int         `json:"breakdowns"`
	SuccessRate          float64     `json:"success_rate"`
	AvgQualificationDays float64     `json:"avg_qualification_days"`
	AvgActiveDays        float64     `json:"avg_active_days"`
	Discarded            int         `json:"discarded"`
	Snapshots            int         `json:"snapshots"`
	CurrentPhase         model.Phase `json:"current_phase"`
}

// Statistics returns counts and averages over the archive
func (t *Tracker) Statistics() Statistics {
	s := Statistics{
		Symbol:        t.cfg.Symbol,
		TotalResolved: len(t.archive),
		Discarded:     t.discarded,
		Snapshots:     len(t.snapshots),
		CurrentPhase:  model.PhaseNone,
	}
	if t.current != nil {
		s.CurrentPhase = t.current.Phase
	}
	if len(t.archive) == 0 {
		return s
	}

	var qualDays, activeDays int
	for _, p := range t.archive {
		switch p.Phase {
		case model.PhaseCompleted:
			s.Breakouts++
		case model.PhaseFailed:
			s.Breakdowns++
		}
		qualDays += p.QualificationDays
		activeDays += p.ActiveDays
	}

	n := float64(len(t.archive))
	s.SuccessRate = float64(s.Breakouts) / n
	s.AvgQualificationDays = float64(qualDays) / n
	s.AvgActiveDays = float64(activeDays) / n
	return s
}

// String returns a one-line summary
func (s Statistics) String() string {
	return fmt.Sprintf("%s: %d resolved (%d breakouts, %d breakdowns, %.1f%% success), %d discarded, current %s",
		s.Symbol, s.TotalResolved, s.Breakouts, s.Breakdowns, s.SuccessRate*100, s.Discarded, s.CurrentPhase)
}
