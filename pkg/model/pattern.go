package model

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle phase of a consolidation pattern
type Phase int

const (
	PhaseNone Phase = iota
	PhaseQualifying
	PhaseActive
	PhaseCompleted
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseNone:       "NONE",
	PhaseQualifying: "QUALIFYING",
	PhaseActive:     "ACTIVE",
	PhaseCompleted:  "COMPLETED",
	PhaseFailed:     "FAILED",
}

// transitions is the complete lifecycle table; anything absent is a contract violation
var transitions = map[Phase][]Phase{
	PhaseNone:       {PhaseQualifying},
	PhaseQualifying: {PhaseActive, PhaseNone},
	PhaseActive:     {PhaseCompleted, PhaseFailed},
	PhaseCompleted:  nil,
	PhaseFailed:     nil,
}

// String returns the phase name
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// IsTerminal returns true for COMPLETED and FAILED
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// CanTransitionTo reports whether the lifecycle table allows p -> to
func (p Phase) CanTransitionTo(to Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == to {
			return true
		}
	}
	return false
}

// MarshalText encodes the phase by name
func (p Phase) MarshalText() ([]byte, error) {
	name, ok := phaseNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown phase %d", int(p))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a phase name
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase parses a phase name
func ParsePhase(s string) (Phase, error) {
	for phase, name := range phaseNames {
		if name == s {
			return phase, nil
		}
	}
	return PhaseNone, fmt.Errorf("unknown phase %q", s)
}

// ErrInvalidTransition marks a lifecycle transition that is not in the table
var ErrInvalidTransition = errors.New("invalid phase transition")

// TransitionError describes a rejected transition
type TransitionError struct {
	PatternID string
	From      Phase
	To        Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("pattern %s: invalid phase transition from %s to %s", e.PatternID, e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Boundaries are the price levels established when a pattern activates
type Boundaries struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
	Power float64 `json:"power"` // breakout trigger, above Upper
}

// Valid checks lower <= upper < power
func (b Boundaries) Valid() bool {
	return b.Lower <= b.Upper && b.Upper < b.Power
}

// Width returns upper - lower
func (b Boundaries) Width() float64 {
	return b.Upper - b.Lower
}

// Pattern metric summary keys, set at activation
const (
	MetricRangePercent      = "range_percent"
	MetricQualificationDays = "qualification_days"
	MetricAvgVolume         = "avg_volume"
	MetricAvgBBW            = "avg_bbw"
)

// Pattern is a consolidation pattern tracked through its lifecycle
type Pattern struct {
	ID                string             `json:"id"`
	Symbol            string             `json:"symbol"`
	Phase             Phase              `json:"phase"`
	StartDate         time.Time          `json:"start_date"`
	QualificationDays int                `json:"qualification_days"`
	Boundaries        *Boundaries        `json:"boundaries,omitempty"` // nil until ACTIVE
	Metrics           map[string]float64 `json:"metrics,omitempty"`
	ActivatedAt       time.Time          `json:"activated_at,omitzero"`
	ResolvedAt        time.Time          `json:"resolved_at,omitzero"`
	ActiveDays        int                `json:"active_days"` // bars processed while ACTIVE, resolution day included
	CreatedAt         time.Time          `json:"created_at"`
}

// PatternID derives a stable id from the symbol and start date, so a replayed
// history yields the same ids as the original run
func PatternID(symbol string, start time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(symbol+"/"+start.UTC().Format(DateLayout))).String()
}

// NewPattern creates a QUALIFYING pattern with one qualification day
func NewPattern(symbol string, start time.Time) *Pattern {
	p := &Pattern{
		ID:        PatternID(symbol, start),
		Symbol:    symbol,
		Phase:     PhaseNone,
		StartDate: start,
		CreatedAt: time.Now(),
	}
	// NONE -> QUALIFYING is always in the table
	_ = p.Transition(PhaseQualifying)
	p.QualificationDays = 1
	return p
}

// Transition moves the pattern to a new phase if the table allows it
func (p *Pattern) Transition(to Phase) error {
	if !p.Phase.CanTransitionTo(to) {
		return &TransitionError{PatternID: p.ID, From: p.Phase, To: to}
	}
	p.Phase = to
	return nil
}

// Qualify records one more qualifying day
func (p *Pattern) Qualify() error {
	if p.Phase != PhaseQualifying {
		return &TransitionError{PatternID: p.ID, From: p.Phase, To: PhaseQualifying}
	}
	p.QualificationDays++
	return nil
}

// Activate stores the boundaries and summary and moves the pattern to ACTIVE
func (p *Pattern) Activate(b Boundaries, summary map[string]float64, date time.Time) error {
	if p.Phase != PhaseQualifying {
		return &TransitionError{PatternID: p.ID, From: p.Phase, To: PhaseActive}
	}
	if !b.Valid() {
		return fmt.Errorf("pattern %s: boundaries violate lower <= upper < power: %+v", p.ID, b)
	}
	if err := p.Transition(PhaseActive); err != nil {
		return err
	}
	p.Boundaries = &b
	p.Metrics = summary
	p.ActivatedAt = date
	return nil
}

// Resolve moves an ACTIVE pattern to COMPLETED or FAILED
func (p *Pattern) Resolve(to Phase, date time.Time) error {
	if !to.IsTerminal() {
		return &TransitionError{PatternID: p.ID, From: p.Phase, To: to}
	}
	if err := p.Transition(to); err != nil {
		return err
	}
	p.ResolvedAt = date
	return nil
}

// RangePercentage returns (upper-lower)/lower*100, or 0 without boundaries
func (p *Pattern) RangePercentage() float64 {
	if p.Boundaries == nil || p.Boundaries.Lower == 0 {
		return 0
	}
	return p.Boundaries.Width() / p.Boundaries.Lower * 100
}

// Duration returns qualification days plus active days
func (p *Pattern) Duration() int {
	return p.QualificationDays + p.ActiveDays
}

// Clone returns a deep copy
func (p *Pattern) Clone() Pattern {
	c := *p
	if p.Boundaries != nil {
		b := *p.Boundaries
		c.Boundaries = &b
	}
	if p.Metrics != nil {
		c.Metrics = maps.Clone(p.Metrics)
	}
	return c
}
