package model

import (
	"fmt"
	"time"
)

// OutcomeClass buckets the realized move after a pattern resolves
type OutcomeClass int

// Class values double as the 0-5 training label
const (
	K0 OutcomeClass = iota // stagnant, 0 <= gain < 5
	K1                     // minimal, 5 <= gain < 15
	K2                     // quality, 15 <= gain < 35
	K3                     // strong, 35 <= gain < 75
	K4                     // exceptional, gain >= 75
	K5                     // breakdown, gain < 0
)

// NumClasses is the number of outcome classes
const NumClasses = 6

var classValues = [NumClasses]float64{-2, -0.2, 1, 3, 10, -10}

var classDescriptions = [NumClasses]string{"stagnant", "minimal", "quality", "strong", "exceptional", "breakdown"}

// ClassifyGain buckets a percentage gain; ranges are left-closed, right-open
func ClassifyGain(gain float64) OutcomeClass {
	switch {
	case gain < 0:
		return K5
	case gain < 5:
		return K0
	case gain < 15:
		return K1
	case gain < 35:
		return K2
	case gain < 75:
		return K3
	default:
		return K4
	}
}

// Label returns the integer training label (0-5)
func (c OutcomeClass) Label() int {
	return int(c)
}

// StrategicValue returns the value assigned to the class
func (c OutcomeClass) StrategicValue() float64 {
	if !c.Valid() {
		return 0
	}
	return classValues[c]
}

// Description returns a short human label
func (c OutcomeClass) Description() string {
	if !c.Valid() {
		return "unknown"
	}
	return classDescriptions[c]
}

// Valid reports whether c is one of K0-K5
func (c OutcomeClass) Valid() bool {
	return c >= K0 && c <= K5
}

func (c OutcomeClass) String() string {
	return fmt.Sprintf("K%d", int(c))
}

// MarshalText encodes the class as "K0".."K5"
func (c OutcomeClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("unknown outcome class %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes "K0".."K5"
func (c *OutcomeClass) UnmarshalText(text []byte) error {
	var n int
	if _, err := fmt.Sscanf(string(text), "K%d", &n); err != nil {
		return fmt.Errorf("unknown outcome class %q", text)
	}
	oc := OutcomeClass(n)
	if !oc.Valid() {
		return fmt.Errorf("unknown outcome class %q", text)
	}
	*c = oc
	return nil
}

// PatternOutcome is the realized result of a resolved pattern
type PatternOutcome struct {
	PatternID      string       `json:"pattern_id"`
	Class          OutcomeClass `json:"outcome_class"`
	ActualGain     float64      `json:"actual_gain"` // gain at the horizon bar, or the last bar available
	DaysObserved   int          `json:"days_observed"`
	MaxGain        float64      `json:"max_gain"`
	MaxLoss        float64      `json:"max_loss"`
	StrategicValue float64      `json:"strategic_value"`
	EvaluatedAt    time.Time    `json:"evaluated_at"`
}
