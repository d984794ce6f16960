package outcome

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/stats"
)

// Summary aggregates outcomes across many patterns
type Summary struct {
	Count              int                        `json:"count"`
	Distribution       map[model.OutcomeClass]int `json:"distribution"`
	MeanGain           float64                    `json:"mean_gain"`
	MaxGain            float64                    `json:"max_gain"`
	MinGain            float64                    `json:"min_gain"`
	GainP10            float64                    `json:"gain_p10"`
	GainP50            float64                    `json:"gain_p50"`
	GainP90            float64                    `json:"gain_p90"`
	PositiveRate       float64                    `json:"positive_rate"`
	ExceptionalRate    float64                    `json:"exceptional_rate"`
	MeanStrategicValue float64                    `json:"mean_strategic_value"`
}

// Summarize aggregates outcomes; nil entries are skipped
func Summarize(outcomes []*model.PatternOutcome) Summary {
	s := Summary{Distribution: make(map[model.OutcomeClass]int, model.NumClasses)}

	var gains, values []float64
	positive := 0
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		s.Distribution[o.Class]++
		gains = append(gains, o.ActualGain)
		values = append(values, o.StrategicValue)
		if o.ActualGain > 0 {
			positive++
		}
	}

	s.Count = len(gains)
	if s.Count == 0 {
		return s
	}

	sorted := make([]float64, len(gains))
	copy(sorted, gains)
	sort.Float64s(sorted)

	n := float64(s.Count)
	s.MeanGain = stats.Mean(gains)
	s.MaxGain = sorted[len(sorted)-1]
	s.MinGain = sorted[0]
	s.GainP10 = percentile(sorted, 10)
	s.GainP50 = percentile(sorted, 50)
	s.GainP90 = percentile(sorted, 90)
	s.PositiveRate = float64(positive) / n
	s.ExceptionalRate = float64(s.Distribution[model.K4]) / n
	s.MeanStrategicValue = stats.Mean(values)
	return s
}

// String returns a formatted string representation
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Outcomes: %d | Mean: %.2f%% | P10: %.2f%% | P50: %.2f%% | P90: %.2f%% | Positive: %.1f%% | K4: %.1f%% | EV: %.3f",
		s.Count, s.MeanGain, s.GainP10, s.GainP50, s.GainP90, s.PositiveRate*100, s.ExceptionalRate*100, s.MeanStrategicValue)
	for c := model.K0; c <= model.K5; c++ {
		fmt.Fprintf(&b, "\n  %s %-11s %d", c, c.Description(), s.Distribution[c])
	}
	return b.String()
}

// percentile calculates the p-th percentile (p in 0-100) of sorted values
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	// Linear interpolation between closest ranks
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}
