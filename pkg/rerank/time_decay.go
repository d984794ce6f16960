// Package rerank re-orders similar-pattern search results by recency and
// turns the neighbourhood into an expected strategic value.
package rerank

import (
	"math"
	"sort"
	"time"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/store/milvus"
)

// TimeDecayConfig holds configuration for time decay reranking
type TimeDecayConfig struct {
	Lambda float64 `yaml:"lambda"` // Exponential decay rate per day

	// Segment weights, used instead of Lambda when UseSegments is true
	UseSegments  bool    `yaml:"use_segments"`
	RecentDays   float64 `yaml:"recent_days"`
	MediumDays   float64 `yaml:"medium_days"`
	RecentWeight float64 `yaml:"recent_weight"`
	MediumWeight float64 `yaml:"medium_weight"`
	OldWeight    float64 `yaml:"old_weight"`
}

// DefaultTimeDecayConfig returns exponential decay with a half-life near one year
func DefaultTimeDecayConfig() TimeDecayConfig {
	return TimeDecayConfig{
		Lambda:       0.002,
		RecentDays:   90,
		MediumDays:   365,
		RecentWeight: 1.0,
		MediumWeight: 0.7,
		OldWeight:    0.4,
	}
}

// SegmentConfig returns a configuration using segment-based weights
func SegmentConfig() TimeDecayConfig {
	cfg := DefaultTimeDecayConfig()
	cfg.UseSegments = true
	return cfg
}

// RankedResult extends SearchResult with reranked score
type RankedResult struct {
	milvus.SearchResult
	AgeDays    float64
	TimeWeight float64
	FinalScore float64
}

// Reranker performs time-based reranking of search results
type Reranker struct {
	config TimeDecayConfig
}

// NewReranker creates a new reranker with the given configuration
func NewReranker(config TimeDecayConfig) *Reranker {
	return &Reranker{config: config}
}

// Rerank weights each result by the age of its resolution relative to now
func (r *Reranker) Rerank(results []milvus.SearchResult, now time.Time) []RankedResult {
	ranked := make([]RankedResult, len(results))

	for i, result := range results {
		ageDays := max(now.Sub(result.ResolvedAt).Hours()/24, 0)

		var weight float64
		if r.config.UseSegments {
			weight = r.segmentWeight(ageDays)
		} else {
			weight = math.Exp(-r.config.Lambda * ageDays)
		}

		ranked[i] = RankedResult{
			SearchResult: result,
			AgeDays:      ageDays,
			TimeWeight:   weight,
			FinalScore:   float64(result.Score) * weight,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return ranked
}

// segmentWeight returns weight based on time segments
func (r *Reranker) segmentWeight(ageDays float64) float64 {
	switch {
	case ageDays <= r.config.RecentDays:
		return r.config.RecentWeight
	case ageDays <= r.config.MediumDays:
		return r.config.MediumWeight
	default:
		return r.config.OldWeight
	}
}

// TopN returns the top N results after reranking
func (r *Reranker) TopN(results []milvus.SearchResult, now time.Time, n int) []RankedResult {
	ranked := r.Rerank(results, now)
	if len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// FilterByMinScore filters results by minimum final score
func FilterByMinScore(results []RankedResult, minScore float64) []RankedResult {
	var filtered []RankedResult
	for _, r := range results {
		if r.FinalScore >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Exclude drops the result for a pattern id, typically the query itself
func Exclude(results []RankedResult, patternID string) []RankedResult {
	out := results[:0:0]
	for _, r := range results {
		if r.PatternID != patternID {
			out = append(out, r)
		}
	}
	return out
}

// Estimate is the score-weighted outlook of a neighbourhood
type Estimate struct {
	Neighbours    int
	ExpectedValue float64                        // weighted mean strategic value
	ExpectedGain  float64                        // weighted mean max gain
	Probabilities map[model.OutcomeClass]float64 // weighted class frequencies
	MostLikely    model.OutcomeClass
}

// Expect aggregates ranked neighbours weighted by FinalScore.
// Results with a non-positive score carry no weight.
func Expect(results []RankedResult) Estimate {
	est := Estimate{Probabilities: make(map[model.OutcomeClass]float64, model.NumClasses)}

	var total float64
	for _, r := range results {
		w := r.FinalScore
		if w <= 0 {
			continue
		}
		est.Neighbours++
		total += w
		est.ExpectedValue += w * r.StrategicValue
		est.ExpectedGain += w * r.MaxGain
		est.Probabilities[r.Class] += w
	}
	if total == 0 {
		return est
	}

	est.ExpectedValue /= total
	est.ExpectedGain /= total
	best := -1.0
	for c := model.K0; c <= model.K5; c++ {
		est.Probabilities[c] /= total
		if est.Probabilities[c] > best {
			best = est.Probabilities[c]
			est.MostLikely = c
		}
	}
	return est
}
