package dataset

import (
	"sort"

	"github.com/tunogya/coil/pkg/model"
)

// Matrix returns the feature matrix in model.FeatureNames order and the 0-5 labels
func Matrix(samples []model.LabeledSample) ([][]float64, []int) {
	x := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i := range samples {
		x[i] = samples[i].Features.Vector()
		y[i] = samples[i].Outcome.Class.Label()
	}
	return x, y
}

// SplitTemporal orders samples by resolution date and holds out the latest
// fraction for validation, so no validation pattern resolves before a training one.
func SplitTemporal(samples []model.LabeledSample, validation float64) (train, valid []model.LabeledSample) {
	ordered := make([]model.LabeledSample, len(samples))
	copy(ordered, samples)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Pattern.ResolvedAt.Before(ordered[j].Pattern.ResolvedAt)
	})

	validation = min(max(validation, 0), 1)
	split := int(float64(len(ordered)) * (1 - validation))
	return ordered[:split], ordered[split:]
}

// ClassDistribution counts samples per outcome class
func ClassDistribution(samples []model.LabeledSample) map[model.OutcomeClass]int {
	dist := make(map[model.OutcomeClass]int, model.NumClasses)
	for _, s := range samples {
		dist[s.Outcome.Class]++
	}
	return dist
}
