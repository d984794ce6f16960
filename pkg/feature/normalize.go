package feature

import (
	"math"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/stats"
)

// Normalizer maps feature vectors onto [-1, 1] embeddings.
// Each column is z-scored against the fitted population, clipped at ClipStd
// standard deviations and divided by ClipStd.
type Normalizer struct {
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
	ClipStd float64   `json:"clip_std"`
}

// FitNormalizer computes per-column mean and std over the given features
func FitNormalizer(features []model.PatternFeatures, clipStd float64) *Normalizer {
	if clipStd <= 0 {
		clipStd = 3.0
	}
	dim := len(model.FeatureNames)
	n := &Normalizer{
		Means:   make([]float64, dim),
		Stds:    make([]float64, dim),
		ClipStd: clipStd,
	}

	columns := make([][]float64, dim)
	for i := range features {
		for j, v := range features[i].Vector() {
			columns[j] = append(columns[j], v)
		}
	}

	for j, col := range columns {
		mean, std := meanStd(col)
		if std == 0 {
			std = 1
		}
		n.Means[j] = mean
		n.Stds[j] = std
	}
	return n
}

// Dim returns the embedding dimension
func (n *Normalizer) Dim() int {
	return len(n.Means)
}

// Transform returns the normalised float32 embedding of f
func (n *Normalizer) Transform(f model.PatternFeatures) []float32 {
	vec := f.Vector()
	out := make([]float32, len(vec))
	for j, v := range vec {
		if j >= len(n.Means) {
			break
		}
		z := (v - n.Means[j]) / n.Stds[j]
		if !stats.Defined(z) {
			z = 0
		}
		z = math.Max(-n.ClipStd, math.Min(n.ClipStd, z))
		out[j] = float32(z / n.ClipStd)
	}
	return out
}

// meanStd calculates mean and population standard deviation
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}

	mean = stats.Mean(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	std = math.Sqrt(sumSquares / float64(len(values)))
	return mean, std
}
