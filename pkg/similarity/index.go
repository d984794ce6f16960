// Package similarity finds labelled historical patterns that resemble a new
// one and turns their outcomes into an expected strategic value.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tunogya/coil/pkg/feature"
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/rerank"
	"github.com/tunogya/coil/pkg/store/milvus"
)

// ErrNotFitted is returned when the index has no normalizer yet
var ErrNotFitted = errors.New("similarity index has no fitted normalizer")

// VectorStore stores and searches pattern embeddings
type VectorStore interface {
	InsertBatch(ctx context.Context, collectionName string, records []*milvus.PatternRecord) error
	Search(ctx context.Context, cfg milvus.CollectionConfig, embedding []float32, filter string, topK int) ([]milvus.SearchResult, error)
}

// Config holds configuration for the index
type Config struct {
	Collection milvus.CollectionConfig
	Rerank     rerank.TimeDecayConfig
	ClipStd    float64 // Normalizer clip in standard deviations (defaults to 3)
	BatchSize  int     // Records per insert (defaults to 1000)
}

// DefaultConfig returns the standard index configuration
func DefaultConfig() Config {
	return Config{
		Collection: milvus.DefaultCollectionConfig(),
		Rerank:     rerank.DefaultTimeDecayConfig(),
		ClipStd:    3,
		BatchSize:  1000,
	}
}

// Match is the result of a similarity query
type Match struct {
	Neighbours []rerank.RankedResult
	Estimate   rerank.Estimate
}

// Index embeds pattern features and queries the vector store
type Index struct {
	cfg        Config
	store      VectorStore
	reranker   *rerank.Reranker
	normalizer *feature.Normalizer
}

// NewIndex creates an index over store
func NewIndex(store VectorStore, cfg Config) *Index {
	defaults := DefaultConfig()
	if cfg.Collection.Name == "" {
		cfg.Collection = defaults.Collection
	}
	if cfg.ClipStd <= 0 {
		cfg.ClipStd = defaults.ClipStd
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	return &Index{
		cfg:      cfg,
		store:    store,
		reranker: rerank.NewReranker(cfg.Rerank),
	}
}

// Fit fits the normalizer on the features of samples
func (x *Index) Fit(samples []model.LabeledSample) {
	features := make([]model.PatternFeatures, len(samples))
	for i := range samples {
		features[i] = samples[i].Features
	}
	x.normalizer = feature.FitNormalizer(features, x.cfg.ClipStd)
}

// Normalizer returns the fitted normalizer, nil before Fit
func (x *Index) Normalizer() *feature.Normalizer {
	return x.normalizer
}

// Embed returns the embedding of f
func (x *Index) Embed(f model.PatternFeatures) ([]float32, error) {
	if x.normalizer == nil {
		return nil, ErrNotFitted
	}
	return x.normalizer.Transform(f), nil
}

// Add embeds samples and writes them to the store in batches
func (x *Index) Add(ctx context.Context, samples []model.LabeledSample) (int, error) {
	if x.normalizer == nil {
		return 0, ErrNotFitted
	}

	records := make([]*milvus.PatternRecord, 0, len(samples))
	for i := range samples {
		records = append(records, milvus.NewPatternRecord(&samples[i], x.normalizer.Transform(samples[i].Features)))
	}

	for i := 0; i < len(records); i += x.cfg.BatchSize {
		end := min(i+x.cfg.BatchSize, len(records))
		if err := x.store.InsertBatch(ctx, x.cfg.Collection.Name, records[i:end]); err != nil {
			return i, fmt.Errorf("failed to insert embeddings: %w", err)
		}
	}
	return len(records), nil
}

// Query finds the topK labelled patterns resolved before asOf that resemble
// p, re-ranks them by age and estimates the expected outcome. p itself is
// never among the neighbours.
func (x *Index) Query(ctx context.Context, p model.Pattern, f model.PatternFeatures, asOf time.Time, topK int) (*Match, error) {
	emb, err := x.Embed(f)
	if err != nil {
		return nil, err
	}

	// one extra in case p itself was indexed
	results, err := x.store.Search(ctx, x.cfg.Collection, emb, milvus.BeforeFilter(asOf), topK+1)
	if err != nil {
		return nil, err
	}

	ranked := rerank.Exclude(x.reranker.Rerank(results, asOf), p.ID)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return &Match{Neighbours: ranked, Estimate: rerank.Expect(ranked)}, nil
}
