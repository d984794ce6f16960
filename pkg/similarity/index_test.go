package similarity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/rerank"
	"github.com/tunogya/coil/pkg/store/milvus"
)

type fakeStore struct {
	inserted [][]*milvus.PatternRecord
	filter   string
	topK     int
	results  []milvus.SearchResult
}

func (f *fakeStore) InsertBatch(_ context.Context, _ string, records []*milvus.PatternRecord) error {
	f.inserted = append(f.inserted, records)
	return nil
}

func (f *fakeStore) Search(_ context.Context, _ milvus.CollectionConfig, _ []float32, filter string, topK int) ([]milvus.SearchResult, error) {
	f.filter, f.topK = filter, topK
	return f.results, nil
}

var asOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func sample(id string, duration int, class model.OutcomeClass) model.LabeledSample {
	return model.LabeledSample{
		Pattern:  model.Pattern{ID: id, Symbol: "AAA", Phase: model.PhaseCompleted, ResolvedAt: asOf.AddDate(0, 0, -30)},
		Features: model.PatternFeatures{PatternID: id, Duration: float64(duration), RangePercentage: float64(duration) / 2},
		Outcome:  model.PatternOutcome{PatternID: id, Class: class, StrategicValue: class.StrategicValue()},
	}
}

func TestIndex_RequiresFit(t *testing.T) {
	x := NewIndex(&fakeStore{}, Config{})
	_, err := x.Embed(model.PatternFeatures{})
	assert.ErrorIs(t, err, ErrNotFitted)
	_, err = x.Add(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestIndex_AddBatches(t *testing.T) {
	store := &fakeStore{}
	x := NewIndex(store, Config{BatchSize: 2})
	samples := []model.LabeledSample{sample("a", 10, model.K1), sample("b", 20, model.K3), sample("c", 30, model.K4)}
	x.Fit(samples)

	n, err := x.Add(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, store.inserted, 2)
	assert.Len(t, store.inserted[0], 2)
	assert.Len(t, store.inserted[1], 1)

	rec := store.inserted[1][0]
	assert.Equal(t, "c", rec.PatternID)
	assert.Equal(t, model.K4, rec.Class)
	assert.Len(t, rec.Embedding, len(model.FeatureNames))
	for _, v := range rec.Embedding {
		assert.LessOrEqual(t, v, float32(1))
		assert.GreaterOrEqual(t, v, float32(-1))
	}
}

func TestIndex_QueryExcludesSelf(t *testing.T) {
	store := &fakeStore{results: []milvus.SearchResult{
		{PatternID: "self", Score: 1, ResolvedAt: asOf.AddDate(0, 0, -1), Class: model.K4, StrategicValue: 10},
		{PatternID: "n1", Score: 0.9, ResolvedAt: asOf.AddDate(0, 0, -10), Class: model.K3, StrategicValue: 3},
		{PatternID: "n2", Score: 0.8, ResolvedAt: asOf.AddDate(0, 0, -20), Class: model.K3, StrategicValue: 3},
		{PatternID: "n3", Score: 0.1, ResolvedAt: asOf.AddDate(0, 0, -20), Class: model.K0, StrategicValue: -2},
	}}
	x := NewIndex(store, Config{Rerank: rerank.TimeDecayConfig{}})
	x.Fit([]model.LabeledSample{sample("a", 10, model.K1), sample("b", 20, model.K3)})

	m, err := x.Query(context.Background(), model.Pattern{ID: "self"}, model.PatternFeatures{Duration: 15}, asOf, 2)
	require.NoError(t, err)
	assert.Equal(t, milvus.BeforeFilter(asOf), store.filter)
	assert.Equal(t, 3, store.topK)

	require.Len(t, m.Neighbours, 2)
	assert.Equal(t, "n1", m.Neighbours[0].PatternID)
	assert.Equal(t, "n2", m.Neighbours[1].PatternID)
	assert.Equal(t, 2, m.Estimate.Neighbours)
	assert.Equal(t, model.K3, m.Estimate.MostLikely)
	assert.InDelta(t, 3.0, m.Estimate.ExpectedValue, 1e-9)
}
