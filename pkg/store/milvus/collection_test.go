package milvus

import (
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
)

func TestCollectionConfig_Schema(t *testing.T) {
	cfg := DefaultCollectionConfig()
	schema := cfg.Schema()

	assert.Equal(t, DefaultCollectionName, schema.CollectionName)
	require.Len(t, schema.Fields, 7)
	assert.True(t, schema.Fields[0].PrimaryKey)
	assert.Equal(t, entity.FieldTypeFloatVector, schema.Fields[1].DataType)
	assert.Equal(t, "19", schema.Fields[1].TypeParams["dim"])
}

func TestRecordColumns(t *testing.T) {
	resolved := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	sample := &model.LabeledSample{
		Pattern: model.Pattern{ID: "p-1", Symbol: "AAA", ResolvedAt: resolved},
		Outcome: model.PatternOutcome{Class: model.K3, MaxGain: 42, StrategicValue: 3},
	}
	rec := NewPatternRecord(sample, []float32{0.1, -0.2, 0.3})

	columns, err := recordColumns([]*PatternRecord{rec, rec})
	require.NoError(t, err)
	require.Len(t, columns, 7)
	for _, col := range columns {
		assert.Equal(t, 2, col.Len(), col.Name())
	}

	classes, ok := columns[4].(*entity.ColumnInt32)
	require.True(t, ok)
	v, err := classes.ValueByIdx(0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)
}

func TestRecordColumns_DimensionMismatch(t *testing.T) {
	a := &PatternRecord{PatternID: "a", Embedding: []float32{1, 2}}
	b := &PatternRecord{PatternID: "b", Embedding: []float32{1}}
	_, err := recordColumns([]*PatternRecord{a, b})
	assert.ErrorContains(t, err, "dimension")
}

func TestBeforeFilter(t *testing.T) {
	assert.Equal(t, "resolved_at < 86400", BeforeFilter(time.Unix(86400, 0)))
}
