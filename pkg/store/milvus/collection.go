package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/tunogya/coil/pkg/model"
)

const (
	// DefaultCollectionName is the default collection for labelled pattern embeddings
	DefaultCollectionName = "consolidation_patterns"

	fieldPatternID      = "pattern_id"
	fieldEmbedding      = "embedding"
	fieldSymbol         = "symbol"
	fieldResolvedAt     = "resolved_at"
	fieldOutcomeClass   = "outcome_class"
	fieldMaxGain        = "max_gain"
	fieldStrategicValue = "strategic_value"
)

var outputFields = []string{fieldPatternID, fieldSymbol, fieldResolvedAt, fieldOutcomeClass, fieldMaxGain, fieldStrategicValue}

// CollectionConfig holds configuration for creating a collection
type CollectionConfig struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"` // Embedding dimension, one per feature
	Shards    int    `yaml:"shards"`
	NList     int    `yaml:"nlist"`  // IVF clusters
	NProbe    int    `yaml:"nprobe"` // IVF clusters probed per search
}

// DefaultCollectionConfig returns default collection configuration
func DefaultCollectionConfig() CollectionConfig {
	return CollectionConfig{
		Name:      DefaultCollectionName,
		Dimension: len(model.FeatureNames),
		Shards:    2,
		NList:     64,
		NProbe:    16,
	}
}

// Schema returns the collection schema
func (cfg CollectionConfig) Schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: cfg.Name,
		Description:    "Labelled consolidation pattern embeddings",
		Fields: []*entity.Field{
			{
				Name:       fieldPatternID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       fieldEmbedding,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", cfg.Dimension)},
			},
			{
				Name:       fieldSymbol,
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{Name: fieldResolvedAt, DataType: entity.FieldTypeInt64},
			{Name: fieldOutcomeClass, DataType: entity.FieldTypeInt32},
			{Name: fieldMaxGain, DataType: entity.FieldTypeDouble},
			{Name: fieldStrategicValue, DataType: entity.FieldTypeDouble},
		},
	}
}

// EnsureCollection creates, indexes and loads the collection if it does not exist
func (c *Client) EnsureCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.HasCollection(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		if err := c.conn.CreateCollection(ctx, cfg.Schema(), int32(cfg.Shards)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		if err := c.CreateIndex(ctx, cfg.Name, fieldEmbedding, cfg.NList); err != nil {
			return err
		}
	}
	if err := c.LoadCollection(ctx, cfg.Name); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// PatternRecord is a labelled pattern embedding
type PatternRecord struct {
	PatternID      string
	Embedding      []float32
	Symbol         string
	ResolvedAt     time.Time
	Class          model.OutcomeClass
	MaxGain        float64
	StrategicValue float64
}

// NewPatternRecord builds a record from a labelled sample and its embedding
func NewPatternRecord(s *model.LabeledSample, embedding []float32) *PatternRecord {
	return &PatternRecord{
		PatternID:      s.Pattern.ID,
		Embedding:      embedding,
		Symbol:         s.Pattern.Symbol,
		ResolvedAt:     s.Pattern.ResolvedAt,
		Class:          s.Outcome.Class,
		MaxGain:        s.Outcome.MaxGain,
		StrategicValue: s.Outcome.StrategicValue,
	}
}

// Insert inserts a single pattern embedding
func (c *Client) Insert(ctx context.Context, collectionName string, rec *PatternRecord) error {
	return c.InsertBatch(ctx, collectionName, []*PatternRecord{rec})
}

// InsertBatch inserts multiple pattern embeddings
func (c *Client) InsertBatch(ctx context.Context, collectionName string, records []*PatternRecord) error {
	if len(records) == 0 {
		return nil
	}

	columns, err := recordColumns(records)
	if err != nil {
		return err
	}
	if _, err := c.conn.Insert(ctx, collectionName, "", columns...); err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// recordColumns converts records into column entities
func recordColumns(records []*PatternRecord) ([]entity.Column, error) {
	dim := len(records[0].Embedding)
	ids := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	symbols := make([]string, len(records))
	resolved := make([]int64, len(records))
	classes := make([]int32, len(records))
	gains := make([]float64, len(records))
	values := make([]float64, len(records))

	for i, r := range records {
		if len(r.Embedding) != dim {
			return nil, fmt.Errorf("pattern %s: embedding dimension %d, want %d", r.PatternID, len(r.Embedding), dim)
		}
		ids[i] = r.PatternID
		embeddings[i] = r.Embedding
		symbols[i] = r.Symbol
		resolved[i] = r.ResolvedAt.Unix()
		classes[i] = int32(r.Class)
		gains[i] = r.MaxGain
		values[i] = r.StrategicValue
	}

	return []entity.Column{
		entity.NewColumnVarChar(fieldPatternID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, dim, embeddings),
		entity.NewColumnVarChar(fieldSymbol, symbols),
		entity.NewColumnInt64(fieldResolvedAt, resolved),
		entity.NewColumnInt32(fieldOutcomeClass, classes),
		entity.NewColumnDouble(fieldMaxGain, gains),
		entity.NewColumnDouble(fieldStrategicValue, values),
	}, nil
}

// SearchResult represents a single neighbour
type SearchResult struct {
	PatternID      string
	Score          float32
	Symbol         string
	ResolvedAt     time.Time
	Class          model.OutcomeClass
	MaxGain        float64
	StrategicValue float64
}

// Search performs a TopK similarity search.
// filter is a Milvus boolean expression, e.g. `resolved_at < 1700000000`.
func (c *Client) Search(ctx context.Context, cfg CollectionConfig, embedding []float32, filter string, topK int) ([]SearchResult, error) {
	vectors := []entity.Vector{entity.FloatVector(embedding)}

	sp, err := entity.NewIndexIvfFlatSearchParam(cfg.NProbe)
	if err != nil {
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := c.conn.Search(
		ctx,
		cfg.Name,
		nil, // partitions
		filter,
		outputFields,
		vectors,
		fieldEmbedding,
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	res := results[0]
	out := make([]SearchResult, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		r := SearchResult{Score: res.Scores[i]}
		for _, field := range res.Fields {
			switch col := field.(type) {
			case *entity.ColumnVarChar:
				val, _ := col.ValueByIdx(i)
				switch col.Name() {
				case fieldPatternID:
					r.PatternID = val
				case fieldSymbol:
					r.Symbol = val
				}
			case *entity.ColumnInt64:
				if col.Name() == fieldResolvedAt {
					val, _ := col.ValueByIdx(i)
					r.ResolvedAt = time.Unix(val, 0).UTC()
				}
			case *entity.ColumnInt32:
				if col.Name() == fieldOutcomeClass {
					val, _ := col.ValueByIdx(i)
					r.Class = model.OutcomeClass(val)
				}
			case *entity.ColumnDouble:
				val, _ := col.ValueByIdx(i)
				switch col.Name() {
				case fieldMaxGain:
					r.MaxGain = val
				case fieldStrategicValue:
					r.StrategicValue = val
				}
			}
		}
		out = append(out, r)
	}

	return out, nil
}

// BeforeFilter restricts a search to patterns resolved before t
func BeforeFilter(t time.Time) string {
	return fmt.Sprintf("%s < %d", fieldResolvedAt, t.Unix())
}
