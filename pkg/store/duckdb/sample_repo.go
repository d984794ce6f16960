package duckdb

import (
	"context"
	"fmt"

	"github.com/tunogya/coil/pkg/model"
)

// SampleRepo persists outcomes and features, and joins them into training samples
type SampleRepo struct {
	client   *Client
	patterns *PatternRepo
}

// NewSampleRepo creates a new sample repository
func NewSampleRepo(client *Client) *SampleRepo {
	return &SampleRepo{client: client, patterns: NewPatternRepo(client)}
}

// InsertOutcome stores an outcome; an existing outcome for the pattern is kept
func (r *SampleRepo) InsertOutcome(ctx context.Context, o *model.PatternOutcome) error {
	query := `
		INSERT INTO pattern_outcomes (pattern_id, outcome_class, actual_gain, days_observed,
			max_gain, max_loss, strategic_value, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pattern_id) DO NOTHING
	`
	err := r.client.Exec(ctx, query,
		o.PatternID, o.Class.Label(), o.ActualGain, o.DaysObserved,
		o.MaxGain, o.MaxLoss, o.StrategicValue, o.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome for %s: %w", o.PatternID, err)
	}
	return nil
}

// InsertFeatures upserts the feature row of a pattern
func (r *SampleRepo) InsertFeatures(ctx context.Context, f *model.PatternFeatures) error {
	query := `
		INSERT INTO pattern_features (pattern_id, pattern_duration, range_percentage,
			avg_bbw, min_bbw, max_bbw, avg_bbw_percentile, avg_adx, max_adx,
			avg_volume_ratio, min_volume_ratio, avg_daily_range_ratio, avg_atr, avg_volatility,
			bbw_slope, adx_slope, volume_slope, snapshot_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pattern_id) DO UPDATE SET
			pattern_duration = EXCLUDED.pattern_duration,
			range_percentage = EXCLUDED.range_percentage,
			avg_bbw = EXCLUDED.avg_bbw,
			min_bbw = EXCLUDED.min_bbw,
			max_bbw = EXCLUDED.max_bbw,
			avg_bbw_percentile = EXCLUDED.avg_bbw_percentile,
			avg_adx = EXCLUDED.avg_adx,
			max_adx = EXCLUDED.max_adx,
			avg_volume_ratio = EXCLUDED.avg_volume_ratio,
			min_volume_ratio = EXCLUDED.min_volume_ratio,
			avg_daily_range_ratio = EXCLUDED.avg_daily_range_ratio,
			avg_atr = EXCLUDED.avg_atr,
			avg_volatility = EXCLUDED.avg_volatility,
			bbw_slope = EXCLUDED.bbw_slope,
			adx_slope = EXCLUDED.adx_slope,
			volume_slope = EXCLUDED.volume_slope,
			snapshot_count = EXCLUDED.snapshot_count
	`
	err := r.client.Exec(ctx, query,
		f.PatternID, f.Duration, f.RangePercentage,
		f.AvgBBW, f.MinBBW, f.MaxBBW, f.AvgBBWPercentile, f.AvgADX, f.MaxADX,
		f.AvgVolumeRatio, f.MinVolumeRatio, f.AvgRangeRatio, f.AvgATR, f.AvgVolatility,
		f.BBWSlope, f.ADXSlope, f.VolumeSlope, f.SnapshotCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert features for %s: %w", f.PatternID, err)
	}
	return nil
}

// SaveSample stores the pattern, its features and its outcome
func (r *SampleRepo) SaveSample(ctx context.Context, s *model.LabeledSample) error {
	if err := r.patterns.Upsert(ctx, &s.Pattern); err != nil {
		return err
	}
	if err := r.InsertFeatures(ctx, &s.Features); err != nil {
		return err
	}
	return r.InsertOutcome(ctx, &s.Outcome)
}

// GetOutcome retrieves the outcome of a pattern
func (r *SampleRepo) GetOutcome(ctx context.Context, patternID string) (*model.PatternOutcome, error) {
	query := `
		SELECT pattern_id, outcome_class, actual_gain, days_observed,
			max_gain, max_loss, strategic_value, evaluated_at
		FROM pattern_outcomes
		WHERE pattern_id = ?
	`
	rows, err := r.client.Query(ctx, query, patternID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("outcome for %s: %w", patternID, ErrNotFound)
	}

	var o model.PatternOutcome
	var class int
	if err := rows.Scan(&o.PatternID, &class, &o.ActualGain, &o.DaysObserved,
		&o.MaxGain, &o.MaxLoss, &o.StrategicValue, &o.EvaluatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan outcome: %w", err)
	}
	o.Class = model.OutcomeClass(class)
	o.EvaluatedAt = o.EvaluatedAt.UTC()
	return &o, nil
}

// ListSamples joins patterns with their features and outcomes.
// An empty symbol lists every symbol. Samples are ordered by resolution date.
func (r *SampleRepo) ListSamples(ctx context.Context, symbol string) ([]model.LabeledSample, error) {
	query := `
		SELECT p.id,
			f.pattern_duration, f.range_percentage, f.avg_bbw, f.min_bbw, f.max_bbw,
			f.avg_bbw_percentile, f.avg_adx, f.max_adx, f.avg_volume_ratio, f.min_volume_ratio,
			f.avg_daily_range_ratio, f.avg_atr, f.avg_volatility,
			f.bbw_slope, f.adx_slope, f.volume_slope, f.snapshot_count,
			o.outcome_class, o.actual_gain, o.days_observed, o.max_gain, o.max_loss,
			o.strategic_value, o.evaluated_at
		FROM patterns p
		JOIN pattern_features f ON f.pattern_id = p.id
		JOIN pattern_outcomes o ON o.pattern_id = p.id
		WHERE ? = '' OR p.symbol = ?
		ORDER BY p.resolved_at ASC, p.id ASC
	`
	rows, err := r.client.Query(ctx, query, symbol, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var (
		samples []model.LabeledSample
		ids     []string
	)
	for rows.Next() {
		var s model.LabeledSample
		var id string
		var class int
		f, o := &s.Features, &s.Outcome
		err := rows.Scan(&id,
			&f.Duration, &f.RangePercentage, &f.AvgBBW, &f.MinBBW, &f.MaxBBW,
			&f.AvgBBWPercentile, &f.AvgADX, &f.MaxADX, &f.AvgVolumeRatio, &f.MinVolumeRatio,
			&f.AvgRangeRatio, &f.AvgATR, &f.AvgVolatility,
			&f.BBWSlope, &f.ADXSlope, &f.VolumeSlope, &f.SnapshotCount,
			&class, &o.ActualGain, &o.DaysObserved, &o.MaxGain, &o.MaxLoss,
			&o.StrategicValue, &o.EvaluatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		f.PatternID, o.PatternID = id, id
		o.Class = model.OutcomeClass(class)
		o.EvaluatedAt = o.EvaluatedAt.UTC()
		samples = append(samples, s)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i, id := range ids {
		p, err := r.patterns.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		samples[i].Pattern = *p
	}
	return samples, nil
}
