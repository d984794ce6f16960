package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

const upsertPattern = `
	INSERT INTO patterns (id, symbol, phase, start_date, qualification_days,
		upper_boundary, lower_boundary, power_boundary, metrics,
		activated_at, resolved_at, active_days, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		phase = EXCLUDED.phase,
		qualification_days = EXCLUDED.qualification_days,
		upper_boundary = EXCLUDED.upper_boundary,
		lower_boundary = EXCLUDED.lower_boundary,
		power_boundary = EXCLUDED.power_boundary,
		metrics = EXCLUDED.metrics,
		activated_at = EXCLUDED.activated_at,
		resolved_at = EXCLUDED.resolved_at,
		active_days = EXCLUDED.active_days
`

const selectPattern = `
	SELECT p.id, p.symbol, p.phase, p.start_date, p.qualification_days,
		p.upper_boundary, p.lower_boundary, p.power_boundary, p.metrics,
		p.activated_at, p.resolved_at, p.active_days, p.created_at
	FROM patterns p
`

// PatternRepo handles pattern persistence
type PatternRepo struct {
	client *Client
}

// NewPatternRepo creates a new pattern repository
func NewPatternRepo(client *Client) *PatternRepo {
	return &PatternRepo{client: client}
}

// Upsert inserts or updates a pattern
func (r *PatternRepo) Upsert(ctx context.Context, p *model.Pattern) error {
	args, err := patternArgs(p)
	if err != nil {
		return err
	}
	if err := r.client.Exec(ctx, upsertPattern, args...); err != nil {
		return fmt.Errorf("failed to upsert pattern %s: %w", p.ID, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple patterns in a transaction
func (r *PatternRepo) UpsertBatch(ctx context.Context, patterns []model.Pattern) error {
	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPattern)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range patterns {
		args, err := patternArgs(&patterns[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert pattern %s: %w", patterns[i].ID, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a pattern by ID
func (r *PatternRepo) GetByID(ctx context.Context, id string) (*model.Pattern, error) {
	rows, err := r.client.Query(ctx, selectPattern+" WHERE p.id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern: %w", err)
	}
	patterns, err := scanPatterns(rows)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("pattern %s: %w", id, ErrNotFound)
	}
	return &patterns[0], nil
}

// ListBySymbol retrieves the patterns of a symbol ordered by start date
func (r *PatternRepo) ListBySymbol(ctx context.Context, symbol string) ([]model.Pattern, error) {
	rows, err := r.client.Query(ctx, selectPattern+" WHERE p.symbol = ? ORDER BY p.start_date ASC", symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	return scanPatterns(rows)
}

// ListPendingEvaluation retrieves resolved patterns that have no outcome yet
func (r *PatternRepo) ListPendingEvaluation(ctx context.Context, limit int) ([]model.Pattern, error) {
	query := selectPattern + `
		LEFT JOIN pattern_outcomes o ON o.pattern_id = p.id
		WHERE p.phase IN ('COMPLETED', 'FAILED') AND o.pattern_id IS NULL
		ORDER BY p.resolved_at ASC
		LIMIT ?
	`
	rows, err := r.client.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending patterns: %w", err)
	}
	return scanPatterns(rows)
}

// CountByPhase returns the number of patterns per phase
func (r *PatternRepo) CountByPhase(ctx context.Context) (map[model.Phase]int64, error) {
	rows, err := r.client.Query(ctx, "SELECT phase, COUNT(*) FROM patterns GROUP BY phase")
	if err != nil {
		return nil, fmt.Errorf("failed to count patterns: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Phase]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		phase, err := model.ParsePhase(name)
		if err != nil {
			return nil, err
		}
		counts[phase] = n
	}
	return counts, rows.Err()
}

func patternArgs(p *model.Pattern) ([]any, error) {
	var upper, lower, power sql.NullFloat64
	if p.Boundaries != nil {
		upper = sql.NullFloat64{Float64: p.Boundaries.Upper, Valid: true}
		lower = sql.NullFloat64{Float64: p.Boundaries.Lower, Valid: true}
		power = sql.NullFloat64{Float64: p.Boundaries.Power, Valid: true}
	}

	var metrics sql.NullString
	if len(p.Metrics) > 0 {
		raw, err := json.Marshal(p.Metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metrics: %w", err)
		}
		metrics = sql.NullString{String: string(raw), Valid: true}
	}

	return []any{
		p.ID, p.Symbol, p.Phase.String(), p.StartDate, p.QualificationDays,
		upper, lower, power, metrics,
		nullTime(p.ActivatedAt), nullTime(p.ResolvedAt), p.ActiveDays, p.CreatedAt,
	}, nil
}

func scanPatterns(rows *sql.Rows) ([]model.Pattern, error) {
	defer rows.Close()

	var patterns []model.Pattern
	for rows.Next() {
		var (
			p                   model.Pattern
			phase               string
			upper, lower, power sql.NullFloat64
			metrics             sql.NullString
			activated, resolved sql.NullTime
		)
		err := rows.Scan(
			&p.ID, &p.Symbol, &phase, &p.StartDate, &p.QualificationDays,
			&upper, &lower, &power, &metrics,
			&activated, &resolved, &p.ActiveDays, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}

		if p.Phase, err = model.ParsePhase(phase); err != nil {
			return nil, err
		}
		p.StartDate = p.StartDate.UTC()
		if upper.Valid && lower.Valid && power.Valid {
			p.Boundaries = &model.Boundaries{Upper: upper.Float64, Lower: lower.Float64, Power: power.Float64}
		}
		if metrics.Valid {
			if err := json.Unmarshal([]byte(metrics.String), &p.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
		}
		if activated.Valid {
			p.ActivatedAt = activated.Time.UTC()
		}
		if resolved.Valid {
			p.ResolvedAt = resolved.Time.UTC()
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
