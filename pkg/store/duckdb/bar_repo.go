package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

const upsertBar = `
	INSERT INTO bars (symbol, date, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume
`

// BarRepo handles daily bar persistence
type BarRepo struct {
	client *Client
}

// NewBarRepo creates a new bar repository
func NewBarRepo(client *Client) *BarRepo {
	return &BarRepo{client: client}
}

// Insert upserts a single bar
func (r *BarRepo) Insert(ctx context.Context, b *model.Bar) error {
	return r.client.Exec(ctx, upsertBar, b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
}

// InsertBatch upserts multiple bars in a transaction
func (r *BarRepo) InsertBatch(ctx context.Context, bars []model.Bar) error {
	tx, err := r.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertBar)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("failed to insert bar: %w", err)
		}
	}

	return tx.Commit()
}

// GetByDateRange retrieves bars within [start, end], oldest first
func (r *BarRepo) GetByDateRange(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`
	rows, err := r.client.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	return scanBars(rows)
}

// FetchBars retrieves bars within [start, end]; zero bounds are open
func (r *BarRepo) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	if start.IsZero() && end.IsZero() {
		return r.GetAll(ctx, symbol)
	}
	if end.IsZero() {
		end = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return r.GetByDateRange(ctx, symbol, start, end)
}

// GetAll retrieves the full history of a symbol, oldest first
func (r *BarRepo) GetAll(ctx context.Context, symbol string) ([]model.Bar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ?
		ORDER BY date ASC
	`
	rows, err := r.client.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	return scanBars(rows)
}

// GetAfter retrieves up to limit bars dated strictly after the given date
func (r *BarRepo) GetAfter(ctx context.Context, symbol string, after time.Time, limit int) ([]model.Bar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND date > ?
		ORDER BY date ASC
		LIMIT ?
	`
	rows, err := r.client.Query(ctx, query, symbol, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	return scanBars(rows)
}

// GetLatest retrieves the most recent N bars, oldest first
func (r *BarRepo) GetLatest(ctx context.Context, symbol string, limit int) ([]model.Bar, error) {
	query := `
		SELECT symbol, date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?
	`
	rows, err := r.client.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// Symbols lists every symbol with stored bars
func (r *BarRepo) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.client.Query(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// Count returns the number of bars for a symbol
func (r *BarRepo) Count(ctx context.Context, symbol string) (int64, error) {
	var count int64
	err := r.client.QueryRow(ctx, "SELECT COUNT(*) FROM bars WHERE symbol = ?", symbol).Scan(&count)
	return count, err
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.Date = b.Date.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
