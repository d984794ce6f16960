package duckdb

import (
	"context"
	"fmt"
)

// CreateBarsTable creates the daily bars fact table
const CreateBarsTable = `
CREATE TABLE IF NOT EXISTS bars (
    symbol VARCHAR NOT NULL,
    date DATE NOT NULL,
    open DOUBLE NOT NULL,
    high DOUBLE NOT NULL,
    low DOUBLE NOT NULL,
    close DOUBLE NOT NULL,
    volume DOUBLE NOT NULL,
    PRIMARY KEY (symbol, date)
);
`

// CreatePatternsTable creates the patterns table
const CreatePatternsTable = `
CREATE TABLE IF NOT EXISTS patterns (
    id VARCHAR PRIMARY KEY,
    symbol VARCHAR NOT NULL,
    phase VARCHAR NOT NULL,
    start_date DATE NOT NULL,
    qualification_days INTEGER NOT NULL,
    upper_boundary DOUBLE,
    lower_boundary DOUBLE,
    power_boundary DOUBLE,
    metrics VARCHAR,
    activated_at DATE,
    resolved_at DATE,
    active_days INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_symbol ON patterns(symbol);
`

// CreateOutcomesTable creates the pattern outcomes table
const CreateOutcomesTable = `
CREATE TABLE IF NOT EXISTS pattern_outcomes (
    pattern_id VARCHAR PRIMARY KEY,
    outcome_class INTEGER NOT NULL,
    actual_gain DOUBLE,
    days_observed INTEGER,
    max_gain DOUBLE,
    max_loss DOUBLE,
    strategic_value DOUBLE,
    evaluated_at DATE
);
`

// CreateFeaturesTable creates the pattern features table
const CreateFeaturesTable = `
CREATE TABLE IF NOT EXISTS pattern_features (
    pattern_id VARCHAR PRIMARY KEY,
    pattern_duration DOUBLE,
    range_percentage DOUBLE,
    avg_bbw DOUBLE,
    min_bbw DOUBLE,
    max_bbw DOUBLE,
    avg_bbw_percentile DOUBLE,
    avg_adx DOUBLE,
    max_adx DOUBLE,
    avg_volume_ratio DOUBLE,
    min_volume_ratio DOUBLE,
    avg_daily_range_ratio DOUBLE,
    avg_atr DOUBLE,
    avg_volatility DOUBLE,
    bbw_slope DOUBLE,
    adx_slope DOUBLE,
    volume_slope DOUBLE,
    snapshot_count INTEGER
);
`

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	schemas := []string{
		CreateBarsTable,
		CreatePatternsTable,
		CreateOutcomesTable,
		CreateFeaturesTable,
	}

	for _, schema := range schemas {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with caution)
func DropAllTables(ctx context.Context, c *Client) error {
	tables := []string{"pattern_features", "pattern_outcomes", "patterns", "bars"}
	for _, table := range tables {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
