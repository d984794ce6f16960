// Package data loads daily bars from files or memory. Acquisition from
// market-data vendors lives outside this module.
package data

import (
	"context"
	"sort"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

// BarProvider defines the interface for fetching historical daily bars
type BarProvider interface {
	// FetchBars retrieves bars for symbol dated within [start, end], oldest first.
	// A zero start or end leaves that side open.
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)

	// Symbols lists the symbols the provider holds
	Symbols(ctx context.Context) ([]string, error)
}

// inRange reports whether d falls within [start, end], zero bounds being open
func inRange(d, start, end time.Time) bool {
	if !start.IsZero() && d.Before(start) {
		return false
	}
	if !end.IsZero() && d.After(end) {
		return false
	}
	return true
}

// GroupBySymbol splits bars by symbol, each slice sorted by date
func GroupBySymbol(bars []model.Bar) map[string][]model.Bar {
	out := make(map[string][]model.Bar)
	for _, b := range bars {
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	for _, series := range out {
		sort.SliceStable(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	}
	return out
}

// FetchAll loads every symbol of a provider
func FetchAll(ctx context.Context, p BarProvider, start, end time.Time) (map[string][]model.Bar, error) {
	symbols, err := p.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]model.Bar, len(symbols))
	for _, s := range symbols {
		bars, err := p.FetchBars(ctx, s, start, end)
		if err != nil {
			return nil, err
		}
		out[s] = bars
	}
	return out, nil
}
