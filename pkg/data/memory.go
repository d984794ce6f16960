package data

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

// MemoryProvider implements BarProvider with in-memory storage
type MemoryProvider struct {
	mu   sync.RWMutex
	bars map[string][]model.Bar
}

// NewMemoryProvider creates a new in-memory bar provider
func NewMemoryProvider(bars []model.Bar) *MemoryProvider {
	return &MemoryProvider{bars: GroupBySymbol(bars)}
}

// AddBars adds bars to the provider, keeping each symbol sorted by date
func (p *MemoryProvider) AddBars(bars []model.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for symbol, series := range GroupBySymbol(bars) {
		merged := append(p.bars[symbol], series...)
		slices.SortStableFunc(merged, func(a, b model.Bar) int { return a.Date.Compare(b.Date) })
		p.bars[symbol] = merged
	}
}

// FetchBars retrieves bars within the specified date range
func (p *MemoryProvider) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []model.Bar
	for _, b := range p.bars[symbol] {
		if inRange(b.Date, start, end) {
			result = append(result, b)
		}
	}
	return result, nil
}

// GetAfter returns up to limit bars dated strictly after date
func (p *MemoryProvider) GetAfter(ctx context.Context, symbol string, after time.Time, limit int) ([]model.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var result []model.Bar
	for _, b := range p.bars[symbol] {
		if !b.Date.After(after) {
			continue
		}
		result = append(result, b)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// Symbols lists the symbols held in memory
func (p *MemoryProvider) Symbols(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	symbols := make([]string, 0, len(p.bars))
	for s := range p.bars {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)
	return symbols, nil
}
