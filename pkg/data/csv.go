package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tunogya/coil/pkg/model"
)

// CSVProvider implements BarProvider for CSV files with a header row of
// date,open,high,low,close,volume and an optional symbol column
type CSVProvider struct {
	filePath      string
	defaultSymbol string
	bars          map[string][]model.Bar
	skipped       int
}

// NewCSVProvider creates a provider; defaultSymbol applies to rows without a symbol
func NewCSVProvider(filePath, defaultSymbol string) *CSVProvider {
	return &CSVProvider{
		filePath:      filePath,
		defaultSymbol: defaultSymbol,
	}
}

// Skipped returns the number of rows dropped as unparseable or invalid
func (p *CSVProvider) Skipped() int {
	return p.skipped
}

// loadIfNeeded loads the CSV file if not already loaded
func (p *CSVProvider) loadIfNeeded() error {
	if p.bars != nil {
		return nil
	}

	file, err := os.Open(p.filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	bars, skipped, err := ReadCSV(file, p.defaultSymbol)
	if err != nil {
		return err
	}
	p.bars = GroupBySymbol(bars)
	p.skipped = skipped
	return nil
}

// ReadCSV parses bars from r. Rows that fail to parse or validate are
// skipped and counted; duplicate dates keep the first row.
func ReadCSV(r io.Reader, defaultSymbol string) ([]model.Bar, int, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int)
	for i, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := colMap[required]; !ok {
			return nil, 0, fmt.Errorf("CSV header is missing column %q", required)
		}
	}

	var (
		bars    []model.Bar
		skipped int
		seen    = make(map[string]bool)
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read CSV record: %w", err)
		}

		bar, err := parseRecord(record, colMap, defaultSymbol)
		if err != nil {
			skipped++
			continue
		}
		key := bar.Symbol + "|" + bar.Date.Format(model.DateLayout)
		if seen[key] {
			skipped++
			continue
		}
		seen[key] = true
		bars = append(bars, bar)
	}

	return bars, skipped, nil
}

// parseRecord parses a CSV record into a validated Bar
func parseRecord(record []string, colMap map[string]int, defaultSymbol string) (model.Bar, error) {
	getValue := func(name string) string {
		if idx, ok := colMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	date, err := time.Parse(model.DateLayout, getValue("date"))
	if err != nil {
		return model.Bar{}, fmt.Errorf("invalid date: %w", err)
	}

	var prices [5]float64
	for i, col := range []string{"open", "high", "low", "close", "volume"} {
		v, err := strconv.ParseFloat(getValue(col), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("invalid %s: %w", col, err)
		}
		prices[i] = v
	}

	symbol := getValue("symbol")
	if symbol == "" {
		symbol = defaultSymbol
	}

	bar := model.Bar{
		Symbol: symbol,
		Date:   date,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: prices[4],
	}
	if err := bar.Validate(); err != nil {
		return model.Bar{}, err
	}
	return bar, nil
}

// FetchBars retrieves bars within the specified date range
func (p *CSVProvider) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	if err := p.loadIfNeeded(); err != nil {
		return nil, err
	}

	var result []model.Bar
	for _, b := range p.bars[symbol] {
		if inRange(b.Date, start, end) {
			result = append(result, b)
		}
	}
	return result, nil
}

// Symbols lists the symbols found in the file
func (p *CSVProvider) Symbols(ctx context.Context) ([]string, error) {
	if err := p.loadIfNeeded(); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(p.bars))
	for s := range p.bars {
		symbols = append(symbols, s)
	}
	slices.Sort(symbols)
	return symbols, nil
}
