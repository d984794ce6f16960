package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
)

func bars(n int) []model.Bar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]model.Bar, n)
	for i := range out {
		out[i] = model.Bar{
			Symbol: "TEST",
			Date:   start.AddDate(0, 0, i),
			Open:   100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}
	return out
}

func TestBuilder_WarmupAndNoLookahead(t *testing.T) {
	b := NewBuilder(Config{Symbol: "TEST", Warmup: 3, Recent: 2})
	series := bars(5)

	var seen [][]model.Bar
	err := b.ProcessBars(series, func(history []model.Bar) error {
		seen = append(seen, history)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 3)
	for i, view := range seen {
		assert.Len(t, view, 3+i)
		assert.Equal(t, series[2+i].Date, view[len(view)-1].Date)
	}
	assert.Equal(t, series[3:], b.Recent())
	assert.Equal(t, series[4].Date, b.LastDate())
}

func TestBuilder_RejectsOutOfOrder(t *testing.T) {
	b := NewBuilder(DefaultConfig("TEST"))
	series := bars(2)

	_, _, err := b.Push(series[1])
	require.NoError(t, err)

	_, _, err = b.Push(series[0])
	assert.ErrorIs(t, err, ErrOutOfOrder)

	_, _, err = b.Push(series[1])
	assert.ErrorIs(t, err, ErrOutOfOrder)
	assert.Equal(t, 1, b.CurrentSize())
}

func TestBuilder_RejectsOtherSymbolAndInvalidBars(t *testing.T) {
	b := NewBuilder(DefaultConfig("TEST"))

	other := bars(1)[0]
	other.Symbol = "OTHER"
	_, _, err := b.Push(other)
	assert.ErrorIs(t, err, model.ErrInvalidBar)

	broken := bars(1)[0]
	broken.Close = 200
	_, _, err = b.Push(broken)
	assert.ErrorIs(t, err, model.ErrInvalidBar)
}

func TestBuilder_ViewIsNotClobbered(t *testing.T) {
	b := NewBuilder(Config{Symbol: "TEST", Warmup: 1})
	series := bars(3)

	view, _, err := b.Push(series[0])
	require.NoError(t, err)
	_ = append(view, model.Bar{Symbol: "TEST"})

	_, _, err = b.Push(series[1])
	require.NoError(t, err)
	assert.Equal(t, series[1].Date, b.After(series[0].Date, 0)[0].Date)
}

func TestBuilder_After(t *testing.T) {
	b := NewBuilder(Config{Symbol: "TEST", Warmup: 1})
	series := bars(6)
	require.NoError(t, b.ProcessBars(series, func([]model.Bar) error { return nil }))

	after := b.After(series[2].Date, 2)
	require.Len(t, after, 2)
	assert.Equal(t, series[3].Date, after[0].Date)
	assert.Equal(t, series[4].Date, after[1].Date)
	assert.Len(t, b.After(series[2].Date, 0), 3)
}
