package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
)

func day(n int) time.Time {
	return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestDecodeBarBatch(t *testing.T) {
	raw := []byte(`{"symbol":"AAA","bars":[
		{"date":"2024-05-01T00:00:00Z","open":10,"high":11,"low":9,"close":10,"volume":5},
		{"date":"2024-05-02T00:00:00Z","open":10,"high":12,"low":9,"close":11,"volume":6}
	]}`)

	msg, err := DecodeBarBatch(raw)
	require.NoError(t, err)
	require.Len(t, msg.Bars, 2)
	assert.Equal(t, "AAA", msg.Bars[1].Symbol)
	assert.Equal(t, day(1), msg.Bars[1].Date)
}

func TestDecodeBarBatch_Rejects(t *testing.T) {
	_, err := DecodeBarBatch([]byte(`{"symbol":"AAA","bars":[
		{"date":"2024-05-02T00:00:00Z","open":10,"high":11,"low":9,"close":10,"volume":5},
		{"date":"2024-05-01T00:00:00Z","open":10,"high":11,"low":9,"close":10,"volume":5}
	]}`))
	assert.ErrorIs(t, err, model.ErrInvalidBar)

	_, err = DecodeBarBatch([]byte(`{"symbol":"AAA","bars":[
		{"symbol":"BBB","date":"2024-05-01T00:00:00Z","open":10,"high":11,"low":9,"close":10,"volume":5}
	]}`))
	assert.ErrorIs(t, err, model.ErrInvalidBar)

	_, err = DecodeBarBatch([]byte(`not json`))
	assert.Error(t, err)
}

func TestPatternEvent_RoundTrip(t *testing.T) {
	p := model.NewPattern("AAA", day(0))
	require.NoError(t, p.Transition(model.PhaseNone))

	data, err := Encode(PatternEventMsg{Pattern: *p, Phase: model.PhaseNone})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"NONE"`)

	msg, err := DecodePatternEvent(data)
	require.NoError(t, err)
	assert.Equal(t, p.ID, msg.Pattern.ID)
	assert.Equal(t, model.PhaseNone, msg.Phase)
}
