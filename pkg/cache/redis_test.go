package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunogya/coil/pkg/model"
)

func activePattern(t *testing.T) *model.Pattern {
	t.Helper()
	p := model.NewPattern("AAA", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, p.Activate(model.Boundaries{Upper: 11, Lower: 9, Power: 11.055}, map[string]float64{"range_percent": 22.2}, p.StartDate.AddDate(0, 0, 9)))
	return p
}

func TestPatternCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewPatternCache(db, Config{TTL: time.Hour})

	p := activePattern(t)
	data, err := json.Marshal(p)
	require.NoError(t, err)

	mock.ExpectSet("coil:pattern:AAA", string(data), time.Hour).SetVal("OK")
	mock.ExpectGet("coil:pattern:AAA").SetVal(string(data))

	require.NoError(t, c.SetCurrent(ctx, "AAA", p))
	got, err := c.GetCurrent(ctx, "AAA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, model.PhaseActive, got.Phase)
	assert.Equal(t, 11.055, got.Boundaries.Power)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatternCache_MissingAndClear(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewPatternCache(db, DefaultConfig())

	mock.ExpectGet("coil:pattern:BBB").RedisNil()
	mock.ExpectDel("coil:pattern:BBB").SetVal(1)

	got, err := c.GetCurrent(ctx, "BBB")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.SetCurrent(ctx, "BBB", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatternCache_Errors(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	c := NewPatternCache(db, Config{KeyPrefix: "test"})
	assert.Equal(t, "test:CCC", c.Key("CCC"))

	mock.ExpectGet("test:CCC").SetErr(errors.New("connection refused"))
	mock.ExpectGet("test:DDD").SetVal("{not json")

	_, err := c.GetCurrent(ctx, "CCC")
	assert.ErrorContains(t, err, "connection refused")
	_, err = c.GetCurrent(ctx, "DDD")
	assert.ErrorContains(t, err, "failed to decode")
	assert.NoError(t, mock.ExpectationsWereMet())
}
