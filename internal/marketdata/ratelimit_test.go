package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls   atomic.Int32
	err     error
	lastDay time.Time
}

func (c *countingFetcher) Name() string { return "counting" }

func (c *countingFetcher) Fetch(ctx context.Context, symbol string, day time.Time) (Closes, error) {
	c.calls.Add(1)
	c.lastDay = day
	if c.err != nil {
		return Closes{}, c.err
	}
	return Closes{Last: decimal.NewNullDecimal(decimal.NewFromInt(1))}, nil
}

func TestMinInterval_SpacesCalls(t *testing.T) {
	inner := &countingFetcher{}
	m := &MinInterval{F: inner, Interval: 50 * time.Millisecond}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := m.Fetch(context.Background(), "A", time.Time{})
		require.NoError(t, err)
	}

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, "counting", m.Name())
}

func TestMinInterval_CanceledWhileWaiting(t *testing.T) {
	inner := &countingFetcher{}
	m := &MinInterval{F: inner, Interval: time.Hour}

	_, err := m.Fetch(context.Background(), "A", time.Time{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.Fetch(ctx, "B", time.Time{})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestMinInterval_PassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	m := &MinInterval{F: &countingFetcher{err: boom}}

	_, err := m.Fetch(context.Background(), "A", time.Time{})

	require.ErrorIs(t, err, boom)
}

func TestMinInterval_PassesDayThrough(t *testing.T) {
	inner := &countingFetcher{}
	m := &MinInterval{F: inner}
	day := time.Date(2020, 4, 20, 0, 0, 0, 0, time.UTC)

	_, err := m.Fetch(context.Background(), "CL=F", day)

	require.NoError(t, err)
	assert.Equal(t, day, inner.lastDay)
}
