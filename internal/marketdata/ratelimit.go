package marketdata

import (
	"context"
	"sync"
	"time"
)

// MinInterval wraps a fetcher and enforces a minimum time between calls.
// A waiting call returns early if its context is canceled.
type MinInterval struct {
	F        Fetcher
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.F.Name() }

func (m *MinInterval) Fetch(ctx context.Context, symbol string, day time.Time) (Closes, error) {
	if m.Interval > 0 {
		m.mu.Lock()
		wait := time.Until(m.last.Add(m.Interval))
		m.mu.Unlock()
		if wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return Closes{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	closes, err := m.F.Fetch(ctx, symbol, day)
	if m.Interval > 0 {
		m.mu.Lock()
		m.last = time.Now()
		m.mu.Unlock()
	}
	return closes, err
}
