// Package marketdata fetches end-of-day closes from a market-data provider.
package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoData is returned when the provider answered but had no close for the symbol.
var ErrNoData = errors.New("no data")

// Closes holds the latest close on or before the requested day.
type Closes struct {
	Last decimal.NullDecimal
	// Day is the trading day of Last, zero when the provider sent no timestamp.
	Day time.Time
}

// Fetcher is implemented by every quote source. A zero day asks for the
// latest close available.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string, day time.Time) (Closes, error)
}
