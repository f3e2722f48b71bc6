// Package models defines the core domain entities: assets, quotes, snapshots and diff rows.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO 8601 calendar-day layout used for snapshot dates.
const DateLayout = "2006-01-02"

// Asset is one entry of the tracked universe.
type Asset struct {
	Group  string `mapstructure:"group" json:"group"`
	Asset  string `mapstructure:"asset" json:"asset"`
	Symbol string `mapstructure:"symbol" json:"symbol"`
}

// Key identifies a quote within a snapshot.
type Key struct {
	Group string
	Asset string
}

func (k Key) String() string {
	return k.Group + "/" + k.Asset
}

// Quote is one market reading. Close is invalid when the provider had no data.
type Quote struct {
	Group  string              `json:"group"`
	Asset  string              `json:"asset"`
	Symbol string              `json:"symbol"`
	Close  decimal.NullDecimal `json:"close"`
	Date   time.Time           `json:"date"`
}

// Key returns the composite (group, asset) key.
func (q Quote) Key() Key {
	return Key{Group: q.Group, Asset: q.Asset}
}

// Snapshot is the ordered set of quotes captured by one run.
type Snapshot struct {
	Date   time.Time `json:"date"`
	Quotes []Quote   `json:"quotes"`
}

// Validate checks snapshot invariants: non-empty keys, unique (group, asset)
// and a single shared date.
func (s *Snapshot) Validate() error {
	if s.Date.IsZero() {
		return errors.New("snapshot date must be set")
	}
	seen := make(map[Key]bool, len(s.Quotes))
	for _, q := range s.Quotes {
		if q.Group == "" {
			return errors.New("quote group must not be empty")
		}
		if q.Asset == "" {
			return errors.New("quote asset must not be empty")
		}
		if seen[q.Key()] {
			return fmt.Errorf("duplicate quote %s", q.Key())
		}
		seen[q.Key()] = true
		if !SameDay(q.Date, s.Date) {
			return fmt.Errorf("quote %s dated %s, snapshot dated %s",
				q.Key(), q.Date.Format(DateLayout), s.Date.Format(DateLayout))
		}
	}
	return nil
}

// Available reports how many quotes carry a close.
func (s *Snapshot) Available() int {
	n := 0
	for _, q := range s.Quotes {
		if q.Close.Valid {
			n++
		}
	}
	return n
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO calendar day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return Day(a).Equal(Day(b))
}
