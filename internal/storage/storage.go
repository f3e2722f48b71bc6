// Package storage persists daily snapshots, one per calendar day.
package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/marketpulse/internal/models"
)

var (
	// ErrSnapshotExists is returned when a snapshot for the day was already written.
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrNotFound is returned by Load when no snapshot exists for the day.
	ErrNotFound = errors.New("snapshot not found")
	// ErrBadHeader is returned when a snapshot file does not carry the expected columns.
	ErrBadHeader = errors.New("unexpected snapshot header")
)

// Store is an append-only log of dated snapshots.
type Store interface {
	Save(day time.Time, rows []models.DiffRow) error
	Load(day time.Time) (*models.Snapshot, error)
	LatestBefore(day time.Time) (*models.Snapshot, error)
	// Dates lists the stored snapshot dates, oldest first.
	Dates() ([]time.Time, error)
	Close() error
}

// Open returns the store selected by backend ("csv" or "sqlite").
func Open(backend, dir, dbPath string, overwrite bool) (Store, error) {
	switch backend {
	case "", "csv":
		return NewCSV(dir, overwrite)
	case "sqlite":
		return NewSQLite(dbPath, overwrite)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// snapshotOf rebuilds the snapshot a set of rows was derived from, stamped with day.
func snapshotOf(day time.Time, rows []models.DiffRow) models.Snapshot {
	snap := models.Snapshot{Date: models.Day(day), Quotes: make([]models.Quote, 0, len(rows))}
	for _, r := range rows {
		q := r.Quote
		q.Date = snap.Date
		snap.Quotes = append(snap.Quotes, q)
	}
	return snap
}
