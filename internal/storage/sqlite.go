package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps snapshots as rows of a single SQLite table.
type SQLiteStore struct {
	db        *sql.DB
	overwrite bool
}

// NewSQLite opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/marketpulse/snapshots.db.
func NewSQLite(dbPath string, overwrite bool) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "marketpulse", "snapshots.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db, overwrite: overwrite}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_rows (
			date       TEXT NOT NULL,
			position   INTEGER NOT NULL,
			grp        TEXT NOT NULL,
			asset      TEXT NOT NULL,
			symbol     TEXT NOT NULL,
			close      TEXT,
			change_pct TEXT,
			PRIMARY KEY (date, grp, asset)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_rows_date ON snapshot_rows(date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save writes rows as the snapshot of day in a single transaction.
func (s *SQLiteStore) Save(day time.Time, rows []models.DiffRow) error {
	snap := snapshotOf(day, rows)
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}
	date := snap.Date.Format(models.DateLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM snapshot_rows WHERE date = ?`, date).Scan(&existing); err != nil {
		return fmt.Errorf("failed to check snapshot: %w", err)
	}
	if existing > 0 {
		if !s.overwrite {
			return fmt.Errorf("%w: %s", ErrSnapshotExists, date)
		}
		if _, err := tx.Exec(`DELETE FROM snapshot_rows WHERE date = ?`, date); err != nil {
			return fmt.Errorf("failed to replace snapshot: %w", err)
		}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO snapshot_rows (date, position, grp, asset, symbol, close, change_pct)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.Exec(date, i, r.Group, r.Asset, r.Symbol,
			formatNullable(r.Close, -1), formatNullable(r.ChangePct, 2)); err != nil {
			return fmt.Errorf("failed to insert row %s: %w", r.Key(), err)
		}
	}
	return tx.Commit()
}

// Load reads the snapshot of day in its original row order.
func (s *SQLiteStore) Load(day time.Time) (*models.Snapshot, error) {
	d := models.Day(day)
	rows, err := s.db.Query(`
		SELECT grp, asset, symbol, close
		FROM snapshot_rows WHERE date = ? ORDER BY position`, d.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	snap := &models.Snapshot{Date: d}
	for rows.Next() {
		q := models.Quote{Date: d}
		var closeText sql.NullString
		if err := rows.Scan(&q.Group, &q.Asset, &q.Symbol, &closeText); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if q.Close, err = parseNull(closeText.String); err != nil {
			return nil, fmt.Errorf("invalid close for %s: %w", q.Key(), err)
		}
		snap.Quotes = append(snap.Quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snap.Quotes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d.Format(models.DateLayout))
	}
	return snap, nil
}

// LatestBefore returns the newest snapshot dated strictly before day, or nil
// when there is none.
func (s *SQLiteStore) LatestBefore(day time.Time) (*models.Snapshot, error) {
	var latest sql.NullString
	err := s.db.QueryRow(`SELECT MAX(date) FROM snapshot_rows WHERE date < ?`,
		models.Day(day).Format(models.DateLayout)).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest snapshot: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	d, err := models.ParseDay(latest.String)
	if err != nil {
		return nil, err
	}
	return s.Load(d)
}

// Dates lists the stored snapshot dates, oldest first.
func (s *SQLiteStore) Dates() ([]time.Time, error) {
	rows, err := s.db.Query(`SELECT DISTINCT date FROM snapshot_rows ORDER BY date`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()
	var dates []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		d, err := models.ParseDay(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func formatNullable(d decimal.NullDecimal, places int32) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: formatNull(d, places), Valid: true}
}
