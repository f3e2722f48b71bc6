package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/shopspring/decimal"
)

// Header is the column layout of every snapshot file.
var Header = []string{"Group", "Asset", "Symbol", "Close", "Change_%", "Date"}

const (
	filePrefix = "finance_"
	fileExt    = ".csv"
)

// CSVStore keeps one CSV file per day named finance_YYYY-MM-DD.csv.
type CSVStore struct {
	dir       string
	overwrite bool
}

// NewCSV creates the snapshot directory if needed.
func NewCSV(dir string, overwrite bool) (*CSVStore, error) {
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &CSVStore{dir: dir, overwrite: overwrite}, nil
}

// Path returns the file holding the snapshot of day.
func (s *CSVStore) Path(day time.Time) string {
	return filepath.Join(s.dir, filePrefix+models.Day(day).Format(models.DateLayout)+fileExt)
}

func (s *CSVStore) Close() error { return nil }

// Save writes rows as the snapshot of day. The file is written to a temporary
// name and renamed into place.
func (s *CSVStore) Save(day time.Time, rows []models.DiffRow) error {
	snap := snapshotOf(day, rows)
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("invalid snapshot: %w", err)
	}

	path := s.Path(day)
	if _, err := os.Stat(path); err == nil && !s.overwrite {
		return fmt.Errorf("%w: %s", ErrSnapshotExists, path)
	}

	tmp, err := os.CreateTemp(s.dir, filePrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	date := snap.Date.Format(models.DateLayout)
	for _, r := range rows {
		record := []string{r.Group, r.Asset, r.Symbol, formatNull(r.Close, -1), formatNull(r.ChangePct, 2), date}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write row %s: %w", r.Key(), err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// Load reads the snapshot of day.
func (s *CSVStore) Load(day time.Time) (*models.Snapshot, error) {
	path := s.Path(day)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	snap, err := readSnapshot(f, models.Day(day))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// LatestBefore returns the newest snapshot dated strictly before day, or nil
// when there is none.
func (s *CSVStore) LatestBefore(day time.Time) (*models.Snapshot, error) {
	dates, err := s.Dates()
	if err != nil {
		return nil, err
	}
	cutoff := models.Day(day)
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i].Before(cutoff) {
			return s.Load(dates[i])
		}
	}
	return nil, nil
}

// Dates lists the days that have a snapshot file, oldest first. Files not
// named finance_YYYY-MM-DD.csv are ignored.
func (s *CSVStore) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	var dates []time.Time
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		d, err := models.ParseDay(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

func readSnapshot(r io.Reader, day time.Time) (*models.Snapshot, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrBadHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if len(header) != len(Header) {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrBadHeader, len(header), len(Header))
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i+1, header[i], col)
		}
	}

	snap := &models.Snapshot{Date: day}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		closePrice, err := parseNull(record[3])
		if err != nil {
			return nil, fmt.Errorf("invalid close for %s/%s: %w", record[0], record[1], err)
		}
		date, err := models.ParseDay(record[5])
		if err != nil {
			return nil, err
		}
		snap.Quotes = append(snap.Quotes, models.Quote{
			Group:  record[0],
			Asset:  record[1],
			Symbol: record[2],
			Close:  closePrice,
			Date:   date,
		})
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return snap, nil
}

// formatNull renders d with places decimals, or as stored when places < 0.
// Absent values render as an empty field.
func formatNull(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return ""
	}
	if places < 0 {
		return d.Decimal.String()
	}
	return d.Decimal.StringFixed(places)
}

func parseNull(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
