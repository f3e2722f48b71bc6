// Package pipeline runs one daily snapshot: fetch, persist, diff and score,
// narrate, and notify.
package pipeline

//go:generate mockgen -package=pipeline_test -destination=mock_pipeline_test.go -source=pipeline.go Fetcher SnapshotStore Narrator Notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/marketpulse/internal/logger"
	"github.com/rewired-gh/marketpulse/internal/marketdata"
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/rewired-gh/marketpulse/internal/monitor"
	"github.com/rewired-gh/marketpulse/internal/narrative"
	"github.com/rewired-gh/marketpulse/internal/report"
	"github.com/rewired-gh/marketpulse/internal/storage"
)

// ErrNoData is returned when no configured asset produced a close.
var ErrNoData = errors.New("no market data available")

// Fetcher returns the latest close of a provider symbol on or before day.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, symbol string, day time.Time) (marketdata.Closes, error)
}

// SnapshotStore persists daily snapshots.
type SnapshotStore interface {
	Save(day time.Time, rows []models.DiffRow) error
	LatestBefore(day time.Time) (*models.Snapshot, error)
}

// Narrator turns a digest into a short commentary.
type Narrator interface {
	Summarize(ctx context.Context, digest string) (string, error)
}

// Notifier delivers the rendered message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// WriterNotifier writes messages to W instead of delivering them.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify(_ context.Context, text string) error {
	_, err := fmt.Fprintln(n.W, text)
	return err
}

type Config struct {
	// RunID identifies the run in its Result. A random ID is used when empty.
	RunID       string
	Assets      []models.Asset
	CallTimeout time.Duration
	Report      report.Options
}

// Pipeline wires the collaborators of a run. Narrator and Notifier may be nil.
type Pipeline struct {
	config   Config
	fetcher  Fetcher
	store    SnapshotStore
	monitor  *monitor.Monitor
	narrator Narrator
	notifier Notifier
}

func New(config Config, fetcher Fetcher, store SnapshotStore, mon *monitor.Monitor, narrator Narrator, notifier Notifier) *Pipeline {
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}
	if mon == nil {
		mon = monitor.New(monitor.DefaultConfig())
	}
	return &Pipeline{
		config:   config,
		fetcher:  fetcher,
		store:    store,
		monitor:  mon,
		narrator: narrator,
		notifier: notifier,
	}
}

// Result describes a finished run.
type Result struct {
	RunID       string             `json:"run_id"`
	Date        time.Time          `json:"date"`
	Unavailable []string           `json:"unavailable,omitempty"`
	Evaluation  monitor.Evaluation `json:"evaluation"`
	Narrative   string             `json:"narrative,omitempty"`
	Message     string             `json:"message"`
	Persisted   bool               `json:"persisted"`
	Delivered   bool               `json:"delivered"`
}

// Run executes the snapshot for day. Only ErrNoData and cancellation of ctx
// fail the run; every other collaborator error is logged and degrades the
// result.
func (p *Pipeline) Run(ctx context.Context, day time.Time) (*Result, error) {
	res := &Result{
		RunID: p.config.RunID,
		Date:  models.Day(day),
	}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	logger.Info("Starting run %s for %s with %d assets", res.RunID, res.Date.Format(models.DateLayout), len(p.config.Assets))

	today, err := p.fetch(ctx, res)
	if err != nil {
		return nil, err
	}

	prior, err := p.store.LatestBefore(res.Date)
	if err != nil {
		logger.Warn("Failed to read prior snapshot, treating as first collection: %v", err)
		prior = nil
	}

	res.Evaluation = p.monitor.Evaluate(today, prior)

	if err := p.store.Save(res.Date, res.Evaluation.Rows); err != nil {
		if errors.Is(err, storage.ErrSnapshotExists) {
			logger.Warn("Snapshot for %s not saved: %v", res.Date.Format(models.DateLayout), err)
		} else {
			logger.Error("Failed to save snapshot: %v", err)
		}
	} else {
		res.Persisted = true
		logger.Info("Saved snapshot of %d quotes", len(res.Evaluation.Rows))
	}

	res.Narrative = p.narrate(ctx, res.Evaluation)
	res.Message = report.Build(res.Evaluation, res.Narrative, p.config.Report)

	if p.notifier == nil {
		logger.Info("Notifier not configured, skipping delivery")
		return res, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	if err := p.notifier.Notify(callCtx, res.Message); err != nil {
		logger.Error("Failed to deliver report: %v", err)
	} else {
		res.Delivered = true
		logger.Info("Delivered report (%d characters)", len([]rune(res.Message)))
	}
	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context, res *Result) (models.Snapshot, error) {
	snap := models.Snapshot{Date: res.Date, Quotes: make([]models.Quote, 0, len(p.config.Assets))}
	for _, a := range p.config.Assets {
		if err := ctx.Err(); err != nil {
			return models.Snapshot{}, fmt.Errorf("run canceled: %w", err)
		}

		q := models.Quote{Group: a.Group, Asset: a.Asset, Symbol: a.Symbol, Date: res.Date}
		callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		closes, err := p.fetcher.Fetch(callCtx, a.Symbol, res.Date)
		cancel()
		switch {
		case err != nil:
			logger.Warn("Failed to fetch %s (%s) from %s: %v", a.Asset, a.Symbol, p.fetcher.Name(), err)
		case !closes.Day.IsZero() && closes.Day.After(res.Date):
			logger.Warn("Discarding %s close dated %s, after %s", a.Asset,
				closes.Day.Format(models.DateLayout), res.Date.Format(models.DateLayout))
		default:
			if !closes.Day.IsZero() && closes.Day.Before(res.Date) {
				logger.Debug("%s has no close on %s, using %s", a.Asset,
					res.Date.Format(models.DateLayout), closes.Day.Format(models.DateLayout))
			}
			q.Close = closes.Last
		}
		if !q.Close.Valid {
			res.Unavailable = append(res.Unavailable, a.Asset)
		}
		snap.Quotes = append(snap.Quotes, q)
	}

	if snap.Available() == 0 {
		return models.Snapshot{}, fmt.Errorf("%w: all %d assets unavailable", ErrNoData, len(snap.Quotes))
	}
	if err := snap.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("invalid snapshot: %w", err)
	}
	logger.Info("Fetched %d/%d quotes", snap.Available(), len(snap.Quotes))
	return snap, nil
}

func (p *Pipeline) narrate(ctx context.Context, ev monitor.Evaluation) string {
	if p.narrator == nil {
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	defer cancel()
	text, err := p.narrator.Summarize(callCtx, report.Digest(ev))
	if err != nil {
		logger.Warn("Narrative unavailable: %v", err)
		return narrative.Placeholder
	}
	return text
}
