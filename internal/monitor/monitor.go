// Package monitor joins a day's snapshot against the prior one and reduces the
// core assets to a risk label.
package monitor

import (
	"time"

	"github.com/rewired-gh/marketpulse/internal/logger"
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/shopspring/decimal"
)

type Config struct {
	VIXCalm   float64
	VIXStress float64
}

func DefaultConfig() Config {
	return Config{
		VIXCalm:   18,
		VIXStress: 25,
	}
}

type Monitor struct {
	thresholds Thresholds
}

func New(config Config) *Monitor {
	return &Monitor{
		thresholds: Thresholds{
			VIXCalm:   decimal.NewFromFloat(config.VIXCalm),
			VIXStress: decimal.NewFromFloat(config.VIXStress),
		},
	}
}

// Evaluation is the outcome of one diff-and-score pass.
type Evaluation struct {
	Date          time.Time        `json:"date"`
	FirstRun      bool             `json:"first_run"`
	Rows          []models.DiffRow `json:"rows"`
	Core          []models.DiffRow `json:"core"`
	Contributions map[string]int   `json:"contributions"`
	Score         int              `json:"score"`
	Label         models.RiskLabel `json:"label"`
}

// Evaluate diffs today against prior and scores the result. A nil or empty
// prior marks the evaluation as a first run.
func (m *Monitor) Evaluate(today models.Snapshot, prior *models.Snapshot) Evaluation {
	ev := Evaluation{
		Date:     models.Day(today.Date),
		FirstRun: prior == nil || len(prior.Quotes) == 0,
		Rows:     Diff(today, prior),
	}
	ev.Core = CoreRows(ev.Rows)
	ev.Contributions = make(map[string]int, len(ev.Core))
	for _, r := range ev.Core {
		c := m.thresholds.Contribution(r)
		ev.Contributions[r.Asset] = c
		ev.Score += c
	}
	ev.Label = LabelFor(ev.Score)

	if ev.FirstRun {
		logger.Info("No prior snapshot before %s, first collection", ev.Date.Format(models.DateLayout))
	} else {
		logger.Debug("Diffed %d quotes against snapshot of %s", len(ev.Rows), prior.Date.Format(models.DateLayout))
	}
	if missing := len(models.CoreAssets) - len(ev.Core); missing > 0 {
		logger.Warn("%d core assets missing from snapshot, scoring the remaining %d", missing, len(ev.Core))
	}
	logger.Info("Risk score %+d (%s)", ev.Score, ev.Label)
	return ev
}
