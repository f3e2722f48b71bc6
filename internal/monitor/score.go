package monitor

import (
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/shopspring/decimal"
)

// Thresholds holds the VIX neutral band. Both ends are exclusive: a close of
// exactly Calm or Stress contributes 0.
type Thresholds struct {
	VIXCalm   decimal.Decimal
	VIXStress decimal.Decimal
}

var DefaultThresholds = Thresholds{
	VIXCalm:   decimal.NewFromInt(18),
	VIXStress: decimal.NewFromInt(25),
}

// Contribution scores a single core row. Rows for other assets, and rows whose
// needed field is absent, contribute 0.
func (t Thresholds) Contribution(row models.DiffRow) int {
	switch row.Asset {
	case models.VIX:
		if !row.Close.Valid {
			return 0
		}
		switch {
		case row.Close.Decimal.LessThan(t.VIXCalm):
			return 1
		case row.Close.Decimal.GreaterThan(t.VIXStress):
			return -1
		}
		return 0
	case models.SP500, models.US10Y, models.BRENT:
		if !row.ChangePct.Valid {
			return 0
		}
		if row.ChangePct.Decimal.IsPositive() {
			return 1
		}
		return -1
	case models.DXY:
		if !row.ChangePct.Valid {
			return 0
		}
		if row.ChangePct.Decimal.IsNegative() {
			return 1
		}
		return -1
	}
	return 0
}

// CoreRows picks the core assets out of rows in digest order. When an asset
// code occurs in several groups the first row wins; missing assets are skipped.
func CoreRows(rows []models.DiffRow) []models.DiffRow {
	byAsset := make(map[string]models.DiffRow, len(models.CoreAssets))
	for _, r := range rows {
		if _, seen := byAsset[r.Asset]; !seen {
			byAsset[r.Asset] = r
		}
	}
	core := make([]models.DiffRow, 0, len(models.CoreAssets))
	for _, code := range models.CoreAssets {
		if r, ok := byAsset[code]; ok {
			core = append(core, r)
		}
	}
	return core
}

// Score sums the contributions of the core assets found in rows. The result
// lies in [-5, 5].
func (t Thresholds) Score(rows []models.DiffRow) int {
	score := 0
	for _, r := range CoreRows(rows) {
		score += t.Contribution(r)
	}
	return score
}

// Score scores rows with the default VIX band.
func Score(rows []models.DiffRow) int {
	return DefaultThresholds.Score(rows)
}

// LabelFor maps a score to its risk label. Thresholds are checked in order.
func LabelFor(score int) models.RiskLabel {
	switch {
	case score >= 3:
		return models.StrongRiskOn
	case score >= 1:
		return models.WeakRiskOn
	case score == 0:
		return models.Neutral
	case score >= -2:
		return models.SoftRiskOff
	default:
		return models.StrongRiskOff
	}
}
