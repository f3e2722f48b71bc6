package monitor

import (
	"github.com/rewired-gh/marketpulse/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ChangePct returns (close - prev) / prev * 100 rounded to two places, half
// away from zero. The result is invalid when either operand is absent or prev
// is zero.
func ChangePct(close, prev decimal.NullDecimal) decimal.NullDecimal {
	if !close.Valid || !prev.Valid || prev.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	pct := close.Decimal.Sub(prev.Decimal).Div(prev.Decimal).Mul(hundred).Round(2)
	return decimal.NewNullDecimal(pct)
}

// Diff left-joins today's quotes onto the prior snapshot by (group, asset).
// Every quote of today appears exactly once and in its original order; prior
// quotes without a counterpart today are dropped. A nil or empty prior yields
// rows with PrevClose and ChangePct absent.
func Diff(today models.Snapshot, prior *models.Snapshot) []models.DiffRow {
	var previous map[models.Key]decimal.NullDecimal
	if prior != nil && len(prior.Quotes) > 0 {
		previous = make(map[models.Key]decimal.NullDecimal, len(prior.Quotes))
		for _, q := range prior.Quotes {
			previous[q.Key()] = q.Close
		}
	}

	rows := make([]models.DiffRow, 0, len(today.Quotes))
	for _, q := range today.Quotes {
		row := models.DiffRow{Quote: q}
		if prev, ok := previous[q.Key()]; ok {
			row.PrevClose = prev
			row.ChangePct = ChangePct(q.Close, prev)
		}
		rows = append(rows, row)
	}
	return rows
}
