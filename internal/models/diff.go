package models

import "github.com/shopspring/decimal"

// Core asset codes feeding the risk score.
const (
	SP500 = "SP500"
	VIX   = "VIX"
	US10Y = "US_10Y"
	DXY   = "DXY"
	BRENT = "BRENT"
)

// CoreAssets lists the core assets in digest order.
var CoreAssets = []string{SP500, VIX, US10Y, DXY, BRENT}

// DiffRow is a quote joined with the prior snapshot's close for the same key.
type DiffRow struct {
	Quote
	PrevClose decimal.NullDecimal `json:"prev_close"`
	ChangePct decimal.NullDecimal `json:"change_pct"`
}

// RiskLabel is the ordinal risk mood derived from the core assets.
type RiskLabel int

const (
	StrongRiskOff RiskLabel = iota
	SoftRiskOff
	Neutral
	WeakRiskOn
	StrongRiskOn
)

func (l RiskLabel) String() string {
	switch l {
	case StrongRiskOff:
		return "strong risk-off"
	case SoftRiskOff:
		return "soft risk-off"
	case Neutral:
		return "neutral"
	case WeakRiskOn:
		return "weak risk-on"
	case StrongRiskOn:
		return "strong risk-on"
	default:
		return "unknown"
	}
}

// MarshalText renders the label by name.
func (l RiskLabel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
