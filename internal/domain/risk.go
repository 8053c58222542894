package domain

import (
	"strings"
	"time"
)

// Regime is the externally supplied macro market classification.
type Regime string

const (
	RegimeBull    Regime = "bull"
	RegimeBear    Regime = "bear"
	RegimeNeutral Regime = "neutral"
)

// ParseRegime maps free text to a regime, defaulting to neutral.
func ParseRegime(s string) Regime {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bull", "bullish":
		return RegimeBull
	case "bear", "bearish":
		return RegimeBear
	default:
		return RegimeNeutral
	}
}

// Volatility is the externally supplied volatility state.
type Volatility string

const (
	VolatilityNormal  Volatility = "normal"
	VolatilityExtreme Volatility = "extreme"
)

// VolatilityFromFear classifies a fear & greed reading: anything outside
// [low, high] is extreme.
func VolatilityFromFear(fear, low, high float64) Volatility {
	if fear < low || fear > high {
		return VolatilityExtreme
	}
	return VolatilityNormal
}

// RiskLimits are the caps the governor enforces for one batch.
type RiskLimits struct {
	MaxLongPct         float64 `json:"maxLongPct"`
	MaxShortPct        float64 `json:"maxShortPct"`
	MaxLeverage        float64 `json:"maxLeverage"`
	MinOrderUSD        float64 `json:"minOrderUsd"`
	Tolerance          float64 `json:"tolerance"`
	MaxPositions       int     `json:"maxPositions"`
	DefaultStopLossPct float64 `json:"defaultStopLossPct"`
}

// ExposureSnapshot is the account state the governor works from. It is
// rebuilt at the start of every batch and never carried between cycles.
type ExposureSnapshot struct {
	Equity        float64   `json:"equity"`
	LongNotional  float64   `json:"longNotional"`
	ShortNotional float64   `json:"shortNotional"`
	OpenPositions int       `json:"openPositions"`
	TakenAt       time.Time `json:"takenAt"`
}
