// Package numeric holds the decimal rounding helpers used to turn float
// quantities into venue-legal sizes and prices.
package numeric

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyAmount is returned by ParseAmount for blank input.
var ErrEmptyAmount = errors.New("numeric: empty amount")

// RoundToStep rounds v half-up to the nearest multiple of step. A
// non-positive step returns v rounded half-up to an integer.
func RoundToStep(v, step float64) float64 {
	return snap(v, step, func(d decimal.Decimal) decimal.Decimal { return d.Round(0) })
}

// FloorToStep rounds v down to a multiple of step.
func FloorToStep(v, step float64) float64 {
	return snap(v, step, decimal.Decimal.Floor)
}

// CeilToStep rounds v up to a multiple of step.
func CeilToStep(v, step float64) float64 {
	return snap(v, step, decimal.Decimal.Ceil)
}

func snap(v, step float64, round func(decimal.Decimal) decimal.Decimal) float64 {
	dv := decimal.NewFromFloat(v)
	if step <= 0 {
		f, _ := round(dv).Float64()
		return f
	}
	ds := decimal.NewFromFloat(step)
	f, _ := round(dv.Div(ds)).Mul(ds).Float64()
	return f
}

// Places returns the number of decimal places implied by step, e.g. 2 for
// 0.01 and 0 for 1 or 10.
func Places(step float64) int32 {
	if step <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

// Format renders v with exactly the precision implied by step, which is how
// the venue expects px and sz strings.
func Format(v, step float64) string {
	return decimal.NewFromFloat(v).StringFixed(Places(step))
}

// ParseAmount parses a money-like string, tolerating a leading currency sign,
// thousands separators and surrounding whitespace ("$1,500.50").
func ParseAmount(s string) (float64, error) {
	clean := strings.NewReplacer("$", "", ",", "", "_", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" {
		return 0, ErrEmptyAmount
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("numeric: parse amount %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// Mul multiplies in decimal to avoid binary float drift in money math.
func Mul(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Float64()
	return f
}

// Div divides in decimal. Division by zero returns 0.
func Div(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	f, _ := decimal.NewFromFloat(a).Div(decimal.NewFromFloat(b)).Float64()
	return f
}
