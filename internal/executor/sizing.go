package executor

import (
	"fmt"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/numeric"
)

// SizingConfig controls the smart round-up for allocations smaller than one
// lot.
type SizingConfig struct {
	// RoundUpMinNotional is the notional an allocation must exceed to be
	// bumped to the minimum size.
	RoundUpMinNotional float64
	// RoundUpEquityPct caps the minimum size at this fraction of equity.
	RoundUpEquityPct float64
}

// DefaultSizingConfig returns $50 and 10%.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{RoundUpMinNotional: 50, RoundUpEquityPct: 0.10}
}

// Sizing is the outcome of converting a dollar allocation to contracts.
type Sizing struct {
	Contracts float64
	RoundedUp bool
	Reason    string // set when Contracts is zero
}

// SizeContracts converts notional dollars to a contract count at price,
// rounded half-up to the lot size. An allocation below the venue minimum
// is forced to the minimum when it exceeds cfg.RoundUpMinNotional and the
// minimum order is worth less than cfg.RoundUpEquityPct of equity; otherwise
// the result is zero with a reason.
func SizeContracts(notional, price float64, inst domain.Instrument, equity float64, cfg SizingConfig) Sizing {
	if notional <= 0 || price <= 0 || inst.CtVal <= 0 {
		return Sizing{Reason: fmt.Sprintf("too small: cannot size $%.2f at price %v", notional, price)}
	}

	contractValue := numeric.Mul(price, inst.CtVal)
	contracts := numeric.RoundToStep(numeric.Div(notional, contractValue), inst.LotSz)
	minimum := inst.MinContracts()
	if contracts >= minimum {
		return Sizing{Contracts: contracts}
	}

	minValue := numeric.Mul(minimum, contractValue)
	if notional > cfg.RoundUpMinNotional && equity > 0 && minValue < equity*cfg.RoundUpEquityPct {
		return Sizing{Contracts: minimum, RoundedUp: true}
	}
	return Sizing{Reason: fmt.Sprintf("too small: $%.2f is below the minimum order of $%.2f", notional, minValue)}
}
