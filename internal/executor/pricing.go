package executor

import (
	"fmt"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/numeric"
)

// BoundedLimitPrice returns the worst price an order on side may fill at: the
// ask plus tol for buys and the bid minus tol for sells, snapped to tickSz
// toward the touch so the tick rounding never widens the bound.
func BoundedLimitPrice(side domain.OrderSide, t domain.Ticker, tol, tickSz float64) (float64, error) {
	switch side {
	case domain.OrderSideBuy:
		ref := t.AskPx
		if ref <= 0 {
			ref = t.Last
		}
		if ref <= 0 {
			return 0, fmt.Errorf("executor: no ask for %s", t.InstID)
		}
		px := numeric.FloorToStep(numeric.Mul(ref, 1+tol), tickSz)
		if px < ref {
			px = numeric.CeilToStep(ref, tickSz)
		}
		return px, nil

	case domain.OrderSideSell:
		ref := t.BidPx
		if ref <= 0 {
			ref = t.Last
		}
		if ref <= 0 {
			return 0, fmt.Errorf("executor: no bid for %s", t.InstID)
		}
		px := numeric.CeilToStep(numeric.Mul(ref, 1-tol), tickSz)
		if px > ref {
			px = numeric.FloorToStep(ref, tickSz)
		}
		return px, nil
	}
	return 0, fmt.Errorf("executor: unknown order side %q", side)
}

// touchPrice is where a simulated market order on side fills.
func touchPrice(side domain.OrderSide, t domain.Ticker) float64 {
	if side == domain.OrderSideBuy && t.AskPx > 0 {
		return t.AskPx
	}
	if side == domain.OrderSideSell && t.BidPx > 0 {
		return t.BidPx
	}
	return t.Mark()
}

// protectiveLevels resolves the stop-loss and take-profit triggers for a
// position on side entered at entry, snapped to tickSz.
func protectiveLevels(intent domain.TradeIntent, side domain.PositionSide, entry, tickSz float64) (sl, tp float64) {
	if intent.StopLoss != nil {
		sl = numeric.RoundToStep(intent.StopLoss.Resolve(side, entry, true), tickSz)
	}
	if intent.TakeProfit != nil {
		tp = numeric.RoundToStep(intent.TakeProfit.Resolve(side, entry, false), tickSz)
	}
	return sl, tp
}
