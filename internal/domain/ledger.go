package domain

import (
	"fmt"
	"math"
	"time"
)

// LedgerTolerance absorbs float noise when checking the balance invariant.
const LedgerTolerance = 1e-6

// Ledger is the simulated account: cash, equity and the positions it owns.
// TotalEquity is marked at entry prices, so at rest
// Cash + MarginUsed == TotalEquity; unrealized PnL is added on top by Equity.
type Ledger struct {
	TotalEquity float64    `json:"totalEquity" bson:"totalEquity"`
	Cash        float64    `json:"cash" bson:"cash"`
	Positions   []Position `json:"positions" bson:"positions"`
	Version     int64      `json:"version" bson:"version"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// NewLedger returns a flat ledger funded with initial.
func NewLedger(initial float64) Ledger {
	return Ledger{
		TotalEquity: initial,
		Cash:        initial,
		Positions:   []Position{},
	}
}

// Clone returns a deep copy so a failed mutation never leaks into the
// caller's view.
func (l Ledger) Clone() Ledger {
	out := l
	out.Positions = make([]Position, len(l.Positions))
	copy(out.Positions, l.Positions)
	return out
}

// MarginUsed sums the margin reserved by open positions.
func (l Ledger) MarginUsed() float64 {
	var m float64
	for _, p := range l.Positions {
		m += p.Margin
	}
	return m
}

// Equity marks the ledger to market. Missing prices fall back to entry.
func (l Ledger) Equity(prices map[string]float64) float64 {
	eq := l.Cash + l.MarginUsed()
	for _, p := range l.Positions {
		if px, ok := prices[p.Symbol]; ok && px > 0 {
			eq += p.PnLAt(px)
		}
	}
	return eq
}

// Drift is how far the stored equity is from cash plus reserved margin.
func (l Ledger) Drift() float64 {
	return l.Cash + l.MarginUsed() - l.TotalEquity
}

// Exposure returns long and short entry notional and the open count.
func (l Ledger) Exposure() (long, short float64, open int) {
	for _, p := range l.Positions {
		switch p.Side {
		case SideLong:
			long += p.EntryNotional()
		case SideShort:
			short += p.EntryNotional()
		}
	}
	return long, short, len(l.Positions)
}

// Find returns the indexes of positions matching symbol and optional side.
func (l Ledger) Find(symbol string, side PositionSide) []int {
	var idx []int
	for i, p := range l.Positions {
		if p.Matches(symbol, side) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Open reserves margin and debits the fee for pos. A second open on the same
// symbol and side is merged into the existing position at the weighted
// average entry, the way the venue nets fills.
func (l *Ledger) Open(pos Position, fee float64) error {
	if pos.Contracts <= 0 || pos.EntryPrice <= 0 {
		return fmt.Errorf("ledger: open %s: %w", pos.Symbol, ErrInvalidIntent)
	}
	if pos.Margin+fee > l.Cash+LedgerTolerance {
		return fmt.Errorf("ledger: open %s needs %.2f, cash %.2f: %w",
			pos.Symbol, pos.Margin+fee, l.Cash, ErrInsufficientCash)
	}

	l.Cash -= pos.Margin + fee
	l.TotalEquity -= fee
	pos.OpenFee += fee

	if idx := l.Find(pos.Symbol, pos.Side); len(idx) > 0 {
		cur := &l.Positions[idx[0]]
		total := cur.Contracts + pos.Contracts
		cur.EntryPrice = (cur.EntryPrice*cur.Contracts + pos.EntryPrice*pos.Contracts) / total
		cur.Contracts = total
		cur.Margin += pos.Margin
		cur.Notional += pos.Notional
		cur.OpenFee += pos.OpenFee
		cur.Leverage = pos.Leverage
		if pos.StopLoss > 0 {
			cur.StopLoss = pos.StopLoss
		}
		if pos.TakeProfit > 0 {
			cur.TakeProfit = pos.TakeProfit
		}
		return nil
	}

	l.Positions = append(l.Positions, pos)
	return nil
}

// Close settles contracts of the position at idx at exitPrice and returns
// the history record. contracts <= 0, or at least the open size, closes the
// whole position and removes it; otherwise margin and the open fee are
// released pro rata.
func (l *Ledger) Close(idx int, contracts, exitPrice, fee float64, closedAt time.Time, id string) (TradeRecord, error) {
	if idx < 0 || idx >= len(l.Positions) {
		return TradeRecord{}, ErrNothingToClose
	}
	if exitPrice <= 0 {
		return TradeRecord{}, fmt.Errorf("ledger: close at price %v: %w", exitPrice, ErrInvalidIntent)
	}

	pos := l.Positions[idx]
	full := contracts <= 0 || contracts >= pos.Contracts
	part := pos
	if !full {
		f := contracts / pos.Contracts
		part.Contracts = contracts
		part.Margin = pos.Margin * f
		part.OpenFee = pos.OpenFee * f
		part.Notional = pos.Notional * f
	}
	pnl := part.PnLAt(exitPrice)

	l.Cash += part.Margin + pnl - fee
	l.TotalEquity += pnl - fee
	if full {
		l.Positions = append(l.Positions[:idx], l.Positions[idx+1:]...)
	} else {
		rest := &l.Positions[idx]
		rest.Contracts -= part.Contracts
		rest.Margin -= part.Margin
		rest.OpenFee -= part.OpenFee
		rest.Notional -= part.Notional
	}

	var pct float64
	if part.Margin > 0 {
		pct = pnl / part.Margin * 100
	}

	return TradeRecord{
		ID:         id,
		Symbol:     part.Symbol,
		Side:       part.Side,
		EntryPrice: part.EntryPrice,
		ExitPrice:  exitPrice,
		Contracts:  part.Contracts,
		CtVal:      part.CtVal,
		Leverage:   part.Leverage,
		Margin:     part.Margin,
		Fees:       part.OpenFee + fee,
		PnL:        pnl,
		PnLPct:     math.Round(pct*100) / 100,
		OpenedAt:   part.OpenedAt,
		ClosedAt:   closedAt,
	}, nil
}
