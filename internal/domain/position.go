package domain

import "time"

// PositionSide is the direction of an open position.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Sign is +1 for long and -1 for short.
func (s PositionSide) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// OpenOrderSide is the order side that opens a position on s.
func (s PositionSide) OpenOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// CloseOrderSide is the order side that reduces a position on s.
func (s PositionSide) CloseOrderSide() OrderSide {
	if s == SideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Position is an open position, either owned by the simulated ledger or
// read back from the venue.
type Position struct {
	Symbol     string       `json:"symbol" bson:"symbol"`
	InstID     string       `json:"instId" bson:"instId"`
	Side       PositionSide `json:"side" bson:"side"`
	PosSide    string       `json:"posSide,omitempty" bson:"posSide,omitempty"` // venue side: long, short or net
	Contracts  float64      `json:"contracts" bson:"contracts"`
	CtVal      float64      `json:"ctVal" bson:"ctVal"`
	EntryPrice float64      `json:"entryPrice" bson:"entryPrice"`
	Leverage   float64      `json:"leverage" bson:"leverage"`
	Margin     float64      `json:"margin" bson:"margin"`
	Notional   float64      `json:"notionalUsd,omitempty" bson:"notionalUsd,omitempty"`
	StopLoss   float64      `json:"stopLoss,omitempty" bson:"stopLoss,omitempty"`
	TakeProfit float64      `json:"takeProfit,omitempty" bson:"takeProfit,omitempty"`
	OpenFee    float64      `json:"openFee,omitempty" bson:"openFee,omitempty"`
	OpenedAt   time.Time    `json:"openedAt" bson:"openedAt"`
}

// EntryNotional is the position's dollar value at entry.
func (p Position) EntryNotional() float64 {
	if p.Notional > 0 {
		return p.Notional
	}
	return p.Contracts * p.CtVal * p.EntryPrice
}

// PnLAt returns the profit or loss of closing the full position at price.
func (p Position) PnLAt(price float64) float64 {
	return (price - p.EntryPrice) * p.Contracts * p.CtVal * p.Side.Sign()
}

// Matches reports whether p is on symbol and, when side is set, on side.
func (p Position) Matches(symbol string, side PositionSide) bool {
	if p.Symbol != symbol {
		return false
	}
	return side == "" || p.Side == side
}
