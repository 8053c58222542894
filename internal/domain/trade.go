package domain

import "time"

// TradeRecord is one settled round trip in the trade history.
type TradeRecord struct {
	ID         string       `json:"id" bson:"_id"`
	Symbol     string       `json:"symbol" bson:"symbol"`
	Side       PositionSide `json:"side" bson:"side"`
	EntryPrice float64      `json:"entryPrice" bson:"entryPrice"`
	ExitPrice  float64      `json:"exitPrice" bson:"exitPrice"`
	Contracts  float64      `json:"contracts" bson:"contracts"`
	CtVal      float64      `json:"ctVal" bson:"ctVal"`
	Leverage   float64      `json:"leverage" bson:"leverage"`
	Margin     float64      `json:"margin" bson:"margin"`
	Fees       float64      `json:"fees" bson:"fees"` // open + close fee
	PnL        float64      `json:"pnl" bson:"pnl"`   // gross of fees
	PnLPct     float64      `json:"pnlPercent" bson:"pnlPercent"`
	OpenedAt   time.Time    `json:"openedAt" bson:"openedAt"`
	ClosedAt   time.Time    `json:"closedAt" bson:"closedAt"`
}

// NetPnL is the realized result after fees.
func (t TradeRecord) NetPnL() float64 {
	return t.PnL - t.Fees
}
