package domain

// OrderSide is the venue order side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the venue order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Trigger price types accepted for attached protective orders.
const (
	TriggerPxLast  = "last"
	TriggerPxMark  = "mark"
	TriggerPxIndex = "index"
)

// MarketOrderPx tells the venue to fill a triggered protective leg at
// market instead of at a fixed price.
const MarketOrderPx = "-1"

// AttachedAlgo is a stop-loss / take-profit leg submitted atomically with
// the parent order.
type AttachedAlgo struct {
	ClientID      string
	TPTriggerPx   float64
	SLTriggerPx   float64
	TriggerPxType string
}

// OrderRequest carries everything needed to submit one order.
type OrderRequest struct {
	InstID     string
	TdMode     string // isolated or cross
	Side       OrderSide
	Type       OrderType
	Price      float64 // ignored for market orders
	Contracts  float64
	PosSide    string // long, short, net or empty to let the venue decide
	ReduceOnly bool
	ClientID   string
	Algo       *AttachedAlgo

	// TickSz and LotSz format Price and Contracts on the wire.
	TickSz float64
	LotSz  float64
}

// OrderAck is the venue's acknowledgement of a submitted order.
type OrderAck struct {
	OrderID   string  `json:"ordId"`
	ClientID  string  `json:"clOrdId"`
	InstID    string  `json:"instId"`
	Side      string  `json:"side"`
	Type      string  `json:"ordType"`
	Price     float64 `json:"px,omitempty"`
	Contracts float64 `json:"sz"`
	PosSide   string  `json:"posSide,omitempty"`
}

// LeverageRequest sets the leverage used for new orders on an instrument.
type LeverageRequest struct {
	InstID   string
	Leverage float64
	MgnMode  string
	PosSide  string // empty in one-way (net) mode
}
