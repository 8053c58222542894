package domain

import (
	"strings"
	"time"
)

// Instrument is the venue's contract specification for one swap.
type Instrument struct {
	InstID string  // e.g. "BTC-USDT-SWAP"
	Symbol string  // e.g. "BTC"
	CtVal  float64 // units of underlying per contract
	CtMult float64
	LotSz  float64 // contract count increment
	TickSz float64 // price increment
	MinSz  float64 // minimum order size in contracts
}

// MinContracts is the smallest order the venue accepts.
func (i Instrument) MinContracts() float64 {
	if i.MinSz > i.LotSz {
		return i.MinSz
	}
	if i.LotSz > 0 {
		return i.LotSz
	}
	return 1
}

// Ticker is the top of book for an instrument.
type Ticker struct {
	InstID string
	Last   float64
	BidPx  float64
	AskPx  float64
	TS     time.Time
}

// Mark returns the best available reference price.
func (t Ticker) Mark() float64 {
	if t.Last > 0 {
		return t.Last
	}
	if t.BidPx > 0 && t.AskPx > 0 {
		return (t.BidPx + t.AskPx) / 2
	}
	if t.AskPx > 0 {
		return t.AskPx
	}
	return t.BidPx
}

// SwapInstID builds the perpetual swap instrument id for a symbol.
func SwapInstID(symbol, quote string) string {
	if quote == "" {
		quote = "USDT"
	}
	return strings.ToUpper(symbol) + "-" + strings.ToUpper(quote) + "-SWAP"
}

// SymbolFromInstID is the inverse of SwapInstID.
func SymbolFromInstID(instID string) string {
	if i := strings.IndexByte(instID, '-'); i > 0 {
		return instID[:i]
	}
	return instID
}
