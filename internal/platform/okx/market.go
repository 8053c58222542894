package okx

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// Ticker returns the top of book for instID.
func (c *Client) Ticker(ctx context.Context, instID string) (domain.Ticker, error) {
	var rows []tickerWire
	q := url.Values{"instId": {instID}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/market/ticker", q, nil, false, &rows); err != nil {
		return domain.Ticker{}, err
	}
	if len(rows) == 0 {
		return domain.Ticker{}, fmt.Errorf("okx: ticker %s: %w", instID, domain.ErrNotFound)
	}

	r := rows[0]
	t := domain.Ticker{
		InstID: r.InstID,
		Last:   parseFloat(r.Last),
		BidPx:  parseFloat(r.BidPx),
		AskPx:  parseFloat(r.AskPx),
	}
	if ms, err := strconv.ParseInt(r.TS, 10, 64); err == nil {
		t.TS = time.UnixMilli(ms).UTC()
	}
	return t, nil
}

// Instrument returns the contract specification for a swap instID.
func (c *Client) Instrument(ctx context.Context, instID string) (domain.Instrument, error) {
	var rows []instrumentWire
	q := url.Values{"instType": {"SWAP"}, "instId": {instID}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/public/instruments", q, nil, false, &rows); err != nil {
		return domain.Instrument{}, fmt.Errorf("%w: %w", domain.ErrInstrumentUnavailable, err)
	}
	if len(rows) == 0 {
		return domain.Instrument{}, fmt.Errorf("okx: instrument %s: %w", instID, domain.ErrInstrumentUnavailable)
	}

	r := rows[0]
	inst := domain.Instrument{
		InstID: r.InstID,
		Symbol: domain.SymbolFromInstID(r.InstID),
		CtVal:  parseFloat(r.CtVal),
		CtMult: parseFloat(r.CtMult),
		LotSz:  parseFloat(r.LotSz),
		TickSz: parseFloat(r.TickSz),
		MinSz:  parseFloat(r.MinSz),
	}
	if inst.CtMult == 0 {
		inst.CtMult = 1
	}
	if inst.CtVal <= 0 {
		return domain.Instrument{}, fmt.Errorf("okx: instrument %s has ctVal %q: %w", instID, r.CtVal, domain.ErrInstrumentUnavailable)
	}
	return inst, nil
}
