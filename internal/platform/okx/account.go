package okx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/numeric"
)

// SetLeverage sets the leverage for new orders on an instrument. A rejection
// caused by the posSide qualifier is returned wrapping domain.ErrPositionMode
// so the caller can retry without it.
func (c *Client) SetLeverage(ctx context.Context, req domain.LeverageRequest) error {
	body := leverageWire{
		InstID:  req.InstID,
		Lever:   strconv.FormatFloat(req.Leverage, 'f', -1, 64),
		MgnMode: req.MgnMode,
		PosSide: req.PosSide,
	}
	err := c.do(ctx, http.MethodPost, "/api/v5/account/set-leverage", nil, body, true, nil)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if req.PosSide != "" && errors.As(err, &apiErr) && (apiErr.Code == "51000" || apiErr.PositionModeMismatch()) {
		return fmt.Errorf("%w: %w", domain.ErrPositionMode, err)
	}
	return err
}

// Positions returns every open swap position on the account.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	var rows []positionWire
	q := url.Values{"instType": {"SWAP"}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/positions", q, nil, true, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		pos := parseFloat(r.Pos)
		if pos == 0 {
			continue
		}

		side := domain.SideLong
		switch r.PosSide {
		case "short":
			side = domain.SideShort
		case "net":
			if pos < 0 {
				side = domain.SideShort
			}
		}

		p := domain.Position{
			Symbol:     domain.SymbolFromInstID(r.InstID),
			InstID:     r.InstID,
			Side:       side,
			PosSide:    r.PosSide,
			Contracts:  math.Abs(pos),
			EntryPrice: parseFloat(r.AvgPx),
			Leverage:   parseFloat(r.Lever),
			Margin:     parseFloat(r.Margin),
			Notional:   math.Abs(parseFloat(r.NotionalUsd)),
		}
		if ms, err := strconv.ParseInt(r.CTime, 10, 64); err == nil {
			p.OpenedAt = time.UnixMilli(ms).UTC()
		}
		out = append(out, p)
	}
	return out, nil
}

// Equity returns the account equity in ccy.
func (c *Client) Equity(ctx context.Context, ccy string) (float64, error) {
	var rows []balanceWire
	q := url.Values{"ccy": {ccy}}
	if err := c.do(ctx, http.MethodGet, "/api/v5/account/balance", q, nil, true, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("okx: balance %s: %w", ccy, domain.ErrNotFound)
	}

	for _, d := range rows[0].Details {
		if d.Ccy == "" || d.Ccy == ccy {
			if eq, err := numeric.ParseAmount(d.Eq); err == nil {
				return eq, nil
			}
		}
	}
	return parseFloat(rows[0].TotalEq), nil
}
