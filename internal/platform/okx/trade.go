package okx

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/numeric"
)

// PlaceOrder submits one order, with its protective legs attached when
// present. The client order id is reused verbatim across transport retries
// so a retried submission cannot fill twice.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderAck, error) {
	body := buildOrder(req)

	var rows []orderAckWire
	if err := c.do(ctx, http.MethodPost, "/api/v5/trade/order", nil, body, true, &rows); err != nil {
		return domain.OrderAck{}, err
	}
	if len(rows) == 0 {
		return domain.OrderAck{}, fmt.Errorf("okx: place order %s: empty response", req.InstID)
	}
	if r := rows[0]; r.SCode != "" && r.SCode != "0" {
		return domain.OrderAck{}, &APIError{Code: "1", SCode: r.SCode, SMsg: r.SMsg}
	}

	return domain.OrderAck{
		OrderID:   rows[0].OrdID,
		ClientID:  rows[0].ClOrdID,
		InstID:    req.InstID,
		Side:      string(req.Side),
		Type:      string(req.Type),
		Price:     req.Price,
		Contracts: req.Contracts,
		PosSide:   req.PosSide,
	}, nil
}

func buildOrder(req domain.OrderRequest) orderWire {
	o := orderWire{
		InstID:     req.InstID,
		TdMode:     req.TdMode,
		Side:       string(req.Side),
		OrdType:    string(req.Type),
		Sz:         numeric.Format(req.Contracts, req.LotSz),
		PosSide:    req.PosSide,
		ReduceOnly: req.ReduceOnly,
		ClOrdID:    req.ClientID,
	}
	if req.Type == domain.OrderTypeLimit {
		o.Px = numeric.Format(req.Price, req.TickSz)
	}

	if a := req.Algo; a != nil && (a.SLTriggerPx > 0 || a.TPTriggerPx > 0) {
		pxType := a.TriggerPxType
		if pxType == "" {
			pxType = domain.TriggerPxLast
		}
		w := attachAlgoWire{AttachAlgoClOrdID: a.ClientID}
		if a.TPTriggerPx > 0 {
			w.TpTriggerPx = numeric.Format(a.TPTriggerPx, req.TickSz)
			w.TpOrdPx = domain.MarketOrderPx
			w.TpTriggerPxType = pxType
		}
		if a.SLTriggerPx > 0 {
			w.SlTriggerPx = numeric.Format(a.SLTriggerPx, req.TickSz)
			w.SlOrdPx = domain.MarketOrderPx
			w.SlTriggerPxType = pxType
		}
		o.AttachAlgoOrds = []attachAlgoWire{w}
	}
	return o
}
