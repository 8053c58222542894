package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/perpbot/internal/numeric"
)

// Action is what the decision source asks for on a symbol.
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
	ActionClose      Action = "close"
	ActionHold       Action = "hold"
	ActionRejected   Action = "REJECTED"
)

// ParseAction normalises a raw action string. Unknown values are returned
// as-is so the caller can reject them with a reason.
func ParseAction(s string) Action {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if a == "rejected" {
		return ActionRejected
	}
	return a
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionOpenLong, ActionOpenShort, ActionCloseLong, ActionCloseShort, ActionClose, ActionHold, ActionRejected:
		return true
	}
	return false
}

// IsOpen reports whether a opens a position.
func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// IsClose reports whether a closes a position.
func (a Action) IsClose() bool {
	return a == ActionCloseLong || a == ActionCloseShort || a == ActionClose
}

// Side returns the position side the action refers to. A bare close has no
// side and matches either.
func (a Action) Side() (PositionSide, bool) {
	switch a {
	case ActionOpenLong, ActionCloseLong:
		return SideLong, true
	case ActionOpenShort, ActionCloseShort:
		return SideShort, true
	}
	return "", false
}

// ProtectivePrice is a stop-loss or take-profit level. Either Price is an
// absolute trigger price, or OffsetPct is a fraction away from entry that is
// resolved once the entry price is known.
type ProtectivePrice struct {
	Price     float64 `json:"price,omitempty"`
	OffsetPct float64 `json:"offsetPct,omitempty"`
}

// Resolve returns the absolute trigger for a position opened at entry. For
// a stop-loss the offset moves against the position, for a take-profit in
// its favour.
func (p ProtectivePrice) Resolve(side PositionSide, entry float64, stop bool) float64 {
	if p.Price > 0 {
		return p.Price
	}
	if p.OffsetPct <= 0 || entry <= 0 {
		return 0
	}
	dir := side.Sign()
	if stop {
		dir = -dir
	}
	return entry * (1 + dir*p.OffsetPct)
}

// TradeIntent is one proposed trade from the decision source.
type TradeIntent struct {
	Symbol      string           `json:"symbol"`
	Action      Action           `json:"action"`
	NotionalUSD float64          `json:"notionalUsd"`
	Leverage    float64          `json:"leverage"`
	StopLoss    *ProtectivePrice `json:"stopLoss,omitempty"`
	TakeProfit  *ProtectivePrice `json:"takeProfit,omitempty"`
	Reason      string           `json:"reason,omitempty"`

	// Malformed records why a field could not be decoded. Such intents are
	// rejected by the governor rather than failing the whole batch.
	Malformed string `json:"-"`
}

type rawIntent struct {
	Symbol      string          `json:"symbol"`
	Action      string          `json:"action"`
	NotionalUSD json.RawMessage `json:"notionalUsd"`
	Leverage    json.RawMessage `json:"leverage"`
	StopLoss    json.RawMessage `json:"stopLoss"`
	TakeProfit  json.RawMessage `json:"takeProfit"`
	Reason      string          `json:"reason"`
}

// UnmarshalJSON accepts numbers or strings such as "$1,500" for the
// notional and "5%" for protective levels.
func (t *TradeIntent) UnmarshalJSON(data []byte) error {
	var raw rawIntent
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = TradeIntent{
		Symbol: strings.ToUpper(strings.TrimSpace(raw.Symbol)),
		Action: ParseAction(raw.Action),
		Reason: raw.Reason,
	}

	var problems []string
	if n, ok, err := decodeAmount(raw.NotionalUSD); err != nil {
		problems = append(problems, fmt.Sprintf("notional %s: %v", string(raw.NotionalUSD), err))
	} else if ok {
		t.NotionalUSD = n
	}
	if l, ok, err := decodeAmount(raw.Leverage); err != nil {
		problems = append(problems, fmt.Sprintf("leverage %s: %v", string(raw.Leverage), err))
	} else if ok {
		t.Leverage = l
	}
	t.StopLoss = decodeProtective(raw.StopLoss)
	t.TakeProfit = decodeProtective(raw.TakeProfit)

	if len(problems) > 0 {
		t.Malformed = strings.Join(problems, "; ")
	}
	return nil
}

func decodeAmount(raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false, err
		}
		if strings.TrimSpace(s) == "" {
			return 0, false, nil
		}
		v, err := numeric.ParseAmount(s)
		return v, err == nil, err
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// decodeProtective returns nil for anything that is not a usable level.
func decodeProtective(raw json.RawMessage) *ProtectivePrice {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '{':
		var p ProtectivePrice
		if err := json.Unmarshal(raw, &p); err != nil || (p.Price <= 0 && p.OffsetPct <= 0) {
			return nil
		}
		return &p
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if strings.HasSuffix(s, "%") {
			pct, err := numeric.ParseAmount(strings.TrimSuffix(s, "%"))
			if err != nil || pct <= 0 {
				return nil
			}
			return &ProtectivePrice{OffsetPct: pct / 100}
		}
		v, err := numeric.ParseAmount(s)
		if err != nil || v <= 0 {
			return nil
		}
		return &ProtectivePrice{Price: v}
	default:
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil || v <= 0 {
			return nil
		}
		return &ProtectivePrice{Price: v}
	}
}
