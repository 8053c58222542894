package okx

import (
	"encoding/json"
	"strconv"
)

// envelope is the common v5 response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// itemStatus is present on every element of a trade endpoint's data array.
type itemStatus struct {
	SCode string `json:"sCode"`
	SMsg  string `json:"sMsg"`
}

type tickerWire struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	AskPx  string `json:"askPx"`
	BidPx  string `json:"bidPx"`
	TS     string `json:"ts"`
}

type instrumentWire struct {
	InstID   string `json:"instId"`
	CtVal    string `json:"ctVal"`
	CtMult   string `json:"ctMult"`
	LotSz    string `json:"lotSz"`
	TickSz   string `json:"tickSz"`
	MinSz    string `json:"minSz"`
	State    string `json:"state"`
	SettleCc string `json:"settleCcy"`
}

type positionWire struct {
	InstID      string `json:"instId"`
	PosSide     string `json:"posSide"`
	Pos         string `json:"pos"`
	AvgPx       string `json:"avgPx"`
	Lever       string `json:"lever"`
	NotionalUsd string `json:"notionalUsd"`
	Margin      string `json:"margin"`
	MgnMode     string `json:"mgnMode"`
	Upl         string `json:"upl"`
	CTime       string `json:"cTime"`
}

type balanceWire struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		Ccy      string `json:"ccy"`
		Eq       string `json:"eq"`
		AvailBal string `json:"availBal"`
	} `json:"details"`
}

type leverageWire struct {
	InstID  string `json:"instId"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
	PosSide string `json:"posSide,omitempty"`
}

type attachAlgoWire struct {
	AttachAlgoClOrdID string `json:"attachAlgoClOrdId,omitempty"`
	TpTriggerPx       string `json:"tpTriggerPx,omitempty"`
	TpOrdPx           string `json:"tpOrdPx,omitempty"`
	TpTriggerPxType   string `json:"tpTriggerPxType,omitempty"`
	SlTriggerPx       string `json:"slTriggerPx,omitempty"`
	SlOrdPx           string `json:"slOrdPx,omitempty"`
	SlTriggerPxType   string `json:"slTriggerPxType,omitempty"`
}

type orderWire struct {
	InstID         string           `json:"instId"`
	TdMode         string           `json:"tdMode"`
	Side           string           `json:"side"`
	OrdType        string           `json:"ordType"`
	Px             string           `json:"px,omitempty"`
	Sz             string           `json:"sz"`
	PosSide        string           `json:"posSide,omitempty"`
	ReduceOnly     bool             `json:"reduceOnly,omitempty"`
	ClOrdID        string           `json:"clOrdId,omitempty"`
	AttachAlgoOrds []attachAlgoWire `json:"attachAlgoOrds,omitempty"`
}

type orderAckWire struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

// parseFloat treats empty strings, which the venue sends for unset
// numeric fields, as zero.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
