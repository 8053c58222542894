package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeIntentUnmarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want TradeIntent
	}{
		{
			name: "numbers",
			in:   `{"symbol":"btc","action":"open_long","notionalUsd":1500,"leverage":3,"stopLoss":61000}`,
			want: TradeIntent{Symbol: "BTC", Action: ActionOpenLong, NotionalUSD: 1500, Leverage: 3, StopLoss: &ProtectivePrice{Price: 61000}},
		},
		{
			name: "money strings",
			in:   `{"symbol":"ETH","action":"OPEN_SHORT","notionalUsd":"$1,500.50","leverage":"5","stopLoss":"5%","takeProfit":"2900"}`,
			want: TradeIntent{
				Symbol: "ETH", Action: ActionOpenShort, NotionalUSD: 1500.5, Leverage: 5,
				StopLoss: &ProtectivePrice{OffsetPct: 0.05}, TakeProfit: &ProtectivePrice{Price: 2900},
			},
		},
		{
			name: "protective object",
			in:   `{"symbol":"SOL","action":"open_long","notionalUsd":100,"takeProfit":{"offsetPct":0.1}}`,
			want: TradeIntent{Symbol: "SOL", Action: ActionOpenLong, NotionalUSD: 100, TakeProfit: &ProtectivePrice{OffsetPct: 0.1}},
		},
		{
			name: "unusable stop dropped",
			in:   `{"symbol":"SOL","action":"close","stopLoss":"None"}`,
			want: TradeIntent{Symbol: "SOL", Action: ActionClose},
		},
		{
			name: "bad notional is malformed",
			in:   `{"symbol":"SOL","action":"open_long","notionalUsd":"lots"}`,
			want: TradeIntent{Symbol: "SOL", Action: ActionOpenLong},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got TradeIntent
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want.Symbol, got.Symbol)
			assert.Equal(t, tt.want.Action, got.Action)
			assert.InDelta(t, tt.want.NotionalUSD, got.NotionalUSD, 1e-9)
			assert.InDelta(t, tt.want.Leverage, got.Leverage, 1e-9)
			assert.Equal(t, tt.want.StopLoss, got.StopLoss)
			assert.Equal(t, tt.want.TakeProfit, got.TakeProfit)
		})
	}
}

func TestTradeIntentMalformed(t *testing.T) {
	t.Parallel()

	var got TradeIntent
	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"SOL","action":"open_long","notionalUsd":"lots"}`), &got))
	assert.Contains(t, got.Malformed, "notional")

	require.NoError(t, json.Unmarshal([]byte(`{"symbol":"SOL","action":"open_long","notionalUsd":"12"}`), &got))
	assert.Empty(t, got.Malformed)
}

func TestProtectivePriceResolve(t *testing.T) {
	t.Parallel()

	five := ProtectivePrice{OffsetPct: 0.05}
	assert.InDelta(t, 95, five.Resolve(SideLong, 100, true), 1e-9)
	assert.InDelta(t, 105, five.Resolve(SideShort, 100, true), 1e-9)
	assert.InDelta(t, 105, five.Resolve(SideLong, 100, false), 1e-9)
	assert.InDelta(t, 95, five.Resolve(SideShort, 100, false), 1e-9)

	abs := ProtectivePrice{Price: 90}
	assert.Equal(t, 90.0, abs.Resolve(SideLong, 100, true))
	assert.Zero(t, ProtectivePrice{}.Resolve(SideLong, 100, true))
}

func TestActionClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, ParseAction(" Open_Long ").IsOpen())
	assert.True(t, ActionClose.IsClose())
	assert.Equal(t, ActionRejected, ParseAction("rejected"))
	assert.False(t, Action("buy_more").Valid())

	side, ok := ActionCloseShort.Side()
	assert.True(t, ok)
	assert.Equal(t, SideShort, side)
	_, ok = ActionClose.Side()
	assert.False(t, ok)
}
