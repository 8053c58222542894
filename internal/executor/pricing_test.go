package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestBoundedLimitPrice(t *testing.T) {
	t.Parallel()

	btc := domain.Ticker{InstID: "BTC-USDT-SWAP", Last: 65_000, BidPx: 64_990, AskPx: 65_000}

	tests := []struct {
		name   string
		side   domain.OrderSide
		ticker domain.Ticker
		tol    float64
		tick   float64
		want   float64
	}{
		{name: "buy major", side: domain.OrderSideBuy, ticker: btc, tol: 0.002, tick: 0.1, want: 65_130},
		{name: "sell major", side: domain.OrderSideSell, ticker: btc, tol: 0.002, tick: 0.1, want: 64_860.1},
		{name: "buy floors to tick", side: domain.OrderSideBuy, ticker: domain.Ticker{AskPx: 0.15373}, tol: 0.005, tick: 0.0001, want: 0.1544},
		{name: "sell ceils to tick", side: domain.OrderSideSell, ticker: domain.Ticker{BidPx: 0.15373}, tol: 0.005, tick: 0.0001, want: 0.153},
		{name: "buy never below ask", side: domain.OrderSideBuy, ticker: domain.Ticker{AskPx: 100.3}, tol: 0.002, tick: 1, want: 101},
		{name: "sell never above bid", side: domain.OrderSideSell, ticker: domain.Ticker{BidPx: 100.7}, tol: 0.002, tick: 1, want: 100},
		{name: "buy falls back to last", side: domain.OrderSideBuy, ticker: domain.Ticker{Last: 200}, tol: 0.005, tick: 0.01, want: 201},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BoundedLimitPrice(tt.side, tt.ticker, tt.tol, tt.tick)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestBoundedLimitPriceNoQuote(t *testing.T) {
	t.Parallel()

	_, err := BoundedLimitPrice(domain.OrderSideBuy, domain.Ticker{InstID: "X-USDT-SWAP"}, 0.005, 0.01)
	require.Error(t, err)

	_, err = BoundedLimitPrice("sideways", domain.Ticker{Last: 1}, 0.005, 0.01)
	require.Error(t, err)
}

func TestSlippageByMajor(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 0.002, cfg.Slippage("BTC"))
	assert.Equal(t, 0.002, cfg.Slippage("eth"))
	assert.Equal(t, 0.005, cfg.Slippage("SOL"))
	assert.Equal(t, "SOL-USDT-SWAP", cfg.InstID("sol"))
}

func TestProtectiveLevels(t *testing.T) {
	t.Parallel()

	intent := domain.TradeIntent{
		StopLoss:   &domain.ProtectivePrice{OffsetPct: 0.05},
		TakeProfit: &domain.ProtectivePrice{OffsetPct: 0.1},
	}
	sl, tp := protectiveLevels(intent, domain.SideLong, 65_000, 0.1)
	assert.InDelta(t, 61_750, sl, 1e-9)
	assert.InDelta(t, 71_500, tp, 1e-9)

	sl, tp = protectiveLevels(intent, domain.SideShort, 100, 0.01)
	assert.InDelta(t, 105, sl, 1e-9)
	assert.InDelta(t, 90, tp, 1e-9)

	sl, tp = protectiveLevels(domain.TradeIntent{}, domain.SideLong, 100, 0.01)
	assert.Zero(t, sl)
	assert.Zero(t, tp)
}
