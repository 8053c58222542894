package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/service"
	"github.com/alanyoungcy/perpbot/internal/store/memory"
)

type fakeMarket struct {
	mu          sync.Mutex
	tickers     map[string]domain.Ticker
	instruments map[string]domain.Instrument
	instCalls   int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		tickers: map[string]domain.Ticker{},
		instruments: map[string]domain.Instrument{
			"BTC-USDT-SWAP": btcSwap,
			"SOL-USDT-SWAP": {InstID: "SOL-USDT-SWAP", Symbol: "SOL", CtVal: 1, LotSz: 1, TickSz: 0.01, MinSz: 1},
		},
	}
}

func (m *fakeMarket) setPrice(instID string, px float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[instID] = domain.Ticker{InstID: instID, Last: px, BidPx: px, AskPx: px}
}

func (m *fakeMarket) Ticker(_ context.Context, instID string) (domain.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickers[instID]
	if !ok {
		return domain.Ticker{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *fakeMarket) Instrument(_ context.Context, instID string) (domain.Instrument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instCalls++
	inst, ok := m.instruments[instID]
	if !ok {
		return domain.Instrument{}, domain.ErrNotFound
	}
	return inst, nil
}

func newSimulated(t *testing.T, feeBps float64) (*SimulatedEngine, *fakeMarket, *service.LedgerService) {
	t.Helper()
	market := newFakeMarket()
	ledger := service.NewLedgerService(memory.NewLedgerStore(), memory.NewTradeHistoryStore(), service.DefaultLedgerConfig(), nil)
	cfg := DefaultConfig()
	cfg.FeeBps = feeBps
	eng := NewSimulatedEngine(market, NewInstrumentBook(market, nil, nil), ledger, cfg, nil)
	return eng, market, ledger
}

func TestSimulatedSettlement(t *testing.T) {
	t.Parallel()

	eng, market, ledger := newSimulated(t, 0)
	market.setPrice("SOL-USDT-SWAP", 100)

	res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionOpenLong, NotionalUSD: 200, Leverage: 2})
	require.NoError(t, err)
	require.Equal(t, domain.DispositionExecuted, res.Disposition)
	assert.Equal(t, 2.0, res.Contracts)
	require.NotNil(t, res.Opened)
	assert.Equal(t, 100.0, res.Opened.Margin)

	market.setPrice("SOL-USDT-SWAP", 110)
	res, err = eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionCloseLong})
	require.NoError(t, err)
	require.Equal(t, domain.DispositionExecuted, res.Disposition)
	require.Len(t, res.Trades, 1)

	rec := res.Trades[0]
	assert.InDelta(t, 20, rec.PnL, 1e-9)
	assert.InDelta(t, 20, rec.PnLPct, 1e-9)
	assert.Equal(t, 100.0, rec.EntryPrice)
	assert.Equal(t, 110.0, rec.ExitPrice)

	l, err := ledger.Current(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 10_020, l.Cash, 1e-9)
	assert.Empty(t, l.Positions)

	history, err := ledger.History(t.Context(), domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSimulatedRoundTripCostsTwoFees(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		open  domain.Action
		close domain.Action
	}{
		{name: "long", open: domain.ActionOpenLong, close: domain.ActionCloseLong},
		{name: "short", open: domain.ActionOpenShort, close: domain.ActionClose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng, market, ledger := newSimulated(t, 5)
			market.setPrice("SOL-USDT-SWAP", 100)

			_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: tt.open, NotionalUSD: 1_000, Leverage: 5})
			require.NoError(t, err)
			res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: tt.close})
			require.NoError(t, err)
			require.Len(t, res.Trades, 1)
			assert.InDelta(t, 1.0, res.Trades[0].Fees, 1e-9)

			l, err := ledger.Current(t.Context())
			require.NoError(t, err)
			assert.InDelta(t, 10_000-2*0.5, l.Cash, 1e-9)
			assert.InDelta(t, l.Cash, l.TotalEquity, 1e-9)
		})
	}
}

func TestSimulatedCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	eng, market, _ := newSimulated(t, 5)
	market.setPrice("BTC-USDT-SWAP", 65_000)

	_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "BTC", Action: domain.ActionOpenShort, NotionalUSD: 700, Leverage: 3})
	require.NoError(t, err)

	closeAll := domain.TradeIntent{Symbol: "BTC", Action: domain.ActionClose}
	first, err := eng.Execute(t.Context(), closeAll)
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionExecuted, first.Disposition)

	for range 2 {
		again, err := eng.Execute(t.Context(), closeAll)
		require.NoError(t, err)
		assert.Equal(t, domain.DispositionNoop, again.Disposition)
		assert.Equal(t, domain.ErrNothingToClose.Error(), again.Reason)
	}
}

func TestSimulatedCloseWrongSideIsNoop(t *testing.T) {
	t.Parallel()

	eng, market, _ := newSimulated(t, 0)
	market.setPrice("SOL-USDT-SWAP", 100)

	_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionOpenLong, NotionalUSD: 500})
	require.NoError(t, err)

	res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionCloseShort})
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionNoop, res.Disposition)

	n, _, err := eng.ResolveCloseSize(t.Context(), "SOL", domain.SideLong)
	require.NoError(t, err)
	assert.Equal(t, 5.0, n)
}

func TestSimulatedSizedClose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		partial   bool
		closed    float64
		remaining []float64
	}{
		{name: "full size by default", closed: 10},
		{name: "partial when enabled", partial: true, closed: 4, remaining: []float64{6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eng, market, ledger := newSimulated(t, 0)
			eng.cfg.PartialCloses = tt.partial
			market.setPrice("SOL-USDT-SWAP", 100)

			_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionOpenLong, NotionalUSD: 1_000})
			require.NoError(t, err)

			res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionCloseLong, NotionalUSD: 400})
			require.NoError(t, err)
			assert.Equal(t, tt.closed, res.Contracts)

			l, err := ledger.Current(t.Context())
			require.NoError(t, err)
			var left []float64
			for _, p := range l.Positions {
				left = append(left, p.Contracts)
			}
			assert.Equal(t, tt.remaining, left)
		})
	}
}

func TestSimulatedCloseWithUnreadableSizeClosesAll(t *testing.T) {
	t.Parallel()

	eng, market, ledger := newSimulated(t, 0)
	eng.cfg.PartialCloses = true
	market.setPrice("SOL-USDT-SWAP", 100)

	_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionOpenLong, NotionalUSD: 1_000, Leverage: 2})
	require.NoError(t, err)

	var batch []domain.TradeIntent
	require.NoError(t, json.Unmarshal([]byte(`[{"symbol":"SOL","action":"close_long","notionalUsd":"ALL"}]`), &batch))

	gov := service.NewRiskGovernor(eng, service.DefaultRiskConfig(), nil)
	review, err := gov.Review(t.Context(), batch, domain.RegimeBull, domain.VolatilityNormal)
	require.NoError(t, err)
	require.Len(t, review.Decisions, 1)
	require.Equal(t, domain.DispositionApproved, review.Decisions[0].Disposition)
	assert.Equal(t, 1, review.Snapshot.OpenPositions)

	res, err := eng.Execute(t.Context(), review.Decisions[0].Intent)
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionExecuted, res.Disposition)
	assert.Equal(t, 10.0, res.Contracts)

	l, err := ledger.Current(t.Context())
	require.NoError(t, err)
	assert.Empty(t, l.Positions)
}

// failingHistory rejects every append.
type failingHistory struct {
	*memory.TradeHistoryStore
}

func (failingHistory) Append(context.Context, domain.TradeRecord) error {
	return errors.New("history store down")
}

func TestSimulatedCloseReportsLostHistory(t *testing.T) {
	t.Parallel()

	market := newFakeMarket()
	market.setPrice("SOL-USDT-SWAP", 100)
	cfg := service.DefaultLedgerConfig()
	cfg.HistoryTries = 2
	ledger := service.NewLedgerService(memory.NewLedgerStore(), failingHistory{memory.NewTradeHistoryStore()}, cfg, nil)
	eng := NewSimulatedEngine(market, NewInstrumentBook(market, nil, nil), ledger, DefaultConfig(), nil)

	_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionOpenLong, NotionalUSD: 500})
	require.NoError(t, err)

	res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionClose})
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionExecuted, res.Disposition)
	require.Len(t, res.Trades, 1)
	assert.Contains(t, res.Reason, domain.ErrHistoryUnrecorded.Error())
	assert.Contains(t, res.Reason, res.Trades[0].ID)

	l, err := ledger.Current(t.Context())
	require.NoError(t, err)
	assert.Empty(t, l.Positions)
}

func TestSimulatedSkipsDust(t *testing.T) {
	t.Parallel()

	eng, market, ledger := newSimulated(t, 5)
	market.setPrice("BTC-USDT-SWAP", 65_000)

	res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "BTC", Action: domain.ActionOpenLong, NotionalUSD: 40})
	require.NoError(t, err)
	assert.Equal(t, domain.DispositionSkipped, res.Disposition)

	l, err := ledger.Current(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 10_000.0, l.Cash)
}

func TestSimulatedUnknownInstrument(t *testing.T) {
	t.Parallel()

	eng, market, _ := newSimulated(t, 5)

	res, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "NOPE", Action: domain.ActionOpenLong, NotionalUSD: 400})
	require.ErrorIs(t, err, domain.ErrInstrumentUnavailable)
	assert.Equal(t, domain.DispositionFailed, res.Disposition)

	_, _ = eng.Execute(t.Context(), domain.TradeIntent{Symbol: "NOPE", Action: domain.ActionOpenLong, NotionalUSD: 400})
	assert.Equal(t, 2, market.instCalls)
}

func TestSimulatedSnapshot(t *testing.T) {
	t.Parallel()

	eng, market, _ := newSimulated(t, 0)
	market.setPrice("SOL-USDT-SWAP", 100)

	_, err := eng.Execute(t.Context(), domain.TradeIntent{Symbol: "SOL", Action: domain.ActionOpenShort, NotionalUSD: 300, Leverage: 3})
	require.NoError(t, err)

	snap, err := eng.Snapshot(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 10_000.0, snap.Equity)
	assert.Equal(t, 300.0, snap.ShortNotional)
	assert.Zero(t, snap.LongNotional)
	assert.Equal(t, 1, snap.OpenPositions)
}
