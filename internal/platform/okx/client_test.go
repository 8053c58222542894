package okx

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpbot/internal/crypto"
	"github.com/alanyoungcy/perpbot/internal/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 123_000_000, time.UTC)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		APIKey:            "key",
		SecretKey:         "secret",
		Passphrase:        "pass",
		Simulated:         true,
		RequestsPerSecond: 1000,
		Burst:             100,
		Retry: RetryConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
			MaxTries:        3,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.now = func() time.Time { return fixedNow }
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestTickerIsPublic(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/ticker", r.URL.Path)
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		assert.Empty(t, r.Header.Get(crypto.HeaderAccessSign))
		assert.Equal(t, "1", r.Header.Get(crypto.HeaderSimulatedTrading))
		writeJSON(w, http.StatusOK, `{"code":"0","msg":"","data":[{"instId":"BTC-USDT-SWAP","last":"65000.1","askPx":"65000.2","bidPx":"65000","ts":"1709294400123"}]}`)
	})

	tk, err := c.Ticker(t.Context(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 65000.1, tk.Last)
	assert.Equal(t, 65000.2, tk.AskPx)
	assert.Equal(t, 65000.0, tk.BidPx)
	assert.Equal(t, fixedNow, tk.TS)
}

func TestSignedRequestHeaders(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		ts := r.Header.Get(crypto.HeaderAccessTimestamp)
		assert.Equal(t, "2024-03-01T12:00:00.123Z", ts)
		assert.Equal(t, "key", r.Header.Get(crypto.HeaderAccessKey))
		assert.Equal(t, "pass", r.Header.Get(crypto.HeaderAccessPassphrase))
		assert.Equal(t, "1", r.Header.Get(crypto.HeaderSimulatedTrading))

		want := crypto.Sign("secret", ts, http.MethodGet, "/api/v5/account/balance?ccy=USDT", "")
		assert.Equal(t, want, r.Header.Get(crypto.HeaderAccessSign))
		writeJSON(w, http.StatusOK, `{"code":"0","data":[{"totalEq":"10500","details":[{"ccy":"USDT","eq":"10000.5","availBal":"9000"}]}]}`)
	})

	eq, err := c.Equity(t.Context(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, 10000.5, eq)
}

func TestEquityFallsBackToTotal(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"code":"0","data":[{"totalEq":"10500","details":[]}]}`)
	})

	eq, err := c.Equity(t.Context(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, 10500.0, eq)
}

func TestMissingCredentials(t *testing.T) {
	t.Parallel()

	c := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.Positions(t.Context())
	require.ErrorIs(t, err, domain.ErrMissingCredentials)
	assert.False(t, c.HasCredentials())
}

func TestTransientErrorsAreRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			writeJSON(w, http.StatusTooManyRequests, `{"code":"50011","msg":"Too Many Requests","data":[]}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"code":"0","data":[{"instId":"ETH-USDT-SWAP","last":"3000","askPx":"3000.5","bidPx":"2999.5","ts":"0"}]}`)
	})

	tk, err := c.Ticker(t.Context(), "ETH-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, tk.Last)
	assert.Equal(t, int32(3), hits.Load())
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadGateway, `bad gateway`)
	})

	_, err := c.Ticker(t.Context(), "ETH-USDT-SWAP")
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestVenueRejectionIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, `{"code":"1","msg":"All operations failed","data":[{"ordId":"","clOrdId":"abc","sCode":"51008","sMsg":"Insufficient margin"}]}`)
	})

	_, err := c.PlaceOrder(t.Context(), domain.OrderRequest{
		InstID: "BTC-USDT-SWAP", TdMode: "isolated", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeMarket, Contracts: 1, LotSz: 1,
	})
	require.ErrorIs(t, err, domain.ErrVenueRejected)
	assert.NotErrorIs(t, err, domain.ErrPositionMode)
	assert.Equal(t, int32(1), hits.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "51008", apiErr.SCode)
}

func TestSetLeveragePositionMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		posSide  string
		code     string
		msg      string
		wantMode bool
	}{
		{name: "51000 with posSide", posSide: "long", code: "51000", msg: "Parameter error", wantMode: true},
		{name: "code 1 mentioning posSide", posSide: "long", code: "1", msg: "Parameter posSide error", wantMode: true},
		{name: "51000 without posSide", posSide: "", code: "51000", msg: "Parameter lever error", wantMode: false},
		{name: "unrelated rejection", posSide: "long", code: "59000", msg: "Setting failed", wantMode: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				if tt.posSide == "" {
					assert.NotContains(t, body, "posSide")
				} else {
					assert.Equal(t, tt.posSide, body["posSide"])
				}
				assert.Equal(t, "3", body["lever"])
				writeJSON(w, http.StatusOK, `{"code":"`+tt.code+`","msg":"`+tt.msg+`","data":[]}`)
			})

			err := c.SetLeverage(t.Context(), domain.LeverageRequest{
				InstID: "BTC-USDT-SWAP", Leverage: 3, MgnMode: "isolated", PosSide: tt.posSide,
			})
			require.ErrorIs(t, err, domain.ErrVenueRejected)
			assert.Equal(t, tt.wantMode, isPositionMode(err))
		})
	}
}

func isPositionMode(err error) bool {
	return errors.Is(err, domain.ErrPositionMode)
}

func TestPlaceOrderAttachesProtectiveLegs(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/trade/order", r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		want := crypto.Sign("secret", "2024-03-01T12:00:00.123Z", http.MethodPost, "/api/v5/trade/order", string(raw))
		assert.Equal(t, want, r.Header.Get(crypto.HeaderAccessSign))

		var o orderWire
		require.NoError(t, json.Unmarshal(raw, &o))
		assert.Equal(t, "limit", o.OrdType)
		assert.Equal(t, "65130.1", o.Px)
		assert.Equal(t, "2", o.Sz)
		assert.Equal(t, "long", o.PosSide)
		assert.Equal(t, "CID1", o.ClOrdID)
		require.Len(t, o.AttachAlgoOrds, 1)
		algo := o.AttachAlgoOrds[0]
		assert.Equal(t, "61750.0", algo.SlTriggerPx)
		assert.Equal(t, "-1", algo.SlOrdPx)
		assert.Equal(t, "last", algo.SlTriggerPxType)
		assert.Empty(t, algo.TpTriggerPx)

		writeJSON(w, http.StatusOK, `{"code":"0","data":[{"ordId":"123","clOrdId":"CID1","sCode":"0","sMsg":""}]}`)
	})

	ack, err := c.PlaceOrder(t.Context(), domain.OrderRequest{
		InstID: "BTC-USDT-SWAP", TdMode: "isolated", Side: domain.OrderSideBuy,
		Type: domain.OrderTypeLimit, Price: 65130.1, Contracts: 2, PosSide: "long",
		ClientID: "CID1", TickSz: 0.1, LotSz: 1,
		Algo: &domain.AttachedAlgo{SLTriggerPx: 61750},
	})
	require.NoError(t, err)
	assert.Equal(t, "123", ack.OrderID)
	assert.Equal(t, "CID1", ack.ClientID)
}

func TestBuildOrderMarketReduceOnly(t *testing.T) {
	t.Parallel()

	o := buildOrder(domain.OrderRequest{
		InstID: "SOL-USDT-SWAP", TdMode: "isolated", Side: domain.OrderSideSell,
		Type: domain.OrderTypeMarket, Price: 150, Contracts: 0.5, LotSz: 0.1, ReduceOnly: true,
	})
	assert.Empty(t, o.Px)
	assert.Equal(t, "0.5", o.Sz)
	assert.True(t, o.ReduceOnly)
	assert.Empty(t, o.AttachAlgoOrds)
}

func TestPositionsNetMode(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SWAP", r.URL.Query().Get("instType"))
		writeJSON(w, http.StatusOK, `{"code":"0","data":[
			{"instId":"BTC-USDT-SWAP","posSide":"net","pos":"-3","avgPx":"65000","lever":"5","notionalUsd":"1950","margin":"390","cTime":"1709294400123"},
			{"instId":"ETH-USDT-SWAP","posSide":"long","pos":"10","avgPx":"3000","lever":"3","notionalUsd":"300"},
			{"instId":"SOL-USDT-SWAP","posSide":"net","pos":"0","avgPx":"","lever":"5","notionalUsd":"0"}
		]}`)
	})

	got, err := c.Positions(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "BTC", got[0].Symbol)
	assert.Equal(t, domain.SideShort, got[0].Side)
	assert.Equal(t, 3.0, got[0].Contracts)
	assert.Equal(t, 1950.0, got[0].Notional)
	assert.Equal(t, fixedNow, got[0].OpenedAt)

	assert.Equal(t, domain.SideLong, got[1].Side)
	assert.Equal(t, 300.0, got[1].EntryNotional())
}

func TestInstrumentUnavailable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"code":"0","data":[]}`)
	})

	_, err := c.Instrument(t.Context(), "NOPE-USDT-SWAP")
	require.ErrorIs(t, err, domain.ErrInstrumentUnavailable)
}

func TestInstrument(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"code":"0","data":[{"instId":"BTC-USDT-SWAP","ctVal":"0.01","ctMult":"1","lotSz":"0.01","tickSz":"0.1","minSz":"0.01"}]}`)
	})

	inst, err := c.Instrument(t.Context(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	assert.Equal(t, "BTC", inst.Symbol)
	assert.Equal(t, 0.01, inst.CtVal)
	assert.Equal(t, 0.1, inst.TickSz)
	assert.Equal(t, 0.01, inst.MinContracts())
}
