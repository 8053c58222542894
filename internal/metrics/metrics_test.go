package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestObserveCycle(t *testing.T) {
	t.Parallel()

	m := New(Config{}, nil)
	finished := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report := domain.CycleReport{
		Mode: domain.ModeSimulated,
		Snapshot: domain.ExposureSnapshot{
			Equity: 10_000, LongNotional: 2_500, ShortNotional: 700, OpenPositions: 2, TakenAt: finished,
		},
		Decisions: []domain.Decision{
			{Disposition: domain.DispositionExecuted},
			{Disposition: domain.DispositionExecuted},
			{Disposition: domain.DispositionRejected},
		},
		FinishedAt: finished,
	}

	m.ObserveCycle(report, 1500*time.Millisecond)
	m.ObserveCycle(domain.CycleReport{Mode: domain.ModeSimulated, Error: "snapshot unavailable"}, time.Second)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "ok cycles", got: testutil.ToFloat64(m.cycles.WithLabelValues("simulated", "ok")), want: 1},
		{name: "aborted cycles", got: testutil.ToFloat64(m.cycles.WithLabelValues("simulated", "aborted")), want: 1},
		{name: "executed", got: testutil.ToFloat64(m.decisions.WithLabelValues("simulated", "executed")), want: 2},
		{name: "rejected", got: testutil.ToFloat64(m.decisions.WithLabelValues("simulated", "rejected")), want: 1},
		{name: "equity", got: testutil.ToFloat64(m.equity.WithLabelValues("simulated")), want: 10_000},
		{name: "long exposure", got: testutil.ToFloat64(m.exposure.WithLabelValues("simulated", "long")), want: 2_500},
		{name: "short exposure", got: testutil.ToFloat64(m.exposure.WithLabelValues("simulated", "short")), want: 700},
		{name: "positions", got: testutil.ToFloat64(m.openPositions.WithLabelValues("simulated")), want: 2},
		{name: "last success", got: testutil.ToFloat64(m.lastSuccess), want: float64(finished.Unix())},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
	}
	assert.Equal(t, 1, testutil.CollectAndCount(m.cycleDuration))
}

func TestObserveStoreCommand(t *testing.T) {
	t.Parallel()

	m := New(Config{}, nil)
	m.ObserveStoreCommand("find", 3*time.Millisecond, true)
	m.ObserveStoreCommand("find", 5*time.Millisecond, false)
	m.ObserveStoreCommand("replace", time.Millisecond, true)

	assert.Equal(t, 3, testutil.CollectAndCount(m.storeCommands))
}

func TestPush(t *testing.T) {
	t.Parallel()

	var (
		hits atomic.Int32
		path atomic.Value
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.Method + " " + r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gw.Close)

	require.NoError(t, New(Config{}, nil).Push(t.Context()))
	assert.Zero(t, hits.Load())

	m := New(Config{PushURL: gw.URL, Job: "perpbot_cycle"}, nil)
	m.ObserveCycle(domain.CycleReport{Mode: domain.ModeLive}, time.Second)
	require.NoError(t, m.Push(t.Context()))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "PUT /metrics/job/perpbot_cycle", path.Load())
}

func TestPushFailure(t *testing.T) {
	t.Parallel()

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(gw.Close)

	err := New(Config{PushURL: gw.URL}, nil).Push(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics: push")
}
