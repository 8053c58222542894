package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/perpbot/internal/domain"
	"github.com/alanyoungcy/perpbot/internal/store/memory"
)

type fakeEngine struct {
	snap    domain.ExposureSnapshot
	snapErr error
	execute func(domain.TradeIntent) (domain.ExecutionResult, error)

	mu    sync.Mutex
	calls []domain.TradeIntent
}

func (e *fakeEngine) Snapshot(context.Context) (domain.ExposureSnapshot, error) {
	return e.snap, e.snapErr
}

func (e *fakeEngine) Mode() domain.ExecutionMode { return domain.ModeSimulated }

func (e *fakeEngine) Execute(_ context.Context, in domain.TradeIntent) (domain.ExecutionResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, in)
	e.mu.Unlock()
	if e.execute != nil {
		return e.execute(in)
	}
	return domain.ExecutionResult{Disposition: domain.DispositionExecuted, Contracts: 1}, nil
}

type countingObserver struct {
	reports []domain.CycleReport
}

func (o *countingObserver) ObserveCycle(r domain.CycleReport, _ time.Duration) {
	o.reports = append(o.reports, r)
}

func newCycle(engine *fakeEngine) (*CycleService, *memory.DecisionLogStore, *countingObserver) {
	decisions := memory.NewDecisionLogStore()
	obs := &countingObserver{}
	gov := NewRiskGovernor(engine, DefaultRiskConfig(), nil)
	svc := NewCycleService(gov, engine, decisions, CycleConfig{DecisionLogKeep: 5}, nil)
	svc.SetObserver(obs)
	return svc, decisions, obs
}

func TestCycleRunExecutesApprovedInOrder(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{snap: domain.ExposureSnapshot{Equity: 10_000}}
	svc, decisions, obs := newCycle(engine)

	in := domain.CycleInput{
		Regime: domain.RegimeBull,
		Intents: []domain.TradeIntent{
			openLong("BTC", 1_000),
			{Symbol: "ETH", Action: domain.ActionHold},
			openLong("DOGE", 10),
			{Symbol: "SOL", Action: domain.ActionClose},
		},
	}

	report, err := svc.Run(t.Context(), in)
	require.NoError(t, err)
	require.Len(t, report.Decisions, 4)
	assert.Equal(t, []domain.Disposition{
		domain.DispositionExecuted,
		domain.DispositionHeld,
		domain.DispositionRejected,
		domain.DispositionExecuted,
	}, cycleDispositions(report))

	require.Len(t, engine.calls, 2)
	assert.Equal(t, "BTC", engine.calls[0].Symbol)
	assert.Equal(t, "SOL", engine.calls[1].Symbol)
	assert.NotNil(t, engine.calls[0].StopLoss)

	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, domain.ModeSimulated, report.Mode)
	assert.Equal(t, 0.98, report.Limits.MaxLongPct)

	logged, err := decisions.List(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, report.CycleID, logged[0].CycleID)
	require.Len(t, obs.reports, 1)
}

func TestCycleRunSnapshotFailureAbortsEverything(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{snapErr: errors.New("balance endpoint down")}
	svc, decisions, obs := newCycle(engine)

	report, err := svc.Run(t.Context(), domain.CycleInput{
		Intents: []domain.TradeIntent{openLong("BTC", 1_000), {Symbol: "ETH", Action: domain.ActionClose}},
	})
	require.ErrorIs(t, err, domain.ErrSnapshotUnavailable)
	assert.Empty(t, engine.calls)
	assert.NotEmpty(t, report.Error)
	for _, d := range report.Decisions {
		assert.Equal(t, domain.DispositionAborted, d.Disposition)
	}

	logged, err := decisions.List(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, logged, 1)
	assert.Len(t, obs.reports, 1)
}

func TestCycleRunFailureDoesNotStopBatch(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		snap: domain.ExposureSnapshot{Equity: 10_000},
		execute: func(in domain.TradeIntent) (domain.ExecutionResult, error) {
			if in.Symbol == "BTC" {
				return domain.ExecutionResult{}, fmt.Errorf("place order: %w", domain.ErrVenueRejected)
			}
			return domain.ExecutionResult{Disposition: domain.DispositionNoop, Reason: "nothing to close"}, nil
		},
	}
	svc, _, _ := newCycle(engine)

	report, err := svc.Run(t.Context(), domain.CycleInput{
		Intents: []domain.TradeIntent{openLong("BTC", 1_000), {Symbol: "ETH", Action: domain.ActionClose}},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.Disposition{domain.DispositionFailed, domain.DispositionNoop}, cycleDispositions(report))
	assert.Contains(t, report.Decisions[0].Reason, "venue rejected")
}

func TestCycleRunAuthFailureAbortsRemaining(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		snap: domain.ExposureSnapshot{Equity: 10_000},
		execute: func(domain.TradeIntent) (domain.ExecutionResult, error) {
			return domain.ExecutionResult{}, fmt.Errorf("okx: %w", domain.ErrUnauthorized)
		},
	}
	svc, _, _ := newCycle(engine)

	report, err := svc.Run(t.Context(), domain.CycleInput{
		Intents: []domain.TradeIntent{openLong("BTC", 1_000), openLong("ETH", 1_000)},
	})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Len(t, engine.calls, 1)
	assert.Equal(t, []domain.Disposition{domain.DispositionFailed, domain.DispositionAborted}, cycleDispositions(report))
}

func TestCycleVolatilitySelection(t *testing.T) {
	t.Parallel()

	fear := func(v float64) *float64 { return &v }
	tests := []struct {
		name string
		in   domain.CycleInput
		want domain.Volatility
	}{
		{name: "default", in: domain.CycleInput{}, want: domain.VolatilityNormal},
		{name: "fear index", in: domain.CycleInput{FearIndex: fear(12)}, want: domain.VolatilityExtreme},
		{name: "explicit wins", in: domain.CycleInput{FearIndex: fear(12), Volatility: domain.VolatilityNormal}, want: domain.VolatilityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _, _ := newCycle(&fakeEngine{snap: domain.ExposureSnapshot{Equity: 1_000}})
			report, err := svc.Run(t.Context(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, report.Volatility)
			assert.Equal(t, domain.RegimeNeutral, report.Regime)
		})
	}
}

func TestCycleRecentDecisionsIsCapped(t *testing.T) {
	t.Parallel()

	svc, _, _ := newCycle(&fakeEngine{snap: domain.ExposureSnapshot{Equity: 1_000}})
	for range 7 {
		_, err := svc.Run(t.Context(), domain.CycleInput{})
		require.NoError(t, err)
	}
	got, err := svc.RecentDecisions(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func cycleDispositions(r domain.CycleReport) []domain.Disposition {
	out := make([]domain.Disposition, len(r.Decisions))
	for i, d := range r.Decisions {
		out[i] = d.Disposition
	}
	return out
}
