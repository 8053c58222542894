package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// ErrCycleAborted marks a cycle that stopped early after its report was
// written.
var ErrCycleAborted = errors.New("app: cycle aborted")

// CycleOptions override what the input document says about the market.
type CycleOptions struct {
	Regime     string
	Volatility string
	FearIndex  *float64
}

// DecodeCycleInput reads either a bare JSON array of intents or a full
// {"intents": [...], "regime": ..., "fearIndex": ...} document. Regime text
// such as "Bullish" is normalised.
func DecodeCycleInput(r io.Reader) (domain.CycleInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.CycleInput{}, fmt.Errorf("app: read intents: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return domain.CycleInput{}, errors.New("app: read intents: empty input")
	}

	var in domain.CycleInput
	if data[0] == '[' {
		err = json.Unmarshal(data, &in.Intents)
	} else {
		err = json.Unmarshal(data, &in)
	}
	if err != nil {
		return domain.CycleInput{}, fmt.Errorf("app: decode intents: %w", err)
	}
	in.Regime = domain.ParseRegime(string(in.Regime))
	return in, nil
}

func (o CycleOptions) apply(in *domain.CycleInput) {
	if o.Regime != "" {
		in.Regime = domain.ParseRegime(o.Regime)
	}
	switch strings.ToLower(o.Volatility) {
	case string(domain.VolatilityExtreme):
		in.Volatility = domain.VolatilityExtreme
	case string(domain.VolatilityNormal):
		in.Volatility = domain.VolatilityNormal
	}
	if o.FearIndex != nil {
		in.FearIndex = o.FearIndex
	}
}

// CycleMode runs one batch read from in and writes the report to out. The
// report is written even when the cycle aborts; the returned error then
// carries the cause.
func (a *App) CycleMode(ctx context.Context, deps *Dependencies, in io.Reader, out io.Writer, opts CycleOptions) error {
	input, err := DecodeCycleInput(in)
	if err != nil {
		return err
	}
	opts.apply(&input)

	a.logger.InfoContext(ctx, "app: running cycle",
		slog.Int("intents", len(input.Intents)),
		slog.String("regime", string(input.Regime)),
	)

	report, runErr := deps.Cycle.Run(ctx, input)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return errors.Join(runErr, fmt.Errorf("app: write report: %w", err))
	}

	a.pushMetrics(ctx, deps)
	if runErr != nil {
		return fmt.Errorf("%w: %w", ErrCycleAborted, runErr)
	}
	return nil
}

// Status is the read-only view printed by StatusMode.
type Status struct {
	Mode      domain.ExecutionMode    `json:"mode"`
	Snapshot  domain.ExposureSnapshot `json:"snapshot"`
	Ledger    *LedgerStatus           `json:"ledger,omitempty"`
	Trades    []domain.TradeRecord    `json:"recentTrades,omitempty"`
	Decisions []domain.CycleReport    `json:"recentCycles,omitempty"`
}

// LedgerStatus is the simulated ledger marked to market.
type LedgerStatus struct {
	domain.Ledger
	MarkedEquity float64            `json:"markedEquity"`
	Drift        float64            `json:"drift"`
	Marks        map[string]float64 `json:"marks"`
}

// StatusMode writes the current exposure, the marked ledger in simulated
// mode, and the newest trades and cycles.
func (a *App) StatusMode(ctx context.Context, deps *Dependencies, out io.Writer, limit int) error {
	snap, err := deps.Engine.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("app: status: %w", err)
	}
	st := Status{Mode: deps.Engine.Mode(), Snapshot: snap}

	if deps.Ledger != nil {
		ls, err := a.markLedger(ctx, deps)
		if err != nil {
			return fmt.Errorf("app: status: %w", err)
		}
		st.Ledger = ls

		st.Trades, err = deps.Ledger.History(ctx, domain.ListOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("app: status: %w", err)
		}
	}

	st.Decisions, err = deps.Cycle.RecentDecisions(ctx, limit)
	if err != nil {
		return fmt.Errorf("app: status: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("app: write status: %w", err)
	}
	return nil
}

// markLedger prices every open position at the last trade. A symbol whose
// ticker fails is marked at entry and logged.
func (a *App) markLedger(ctx context.Context, deps *Dependencies) (*LedgerStatus, error) {
	l, err := deps.Ledger.Current(ctx)
	if err != nil {
		return nil, err
	}

	marks := make(map[string]float64)
	for _, p := range l.Positions {
		if _, done := marks[p.Symbol]; done {
			continue
		}
		t, err := deps.Venue.Ticker(ctx, p.InstID)
		if err != nil {
			a.logger.WarnContext(ctx, "app: mark price unavailable",
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		marks[p.Symbol] = t.Last
	}

	return &LedgerStatus{
		Ledger:       l,
		MarkedEquity: l.Equity(marks),
		Drift:        l.Drift(),
		Marks:        marks,
	}, nil
}

func (a *App) pushMetrics(ctx context.Context, deps *Dependencies) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := deps.Metrics.Push(pctx); err != nil {
		a.logger.WarnContext(ctx, "app: metrics push failed", slog.String("error", err.Error()))
	}
}
