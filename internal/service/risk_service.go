package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// ExposureCaps are the long and short caps as fractions of equity.
type ExposureCaps struct {
	Long  float64
	Short float64
}

// RiskConfig holds the tunable parameters for pre-trade risk checks.
type RiskConfig struct {
	Bull    ExposureCaps
	Bear    ExposureCaps
	Neutral ExposureCaps

	MaxLeverage        float64
	ExtremeMaxLeverage float64
	// Fear readings outside [FearLow, FearHigh] count as extreme volatility.
	FearLow  float64
	FearHigh float64

	MinOrderUSD        float64
	Tolerance          float64 // dollars allowed over a cap
	MaxPositions       int
	DefaultStopLossPct float64
}

// DefaultRiskConfig returns the production risk limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Bull:               ExposureCaps{Long: 0.98, Short: 0.30},
		Bear:               ExposureCaps{Long: 0.40, Short: 0.78},
		Neutral:            ExposureCaps{Long: 0.48, Short: 0.48},
		MaxLeverage:        5,
		ExtremeMaxLeverage: 2,
		FearLow:            20,
		FearHigh:           80,
		MinOrderUSD:        50,
		Tolerance:          5,
		MaxPositions:       3,
		DefaultStopLossPct: 0.05,
	}
}

// Limits derives the caps for one batch.
func (c RiskConfig) Limits(regime domain.Regime, vol domain.Volatility) domain.RiskLimits {
	caps := c.Neutral
	switch regime {
	case domain.RegimeBull:
		caps = c.Bull
	case domain.RegimeBear:
		caps = c.Bear
	}
	lev := c.MaxLeverage
	if vol == domain.VolatilityExtreme {
		lev = c.ExtremeMaxLeverage
	}
	return domain.RiskLimits{
		MaxLongPct:         caps.Long,
		MaxShortPct:        caps.Short,
		MaxLeverage:        lev,
		MinOrderUSD:        c.MinOrderUSD,
		Tolerance:          c.Tolerance,
		MaxPositions:       c.MaxPositions,
		DefaultStopLossPct: c.DefaultStopLossPct,
	}
}

// Volatility classifies a fear index reading with the configured bounds.
func (c RiskConfig) Volatility(fear float64) domain.Volatility {
	return domain.VolatilityFromFear(fear, c.FearLow, c.FearHigh)
}

// SnapshotSource provides the account state a batch is reviewed against.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.ExposureSnapshot, error)
}

// Review is the governor's verdict on one batch.
type Review struct {
	Limits    domain.RiskLimits
	Snapshot  domain.ExposureSnapshot
	Decisions []domain.Decision // one per input intent, in input order
}

// Approved returns the decisions cleared for execution, in order.
func (r Review) Approved() []domain.Decision {
	var out []domain.Decision
	for _, d := range r.Decisions {
		if d.Disposition == domain.DispositionApproved {
			out = append(out, d)
		}
	}
	return out
}

// RiskGovernor gates a batch of trade intents against exposure caps, a
// position ceiling and leverage limits. Intents are judged in input order
// against a running tally, so each approval consumes headroom that later
// intents in the same batch cannot use.
type RiskGovernor struct {
	source SnapshotSource
	cfg    RiskConfig
	logger *slog.Logger
}

// NewRiskGovernor creates a RiskGovernor.
func NewRiskGovernor(source SnapshotSource, cfg RiskConfig, logger *slog.Logger) *RiskGovernor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiskGovernor{
		source: source,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk_governor")),
	}
}

// Config returns the governor's limits configuration.
func (g *RiskGovernor) Config() RiskConfig { return g.cfg }

// Review takes one snapshot and judges every intent against it. A failed
// snapshot is fatal for the batch and returns domain.ErrSnapshotUnavailable.
func (g *RiskGovernor) Review(ctx context.Context, intents []domain.TradeIntent, regime domain.Regime, vol domain.Volatility) (Review, error) {
	limits := g.cfg.Limits(regime, vol)

	snap, err := g.source.Snapshot(ctx)
	if err != nil {
		return Review{Limits: limits}, fmt.Errorf("risk_governor: %w: %w", domain.ErrSnapshotUnavailable, err)
	}

	g.logger.InfoContext(ctx, "risk_governor: reviewing batch",
		slog.String("regime", string(regime)),
		slog.String("volatility", string(vol)),
		slog.Float64("equity", snap.Equity),
		slog.Float64("long", snap.LongNotional),
		slog.Float64("short", snap.ShortNotional),
		slog.Int("positions", snap.OpenPositions),
		slog.Int("intents", len(intents)),
	)

	t := tally{
		long:  snap.LongNotional,
		short: snap.ShortNotional,
		open:  snap.OpenPositions,
	}

	out := Review{Limits: limits, Snapshot: snap, Decisions: make([]domain.Decision, 0, len(intents))}
	for i, in := range intents {
		dec := domain.Decision{Index: i, Requested: in, Intent: in}

		reason, ok := g.judge(&dec.Intent, snap.Equity, limits, &t)
		switch {
		case in.Action == domain.ActionHold:
			dec.Disposition = domain.DispositionHeld
			dec.Reason = "hold"
		case ok:
			dec.Disposition = domain.DispositionApproved
		default:
			dec.Disposition = domain.DispositionRejected
			dec.Reason = reason
			dec.Intent.Action = domain.ActionRejected
			dec.Intent.Reason = reason
			g.logger.InfoContext(ctx, "risk_governor: intent rejected",
				slog.Int("index", i),
				slog.String("symbol", in.Symbol),
				slog.String("action", string(in.Action)),
				slog.String("reason", reason),
			)
		}
		out.Decisions = append(out.Decisions, dec)
	}
	return out, nil
}

// tally is the running exposure within one batch.
type tally struct {
	long, short float64
	open        int
}

// judge applies the checks to one intent, mutating it when approved, and
// returns the rejection reason otherwise.
func (g *RiskGovernor) judge(in *domain.TradeIntent, equity float64, limits domain.RiskLimits, t *tally) (string, bool) {
	switch {
	case in.Action == domain.ActionHold:
		return "", false
	case in.Symbol == "":
		return "malformed intent: missing symbol", false
	case !in.Action.Valid() || in.Action == domain.ActionRejected:
		return fmt.Sprintf("malformed intent: unknown action %q", in.Action), false
	}

	// A close needs only a symbol. An unreadable size ("ALL") means the
	// whole position, which the engine resolves from live state.
	if in.Action.IsClose() {
		if in.Malformed != "" {
			in.NotionalUSD = 0
			in.Malformed = ""
		}
		if t.open > 0 {
			t.open--
		}
		return "", true
	}
	if in.Malformed != "" {
		return "malformed intent: " + in.Malformed, false
	}

	if in.NotionalUSD < limits.MinOrderUSD {
		return fmt.Sprintf("trade size $%.2f too small (< $%.2f)", in.NotionalUSD, limits.MinOrderUSD), false
	}
	if t.open >= limits.MaxPositions {
		return fmt.Sprintf("max positions (%d) reached", limits.MaxPositions), false
	}

	side, _ := in.Action.Side()
	current, pct := t.long, limits.MaxLongPct
	if side == domain.SideShort {
		current, pct = t.short, limits.MaxShortPct
	}
	projected := current + in.NotionalUSD
	capUSD := equity * pct
	if projected > capUSD+limits.Tolerance {
		return fmt.Sprintf("%s cap exceeded: projected $%.2f > limit $%.2f (%.0f%% of equity)",
			side, projected, capUSD, pct*100), false
	}

	if side == domain.SideShort {
		t.short = projected
	} else {
		t.long = projected
	}
	t.open++

	switch {
	case in.Leverage > limits.MaxLeverage:
		in.Leverage = limits.MaxLeverage
	case in.Leverage < 1:
		in.Leverage = 1
	}
	if in.StopLoss == nil && limits.DefaultStopLossPct > 0 {
		in.StopLoss = &domain.ProtectivePrice{OffsetPct: limits.DefaultStopLossPct}
	}
	return "", true
}
