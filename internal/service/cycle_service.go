package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// Engine executes approved intents. Both the live and the simulated engine
// implement it, so the cycle never branches on mode.
type Engine interface {
	SnapshotSource
	Mode() domain.ExecutionMode
	Execute(ctx context.Context, intent domain.TradeIntent) (domain.ExecutionResult, error)
}

// CycleObserver receives every finished cycle report.
type CycleObserver interface {
	ObserveCycle(report domain.CycleReport, elapsed time.Duration)
}

// CycleConfig holds the tunables for the cycle runner.
type CycleConfig struct {
	DecisionLogKeep int
}

// CycleService runs one batch: review by the governor, then sequential
// execution of every approved intent.
type CycleService struct {
	governor  *RiskGovernor
	engine    Engine
	decisions domain.DecisionLogStore
	observer  CycleObserver
	cfg       CycleConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewCycleService creates a CycleService. decisions may be nil.
func NewCycleService(
	governor *RiskGovernor,
	engine Engine,
	decisions domain.DecisionLogStore,
	cfg CycleConfig,
	logger *slog.Logger,
) *CycleService {
	if cfg.DecisionLogKeep <= 0 {
		cfg.DecisionLogKeep = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CycleService{
		governor:  governor,
		engine:    engine,
		decisions: decisions,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "cycle")),
	}
}

// SetObserver attaches a metrics sink.
func (s *CycleService) SetObserver(o CycleObserver) { s.observer = o }

// Run processes one batch and returns its report. Every input intent has a
// decision in the report, whatever happens. The error is non-nil only when
// the cycle was aborted.
func (s *CycleService) Run(ctx context.Context, in domain.CycleInput) (domain.CycleReport, error) {
	started := s.now()
	report := domain.CycleReport{
		CycleID:    domain.NewID(),
		Mode:       s.engine.Mode(),
		Regime:     in.Regime,
		Volatility: s.volatility(in),
		StartedAt:  started,
	}
	if report.Regime == "" {
		report.Regime = domain.RegimeNeutral
	}
	log := s.logger.With(slog.String("cycle_id", report.CycleID), slog.String("mode", string(report.Mode)))

	review, err := s.governor.Review(ctx, in.Intents, report.Regime, report.Volatility)
	report.Limits = review.Limits
	report.Snapshot = review.Snapshot
	if err != nil {
		report.Error = err.Error()
		report.Decisions = abortAll(in.Intents, err)
		log.ErrorContext(ctx, "cycle: aborted before execution", slog.String("error", err.Error()))
		s.finish(ctx, &report)
		return report, fmt.Errorf("cycle: %w", err)
	}

	report.Decisions = review.Decisions
	var runErr error
	for i := range report.Decisions {
		dec := &report.Decisions[i]
		if dec.Disposition != domain.DispositionApproved {
			continue
		}
		if runErr != nil {
			dec.Disposition = domain.DispositionAborted
			dec.Reason = runErr.Error()
			continue
		}

		res, err := s.engine.Execute(ctx, dec.Intent)
		if err != nil && res.Disposition == "" {
			res = domain.ExecutionResult{Disposition: domain.DispositionFailed, Reason: err.Error()}
		}
		dec.Result = &res
		dec.Disposition = res.Disposition
		dec.Reason = res.Reason

		if err != nil {
			log.WarnContext(ctx, "cycle: intent failed",
				slog.Int("index", dec.Index),
				slog.String("symbol", dec.Intent.Symbol),
				slog.String("action", string(dec.Intent.Action)),
				slog.String("error", err.Error()),
			)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = ctxErr
		} else if errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrMissingCredentials) {
			runErr = err
		}
	}

	if runErr != nil {
		report.Error = runErr.Error()
	}
	s.finish(ctx, &report)

	log.InfoContext(ctx, "cycle: finished",
		slog.Int("intents", len(report.Decisions)),
		slog.Int("executed", report.Count(domain.DispositionExecuted)),
		slog.Int("rejected", report.Count(domain.DispositionRejected)),
		slog.Int("failed", report.Count(domain.DispositionFailed)),
		slog.Int("noop", report.Count(domain.DispositionNoop)),
	)
	if runErr != nil {
		return report, fmt.Errorf("cycle: %w", runErr)
	}
	return report, nil
}

// volatility prefers an explicit state, then the fear index, then normal.
func (s *CycleService) volatility(in domain.CycleInput) domain.Volatility {
	if in.Volatility != "" {
		return in.Volatility
	}
	if in.FearIndex != nil {
		return s.governor.Config().Volatility(*in.FearIndex)
	}
	return domain.VolatilityNormal
}

func (s *CycleService) finish(ctx context.Context, report *domain.CycleReport) {
	report.FinishedAt = s.now()

	if s.decisions != nil {
		// The log write must survive a cancelled cycle context.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := s.decisions.Append(wctx, *report, s.cfg.DecisionLogKeep); err != nil {
			s.logger.WarnContext(ctx, "cycle: decision log append failed",
				slog.String("cycle_id", report.CycleID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.observer != nil {
		s.observer.ObserveCycle(*report, report.FinishedAt.Sub(report.StartedAt))
	}
}

// RecentDecisions returns the newest cycle reports.
func (s *CycleService) RecentDecisions(ctx context.Context, limit int) ([]domain.CycleReport, error) {
	if s.decisions == nil {
		return nil, nil
	}
	reports, err := s.decisions.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("cycle: list decisions: %w", err)
	}
	return reports, nil
}

func abortAll(intents []domain.TradeIntent, cause error) []domain.Decision {
	out := make([]domain.Decision, len(intents))
	for i, in := range intents {
		out[i] = domain.Decision{
			Index:       i,
			Requested:   in,
			Intent:      in,
			Disposition: domain.DispositionAborted,
			Reason:      cause.Error(),
		}
	}
	return out
}
