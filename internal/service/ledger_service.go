package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// LedgerConfig holds the tunables for simulated-ledger persistence.
type LedgerConfig struct {
	InitialEquity    float64
	LockKey          string
	LockTTL          time.Duration
	ConflictRetries  uint
	HistoryTries     uint   // attempts per trade history append
	HistoryRetention int    // trades kept in the primary store; 0 keeps all
	SettlementStream string // signal bus stream for settled trades
}

// DefaultLedgerConfig returns the ledger defaults.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		InitialEquity:    10_000,
		LockKey:          "ledger",
		LockTTL:          30 * time.Second,
		ConflictRetries:  3,
		HistoryTries:     4,
		HistoryRetention: 500,
		SettlementStream: "settlements",
	}
}

// Mutation applies one change to the ledger and returns the trades it
// settled. Returning an error discards the change.
type Mutation func(l *domain.Ledger) ([]domain.TradeRecord, error)

// LedgerService is the single writer of the simulated ledger. Every Apply
// loads the full document, mutates it and persists it with a version check
// while holding the ledger lock, so concurrent writers can never lose an
// update.
type LedgerService struct {
	store    domain.LedgerStore
	history  domain.TradeHistoryStore
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	archiver domain.Archiver
	cfg      LedgerConfig
	now      func() time.Time
	logger   *slog.Logger

	mu sync.Mutex
}

// NewLedgerService creates a LedgerService over store and history.
func NewLedgerService(
	store domain.LedgerStore,
	history domain.TradeHistoryStore,
	cfg LedgerConfig,
	logger *slog.Logger,
) *LedgerService {
	d := DefaultLedgerConfig()
	if cfg.LockKey == "" {
		cfg.LockKey = d.LockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = d.LockTTL
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = d.ConflictRetries
	}
	if cfg.HistoryTries == 0 {
		cfg.HistoryTries = d.HistoryTries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{
		store:   store,
		history: history,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "ledger")),
	}
}

// SetLockManager makes Apply hold a distributed lock so that several
// processes can share one ledger.
func (s *LedgerService) SetLockManager(l domain.LockManager) { s.locks = l }

// SetSignalBus publishes every settled trade to the configured stream.
func (s *LedgerService) SetSignalBus(b domain.SignalBus) { s.bus = b }

// SetAudit records every mutation in the audit log.
func (s *LedgerService) SetAudit(a domain.AuditStore) { s.audit = a }

// SetArchiver moves history beyond the retention limit to cold storage
// before it is deleted. Without an archiver the overflow is kept.
func (s *LedgerService) SetArchiver(a domain.Archiver) { s.archiver = a }

// Current returns the persisted ledger, or a fresh one funded with the
// configured initial equity when nothing has been saved yet.
func (s *LedgerService) Current(ctx context.Context) (domain.Ledger, error) {
	l, err := s.store.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewLedger(s.cfg.InitialEquity), nil
	}
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("ledger_service: load: %w", err)
	}
	if l.Positions == nil {
		l.Positions = []domain.Position{}
	}
	return l, nil
}

// Apply runs fn against the latest ledger and persists the result. A
// version conflict reloads and re-runs fn. The returned trades have been
// appended to the history by the time Apply returns. When an append still
// fails after retries the ledger stays committed and the error wraps
// domain.ErrHistoryUnrecorded alongside the saved ledger and trades.
func (s *LedgerService) Apply(ctx context.Context, op string, fn Mutation) (domain.Ledger, []domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			return domain.Ledger{}, nil, fmt.Errorf("ledger_service: %s: acquire lock: %w", op, err)
		}
		defer unlock()
	}

	type outcome struct {
		ledger domain.Ledger
		trades []domain.TradeRecord
	}

	attempt := func() (outcome, error) {
		cur, err := s.Current(ctx)
		if err != nil {
			return outcome{}, backoff.Permanent(err)
		}

		next := cur.Clone()
		trades, err := fn(&next)
		if err != nil {
			return outcome{}, backoff.Permanent(err)
		}
		next.UpdatedAt = s.now()

		saved, err := s.store.Save(ctx, next)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return outcome{}, err
			}
			return outcome{}, backoff.Permanent(fmt.Errorf("ledger_service: save: %w", err))
		}
		return outcome{ledger: saved, trades: trades}, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.MaxInterval = 200 * time.Millisecond

	res, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(s.cfg.ConflictRetries+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.WarnContext(ctx, "ledger_service: version conflict, reloading",
				slog.String("op", op),
				slog.Duration("backoff", wait),
			)
		}),
	)
	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.Ledger{}, nil, fmt.Errorf("ledger_service: %s: %w", op, err)
	}
	if err != nil {
		return domain.Ledger{}, nil, err
	}

	if drift := res.ledger.Drift(); math.Abs(drift) > 0.01 {
		s.logger.WarnContext(ctx, "ledger_service: balance drift",
			slog.String("op", op),
			slog.Float64("drift", drift),
		)
	}

	if err := s.record(ctx, op, res.ledger, res.trades); err != nil {
		return res.ledger, res.trades, err
	}
	return res.ledger, res.trades, nil
}

// record appends settled trades to the history and fans out side effects.
// The ledger is already durable, so only a lost history append is returned;
// the settlement is still published so the stream keeps a copy.
func (s *LedgerService) record(ctx context.Context, op string, l domain.Ledger, trades []domain.TradeRecord) error {
	var unrecorded []string
	for _, t := range trades {
		if err := s.appendHistory(ctx, t); err != nil {
			s.logger.ErrorContext(ctx, "ledger_service: append trade history failed",
				slog.String("trade_id", t.ID),
				slog.String("error", err.Error()),
			)
			unrecorded = append(unrecorded, t.ID)
		}

		if s.bus != nil && s.cfg.SettlementStream != "" {
			payload, _ := json.Marshal(t)
			if err := s.bus.StreamAppend(ctx, s.cfg.SettlementStream, payload); err != nil {
				s.logger.WarnContext(ctx, "ledger_service: publish settlement failed",
					slog.String("trade_id", t.ID),
					slog.String("error", err.Error()),
				)
			}
		}

		s.logger.InfoContext(ctx, "ledger_service: trade settled",
			slog.String("trade_id", t.ID),
			slog.String("symbol", t.Symbol),
			slog.String("side", string(t.Side)),
			slog.Float64("pnl", t.PnL),
			slog.Float64("fees", t.Fees),
		)
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "ledger_"+op, map[string]any{
			"version":      l.Version,
			"cash":         l.Cash,
			"total_equity": l.TotalEquity,
			"positions":    len(l.Positions),
			"trades":       len(trades),
			"unrecorded":   unrecorded,
		}); err != nil {
			s.logger.WarnContext(ctx, "ledger_service: audit log failed",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(trades) > len(unrecorded) {
		if err := s.prune(ctx); err != nil {
			s.logger.WarnContext(ctx, "ledger_service: prune history failed",
				slog.String("error", err.Error()),
			)
		}
	}

	if len(unrecorded) > 0 {
		return fmt.Errorf("ledger_service: %s: %w: %s", op, domain.ErrHistoryUnrecorded, strings.Join(unrecorded, ", "))
	}
	return nil
}

// appendHistory retries the append with backoff. Stores ignore a duplicate
// id, so an append that landed before a reported failure is harmless.
func (s *LedgerService) appendHistory(ctx context.Context, t domain.TradeRecord) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.history.Append(ctx, t)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(s.cfg.HistoryTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.logger.WarnContext(ctx, "ledger_service: retrying trade history append",
				slog.String("trade_id", t.ID),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
	return err
}

// prune archives and deletes history beyond the retention limit.
func (s *LedgerService) prune(ctx context.Context) error {
	if s.cfg.HistoryRetention <= 0 || s.archiver == nil {
		return nil
	}

	overflow, err := s.history.Overflow(ctx, s.cfg.HistoryRetention)
	if err != nil {
		return fmt.Errorf("ledger_service: overflow: %w", err)
	}
	if len(overflow) == 0 {
		return nil
	}

	path, err := s.archiver.ArchiveTrades(ctx, overflow)
	if err != nil {
		return fmt.Errorf("ledger_service: archive %d trades: %w", len(overflow), err)
	}

	ids := make([]string, len(overflow))
	for i, t := range overflow {
		ids[i] = t.ID
	}
	if err := s.history.Delete(ctx, ids); err != nil {
		return fmt.Errorf("ledger_service: delete archived trades: %w", err)
	}

	s.logger.InfoContext(ctx, "ledger_service: archived trade history",
		slog.Int("count", len(overflow)),
		slog.String("path", path),
	)
	return nil
}

// History returns settled trades, newest first.
func (s *LedgerService) History(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	trades, err := s.history.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list history: %w", err)
	}
	return trades, nil
}
