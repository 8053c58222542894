// Package memory implements the domain stores in process memory. State
// lives only as long as the process, so it suits tests and long-running
// embeddings rather than one-shot cycles.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// LedgerStore holds the ledger document with optimistic versioning.
type LedgerStore struct {
	mu     sync.Mutex
	ledger *domain.Ledger
}

// NewLedgerStore returns an empty ledger store.
func NewLedgerStore() *LedgerStore { return &LedgerStore{} }

// Load returns a copy of the stored ledger.
func (s *LedgerStore) Load(_ context.Context) (domain.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger == nil {
		return domain.Ledger{}, domain.ErrNotFound
	}
	return s.ledger.Clone(), nil
}

// Save stores l as version l.Version+1 when the stored version matches.
func (s *LedgerStore) Save(_ context.Context, l domain.Ledger) (domain.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if s.ledger != nil {
		current = s.ledger.Version
	}
	if l.Version != current {
		return domain.Ledger{}, domain.ErrVersionConflict
	}

	next := l.Clone()
	next.Version++
	s.ledger = &next
	return next.Clone(), nil
}

// TradeHistoryStore keeps trades in insertion order.
type TradeHistoryStore struct {
	mu     sync.RWMutex
	trades []domain.TradeRecord
}

// NewTradeHistoryStore returns an empty history.
func NewTradeHistoryStore() *TradeHistoryStore { return &TradeHistoryStore{} }

// Append adds a trade. A trade whose id is already stored is ignored.
func (s *TradeHistoryStore) Append(_ context.Context, rec domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID != "" && slices.ContainsFunc(s.trades, func(t domain.TradeRecord) bool { return t.ID == rec.ID }) {
		return nil
	}
	s.trades = append(s.trades, rec)
	return nil
}

// List returns trades newest first.
func (s *TradeHistoryStore) List(_ context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TradeRecord, 0, len(s.trades))
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if !inRange(t.ClosedAt, opts) {
			continue
		}
		out = append(out, t)
	}
	return paginate(out, opts), nil
}

// Count returns the number of stored trades.
func (s *TradeHistoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.trades)), nil
}

// Overflow returns the trades beyond the newest keep, oldest first.
func (s *TradeHistoryStore) Overflow(_ context.Context, keep int) ([]domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if keep < 0 || len(s.trades) <= keep {
		return nil, nil
	}
	return slices.Clone(s.trades[:len(s.trades)-keep]), nil
}

// Delete removes trades by id.
func (s *TradeHistoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = slices.DeleteFunc(s.trades, func(t domain.TradeRecord) bool {
		return slices.Contains(ids, t.ID)
	})
	return nil
}

// DecisionLogStore keeps the newest cycle reports.
type DecisionLogStore struct {
	mu      sync.RWMutex
	reports []domain.CycleReport // newest first
}

// NewDecisionLogStore returns an empty decision log.
func NewDecisionLogStore() *DecisionLogStore { return &DecisionLogStore{} }

// Append prepends report and trims the log to keep entries.
func (s *DecisionLogStore) Append(_ context.Context, report domain.CycleReport, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append([]domain.CycleReport{report}, s.reports...)
	if keep > 0 && len(s.reports) > keep {
		s.reports = s.reports[:keep]
	}
	return nil
}

// List returns up to limit reports, newest first.
func (s *DecisionLogStore) List(_ context.Context, limit int) ([]domain.CycleReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.reports) {
		limit = len(s.reports)
	}
	return slices.Clone(s.reports[:limit]), nil
}

// AuditStore keeps audit entries in memory.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewAuditStore returns an empty audit log.
func NewAuditStore() *AuditStore { return &AuditStore{} }

// Log appends an entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if inRange(s.entries[i].CreatedAt, opts) {
			out = append(out, s.entries[i])
		}
	}
	return paginate(out, opts), nil
}

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
