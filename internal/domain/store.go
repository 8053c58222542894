package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists the single simulated ledger document. Save must
// reject the write with ErrVersionConflict when the stored version is not
// ledger.Version, and store it as ledger.Version+1 otherwise.
type LedgerStore interface {
	Load(ctx context.Context) (Ledger, error) // ErrNotFound when never saved
	Save(ctx context.Context, ledger Ledger) (Ledger, error)
}

// TradeHistoryStore persists settled trades, newest first.
type TradeHistoryStore interface {
	Append(ctx context.Context, rec TradeRecord) error
	List(ctx context.Context, opts ListOpts) ([]TradeRecord, error)
	Count(ctx context.Context) (int64, error)
	// Overflow returns the records beyond the newest keep, oldest first.
	Overflow(ctx context.Context, keep int) ([]TradeRecord, error)
	Delete(ctx context.Context, ids []string) error
}

// DecisionLogStore keeps recent cycle reports, newest first, capped.
type DecisionLogStore interface {
	Append(ctx context.Context, report CycleReport, keep int) error
	List(ctx context.Context, limit int) ([]CycleReport, error)
}

// AuditEntry represents a single entry in the audit log.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists audit log entries.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
