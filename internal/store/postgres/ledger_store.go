package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

const ledgerID = "current"

// LedgerStore implements domain.LedgerStore as one JSONB row guarded by a
// version column.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Load returns the stored ledger, or domain.ErrNotFound before the first save.
func (s *LedgerStore) Load(ctx context.Context) (domain.Ledger, error) {
	var (
		version int64
		doc     []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT version, document FROM ledger_state WHERE id = $1`, ledgerID,
	).Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ledger{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("postgres: load ledger: %w", err)
	}

	var l domain.Ledger
	if err := json.Unmarshal(doc, &l); err != nil {
		return domain.Ledger{}, fmt.Errorf("postgres: decode ledger: %w", err)
	}
	l.Version = version
	return l, nil
}

// Save writes l as version l.Version+1. The write only lands when the row
// is still at l.Version; otherwise domain.ErrVersionConflict is returned.
func (s *LedgerStore) Save(ctx context.Context, l domain.Ledger) (domain.Ledger, error) {
	next := l.Clone()
	next.Version = l.Version + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("postgres: encode ledger: %w", err)
	}

	var query string
	args := []any{ledgerID, next.Version, doc, next.UpdatedAt}
	if l.Version == 0 {
		query = `
			INSERT INTO ledger_state (id, version, document, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`
	} else {
		query = `
			UPDATE ledger_state
			SET version = $2, document = $3, updated_at = $4
			WHERE id = $1 AND version = $5`
		args = append(args, l.Version)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("postgres: save ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Ledger{}, domain.ErrVersionConflict
	}
	return next, nil
}
