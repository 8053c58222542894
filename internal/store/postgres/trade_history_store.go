package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// TradeHistoryStore implements domain.TradeHistoryStore using PostgreSQL.
type TradeHistoryStore struct {
	pool *pgxpool.Pool
}

// NewTradeHistoryStore creates a new TradeHistoryStore backed by the given
// connection pool.
func NewTradeHistoryStore(pool *pgxpool.Pool) *TradeHistoryStore {
	return &TradeHistoryStore{pool: pool}
}

const tradeSelectCols = `id, symbol, side, entry_price, exit_price, contracts,
	ct_val, leverage, margin, fees, pnl, pnl_percent, opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	defer rows.Close()
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.Side, &t.EntryPrice, &t.ExitPrice, &t.Contracts,
			&t.CtVal, &t.Leverage, &t.Margin, &t.Fees, &t.PnL, &t.PnLPct,
			&t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Append inserts a settled trade. Re-appending the same id is a no-op.
func (s *TradeHistoryStore) Append(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trade_history (` + tradeSelectCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice, t.Contracts,
		t.CtVal, t.Leverage, t.Margin, t.Fees, t.PnL, t.PnLPct,
		t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append trade %s: %w", t.ID, err)
	}
	return nil
}

// List returns trades newest first with pagination and optional time filtering.
func (s *TradeHistoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := withListOpts(`SELECT `+tradeSelectCols+` FROM trade_history WHERE 1=1`, nil, "closed_at", "id", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade history: %w", err)
	}
	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade history: %w", err)
	}
	return trades, nil
}

// Count returns the number of stored trades.
func (s *TradeHistoryStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trade_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count trade history: %w", err)
	}
	return n, nil
}

// Overflow returns the trades older than the newest keep, oldest first.
func (s *TradeHistoryStore) Overflow(ctx context.Context, keep int) ([]domain.TradeRecord, error) {
	if keep < 0 {
		return nil, nil
	}
	const query = `
		SELECT ` + tradeSelectCols + ` FROM (
			SELECT * FROM trade_history ORDER BY closed_at DESC, id DESC OFFSET $1
		) old
		ORDER BY closed_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, keep)
	if err != nil {
		return nil, fmt.Errorf("postgres: trade history overflow: %w", err)
	}
	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade history overflow: %w", err)
	}
	return trades, nil
}

// Delete removes trades by id.
func (s *TradeHistoryStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM trade_history WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete %d trades: %w", len(ids), err)
	}
	return nil
}
