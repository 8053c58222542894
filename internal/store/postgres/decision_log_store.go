package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// DecisionLogStore implements domain.DecisionLogStore, keeping each cycle
// report as JSONB.
type DecisionLogStore struct {
	pool *pgxpool.Pool
}

// NewDecisionLogStore creates a new DecisionLogStore backed by the given
// connection pool.
func NewDecisionLogStore(pool *pgxpool.Pool) *DecisionLogStore {
	return &DecisionLogStore{pool: pool}
}

// Append stores report and trims the log to the newest keep reports in the
// same transaction.
func (s *DecisionLogStore) Append(ctx context.Context, report domain.CycleReport, keep int) error {
	doc, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("postgres: encode cycle report: %w", err)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO decision_log (cycle_id, mode, report, started_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (cycle_id) DO UPDATE SET report = EXCLUDED.report`,
			report.CycleID, string(report.Mode), doc, report.StartedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert cycle report %s: %w", report.CycleID, err)
		}
		if keep <= 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM decision_log WHERE cycle_id IN (
				SELECT cycle_id FROM decision_log ORDER BY started_at DESC, cycle_id DESC OFFSET $1
			)`, keep,
		); err != nil {
			return fmt.Errorf("postgres: trim decision log: %w", err)
		}
		return nil
	})
}

// List returns up to limit reports, newest first. A non-positive limit
// returns all of them.
func (s *DecisionLogStore) List(ctx context.Context, limit int) ([]domain.CycleReport, error) {
	query := `SELECT report FROM decision_log ORDER BY started_at DESC, cycle_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decision log: %w", err)
	}
	defer rows.Close()

	var reports []domain.CycleReport
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("postgres: scan cycle report: %w", err)
		}
		var r domain.CycleReport
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("postgres: decode cycle report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decision log rows: %w", err)
	}
	return reports, nil
}
