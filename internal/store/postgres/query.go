package postgres

import (
	"fmt"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// withListOpts appends the time window on column, newest-first ordering
// and pagination to a query that already has a WHERE clause.
func withListOpts(query string, args []any, column, tiebreak string, opts domain.ListOpts) (string, []any) {
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND %s >= $%d", column, len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND %s <= $%d", column, len(args))
	}

	query += fmt.Sprintf(" ORDER BY %s DESC, %s DESC", column, tiebreak)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
