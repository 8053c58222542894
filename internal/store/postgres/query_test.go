package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

func TestWithListOpts(t *testing.T) {
	t.Parallel()

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		opts      domain.ListOpts
		wantQuery string
		wantArgs  int
	}{
		{
			name:      "no options",
			wantQuery: "SELECT x FROM t WHERE 1=1 ORDER BY ts DESC, id DESC",
		},
		{
			name:      "window and page",
			opts:      domain.ListOpts{Since: &since, Until: &since, Limit: 10, Offset: 20},
			wantQuery: "SELECT x FROM t WHERE 1=1 AND ts >= $1 AND ts <= $2 ORDER BY ts DESC, id DESC LIMIT $3 OFFSET $4",
			wantArgs:  4,
		},
		{
			name:      "limit only",
			opts:      domain.ListOpts{Limit: 5},
			wantQuery: "SELECT x FROM t WHERE 1=1 ORDER BY ts DESC, id DESC LIMIT $1",
			wantArgs:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q, args := withListOpts("SELECT x FROM t WHERE 1=1", nil, "ts", "id", tt.opts)
			assert.Equal(t, tt.wantQuery, q)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "postgres://u:p@db:5432/perpbot?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "perpbot"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}
