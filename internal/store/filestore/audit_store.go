package filestore

import (
	"context"
	"time"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// AuditStore implements domain.AuditStore as an append-only JSON document.
type AuditStore struct {
	doc document[[]domain.AuditEntry]
	now func() time.Time
}

// NewAuditStore creates an AuditStore in c's directory.
func NewAuditStore(c *Client) *AuditStore {
	return &AuditStore{
		doc: newDocument[[]domain.AuditEntry](c, FileAudit),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Log appends an entry with the next sequential id.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	return s.doc.update(func(entries *[]domain.AuditEntry, _ bool) (bool, error) {
		id := int64(1)
		if n := len(*entries); n > 0 {
			id = (*entries)[n-1].ID + 1
		}
		*entries = append(*entries, domain.AuditEntry{
			ID:        id,
			Event:     event,
			Detail:    detail,
			CreatedAt: s.now(),
		})
		return true, nil
	})
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := s.doc.view(func(entries []domain.AuditEntry, _ bool) error {
		out = make([]domain.AuditEntry, 0, len(entries))
		for i := len(entries) - 1; i >= 0; i-- {
			if inRange(entries[i].CreatedAt, opts) {
				out = append(out, entries[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paginate(out, opts), nil
}
