package filestore

import (
	"context"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// LedgerStore implements domain.LedgerStore as one JSON document whose
// version field guards every save.
type LedgerStore struct {
	doc document[domain.Ledger]
}

// NewLedgerStore creates a LedgerStore in c's directory.
func NewLedgerStore(c *Client) *LedgerStore {
	return &LedgerStore{doc: newDocument[domain.Ledger](c, FileLedger)}
}

// Load returns the stored ledger, or domain.ErrNotFound before the first save.
func (s *LedgerStore) Load(_ context.Context) (domain.Ledger, error) {
	var out domain.Ledger
	err := s.doc.view(func(l domain.Ledger, found bool) error {
		if !found {
			return domain.ErrNotFound
		}
		out = l
		return nil
	})
	return out, err
}

// Save writes l as version l.Version+1 when the file is still at
// l.Version; otherwise domain.ErrVersionConflict is returned.
func (s *LedgerStore) Save(_ context.Context, l domain.Ledger) (domain.Ledger, error) {
	next := l.Clone()
	next.Version = l.Version + 1

	err := s.doc.update(func(cur *domain.Ledger, found bool) (bool, error) {
		var version int64
		if found {
			version = cur.Version
		}
		if version != l.Version {
			return false, domain.ErrVersionConflict
		}
		*cur = next
		return true, nil
	})
	if err != nil {
		return domain.Ledger{}, err
	}
	return next.Clone(), nil
}
