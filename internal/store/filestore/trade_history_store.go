package filestore

import (
	"context"
	"slices"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// TradeHistoryStore implements domain.TradeHistoryStore. The document keeps
// trades in insertion order.
type TradeHistoryStore struct {
	doc document[[]domain.TradeRecord]
}

// NewTradeHistoryStore creates a TradeHistoryStore in c's directory.
func NewTradeHistoryStore(c *Client) *TradeHistoryStore {
	return &TradeHistoryStore{doc: newDocument[[]domain.TradeRecord](c, FileTrades)}
}

// Append adds rec unless a trade with the same id is already stored.
func (s *TradeHistoryStore) Append(_ context.Context, rec domain.TradeRecord) error {
	return s.doc.update(func(trades *[]domain.TradeRecord, _ bool) (bool, error) {
		if rec.ID != "" && slices.ContainsFunc(*trades, func(t domain.TradeRecord) bool { return t.ID == rec.ID }) {
			return false, nil
		}
		*trades = append(*trades, rec)
		return true, nil
	})
}

// List returns trades newest first.
func (s *TradeHistoryStore) List(_ context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := s.doc.view(func(trades []domain.TradeRecord, _ bool) error {
		out = make([]domain.TradeRecord, 0, len(trades))
		for i := len(trades) - 1; i >= 0; i-- {
			if inRange(trades[i].ClosedAt, opts) {
				out = append(out, trades[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paginate(out, opts), nil
}

// Count returns the number of stored trades.
func (s *TradeHistoryStore) Count(_ context.Context) (int64, error) {
	var n int64
	err := s.doc.view(func(trades []domain.TradeRecord, _ bool) error {
		n = int64(len(trades))
		return nil
	})
	return n, err
}

// Overflow returns the trades beyond the newest keep, oldest first.
func (s *TradeHistoryStore) Overflow(_ context.Context, keep int) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := s.doc.view(func(trades []domain.TradeRecord, _ bool) error {
		if keep >= 0 && len(trades) > keep {
			out = trades[:len(trades)-keep]
		}
		return nil
	})
	return out, err
}

// Delete removes trades by id.
func (s *TradeHistoryStore) Delete(_ context.Context, ids []string) error {
	return s.doc.update(func(trades *[]domain.TradeRecord, _ bool) (bool, error) {
		before := len(*trades)
		*trades = slices.DeleteFunc(*trades, func(t domain.TradeRecord) bool {
			return slices.Contains(ids, t.ID)
		})
		return len(*trades) != before, nil
	})
}
