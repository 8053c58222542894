package filestore

import (
	"context"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// DecisionLogStore implements domain.DecisionLogStore. The document keeps
// reports newest first.
type DecisionLogStore struct {
	doc document[[]domain.CycleReport]
}

// NewDecisionLogStore creates a DecisionLogStore in c's directory.
func NewDecisionLogStore(c *Client) *DecisionLogStore {
	return &DecisionLogStore{doc: newDocument[[]domain.CycleReport](c, FileDecisions)}
}

// Append stores report first, replacing an earlier report with the same
// cycle id, and trims the log to keep entries.
func (s *DecisionLogStore) Append(_ context.Context, report domain.CycleReport, keep int) error {
	return s.doc.update(func(reports *[]domain.CycleReport, _ bool) (bool, error) {
		next := make([]domain.CycleReport, 0, len(*reports)+1)
		next = append(next, report)
		for _, r := range *reports {
			if r.CycleID != report.CycleID {
				next = append(next, r)
			}
		}
		if keep > 0 && len(next) > keep {
			next = next[:keep]
		}
		*reports = next
		return true, nil
	})
}

// List returns up to limit reports, newest first.
func (s *DecisionLogStore) List(_ context.Context, limit int) ([]domain.CycleReport, error) {
	var out []domain.CycleReport
	err := s.doc.view(func(reports []domain.CycleReport, _ bool) error {
		if limit <= 0 || limit > len(reports) {
			limit = len(reports)
		}
		out = reports[:limit]
		return nil
	})
	return out, err
}
