package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// DecisionLogStore implements domain.DecisionLogStore over the
// agent_decision_log collection.
type DecisionLogStore struct {
	coll *mongo.Collection
}

// NewDecisionLogStore creates a DecisionLogStore in db.
func NewDecisionLogStore(db *mongo.Database) *DecisionLogStore {
	return &DecisionLogStore{coll: db.Collection(CollDecisionLog)}
}

// Append upserts report and deletes everything beyond the newest keep.
func (s *DecisionLogStore) Append(ctx context.Context, report domain.CycleReport, keep int) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": report.CycleID}, report, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongodb: append cycle report %s: %w", report.CycleID, err)
	}
	if keep <= 0 {
		return nil
	}

	find := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(keep)).
		SetProjection(bson.M{"_id": 1})
	cur, err := s.coll.Find(ctx, bson.M{}, find)
	if err != nil {
		return fmt.Errorf("mongodb: find stale reports: %w", err)
	}
	var stale []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &stale); err != nil {
		return fmt.Errorf("mongodb: decode stale reports: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	ids := make([]string, len(stale))
	for i, r := range stale {
		ids[i] = r.ID
	}
	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("mongodb: trim decision log: %w", err)
	}
	return nil
}

// List returns up to limit reports, newest first.
func (s *DecisionLogStore) List(ctx context.Context, limit int) ([]domain.CycleReport, error) {
	_, find := listQuery("startedAt", domain.ListOpts{Limit: limit})
	cur, err := s.coll.Find(ctx, bson.M{}, find)
	if err != nil {
		return nil, fmt.Errorf("mongodb: list decision log: %w", err)
	}
	var reports []domain.CycleReport
	if err := cur.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("mongodb: decode decision log: %w", err)
	}
	return reports, nil
}
