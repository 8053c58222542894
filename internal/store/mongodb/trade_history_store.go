package mongodb

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// TradeHistoryStore implements domain.TradeHistoryStore over the
// trade_history collection.
type TradeHistoryStore struct {
	coll *mongo.Collection
}

// NewTradeHistoryStore creates a TradeHistoryStore in db.
func NewTradeHistoryStore(db *mongo.Database) *TradeHistoryStore {
	return &TradeHistoryStore{coll: db.Collection(CollTradeHistory)}
}

// Append inserts a settled trade. Re-appending the same id is a no-op.
func (s *TradeHistoryStore) Append(ctx context.Context, t domain.TradeRecord) error {
	_, err := s.coll.InsertOne(ctx, t)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongodb: append trade %s: %w", t.ID, err)
	}
	return nil
}

// List returns trades newest first.
func (s *TradeHistoryStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	filter, find := listQuery("closedAt", opts)
	return s.find(ctx, filter, find)
}

// Count returns the number of stored trades.
func (s *TradeHistoryStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("mongodb: count trades: %w", err)
	}
	return n, nil
}

// Overflow returns the trades older than the newest keep, oldest first.
func (s *TradeHistoryStore) Overflow(ctx context.Context, keep int) ([]domain.TradeRecord, error) {
	if keep < 0 {
		return nil, nil
	}
	find := options.Find().
		SetSort(bson.D{{Key: "closedAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(keep))
	trades, err := s.find(ctx, bson.M{}, find)
	if err != nil {
		return nil, err
	}
	slices.Reverse(trades)
	return trades, nil
}

// Delete removes trades by id.
func (s *TradeHistoryStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return fmt.Errorf("mongodb: delete %d trades: %w", len(ids), err)
	}
	return nil
}

func (s *TradeHistoryStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.TradeRecord, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: find trades: %w", err)
	}
	var trades []domain.TradeRecord
	if err := cur.All(ctx, &trades); err != nil {
		return nil, fmt.Errorf("mongodb: decode trades: %w", err)
	}
	return trades, nil
}
