package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// ledgerDocID is the _id of the single portfolio document.
const ledgerDocID = "current_state"

type ledgerDoc struct {
	ID            string `bson:"_id"`
	domain.Ledger `bson:",inline"`
}

// LedgerStore implements domain.LedgerStore over the portfolio_state
// collection with a version filter on every replace.
type LedgerStore struct {
	coll *mongo.Collection
}

// NewLedgerStore creates a LedgerStore in db.
func NewLedgerStore(db *mongo.Database) *LedgerStore {
	return &LedgerStore{coll: db.Collection(CollPortfolioState)}
}

// Load returns the stored ledger, or domain.ErrNotFound before the first save.
func (s *LedgerStore) Load(ctx context.Context) (domain.Ledger, error) {
	var doc ledgerDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": ledgerDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Ledger{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("mongodb: load ledger: %w", err)
	}
	return doc.Ledger, nil
}

// Save writes l as version l.Version+1 when the stored document is still at
// l.Version, and returns domain.ErrVersionConflict otherwise.
func (s *LedgerStore) Save(ctx context.Context, l domain.Ledger) (domain.Ledger, error) {
	next := l.Clone()
	next.Version = l.Version + 1
	doc := ledgerDoc{ID: ledgerDocID, Ledger: next}

	if l.Version == 0 {
		_, err := s.coll.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return domain.Ledger{}, domain.ErrVersionConflict
		}
		if err != nil {
			return domain.Ledger{}, fmt.Errorf("mongodb: insert ledger: %w", err)
		}
		return next, nil
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": ledgerDocID, "version": l.Version}, doc)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("mongodb: replace ledger: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.Ledger{}, domain.ErrVersionConflict
	}
	return next, nil
}
