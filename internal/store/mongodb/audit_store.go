package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

type auditDoc struct {
	ID        int64          `bson:"_id"`
	Event     string         `bson:"event"`
	Detail    map[string]any `bson:"detail,omitempty"`
	CreatedAt time.Time      `bson:"createdAt"`
}

// AuditStore implements domain.AuditStore over the audit_log collection.
// Entry ids are the insert time in nanoseconds.
type AuditStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewAuditStore creates an AuditStore in db.
func NewAuditStore(db *mongo.Database) *AuditStore {
	return &AuditStore{coll: db.Collection(CollAuditLog), now: func() time.Time { return time.Now().UTC() }}
}

// Log appends an audit entry.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	now := s.now()
	doc := auditDoc{ID: now.UnixNano(), Event: event, Detail: detail, CreatedAt: now}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodb: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	filter, find := listQuery("createdAt", opts)
	cur, err := s.coll.Find(ctx, filter, find)
	if err != nil {
		return nil, fmt.Errorf("mongodb: list audit entries: %w", err)
	}
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decode audit entries: %w", err)
	}
	out := make([]domain.AuditEntry, len(docs))
	for i, d := range docs {
		out[i] = domain.AuditEntry{ID: d.ID, Event: d.Event, Detail: d.Detail, CreatedAt: d.CreatedAt}
	}
	return out, nil
}
