// Package mongodb persists the simulated ledger, trade history, decision
// log and audit trail in MongoDB, using the document layout of the
// portfolio_state, trade_history and agent_decision_log collections.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CollPortfolioState = "portfolio_state"
	CollTradeHistory   = "trade_history"
	CollDecisionLog    = "agent_decision_log"
	CollAuditLog       = "audit_log"
)

// CommandObserver receives the outcome of every driver command.
type CommandObserver func(command string, elapsed time.Duration, ok bool)

// ClientConfig holds connection parameters for the MongoDB client.
type ClientConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MinPoolSize    uint64
	MaxPoolSize    uint64
	Observe        CommandObserver // optional
}

// Client wraps a connected mongo.Client and the configured database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects and pings the primary. The caller must Close the client.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Database == "" {
		cfg.Database = "perpbot"
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MinPoolSize > 0 {
		opts.SetMinPoolSize(cfg.MinPoolSize)
	}
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	if obs := cfg.Observe; obs != nil {
		opts.SetMonitor(&event.CommandMonitor{
			Succeeded: func(_ context.Context, evt *event.CommandSucceededEvent) {
				obs(evt.CommandName, evt.Duration, true)
			},
			Failed: func(_ context.Context, evt *event.CommandFailedEvent) {
				obs(evt.CommandName, evt.Duration, false)
			},
		})
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the configured database handle.
func (c *Client) Database() *mongo.Database { return c.db }

// Ping checks that the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb: ping: %w", err)
	}
	return nil
}

// EnsureIndexes creates the indexes the stores query by.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string]mongo.IndexModel{
		CollTradeHistory: {Keys: bsonD("closedAt", -1)},
		CollDecisionLog:  {Keys: bsonD("startedAt", -1)},
		CollAuditLog:     {Keys: bsonD("createdAt", -1)},
	}
	for coll, idx := range specs {
		if _, err := c.db.Collection(coll).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("mongodb: create index on %s: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects with a bounded timeout.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongodb: disconnect: %w", err)
	}
	return nil
}
