package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	RoomAuditLogsCollection = "room_audit_logs"

	defaultMongoDatabase = "quadchat"
	defaultMongoTimeout  = 20 * time.Second
	mongoAppName         = "quadchat-audit"
)

type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Mongo owns the client of the audit database. Audit entries are
// acknowledged by the primary only; losing one on failover is acceptable.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(ctx context.Context, cfg MongoConfig, logger logging.Logger) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = defaultMongoDatabase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultMongoTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URI).
		SetAppName(mongoAppName).
		SetServerSelectionTimeout(cfg.Timeout).
		SetWriteConcern(writeconcern.W1()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info(logging.MongoDB, logging.Startup, "connected to mongodb", map[logging.ExtraKey]any{
		"Database": cfg.Database,
	})
	return &Mongo{client: client, db: client.Database(cfg.Database)}, nil
}

func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// Ping is the health check of the audit pipeline.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
