package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/elskow/userauth/internal/config"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Manager owns the connection for the configured driver. It is created by
// Connect and must be released with Close.
type Manager struct {
	config *config.DatabaseConfig
	logger *zap.Logger

	mongoClient *mongo.Client
	mongoDB     *mongo.Database
	db          *gorm.DB
}

func Connect(ctx context.Context, config *config.DatabaseConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout(config))
	defer cancel()

	switch config.Driver {
	case DriverMongo:
		client, err := connectMongo(ctx, &config.Mongo)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		m.mongoClient = client
		m.mongoDB = client.Database(config.Mongo.Database)
		logger.Info("connected to MongoDB", zap.String("database", config.Mongo.Database))
	case DriverPostgres:
		db, err := newDatabase(&config.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
		}
		m.db = db
		logger.Info("connected to PostgreSQL", zap.String("database", config.Postgres.Name))
	case DriverMemory:
		logger.Warn("using in-memory user store; data is lost on restart")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	return m, nil
}

func (m *Manager) Driver() string {
	return m.config.Driver
}

// Mongo returns the configured database, or nil for other drivers.
func (m *Manager) Mongo() *mongo.Database {
	return m.mongoDB
}

// DB returns the GORM handle, or nil for other drivers.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

func (m *Manager) Close(ctx context.Context) error {
	switch {
	case m.mongoClient != nil:
		return m.mongoClient.Disconnect(ctx)
	case m.db != nil:
		sqlDB, err := m.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

func connectTimeout(config *config.DatabaseConfig) time.Duration {
	if config.Timeout <= 0 {
		return 10 * time.Second
	}
	return 2 * config.Timeout
}
