package storage

import (
	"context"
	"fmt"

	"github.com/lugondev/go-ctoken/internal/config"
)

type DatabaseType string

const (
	DatabaseTypeMongoDB  DatabaseType = "mongodb"
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeMemory   DatabaseType = "memory"
)

// ConnectionManager opens the journal backend selected by configuration.
type ConnectionManager struct {
	config     *config.JournalConfig
	repository Repository
}

func NewConnectionManager(cfg *config.JournalConfig) (*ConnectionManager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("journal is not enabled in configuration")
	}

	return &ConnectionManager{
		config: cfg,
	}, nil
}

func (cm *ConnectionManager) Connect(ctx context.Context) (Repository, error) {
	if cm.repository != nil {
		return cm.repository, nil
	}

	var repo Repository
	var err error

	switch DatabaseType(cm.config.Type) {
	case DatabaseTypeMongoDB:
		repo, err = NewMongoRepositoryFromConfig(ctx, &cm.config.MongoDB)
	case DatabaseTypePostgres:
		repo, err = NewPostgresRepositoryFromConfig(ctx, &cm.config.Postgres)
	case DatabaseTypeMySQL:
		repo, err = NewMySQLRepositoryFromConfig(ctx, &cm.config.MySQL)
	case DatabaseTypeMemory:
		repo = NewMemoryRepository()
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cm.config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cm.repository = repo
	return repo, nil
}

func (cm *ConnectionManager) GetRepository() (Repository, error) {
	if cm.repository == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return cm.repository, nil
}

func (cm *ConnectionManager) Close() error {
	if cm.repository != nil {
		return cm.repository.Close()
	}
	return nil
}

// Open connects the configured journal, or returns an in-memory one when the
// journal is disabled.
func Open(ctx context.Context, cfg *config.JournalConfig) (Repository, error) {
	if cfg == nil || !cfg.Enabled {
		return NewMemoryRepository(), nil
	}
	cm, err := NewConnectionManager(cfg)
	if err != nil {
		return nil, err
	}
	return cm.Connect(ctx)
}
