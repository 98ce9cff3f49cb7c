package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/lugondev/go-ctoken/internal/config"
)

// ErrBackendNotRegistered is returned when a journal type is configured but
// its package was never imported.
var ErrBackendNotRegistered = errors.New("journal backend not registered")

// Backends register themselves from init, so only imported drivers are linked.
var (
	mongoFactory    func(context.Context, *config.MongoDBConfig) (Repository, error)
	postgresFactory func(context.Context, *config.PostgresConfig) (Repository, error)
	mysqlFactory    func(context.Context, *config.MySQLConfig) (Repository, error)
)

func RegisterMongoFactory(factory func(context.Context, *config.MongoDBConfig) (Repository, error)) {
	mongoFactory = factory
}

func RegisterPostgresFactory(factory func(context.Context, *config.PostgresConfig) (Repository, error)) {
	postgresFactory = factory
}

func RegisterMySQLFactory(factory func(context.Context, *config.MySQLConfig) (Repository, error)) {
	mysqlFactory = factory
}

func notRegistered(t DatabaseType) error {
	return fmt.Errorf("%w: %s (import _ \"github.com/lugondev/go-ctoken/internal/storage/%s\")",
		ErrBackendNotRegistered, t, backendPackage(t))
}

func backendPackage(t DatabaseType) string {
	if t == DatabaseTypeMongoDB {
		return "mongo"
	}
	return string(t)
}

func NewMongoRepositoryFromConfig(ctx context.Context, cfg *config.MongoDBConfig) (Repository, error) {
	if mongoFactory == nil {
		return nil, notRegistered(DatabaseTypeMongoDB)
	}
	return mongoFactory(ctx, cfg)
}

func NewPostgresRepositoryFromConfig(ctx context.Context, cfg *config.PostgresConfig) (Repository, error) {
	if postgresFactory == nil {
		return nil, notRegistered(DatabaseTypePostgres)
	}
	return postgresFactory(ctx, cfg)
}

func NewMySQLRepositoryFromConfig(ctx context.Context, cfg *config.MySQLConfig) (Repository, error) {
	if mysqlFactory == nil {
		return nil, notRegistered(DatabaseTypeMySQL)
	}
	return mysqlFactory(ctx, cfg)
}
