package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/lugondev/go-ctoken/internal/config"
	"github.com/lugondev/go-ctoken/internal/storage"
)

func init() {
	storage.RegisterMySQLFactory(func(ctx context.Context, cfg *config.MySQLConfig) (storage.Repository, error) {
		return NewMySQLRepository(ctx, cfg)
	})
}

type MySQLRepository struct {
	db          *sql.DB
	journalRepo storage.JournalRepository
}

func NewMySQLRepository(ctx context.Context, cfg *config.MySQLConfig) (*MySQLRepository, error) {
	db, err := sql.Open("mysql", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &MySQLRepository{
		db:          db,
		journalRepo: &mysqlJournalRepository{db: db},
	}

	migrator := NewMigrator(db)
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func dsn(cfg *config.MySQLConfig) string {
	out := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)

	if cfg.SSLMode != "" && cfg.SSLMode != "false" && cfg.SSLMode != "disable" {
		out += fmt.Sprintf("&tls=%s", cfg.SSLMode)
	}
	return out
}

func (r *MySQLRepository) Journal() storage.JournalRepository {
	return r.journalRepo
}

func (r *MySQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *MySQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
