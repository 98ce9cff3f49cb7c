package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lugondev/go-ctoken/internal/common"
	"github.com/lugondev/go-ctoken/internal/storage"
)

var migrations = []storage.Migration{
	{
		Version:     1,
		Description: "Submission journal",
		Up: `
		CREATE TABLE IF NOT EXISTS journal (
			id TEXT PRIMARY KEY,
			operation_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			owner TEXT NOT NULL,
			mint TEXT NOT NULL,
			amount BIGINT NOT NULL,
			signature TEXT NOT NULL DEFAULT '',
			batch_index INT NOT NULL,
			batch_count INT NOT NULL,
			compute_units BIGINT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_journal_operation ON journal(operation_id, batch_index);
		CREATE INDEX IF NOT EXISTS idx_journal_owner ON journal(owner, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_journal_signature ON journal(signature);
		`,
		Down: `DROP TABLE IF EXISTS journal;`,
	},
	{
		Version:     2,
		Description: "Journal mint index",
		Up:          `CREATE INDEX IF NOT EXISTS idx_journal_mint ON journal(mint);`,
		Down:        `DROP INDEX IF EXISTS idx_journal_mint;`,
	},
}

// Migrator applies the journal schema in one transaction per run.
type Migrator struct {
	common.LoggerMixin
	pool *pgxpool.Pool
}

func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{LoggerMixin: common.NewLoggerMixin(), pool: pool}
}

func (m *Migrator) WithLogger(logger *slog.Logger) *Migrator {
	m.SetLogger(logger)
	return m
}

// Version returns the highest applied migration, creating the bookkeeping
// table on first use.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if _, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	var version int
	if err := m.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	pending := storage.Pending(migrations, version)
	if len(pending) == 0 {
		return nil
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, migration := range pending {
		if _, err := tx.Exec(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	m.GetLogger().Info("applied journal migrations", "from", version, "to", pending[len(pending)-1].Version)
	return nil
}

// Down reverts migrations above target.
func (m *Migrator) Down(ctx context.Context, target int) error {
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	revert := storage.Revertible(migrations, version, target)
	if len(revert) == 0 {
		return nil
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, migration := range revert {
		if _, err := tx.Exec(ctx, migration.Down); err != nil {
			return fmt.Errorf("failed to revert migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", migration.Version); err != nil {
			return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}
	m.GetLogger().Info("reverted journal migrations", "from", version, "to", target)
	return nil
}

func (m *Migrator) Status(ctx context.Context) ([]storage.MigrationState, error) {
	version, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	return storage.States(migrations, version), nil
}
