package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lugondev/go-ctoken/internal/common"
	"github.com/lugondev/go-ctoken/internal/storage"
)

var migrations = []storage.Migration{
	{
		Version:     1,
		Description: "Submission journal",
		Up: `
		CREATE TABLE IF NOT EXISTS journal (
			id VARCHAR(64) PRIMARY KEY,
			operation_id VARCHAR(64) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			owner VARCHAR(64) NOT NULL,
			mint VARCHAR(64) NOT NULL,
			amount BIGINT UNSIGNED NOT NULL,
			signature VARCHAR(128) NOT NULL DEFAULT '',
			batch_index INT NOT NULL,
			batch_count INT NOT NULL,
			compute_units INT UNSIGNED NOT NULL,
			status VARCHAR(32) NOT NULL,
			error_message TEXT NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			INDEX idx_journal_operation (operation_id, batch_index),
			INDEX idx_journal_owner (owner, created_at DESC),
			INDEX idx_journal_signature (signature)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
		`,
		Down: `DROP TABLE IF EXISTS journal;`,
	},
	{
		Version:     2,
		Description: "Journal mint index",
		Up:          `CREATE INDEX idx_journal_mint ON journal (mint);`,
		Down:        `DROP INDEX idx_journal_mint ON journal;`,
	},
}

// Migrator applies the journal schema. MySQL commits DDL implicitly, so each
// migration is recorded as soon as it is applied.
type Migrator struct {
	common.LoggerMixin
	db *sql.DB
}

func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{LoggerMixin: common.NewLoggerMixin(), db: db}
}

func (m *Migrator) WithLogger(logger *slog.Logger) *Migrator {
	m.SetLogger(logger)
	return m
}

// Version returns the highest applied migration, creating the bookkeeping
// table on first use.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`); err != nil {
		return 0, fmt.Errorf("failed to ensure migrations table: %w", err)
	}

	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	for _, migration := range storage.Pending(migrations, version) {
		if err := m.exec(ctx, migration.Up,
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			migration.Version, migration.Description); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
		m.GetLogger().Info("applied journal migration", "version", migration.Version, "description", migration.Description)
	}
	return nil
}

// Down reverts migrations above target.
func (m *Migrator) Down(ctx context.Context, target int) error {
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	for _, migration := range storage.Revertible(migrations, version, target) {
		if err := m.exec(ctx, migration.Down,
			"DELETE FROM schema_migrations WHERE version = ?", migration.Version); err != nil {
			return fmt.Errorf("failed to revert migration %d: %w", migration.Version, err)
		}
		m.GetLogger().Info("reverted journal migration", "version", migration.Version)
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) ([]storage.MigrationState, error) {
	version, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	return storage.States(migrations, version), nil
}

// exec runs a schema statement and its bookkeeping statement together.
func (m *Migrator) exec(ctx context.Context, schema, record string, args ...any) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return err
	}
	return tx.Commit()
}
