package mysql

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lugondev/go-ctoken/internal/storage"
)

const journalColumns = `id, operation_id, kind, owner, mint, amount, signature, batch_index, batch_count,
	compute_units, status, error_message, created_at`

const insertJournal = `
	INSERT IGNORE INTO journal (` + journalColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type mysqlJournalRepository struct {
	db *sql.DB
}

func (r *mysqlJournalRepository) Save(ctx context.Context, entry *storage.JournalModel) error {
	_, err := r.db.ExecContext(ctx, insertJournal, journalArgs(entry)...)
	return err
}

func (r *mysqlJournalRepository) SaveBatch(ctx context.Context, entries []*storage.JournalModel) error {
	return storage.MySQLInsertEntries(ctx, r.db, insertJournal, entries, journalArgs)
}

func (r *mysqlJournalRepository) FindBySignature(ctx context.Context, signature string) (*storage.JournalModel, error) {
	query := `SELECT ` + journalColumns + ` FROM journal WHERE signature = ? LIMIT 1`
	entry, err := scanJournal(r.db.QueryRowContext(ctx, query, signature))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return entry, err
}

func (r *mysqlJournalRepository) FindByOperation(ctx context.Context, operationID string) ([]*storage.JournalModel, error) {
	query := `SELECT ` + journalColumns + ` FROM journal WHERE operation_id = ? ORDER BY batch_index ASC`
	return r.query(ctx, query, operationID)
}

func (r *mysqlJournalRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.JournalModel, error) {
	if limit <= 0 {
		// MySQL has no unbounded LIMIT with an OFFSET.
		limit = 1<<31 - 1
	}
	query := `SELECT ` + journalColumns + ` FROM journal WHERE owner = ?
		ORDER BY created_at DESC, batch_index DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, owner, limit, offset)
}

func (r *mysqlJournalRepository) query(ctx context.Context, query string, args ...any) ([]*storage.JournalModel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*storage.JournalModel
	for rows.Next() {
		entry, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func journalArgs(e *storage.JournalModel) []any {
	return []any{
		e.ID, e.OperationID, string(e.Kind), e.Owner, e.Mint, e.Amount, e.Signature,
		e.BatchIndex, e.BatchCount, e.ComputeUnits, string(e.Status), e.ErrorMessage, e.CreatedAt,
	}
}

func scanJournal(row rowScanner) (*storage.JournalModel, error) {
	var (
		e            storage.JournalModel
		kind, status string
	)
	if err := row.Scan(
		&e.ID, &e.OperationID, &kind, &e.Owner, &e.Mint, &e.Amount, &e.Signature,
		&e.BatchIndex, &e.BatchCount, &e.ComputeUnits, &status, &e.ErrorMessage, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Kind = storage.OperationKind(kind)
	e.Status = storage.EntryStatus(status)
	return &e, nil
}
