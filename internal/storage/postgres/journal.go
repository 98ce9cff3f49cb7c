package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lugondev/go-ctoken/internal/storage"
)

const journalColumns = `id, operation_id, kind, owner, mint, amount, signature, batch_index, batch_count,
	compute_units, status, error_message, created_at`

const insertJournal = `
	INSERT INTO journal (` + journalColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO NOTHING
`

type postgresJournalRepository struct {
	pool *pgxpool.Pool
}

func (r *postgresJournalRepository) Save(ctx context.Context, entry *storage.JournalModel) error {
	_, err := r.pool.Exec(ctx, insertJournal, journalArgs(entry)...)
	return err
}

func (r *postgresJournalRepository) SaveBatch(ctx context.Context, entries []*storage.JournalModel) error {
	return storage.PostgresInsertEntries(ctx, r.pool, insertJournal, entries, journalArgs)
}

func (r *postgresJournalRepository) FindBySignature(ctx context.Context, signature string) (*storage.JournalModel, error) {
	query := `SELECT ` + journalColumns + ` FROM journal WHERE signature = $1 LIMIT 1`
	entry, err := scanJournal(r.pool.QueryRow(ctx, query, signature))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return entry, err
}

func (r *postgresJournalRepository) FindByOperation(ctx context.Context, operationID string) ([]*storage.JournalModel, error) {
	query := `SELECT ` + journalColumns + ` FROM journal WHERE operation_id = $1 ORDER BY batch_index ASC`
	return queryJournal(ctx, r.pool, query, operationID)
}

func (r *postgresJournalRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.JournalModel, error) {
	query := `SELECT ` + journalColumns + ` FROM journal WHERE owner = $1
		ORDER BY created_at DESC, batch_index DESC LIMIT $2 OFFSET $3`
	var pageLimit any
	if limit > 0 {
		pageLimit = limit
	}
	return queryJournal(ctx, r.pool, query, owner, pageLimit, offset)
}

func queryJournal(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]*storage.JournalModel, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.JournalModel, error) {
		return scanJournal(row)
	})
}

func journalArgs(e *storage.JournalModel) []any {
	return []any{
		e.ID, e.OperationID, string(e.Kind), e.Owner, e.Mint, int64(e.Amount), e.Signature,
		e.BatchIndex, e.BatchCount, int64(e.ComputeUnits), string(e.Status), e.ErrorMessage, e.CreatedAt,
	}
}

func scanJournal(row pgx.Row) (*storage.JournalModel, error) {
	var (
		e            storage.JournalModel
		kind, status string
		amount       int64
		units        int64
	)
	if err := row.Scan(
		&e.ID, &e.OperationID, &kind, &e.Owner, &e.Mint, &amount, &e.Signature,
		&e.BatchIndex, &e.BatchCount, &units, &status, &e.ErrorMessage, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Kind = storage.OperationKind(kind)
	e.Status = storage.EntryStatus(status)
	e.Amount = uint64(amount)
	e.ComputeUnits = uint32(units)
	return &e, nil
}
