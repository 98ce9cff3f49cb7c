package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Journal writes are idempotent: an entry whose ID is already stored is
// skipped, so a retried SaveBatch never fails on the rows that made it.

// MongoInsertEntries inserts entries unordered and ignores duplicate IDs.
func MongoInsertEntries(ctx context.Context, collection *mongo.Collection, entries []*JournalModel) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = e
	}

	_, err := collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !OnlyDuplicates(err) {
		return fmt.Errorf("failed to insert %d journal entries: %w", len(entries), err)
	}
	return nil
}

// OnlyDuplicates reports whether every write error in err is a duplicate key.
func OnlyDuplicates(err error) bool {
	if err == nil {
		return false
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		if bwe.WriteConcernError != nil {
			return false
		}
		for _, we := range bwe.WriteErrors {
			if we.Code != 11000 {
				return false
			}
		}
		return len(bwe.WriteErrors) > 0
	}
	return mongo.IsDuplicateKeyError(err)
}

// PostgresInsertEntries sends one pgx batch queueing query per entry.
func PostgresInsertEntries(ctx context.Context, pool *pgxpool.Pool, query string, entries []*JournalModel, args func(*JournalModel) []any) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query, args(e)...)
	}

	br := pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert journal entry %d: %w", i, err)
		}
	}
	return br.Close()
}

// MySQLInsertEntries executes query once per entry in one transaction.
func MySQLInsertEntries(ctx context.Context, db *sql.DB, query string, entries []*JournalModel, args func(*JournalModel) []any) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, args(e)...); err != nil {
			return fmt.Errorf("failed to insert journal entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}
