package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("journal entry not found")

type JournalRepository interface {
	Save(ctx context.Context, entry *JournalModel) error
	SaveBatch(ctx context.Context, entries []*JournalModel) error
	FindBySignature(ctx context.Context, signature string) (*JournalModel, error)
	FindByOperation(ctx context.Context, operationID string) ([]*JournalModel, error)
	FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*JournalModel, error)
}

type Repository interface {
	Journal() JournalRepository
	Close() error
	Ping(ctx context.Context) error
}
