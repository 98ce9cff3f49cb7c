package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lugondev/go-ctoken/internal/storage"
)

type mongoJournalRepository struct {
	collection *mongo.Collection
}

func (r *mongoJournalRepository) Save(ctx context.Context, entry *storage.JournalModel) error {
	_, err := r.collection.InsertOne(ctx, entry)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return err
	}
	return nil
}

func (r *mongoJournalRepository) SaveBatch(ctx context.Context, entries []*storage.JournalModel) error {
	return storage.MongoInsertEntries(ctx, r.collection, entries)
}

func (r *mongoJournalRepository) FindBySignature(ctx context.Context, signature string) (*storage.JournalModel, error) {
	var entry storage.JournalModel
	err := r.collection.FindOne(ctx, bson.M{"signature": signature}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *mongoJournalRepository) FindByOperation(ctx context.Context, operationID string) ([]*storage.JournalModel, error) {
	opts := options.Find().SetSort(bson.D{{Key: "batch_index", Value: 1}})
	return r.find(ctx, bson.M{"operation_id": operationID}, opts)
}

func (r *mongoJournalRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*storage.JournalModel, error) {
	opts := options.Find().
		SetSkip(int64(offset)).
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "batch_index", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{"owner": owner}, opts)
}

func (r *mongoJournalRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*storage.JournalModel, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*storage.JournalModel
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
