package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/lugondev/go-ctoken/internal/config"
	"github.com/lugondev/go-ctoken/internal/storage"
)

const journalCollection = "journal"

type MongoRepository struct {
	client      *mongo.Client
	database    *mongo.Database
	journal     *mongo.Collection
	journalRepo storage.JournalRepository
}

func NewMongoRepository(ctx context.Context, cfg *config.MongoDBConfig) (*MongoRepository, error) {
	clientOpts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeout) * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	repo := &MongoRepository{
		client:   client,
		database: database,
		journal:  database.Collection(journalCollection),
	}
	repo.journalRepo = &mongoJournalRepository{collection: repo.journal}

	if err := repo.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return repo, nil
}

func (r *MongoRepository) createIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "operation_id", Value: 1}, {Key: "batch_index", Value: 1}}},
		{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "signature", Value: 1}}},
		{Keys: bson.D{{Key: "mint", Value: 1}}},
	}
	_, err := r.journal.Indexes().CreateMany(ctx, models)
	return err
}

func (r *MongoRepository) Journal() storage.JournalRepository {
	return r.journalRepo
}

func (r *MongoRepository) Close() error {
	if r.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.client.Disconnect(ctx)
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}
