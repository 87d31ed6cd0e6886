package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "looks"

type MongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
	log        *slog.Logger
}

func NewMongoStorage(ctx context.Context, uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	collection := client.Database(database).Collection(collectionName)

	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		log.Warn("creating index", "err", err)
	}

	return &MongoStorage{
		client:     client,
		collection: collection,
		log:        log,
	}, nil
}

func (m *MongoStorage) SaveLook(ctx context.Context, look Look) (Look, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	look = prepare(look)
	if _, err := m.collection.InsertOne(ctx, look); err != nil {
		return Look{}, fmt.Errorf("inserting look: %w", err)
	}
	return look, nil
}

func (m *MongoStorage) GetLook(ctx context.Context, id string) (Look, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var look Look
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&look)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Look{}, ErrNotFound
	}
	if err != nil {
		return Look{}, fmt.Errorf("finding look: %w", err)
	}
	return look, nil
}

func (m *MongoStorage) ListLooks(ctx context.Context, sessionID string, limit int) ([]Look, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := m.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing looks: %w", err)
	}
	defer cur.Close(ctx)

	looks := []Look{}
	if err := cur.All(ctx, &looks); err != nil {
		return nil, fmt.Errorf("decoding looks: %w", err)
	}
	return looks, nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
