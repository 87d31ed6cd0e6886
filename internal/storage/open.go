package storage

import (
	"context"
	"log/slog"
)

// Open connects to MongoDB when uri is set and falls back to memory when it
// is empty or unreachable.
func Open(ctx context.Context, uri, database string, maxPerSession int, log *slog.Logger) LookStore {
	if uri == "" {
		log.Info("looks: using in-memory storage")
		return NewMemoryStorage(maxPerSession)
	}

	store, err := NewMongoStorage(ctx, uri, database, log)
	if err != nil {
		log.Error("looks: mongo unavailable, using in-memory storage", "err", err)
		return NewMemoryStorage(maxPerSession)
	}
	log.Info("looks: using MongoDB", "database", database)
	return store
}
