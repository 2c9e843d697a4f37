package db

import (
	"context"
	"time"
)

// Store is the Redis/Valkey facade shared by the response cache, the embedding
// cache, budget counters and the similarity index.
type Store interface {
	Pinger
	KVStore
	DocumentStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore holds opaque values and integer counters.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// DocumentStore keeps hash documents behind an FT vector index.
type DocumentStore interface {
	ReplaceHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	Unlink(ctx context.Context, keys ...string) (int, error)
	CreateIndex(ctx context.Context, s *Schema) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *KNNQuery) ([]Hit, error)
	SearchKeys(ctx context.Context, q *KeysQuery) ([]string, error)
}
