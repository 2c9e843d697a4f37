package cache

import (
	"context"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/usecase/similarity"
)

// EntryStore persists cache entries per tier. Get returns (nil, nil) on a miss.
type EntryStore interface {
	Get(ctx context.Context, tier domain.Tier, key string) (*domain.CacheEntry, error)
	Put(ctx context.Context, e domain.CacheEntry) error
}

// SemanticIndex is the slice of the similarity store the L2 tier needs.
type SemanticIndex interface {
	Store(ctx context.Context, doc similarity.Document) (string, error)
	Retrieve(ctx context.Context, query string, scope map[string]string, topK int, threshold float64) (
		[]domain.Match, error,
	)
}
