package similarity

import (
	"context"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/domain/search/filter"
)

// Backend persists similarity documents and runs filtered nearest-neighbour queries.
// Vectors handed to a Backend are already L2-normalised.
type Backend interface {
	Put(ctx context.Context, doc domain.SimilarityDocument) error
	Search(ctx context.Context, vector []float32, f filter.Expression, topK int) ([]domain.Match, error)
	DeleteByFilter(ctx context.Context, f filter.Expression) (int, error)
}
