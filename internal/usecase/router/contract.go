package router

import (
	"context"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/usecase/cache"
)

// ConfigSource supplies the model configs serving a usage type. Read-only.
type ConfigSource interface {
	ActiveConfigs(ctx context.Context, usageType string) ([]domain.ModelConfig, error)
}

// ResponseCache is the tiered response cache. Failures never surface.
type ResponseCache interface {
	Lookup(ctx context.Context, req *domain.GenerationRequest) (*cache.Hit, bool)
	Store(ctx context.Context, req *domain.GenerationRequest, payload domain.CachedPayload)
}

// Budget gates and accounts model tokens for one provider.
type Budget interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, tokens int64)
	Remaining() (daily, monthly int64)
}
