package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/metrics"
)

// Budget gates and accounts embedding tokens.
type Budget interface {
	Check(ctx context.Context) error
	Record(ctx context.Context, tokens int64)
	Remaining() (daily, monthly int64)
}

// Meter names who an embedder bills and the budget it draws from. A nil Budget is unlimited.
type Meter struct {
	Provider string
	Model    string
	Budget   Budget
}

// Metered enforces an embedding token budget around an embedder and logs each call.
// Request, latency and token counters live in the transport clients.
type Metered struct {
	inner  domain.Embedder
	meter  Meter
	logger *zap.Logger
}

// NewMetered wraps inner.
func NewMetered(inner domain.Embedder, meter Meter, logger *zap.Logger) *Metered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Metered{
		inner: inner,
		meter: meter,
		logger: logger.With(
			zap.String("provider", meter.Provider),
			zap.String("model", meter.Model),
		),
	}
}

// Embed refuses the call when the budget is spent, otherwise delegates and bills the tokens used.
func (m *Metered) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if b := m.meter.Budget; b != nil {
		if err := b.Check(ctx); err != nil {
			metrics.EmbeddingErrorsTotal.WithLabelValues(m.meter.Provider, m.meter.Model, "budget_exceeded").Inc()
			m.logger.Warn("Embedding refused by budget", zap.Error(err))
			return domain.EmbeddingResult{}, fmt.Errorf("embedding budget: %w", err)
		}
	}

	start := time.Now()
	res, err := m.inner.Embed(ctx, text)
	elapsed := time.Since(start)
	if err != nil {
		m.logger.Warn("Embedding failed", zap.Duration("duration", elapsed), zap.Error(err))
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	m.bill(ctx, res)
	m.logger.Debug("Embedded text",
		zap.Duration("duration", elapsed),
		zap.Int("dimensions", len(res.Embedding)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (m *Metered) HealthCheck(ctx context.Context) error {
	if hc, ok := m.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// bill records usage. Providers that report only prompt tokens are billed by those.
func (m *Metered) bill(ctx context.Context, res domain.EmbeddingResult) {
	b := m.meter.Budget
	if b == nil {
		return
	}
	tokens := res.TotalTokens
	if tokens == 0 {
		tokens = res.PromptTokens
	}
	if tokens <= 0 {
		return
	}
	b.Record(ctx, int64(tokens))

	daily, monthly := b.Remaining()
	if daily >= 0 {
		metrics.EmbeddingBudgetTokensRemaining.WithLabelValues(m.meter.Provider, "daily").Set(float64(daily))
	}
	if monthly >= 0 {
		metrics.EmbeddingBudgetTokensRemaining.WithLabelValues(m.meter.Provider, "monthly").Set(float64(monthly))
	}
}
