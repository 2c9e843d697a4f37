package embedding

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// Factory builds the underlying embedder. It may be slow (model download, remote handshake).
type Factory func(ctx context.Context) (domain.Embedder, error)

// Handle owns an embedder that is built on first use.
// A failed build is not remembered: the next call tries again.
type Handle struct {
	mu      sync.Mutex
	factory Factory
	inner   domain.Embedder
	closed  bool
	logger  *zap.Logger
}

// NewHandle creates a lazily initialised embedder handle.
func NewHandle(factory Factory, logger *zap.Logger) *Handle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handle{factory: factory, logger: logger}
}

func (h *Handle) get(ctx context.Context) (domain.Embedder, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, domain.ErrEmbedderClosed
	}
	if h.inner != nil {
		return h.inner, nil
	}

	inner, err := h.factory(ctx)
	if err != nil {
		h.logger.Warn("Embedder init failed, will retry on next call", zap.Error(err))
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	h.inner = inner
	h.logger.Info("Embedder initialised")
	return inner, nil
}

// Embed implements domain.Embedder.
func (h *Handle) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	inner, err := h.get(ctx)
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return inner.Embed(ctx, text) //nolint:wrapcheck // decorators below wrap already
}

// HealthCheck initialises the embedder if needed and delegates to it.
func (h *Handle) HealthCheck(ctx context.Context) error {
	inner, err := h.get(ctx)
	if err != nil {
		return err
	}
	if hc, ok := inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Close releases the underlying embedder. Further calls fail with domain.ErrEmbedderClosed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	inner := h.inner
	h.inner = nil

	if c, ok := inner.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close embedder: %w", err)
		}
	}
	return nil
}
