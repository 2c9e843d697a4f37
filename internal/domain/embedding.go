package domain

import (
	"context"
	"fmt"
)

// KeyPrefix namespaces every key this service writes to a shared store.
const KeyPrefix = "aiorch:"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// WithPrefix returns an Embedder that embeds prefix+text. Models such as e5 and
// bge expect a fixed marker ("query: ", "passage: ") in front of every input.
// An empty prefix returns inner unchanged.
func WithPrefix(inner Embedder, prefix string) Embedder {
	if prefix == "" {
		return inner
	}
	return &prefixed{inner: inner, prefix: prefix}
}

type prefixed struct {
	inner  Embedder
	prefix string
}

func (p *prefixed) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	res, err := p.inner.Embed(ctx, p.prefix+text)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("embed with prefix %q: %w", p.prefix, err)
	}
	return res, nil
}

func (p *prefixed) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
