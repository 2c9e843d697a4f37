package similarity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/domain/search/filter"
)

// Defaults for Config fields left at zero.
const (
	DefaultTimeout = 2 * time.Second
	DefaultTopK    = 5
)

// Config holds store-wide settings.
type Config struct {
	// Dimensions fixes the vector size. Zero adopts the size of the first embedding.
	Dimensions int
	// Timeout bounds each operation, embedding included.
	Timeout time.Duration
}

// Document is the input of Store.
type Document struct {
	// ID is optional; storing again under the same ID replaces the document.
	ID       string
	Text     string
	Metadata map[string]string
	// TTL is optional; zero keeps the document until it is deleted.
	TTL time.Duration
}

// Service embeds text and ranks matches the same way regardless of backend.
type Service struct {
	backend  Backend
	embedder domain.Embedder
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	dims int
}

// New creates a similarity service.
func New(backend Backend, embedder domain.Embedder, cfg Config, logger *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend:  backend,
		embedder: embedder,
		timeout:  cfg.Timeout,
		dims:     cfg.Dimensions,
		now:      time.Now,
		logger:   logger,
	}
}

// Store embeds doc.Text and persists it. Returns the document id.
func (s *Service) Store(ctx context.Context, doc Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embed(ctx, doc.Text)
	if err != nil {
		return "", err
	}

	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	sd := domain.SimilarityDocument{
		ID:        id,
		Text:      doc.Text,
		Embedding: vec,
		Metadata:  copyMeta(doc.Metadata),
		CreatedAt: now,
	}
	if doc.TTL > 0 {
		sd.ExpiresAt = now.Add(doc.TTL)
	}

	if err := s.backend.Put(ctx, sd); err != nil {
		return "", fmt.Errorf("put %s: %w: %w", id, domain.ErrSimilarityUnavailable, err)
	}
	return id, nil
}

// Retrieve returns up to topK documents matching every key of scope whose score is at
// least threshold, best first (ties by id ascending). Scores are cosine similarities
// clamped to [0, 1].
func (s *Service) Retrieve(
	ctx context.Context, query string, scope map[string]string, topK int, threshold float64,
) ([]domain.Match, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	expr, err := filter.FromMap(scope)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	raw, err := s.backend.Search(ctx, vec, expr, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w: %w", domain.ErrSimilarityUnavailable, err)
	}
	return rank(raw, topK, threshold), nil
}

// DeleteByFilter removes every document matching all keys of scope.
// An empty scope is refused with domain.ErrEmptyFilter.
func (s *Service) DeleteByFilter(ctx context.Context, scope map[string]string) (int, error) {
	expr, err := filter.FromMap(scope)
	if err != nil {
		return 0, fmt.Errorf("build filter: %w", err)
	}
	if expr.IsEmpty() {
		return 0, domain.ErrEmptyFilter
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.backend.DeleteByFilter(ctx, expr)
	if err != nil {
		return n, fmt.Errorf("delete: %w: %w", domain.ErrSimilarityUnavailable, err)
	}
	s.logger.Info("Similarity documents deleted", zap.Any("scope", scope), zap.Int("count", n))
	return n, nil
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	res, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %w", domain.ErrSimilarityUnavailable, err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("embed: %w: empty vector", domain.ErrSimilarityUnavailable)
	}
	if err := s.checkDims(len(res.Embedding)); err != nil {
		return nil, err
	}
	return domain.Normalize(res.Embedding), nil
}

func (s *Service) checkDims(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dims == 0 {
		s.dims = n
		return nil
	}
	if n != s.dims {
		return fmt.Errorf("%w: got %d, store uses %d", domain.ErrVectorDimMismatch, n, s.dims)
	}
	return nil
}

// rank applies clamp, threshold, ordering and the topK cap to backend output.
func rank(in []domain.Match, topK int, threshold float64) []domain.Match {
	out := make([]domain.Match, 0, len(in))
	for _, m := range in {
		m.Score = domain.ClampScore(m.Score)
		if m.Score >= threshold {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// IsUnavailable reports whether err is a degraded-store failure callers should absorb.
func IsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrSimilarityUnavailable)
}
