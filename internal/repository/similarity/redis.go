package similarity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/db"
	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/domain/search/filter"
)

// store is the consumer interface for similarity documents (ISP).
type store interface {
	ReplaceHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	Unlink(ctx context.Context, keys ...string) (int, error)
	CreateIndex(ctx context.Context, s *db.Schema) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.Hit, error)
	SearchKeys(ctx context.Context, q *db.KeysQuery) ([]string, error)
}

// deletePage is the number of keys fetched per FT.SEARCH round during bulk delete.
const deletePage = 500

// RedisRepo stores similarity documents as hashes indexed by an FT vector index.
type RedisRepo struct {
	store  store
	hnsw   HNSWConfig
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	ready bool
}

// NewRedis creates a Redis-backed similarity repository.
func NewRedis(s store, logger *zap.Logger) *RedisRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRepo{
		store:  s,
		hnsw:   HNSWConfig{M: 16, EFConstruct: 200},
		now:    time.Now,
		logger: logger,
	}
}

// WithHNSW configures HNSW index parameters.
func (r *RedisRepo) WithHNSW(cfg HNSWConfig) *RedisRepo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// EnsureIndex creates the FT index for dims-sized vectors unless it already exists.
func (r *RedisRepo) EnsureIndex(ctx context.Context, dims int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return nil
	}
	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if !exists {
		err := r.store.CreateIndex(ctx, schema(dims, r.hnsw))
		switch {
		case errors.Is(err, db.ErrIndexExists):
			// another instance won the race
		case err != nil:
			return fmt.Errorf("create index: %w", err)
		default:
			r.logger.Info("Similarity index created", zap.String("index", indexName), zap.Int("dims", dims))
		}
	}
	r.ready = true
	return nil
}

// Put writes doc, replacing any document stored under the same id.
func (r *RedisRepo) Put(ctx context.Context, doc domain.SimilarityDocument) error {
	for k := range doc.Metadata {
		if isReserved(k) {
			return fmt.Errorf("metadata key %q is reserved", k)
		}
	}
	if err := r.EnsureIndex(ctx, len(doc.Embedding)); err != nil {
		return err
	}

	var ttl time.Duration
	if !doc.ExpiresAt.IsZero() {
		ttl = max(doc.ExpiresAt.Sub(doc.CreatedAt), time.Millisecond)
	}
	if err := r.store.ReplaceHash(ctx, docKey(doc.ID), buildHashFields(&doc), ttl); err != nil {
		return fmt.Errorf("put %s: %w", doc.ID, err)
	}
	return nil
}

// Search runs a filtered KNN query. Scores are 1 - cosine distance.
func (r *RedisRepo) Search(
	ctx context.Context, vector []float32, f filter.Expression, topK int,
) ([]domain.Match, error) {
	if err := checkIndexed(f); err != nil {
		return nil, err
	}
	if err := r.EnsureIndex(ctx, len(vector)); err != nil {
		return nil, err
	}

	hits, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		Index:  indexName,
		Field:  vectorField,
		Filter: f,
		Vector: vector,
		K:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}

	now := r.now()
	out := make([]domain.Match, 0, len(hits))
	for _, h := range hits {
		if expiredFields(h.Fields, now) {
			continue
		}
		out = append(out, parseMatch(docID(h.Key), h.Score, h.Fields))
	}
	return out, nil
}

// DeleteByFilter removes every document matching f and returns how many were removed.
func (r *RedisRepo) DeleteByFilter(ctx context.Context, f filter.Expression) (int, error) {
	if f.IsEmpty() {
		return 0, domain.ErrEmptyFilter
	}
	if err := checkIndexed(f); err != nil {
		return 0, err
	}

	exists, err := r.store.IndexExists(ctx, indexName)
	if err != nil {
		return 0, fmt.Errorf("check index: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var removed int
	for {
		keys, err := r.store.SearchKeys(ctx, &db.KeysQuery{
			Index:  indexName,
			Filter: f,
			Limit:  deletePage,
		})
		if err != nil {
			return removed, fmt.Errorf("search keys: %w", err)
		}
		if len(keys) == 0 {
			return removed, nil
		}

		n, err := r.store.Unlink(ctx, keys...)
		removed += n
		if err != nil {
			return removed, fmt.Errorf("delete batch: %w", err)
		}
		if n == 0 || len(keys) < deletePage {
			return removed, nil
		}
	}
}

func checkIndexed(f filter.Expression) error {
	for _, group := range [][]filter.Condition{f.Must(), f.Should(), f.MustNot()} {
		for _, c := range group {
			if !slices.Contains(IndexedFields, c.Key()) {
				return fmt.Errorf("metadata key %q is not indexed", c.Key())
			}
		}
	}
	return nil
}
