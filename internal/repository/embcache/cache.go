package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/aiorch/internal/db"
	"github.com/kailas-cloud/aiorch/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the shared vector tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options tunes the cache.
type Options struct {
	// Namespace separates vectors of different models sharing one store.
	Namespace string
	// LocalSize is the number of vectors kept in process. Zero means 1024.
	LocalSize int
	// TTL of vectors in the shared store. Zero means 30 days.
	TTL time.Duration
	// Timeout bounds each store round trip. Zero means 300ms.
	Timeout time.Duration
}

// Embedder caches vectors in a process-local LRU backed by an optional shared
// store, and collapses concurrent identical requests into one upstream call.
// Vectors served from either tier report zero tokens.
type Embedder struct {
	inner  domain.Embedder
	local  *lru.Cache[string, []float32]
	shared store
	opts   Options
	group  singleflight.Group
	lookup *prometheus.CounterVec
	logger *zap.Logger
}

// New wraps inner. shared may be nil for a process-local cache only.
// lookups is a counter vec labelled by result: local_hit, hit, miss or shared.
func New(
	inner domain.Embedder,
	shared store,
	opts Options,
	lookups *prometheus.CounterVec,
	logger *zap.Logger,
) (*Embedder, error) {
	if opts.LocalSize <= 0 {
		opts.LocalSize = 1024
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	local, err := lru.New[string, []float32](opts.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}
	return &Embedder{
		inner:  inner,
		local:  local,
		shared: shared,
		opts:   opts,
		lookup: lookups,
		logger: logger,
	}, nil
}

// Embed returns a cached vector or calls the inner embedder once per key at a time.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := e.key(text)

	if vec, ok := e.local.Get(key); ok {
		e.count("local_hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	if vec, ok := e.fetch(ctx, key); ok {
		e.local.Add(key, vec)
		e.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	leader := false
	v, err, _ := e.group.Do(key, func() (any, error) {
		leader = true
		res, err := e.inner.Embed(ctx, text)
		if err != nil {
			return domain.EmbeddingResult{}, err
		}
		e.local.Add(key, res.Embedding)
		e.publish(ctx, key, res.Embedding)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	res := v.(domain.EmbeddingResult) //nolint:errcheck,forcetypeassert // only type stored in the group
	if !leader {
		e.count("shared")
		// tokens are billed once, to the caller that ran the request
		return domain.EmbeddingResult{Embedding: res.Embedding}, nil
	}
	e.count("miss")
	return res, nil
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (e *Embedder) count(result string) {
	if e.lookup != nil {
		e.lookup.WithLabelValues(result).Inc()
	}
}

func (e *Embedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	if e.opts.Namespace == "" {
		return keyPrefix + hex.EncodeToString(h[:])
	}
	return keyPrefix + e.opts.Namespace + ":" + hex.EncodeToString(h[:])
}

// fetch reads the shared tier. Store failures and corrupt values count as misses.
func (e *Embedder) fetch(ctx context.Context, key string) ([]float32, bool) {
	if e.shared == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	data, err := e.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			e.logger.Warn("Failed to read cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		e.logger.Warn("Dropping corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

// publish writes the shared tier, detached from the caller's cancellation.
func (e *Embedder) publish(ctx context.Context, key string, vec []float32) {
	if e.shared == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.Timeout)
	defer cancel()

	if err := e.shared.SetWithTTL(ctx, key, encodeVector(vec), e.opts.TTL); err != nil {
		e.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

// encodeVector lays v out as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector encoding: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
