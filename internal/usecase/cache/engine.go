package cache

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/metrics"
	"github.com/kailas-cloud/aiorch/internal/usecase/similarity"
)

// Defaults for Config fields left at zero.
const (
	DefaultKeyVersion        = "v1"
	DefaultL1TTL             = 7 * 24 * time.Hour
	DefaultL2TTL             = 24 * time.Hour
	DefaultL3TTL             = 30 * 24 * time.Hour
	DefaultSemanticThreshold = 0.95
	DefaultTimeout           = 300 * time.Millisecond
	DefaultSemanticTimeout   = 2 * time.Second
)

// TTLs holds per-tier entry lifetimes.
type TTLs struct {
	L1 time.Duration
	L2 time.Duration
	L3 time.Duration
}

// Config controls the tiers.
type Config struct {
	Enabled    bool
	KeyVersion string
	TTL        TTLs
	// SemanticThreshold is the minimum similarity for an L2 hit.
	SemanticThreshold float64
	// SemanticUsageTypes lists the usage types L2 serves. Empty disables L2.
	SemanticUsageTypes []string
	// Timeout bounds each entry store call.
	Timeout time.Duration
	// SemanticTimeout bounds each similarity call, embedding included.
	SemanticTimeout time.Duration
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.KeyVersion == "" {
		c.KeyVersion = DefaultKeyVersion
	}
	if c.TTL.L1 <= 0 {
		c.TTL.L1 = DefaultL1TTL
	}
	if c.TTL.L2 <= 0 {
		c.TTL.L2 = DefaultL2TTL
	}
	if c.TTL.L3 <= 0 {
		c.TTL.L3 = DefaultL3TTL
	}
	if c.SemanticThreshold <= 0 {
		c.SemanticThreshold = DefaultSemanticThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.SemanticTimeout <= 0 {
		c.SemanticTimeout = DefaultSemanticTimeout
	}
}

// Hit is a cached answer and the tier that served it.
type Hit struct {
	Tier    domain.Tier
	Payload domain.CachedPayload
	// Score is the L2 similarity; 1 for exact tiers.
	Score float64
}

// Engine looks up and fills the L1 exact, L2 semantic and L3 template tiers.
// Backend failures are logged and treated as misses; nothing is surfaced to callers.
type Engine struct {
	cfg      Config
	entries  EntryStore
	semantic SemanticIndex
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a cache engine. semantic may be nil, which disables L2.
func New(cfg Config, entries EntryStore, semantic SemanticIndex, logger *zap.Logger) *Engine {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		entries:  entries,
		semantic: semantic,
		now:      time.Now,
		logger:   logger,
	}
}

// Enabled reports whether lookups can ever hit.
func (e *Engine) Enabled() bool { return e.cfg.Enabled && e.entries != nil }

// Lookup returns the first hit in tier order L1, L2, L3.
func (e *Engine) Lookup(ctx context.Context, req *domain.GenerationRequest) (*Hit, bool) {
	if !e.Enabled() {
		return nil, false
	}

	l1 := ExactKey(e.cfg.KeyVersion, req)
	if p, ok := e.get(ctx, domain.TierExact, l1); ok {
		return &Hit{Tier: domain.TierExact, Payload: p, Score: 1}, true
	}

	if e.semanticEnabled(req.UsageType) {
		if hit, ok := e.lookupSemantic(ctx, req); ok {
			return hit, true
		}
	}

	if req.Sampling.IsDeterministic() {
		if p, ok := e.get(ctx, domain.TierTemplate, TemplateKey(req)); ok {
			return &Hit{Tier: domain.TierTemplate, Payload: p, Score: 1}, true
		}
	}
	return nil, false
}

// Store writes payload into every tier the request is eligible for. It never fails;
// the write survives cancellation of ctx.
func (e *Engine) Store(ctx context.Context, req *domain.GenerationRequest, payload domain.CachedPayload) {
	if !e.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	now := e.now().UTC()

	l1 := ExactKey(e.cfg.KeyVersion, req)
	e.put(ctx, domain.CacheEntry{
		Tier: domain.TierExact, Key: l1, Payload: payload, CreatedAt: now, TTL: e.cfg.TTL.L1,
	})

	if e.semanticEnabled(req.UsageType) {
		e.storeSemantic(ctx, req, l1, payload, now)
	}

	if req.Sampling.IsDeterministic() {
		e.put(ctx, domain.CacheEntry{
			Tier: domain.TierTemplate, Key: TemplateKey(req), Payload: payload, CreatedAt: now, TTL: e.cfg.TTL.L3,
		})
	}
}

func (e *Engine) semanticEnabled(usageType string) bool {
	return e.semantic != nil && slices.Contains(e.cfg.SemanticUsageTypes, usageType)
}

func (e *Engine) lookupSemantic(ctx context.Context, req *domain.GenerationRequest) (*Hit, bool) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SemanticTimeout)
	defer cancel()

	matches, err := e.semantic.Retrieve(sctx, SemanticQuery(req), semanticScope(req), 1, e.cfg.SemanticThreshold)
	if err != nil {
		e.logger.Warn("Semantic cache lookup failed", zap.String("usage_type", req.UsageType), zap.Error(err))
		metrics.CacheLookupsTotal.WithLabelValues(string(domain.TierSemantic), "error").Inc()
		return nil, false
	}
	if len(matches) == 0 {
		metrics.CacheLookupsTotal.WithLabelValues(string(domain.TierSemantic), "miss").Inc()
		return nil, false
	}

	m := matches[0]
	key := m.Metadata[domain.MetaCacheKey]
	if key == "" {
		metrics.CacheLookupsTotal.WithLabelValues(string(domain.TierSemantic), "miss").Inc()
		return nil, false
	}
	p, ok := e.get(ctx, domain.TierSemantic, key)
	if !ok {
		return nil, false
	}
	e.logger.Debug("Semantic cache hit", zap.String("usage_type", req.UsageType), zap.Float64("score", m.Score))
	return &Hit{Tier: domain.TierSemantic, Payload: p, Score: m.Score}, true
}

func (e *Engine) storeSemantic(
	ctx context.Context, req *domain.GenerationRequest, l1 string, payload domain.CachedPayload, now time.Time,
) {
	scope := semanticScope(req)
	key := semanticKey(l1, scope)
	e.put(ctx, domain.CacheEntry{
		Tier: domain.TierSemantic, Key: key, Payload: payload, Scope: scope, CreatedAt: now, TTL: e.cfg.TTL.L2,
	})

	meta := make(map[string]string, len(scope)+1)
	for k, v := range scope {
		meta[k] = v
	}
	meta[domain.MetaCacheKey] = key

	sctx, cancel := context.WithTimeout(ctx, e.cfg.SemanticTimeout)
	defer cancel()

	_, err := e.semantic.Store(sctx, similarity.Document{
		ID:       "l2-" + key,
		Text:     SemanticQuery(req),
		Metadata: meta,
		TTL:      e.cfg.TTL.L2,
	})
	if err != nil {
		e.logger.Warn("Semantic cache index write failed", zap.String("usage_type", req.UsageType), zap.Error(err))
		metrics.CacheStoresTotal.WithLabelValues(string(domain.TierSemantic), "error").Inc()
	}
}

func (e *Engine) get(ctx context.Context, tier domain.Tier, key string) (domain.CachedPayload, bool) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	entry, err := e.entries.Get(cctx, tier, key)
	switch {
	case err != nil:
		e.logger.Warn("Cache read failed", zap.String("tier", string(tier)), zap.Error(err))
		metrics.CacheLookupsTotal.WithLabelValues(string(tier), "error").Inc()
		return domain.CachedPayload{}, false
	case entry == nil || entry.Expired(e.now()):
		metrics.CacheLookupsTotal.WithLabelValues(string(tier), "miss").Inc()
		return domain.CachedPayload{}, false
	default:
		metrics.CacheLookupsTotal.WithLabelValues(string(tier), "hit").Inc()
		return entry.Payload, true
	}
}

func (e *Engine) put(ctx context.Context, entry domain.CacheEntry) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	if err := e.entries.Put(cctx, entry); err != nil {
		e.logger.Warn("Cache write failed", zap.String("tier", string(entry.Tier)), zap.Error(err))
		metrics.CacheStoresTotal.WithLabelValues(string(entry.Tier), "error").Inc()
		return
	}
	metrics.CacheStoresTotal.WithLabelValues(string(entry.Tier), "ok").Inc()
}
