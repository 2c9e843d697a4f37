package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kailas-cloud/aiorch/internal/config"
	"github.com/kailas-cloud/aiorch/internal/db"
	dbRedis "github.com/kailas-cloud/aiorch/internal/db/redis"
	"github.com/kailas-cloud/aiorch/internal/db/sqldb"
	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/metrics"
	budgetrepo "github.com/kailas-cloud/aiorch/internal/repository/budget"
	"github.com/kailas-cloud/aiorch/internal/repository/cachestore"
	"github.com/kailas-cloud/aiorch/internal/repository/embcache"
	"github.com/kailas-cloud/aiorch/internal/repository/modelconfig"
	"github.com/kailas-cloud/aiorch/internal/repository/records"
	simrepo "github.com/kailas-cloud/aiorch/internal/repository/similarity"
	"github.com/kailas-cloud/aiorch/internal/transport/anthropic"
	openaiTransport "github.com/kailas-cloud/aiorch/internal/transport/openai"
	budgetuc "github.com/kailas-cloud/aiorch/internal/usecase/budget"
	cacheuc "github.com/kailas-cloud/aiorch/internal/usecase/cache"
	dedupuc "github.com/kailas-cloud/aiorch/internal/usecase/dedup"
	embeddinguc "github.com/kailas-cloud/aiorch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/aiorch/internal/usecase/health"
	routeruc "github.com/kailas-cloud/aiorch/internal/usecase/router"
	similarityuc "github.com/kailas-cloud/aiorch/internal/usecase/similarity"
	usageuc "github.com/kailas-cloud/aiorch/internal/usecase/usage"
)

// app owns every long-lived dependency. Builders are idempotent so each command
// opens only what it needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger

	store    db.Store
	sql      *gorm.DB
	records  *records.Repo
	models   *modelconfig.Repo
	embedder *embeddinguc.Handle
	dims     int

	memSimilarity *simrepo.MemoryRepo
	similarity    *similarityuc.Service
	dedup         *dedupuc.Service
	router        *routeruc.Router
	health        *healthuc.Service
	usage         *usageuc.Service
	budgets       []usageuc.BudgetReader

	http    *http.Client
	closers []func()
}

func newApp(cfg config.Config, logger *zap.Logger) *app {
	return &app{cfg: cfg, logger: logger}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// httpClient is shared by every provider client. Deadlines come from request contexts.
func (a *app) httpClient() *http.Client {
	if a.http == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConnsPerHost = 16
		a.http = &http.Client{Transport: t}
	}
	return a.http
}

// openStore connects to Redis/Valkey when any component needs it. Returns nil otherwise.
func (a *app) openStore(ctx context.Context) (db.Store, error) {
	if a.store != nil || !a.cfg.NeedsRedis() {
		return a.store, nil
	}

	// The valkey and redis drivers share the rueidis client.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.cfg.Database.Addrs,
		Username: a.cfg.Database.Username,
		Password: a.cfg.Database.Password,
		DB:       a.cfg.Database.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", a.cfg.Database.Driver, err)
	}
	if err := store.WaitForReady(ctx, time.Duration(a.cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	a.logger.Info("Connected to database",
		zap.String("driver", a.cfg.Database.Driver),
		zap.Strings("addrs", a.cfg.Database.Addrs),
	)
	a.store = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// openSQL opens the record database and migrates the record and model config tables.
func (a *app) openSQL(ctx context.Context) error {
	if a.sql != nil {
		return nil
	}
	gdb, err := sqldb.Open(sqldb.Config{Driver: a.cfg.SQL.Driver, DSN: a.cfg.SQL.DSN})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = sqldb.Close(gdb) })

	recs := records.New(gdb)
	if err := recs.Migrate(ctx); err != nil {
		return err
	}
	models := modelconfig.New(gdb)
	if err := models.Migrate(ctx); err != nil {
		return err
	}
	a.sql, a.records, a.models = gdb, recs, models
	return nil
}

// buildEmbedder assembles the decorator chain behind a lazily initialised handle:
// provider -> cached -> metered (budget + metrics).
func (a *app) buildEmbedder(ctx context.Context) error {
	if a.embedder != nil {
		return nil
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	emb := a.cfg.Embedding
	provider := emb.Provider

	var budget embeddinguc.Budget
	if emb.Budget.Enabled() {
		t := a.newTracker(ctx, provider, budgetuc.KindEmbedding, emb.Budget, store)
		a.budgets = append(a.budgets, t)
		budget = t
	}

	switch provider {
	case "hashing":
		a.dims = embeddinguc.NewHashingEmbedder(emb.Dimensions).Dimensions()
	default:
		a.dims = emb.Dimensions
	}

	hc := a.httpClient()
	factory := func(context.Context) (domain.Embedder, error) {
		var base domain.Embedder
		switch provider {
		case "hashing":
			base = embeddinguc.NewHashingEmbedder(emb.Dimensions)
		case "openai":
			if emb.APIKey == "" {
				return nil, fmt.Errorf("embedding.api_key is required for the openai provider")
			}
			base = openaiTransport.NewEmbedder(openaiTransport.EmbedderConfig{
				APIKey:     emb.APIKey,
				BaseURL:    emb.BaseURL,
				Model:      emb.Model,
				Dimensions: emb.Dimensions,
				Provider:   provider,
				HTTPClient: hc,
				Logger:     a.logger,
			})
		default:
			return nil, fmt.Errorf("unknown embedding provider %q", provider)
		}

		if emb.CacheTTL > 0 {
			cached, err := embcache.New(base, store, embcache.Options{
				Namespace: provider + ":" + emb.Model,
				LocalSize: emb.CacheSize,
				TTL:       time.Duration(emb.CacheTTL) * time.Second,
			}, metrics.EmbeddingCacheTotal, a.logger)
			if err != nil {
				return nil, err
			}
			base = cached
		}
		base = domain.WithPrefix(base, emb.TextPrefix)
		return embeddinguc.NewMetered(base, embeddinguc.Meter{
			Provider: provider,
			Model:    emb.Model,
			Budget:   budget,
		}, a.logger), nil
	}

	a.embedder = embeddinguc.NewHandle(factory, a.logger)
	a.closers = append(a.closers, func() { _ = a.embedder.Close() })
	a.logger.Info("Embedder configured",
		zap.String("provider", provider),
		zap.String("model", emb.Model),
		zap.Int("dimensions", a.dims),
	)
	return nil
}

// buildSimilarity creates the similarity store shared by dedup and the semantic cache tier.
func (a *app) buildSimilarity(ctx context.Context) error {
	if a.similarity != nil {
		return nil
	}
	if err := a.buildEmbedder(ctx); err != nil {
		return err
	}

	var backend similarityuc.Backend
	switch a.cfg.Similarity.Backend {
	case config.BackendRedis:
		if a.dims <= 0 {
			return fmt.Errorf("embedding.dimensions is required for the redis similarity backend")
		}
		repo := simrepo.NewRedis(a.store, a.logger).WithHNSW(simrepo.HNSWConfig{
			M:           a.cfg.Similarity.HNSWM,
			EFConstruct: a.cfg.Similarity.HNSWEFConstruct,
		})
		if err := repo.EnsureIndex(ctx, a.dims); err != nil {
			return fmt.Errorf("ensure similarity index: %w", err)
		}
		backend = repo
	default:
		a.memSimilarity = simrepo.NewMemory()
		backend = a.memSimilarity
	}

	a.similarity = similarityuc.New(backend, a.embedder, similarityuc.Config{
		Dimensions: a.dims,
		Timeout:    time.Duration(a.cfg.Similarity.TimeoutMs) * time.Millisecond,
	}, a.logger)
	a.dedup = dedupuc.New(a.similarity, a.cfg.Dedup.Threshold, a.logger)
	return nil
}

// buildCache returns the response cache, or nil when caching is disabled.
func (a *app) buildCache(ctx context.Context) (routeruc.ResponseCache, error) {
	c := a.cfg.Cache
	if !c.Enabled {
		return nil, nil
	}

	var entries cacheuc.EntryStore
	switch c.Backend {
	case config.BackendRedis:
		store, err := a.openStore(ctx)
		if err != nil {
			return nil, err
		}
		entries = cachestore.NewRedis(store)
	default:
		mem, err := cachestore.NewMemory(c.MaxEntries, c.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("create memory cache: %w", err)
		}
		entries = mem
	}

	var semantic cacheuc.SemanticIndex
	if len(c.SemanticUsageTypes) > 0 {
		if err := a.buildSimilarity(ctx); err != nil {
			return nil, err
		}
		semantic = a.similarity
	}

	return cacheuc.New(cacheuc.Config{
		Enabled:    true,
		KeyVersion: c.KeyVersion,
		TTL: cacheuc.TTLs{
			L1: time.Duration(c.TTL.L1) * time.Second,
			L2: time.Duration(c.TTL.L2) * time.Second,
			L3: time.Duration(c.TTL.L3) * time.Second,
		},
		SemanticThreshold:  c.SemanticThreshold,
		SemanticUsageTypes: c.SemanticUsageTypes,
		Timeout:            time.Duration(c.TimeoutMs) * time.Millisecond,
		SemanticTimeout:    time.Duration(a.cfg.Similarity.TimeoutMs) * time.Millisecond,
	}, entries, semantic, a.logger), nil
}

// configSource picks the static YAML chains or the SQL model_configs table.
func (a *app) configSource(ctx context.Context) (routeruc.ConfigSource, error) {
	if a.cfg.Router.ConfigSource == "sql" {
		if err := a.openSQL(ctx); err != nil {
			return nil, err
		}
		return credentialSource{inner: a.models, providers: a.cfg.Providers}, nil
	}
	src, err := routeruc.NewStaticSource(a.cfg.ModelConfigs(), a.cfg.Routing.Chains)
	if err != nil {
		return nil, fmt.Errorf("static model configs: %w", err)
	}
	return src, nil
}

// buildRouter wires provider clients, budgets, cache and the record store into the router.
func (a *app) buildRouter(ctx context.Context) error {
	if a.router != nil {
		return nil
	}
	if err := a.openSQL(ctx); err != nil {
		return err
	}
	source, err := a.configSource(ctx)
	if err != nil {
		return err
	}
	cache, err := a.buildCache(ctx)
	if err != nil {
		return err
	}

	httpClient := a.httpClient()
	clients := make(map[string]domain.ProviderClient, len(a.cfg.Providers))
	for name, p := range a.cfg.Providers {
		switch p.ProviderType(name) {
		case "anthropic":
			clients[name] = anthropic.NewClient(httpClient)
		default:
			clients[name] = openaiTransport.NewChatClient(name, httpClient, a.logger)
		}
	}

	r := routeruc.New(source, clients, cache, a.records, routeruc.Options{
		CallTimeout:     time.Duration(a.cfg.Router.CallTimeoutSec) * time.Second,
		PropagateCancel: a.cfg.Router.PropagateCancel,
	}, a.logger)

	for name, p := range a.cfg.Providers {
		if !p.Budget.Enabled() {
			continue
		}
		store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		t := a.newTracker(ctx, name, budgetuc.KindGeneration, p.Budget, store)
		a.budgets = append(a.budgets, t)
		r.WithBudget(name, t)
	}

	a.router = r
	a.logger.Info("Router configured",
		zap.String("config_source", a.cfg.Router.ConfigSource),
		zap.Int("providers", len(clients)),
		zap.Bool("cache", cache != nil),
	)
	return nil
}

// buildServer builds everything the HTTP API needs.
func (a *app) buildServer(ctx context.Context) error {
	if err := a.buildSimilarity(ctx); err != nil {
		return err
	}
	if err := a.buildRouter(ctx); err != nil {
		return err
	}

	a.usage = usageuc.New(a.budgets...)
	a.health = healthuc.New(a.embedder).
		WithComponent("records", healthuc.PingFunc(func(ctx context.Context) error {
			return sqldb.Ping(ctx, a.sql)
		}))
	if a.store != nil {
		a.health.WithComponent("database", a.store)
	}
	return nil
}

func (a *app) newTracker(
	ctx context.Context, provider string, kind budgetuc.Kind, cfg config.BudgetConfig, store db.Store,
) *budgetuc.Tracker {
	action := budgetuc.ActionWarn
	if cfg.Action == "reject" {
		action = budgetuc.ActionReject
	}
	t := budgetuc.NewTracker(budgetuc.Config{
		Provider:     provider,
		Kind:         kind,
		DailyLimit:   cfg.DailyTokenLimit,
		MonthlyLimit: cfg.MonthlyTokenLimit,
		Action:       action,
	}, a.logger)
	if store != nil {
		t.WithStore(ctx, budgetrepo.New(store, budgetrepo.DefaultRetention))
	}
	return t
}

// credentialSource fills provider credentials that the model_configs table does not hold.
type credentialSource struct {
	inner     routeruc.ConfigSource
	providers map[string]config.ProviderConfig
}

func (s credentialSource) ActiveConfigs(ctx context.Context, usageType string) ([]domain.ModelConfig, error) {
	configs, err := s.inner.ActiveConfigs(ctx, usageType)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		p, ok := s.providers[configs[i].Provider]
		if !ok {
			continue
		}
		if configs[i].APIKey == "" {
			configs[i].APIKey = p.APIKey
		}
		if configs[i].BaseURL == "" {
			configs[i].BaseURL = p.BaseURL
		}
	}
	return configs, nil
}
