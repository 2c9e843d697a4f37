package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/metrics"
)

// DefaultCallTimeout bounds a provider call when the config sets none.
const DefaultCallTimeout = 60 * time.Second

// recordTimeout bounds an execution record write.
const recordTimeout = 2 * time.Second

// Options tune the router.
type Options struct {
	// CallTimeout is the provider call deadline for configs without their own.
	CallTimeout time.Duration
	// PropagateCancel passes the caller context to providers. When false an
	// in-flight call outlives its caller and still fills the cache.
	PropagateCancel bool
}

// Router selects a fallback chain per usage type, consults the cache and executes
// along the chain, recording every attempt.
type Router struct {
	source  ConfigSource
	clients map[string]domain.ProviderClient
	cache   ResponseCache
	records domain.RecordWriter
	budgets map[string]Budget
	opts    Options
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a router. clients is keyed by ModelConfig.Provider. cache and records may be nil.
func New(
	source ConfigSource,
	clients map[string]domain.ProviderClient,
	cache ResponseCache,
	records domain.RecordWriter,
	opts Options,
	logger *zap.Logger,
) *Router {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		source:  source,
		clients: clients,
		cache:   cache,
		records: records,
		budgets: make(map[string]Budget),
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// WithBudget attaches a token budget to every config of provider.
func (r *Router) WithBudget(provider string, b Budget) *Router {
	r.budgets[provider] = b
	return r
}

// attempt is the classified result of one provider call.
type attempt struct {
	outcome domain.Outcome
	resp    domain.ProviderResponse
	err     error
	latency time.Duration
}

// Execute serves req from cache or from the first config of its chain that answers.
func (r *Router) Execute(ctx context.Context, req *domain.GenerationRequest) (*domain.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	chain, err := r.selectChain(ctx, req.UsageType)
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(req)
	log := r.logger.With(zap.String("usage_type", req.UsageType), zap.String("fingerprint", fp[:12]))

	if r.cache != nil {
		if hit, ok := r.cache.Lookup(ctx, req); ok {
			r.append(ctx, domain.ExecutionRecord{
				Fingerprint: fp,
				UsageType:   req.UsageType,
				ConfigID:    hit.Payload.ConfigID,
				Provider:    hit.Payload.Provider,
				Model:       hit.Payload.Model,
				Success:     true,
				Outcome:     domain.OutcomeCacheHit,
				CacheHit:    true,
				CacheTier:   hit.Tier,
			})
			log.Debug("Served from cache", zap.String("tier", string(hit.Tier)))
			// A hit costs nothing; usage reports what the original call spent.
			return &domain.Response{
				Content:  hit.Payload.Content,
				Usage:    domain.Usage{InputTokens: hit.Payload.InputTokens, OutputTokens: hit.Payload.OutputTokens},
				CacheHit: true,
				Tier:     hit.Tier,
				Provider: hit.Payload.Provider,
				Model:    hit.Payload.Model,
				ConfigID: hit.Payload.ConfigID,
			}, nil
		}
	}

	// One payload for the whole chain; only the model id changes per attempt.
	payload := domain.ProviderRequest{
		SystemPrompt: req.SystemPrompt,
		Conversation: req.Conversation,
		Sampling:     req.Sampling.Merge(chain[0].Defaults),
	}

	var last error
	for i, cfg := range chain {
		if r.opts.PropagateCancel && ctx.Err() != nil {
			return nil, fmt.Errorf("execute %s: %w", req.UsageType, ctx.Err())
		}

		a := r.try(ctx, cfg, payload)
		r.append(ctx, domain.ExecutionRecord{
			Fingerprint:  fp,
			UsageType:    req.UsageType,
			ConfigID:     cfg.ID,
			Provider:     cfg.Provider,
			Model:        cfg.Model,
			Attempt:      i + 1,
			InputTokens:  a.resp.InputTokens,
			OutputTokens: a.resp.OutputTokens,
			Latency:      a.latency,
			Success:      a.outcome == domain.OutcomeSuccess,
			Outcome:      a.outcome,
			Error:        errText(a.err),
		})
		metrics.ProviderAttemptsTotal.WithLabelValues(cfg.Provider, cfg.Model, string(a.outcome)).Inc()

		switch a.outcome {
		case domain.OutcomeSuccess:
			log.Info("Generation served",
				zap.String("config_id", cfg.ID),
				zap.String("provider", cfg.Provider),
				zap.Int("attempt", i+1),
				zap.Duration("latency", a.latency),
			)
			if r.cache != nil {
				r.cache.Store(ctx, req, domain.CachedPayload{
					Content:      a.resp.Content,
					InputTokens:  a.resp.InputTokens,
					OutputTokens: a.resp.OutputTokens,
					Provider:     cfg.Provider,
					Model:        cfg.Model,
					ConfigID:     cfg.ID,
				})
			}
			return &domain.Response{
				Content:  a.resp.Content,
				Usage:    domain.Usage{InputTokens: a.resp.InputTokens, OutputTokens: a.resp.OutputTokens},
				Provider: cfg.Provider,
				Model:    cfg.Model,
				ConfigID: cfg.ID,
			}, nil

		case domain.OutcomePermanent:
			log.Warn("Provider rejected request",
				zap.String("config_id", cfg.ID), zap.Int("attempt", i+1), zap.Error(a.err))
			return nil, fmt.Errorf("execute %s: config %s: %w", req.UsageType, cfg.ID, a.err)

		default:
			log.Warn("Provider attempt failed, advancing chain",
				zap.String("config_id", cfg.ID), zap.Int("attempt", i+1), zap.Error(a.err))
			last = a.err
		}
	}

	metrics.ChainExhaustedTotal.WithLabelValues(req.UsageType).Inc()
	return nil, &domain.ChainExhaustedError{UsageType: req.UsageType, Attempts: len(chain), Last: last}
}

// selectChain returns the active configs for usageType, primary first then by priority.
func (r *Router) selectChain(ctx context.Context, usageType string) ([]domain.ModelConfig, error) {
	configs, err := r.source.ActiveConfigs(ctx, usageType)
	if err != nil {
		return nil, fmt.Errorf("load model configs for %s: %w", usageType, err)
	}

	chain := make([]domain.ModelConfig, 0, len(configs))
	for _, c := range configs {
		if c.Active {
			chain = append(chain, c)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w for usage type %q", domain.ErrNoModelConfig, usageType)
	}

	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Primary != chain[j].Primary {
			return chain[i].Primary
		}
		return chain[i].Priority < chain[j].Priority
	})
	return chain, nil
}

// try runs one attempt against cfg and classifies the result.
func (r *Router) try(ctx context.Context, cfg domain.ModelConfig, payload domain.ProviderRequest) attempt {
	client, ok := r.clients[cfg.Provider]
	if !ok {
		return attempt{
			outcome: domain.OutcomeTransient,
			err:     domain.NewTransientError(cfg.Provider, 0, errors.New("no client registered for provider")),
		}
	}

	budget := r.budgets[cfg.Provider]
	if budget != nil {
		if err := budget.Check(ctx); err != nil {
			return attempt{outcome: domain.OutcomeTransient, err: err}
		}
	}

	base := ctx
	if !r.opts.PropagateCancel {
		base = context.WithoutCancel(ctx)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = r.opts.CallTimeout
	}
	callCtx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	payload.Model = cfg.Model
	start := r.now()
	resp, err := client.Call(callCtx, cfg, payload)
	latency := r.now().Sub(start)
	metrics.ProviderAttemptDuration.WithLabelValues(cfg.Provider, cfg.Model).Observe(latency.Seconds())

	if err != nil {
		return attempt{outcome: Classify(err), err: err, latency: latency}
	}

	metrics.ProviderTokensTotal.WithLabelValues(cfg.Provider, cfg.Model, "input").Add(float64(resp.InputTokens))
	metrics.ProviderTokensTotal.WithLabelValues(cfg.Provider, cfg.Model, "output").Add(float64(resp.OutputTokens))
	if budget != nil {
		budget.Record(ctx, int64(resp.InputTokens+resp.OutputTokens))
		daily, monthly := budget.Remaining()
		metrics.ProviderBudgetTokensRemaining.WithLabelValues(cfg.Provider, "daily").Set(float64(daily))
		metrics.ProviderBudgetTokensRemaining.WithLabelValues(cfg.Provider, "monthly").Set(float64(monthly))
	}
	return attempt{outcome: domain.OutcomeSuccess, resp: resp, latency: latency}
}

// Classify maps a provider call error to an attempt outcome. Deadlines, budget
// exhaustion and unclassified failures advance the chain.
func Classify(err error) domain.Outcome {
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, domain.ErrPermanentProvider):
		return domain.OutcomePermanent
	case errors.Is(err, context.Canceled):
		return domain.OutcomePermanent
	default:
		return domain.OutcomeTransient
	}
}

func (r *Router) append(ctx context.Context, rec domain.ExecutionRecord) {
	if r.records == nil {
		return
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = r.now().UTC()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := r.records.Append(wctx, rec); err != nil {
		r.logger.Error("Failed to append execution record",
			zap.String("usage_type", rec.UsageType),
			zap.String("config_id", rec.ConfigID),
			zap.Error(err),
		)
	}
}

// Fingerprint identifies a request independently of cache key versions.
func Fingerprint(req *domain.GenerationRequest) string {
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
