package metrics

import "github.com/prometheus/client_golang/prometheus"

// Orchestration metrics: cache tiers, provider attempts, dedup decisions.
var (
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by tier and result",
		},
		[]string{"tier", "result"}, // result: hit / miss / error
	)

	CacheStoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stores_total",
			Help:      "Cache writes by tier and status",
		},
		[]string{"tier", "status"},
	)

	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Model provider attempts by outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	ProviderAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_duration_seconds",
			Help:      "Model provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_tokens_total",
			Help:      "Model tokens consumed",
		},
		[]string{"provider", "model", "type"}, // type: input / output
	)

	ProviderBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_budget_tokens_remaining",
			Help:      "Remaining model token budget",
		},
		[]string{"provider", "period"},
	)

	ChainExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_exhausted_total",
			Help:      "Requests for which every fallback config failed",
		},
		[]string{"usage_type"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_checks_total",
			Help:      "Duplicate checks by result",
		},
		[]string{"result"}, // duplicate / unique / error
	)
)
