package metrics

import "github.com/prometheus/client_golang/prometheus"

const embeddingSubsystem = "embedding"

// Embedding metrics. Series are keyed by provider and model so that several
// embedders sharing a process can be told apart.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "requests_total",
		Help:      "Embedding provider calls by status",
	}, []string{"provider", "model", "status"})

	EmbeddingRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "request_duration_seconds",
		Help:      "Embedding provider latency",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"provider", "model"})

	EmbeddingTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "tokens_total",
		Help:      "Tokens billed by the embedding provider",
	}, []string{"provider", "model", "type"}) // type: prompt / total

	EmbeddingErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "errors_total",
		Help:      "Failed embeddings by kind",
	}, []string{"provider", "model", "error_type"})

	EmbeddingBudgetTokensRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "budget_tokens_remaining",
		Help:      "Tokens left in the current budget period",
	}, []string{"provider", "period"})

	EmbeddingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: embeddingSubsystem,
		Name:      "cache_lookups_total",
		Help:      "Vector cache lookups by result",
	}, []string{"result"}) // local_hit / hit / miss / shared
)
