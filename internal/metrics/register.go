package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aiorch"

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPRequestsInFlight,

		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingBudgetTokensRemaining,
		EmbeddingCacheTotal,

		CacheLookupsTotal,
		CacheStoresTotal,
		ProviderAttemptsTotal,
		ProviderAttemptDuration,
		ProviderTokensTotal,
		ProviderBudgetTokensRemaining,
		ChainExhaustedTotal,
		DedupChecksTotal,
	}
}

// Register adds every aiorch collector to reg. Collectors reg already holds are skipped,
// so repeated calls against the same registry are harmless.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	return nil
}
