package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

const defaultCheckTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

type component struct {
	name   string
	pinger Pinger
}

// Service coordinates health checks.
type Service struct {
	components []component
	embedding  EmbeddingChecker
	timeout    time.Duration
}

// New creates a Service. embedding can be nil.
func New(embedding EmbeddingChecker) *Service {
	return &Service{embedding: embedding, timeout: defaultCheckTimeout}
}

// WithComponent adds a named dependency (database, records, ...) to the report.
func (s *Service) WithComponent(name string, p Pinger) *Service {
	s.components = append(s.components, component{name: name, pinger: p})
	return s
}

// Check runs health checks against all components. Each check is bounded by a timeout.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.components)+1)

	for _, c := range s.components {
		checks[c.name] = s.run(ctx, c.pinger.Ping)
	}
	if s.embedding != nil {
		checks["embedding"] = s.run(ctx, s.embedding.HealthCheck)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) run(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
