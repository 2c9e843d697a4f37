package domain

import (
	"context"
	"time"
)

// Outcome is the classified result of one execution attempt.
type Outcome string

const (
	// OutcomeSuccess means the provider answered.
	OutcomeSuccess Outcome = "success"
	// OutcomeTransient means the attempt failed in a retryable way; the chain advances.
	OutcomeTransient Outcome = "transient"
	// OutcomePermanent means the attempt failed in a way no fallback can fix.
	OutcomePermanent Outcome = "permanent"
	// OutcomeCacheHit means the request was served from cache without a provider call.
	OutcomeCacheHit Outcome = "cache_hit"
)

// ExecutionRecord is an append-only log line for one attempt.
type ExecutionRecord struct {
	ID           string
	Fingerprint  string
	UsageType    string
	ConfigID     string
	Provider     string
	Model        string
	Attempt      int
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
	Success      bool
	Outcome      Outcome
	Error        string
	CacheHit     bool
	CacheTier    Tier
	CreatedAt    time.Time
}

// RecordWriter appends execution records.
type RecordWriter interface {
	Append(ctx context.Context, rec ExecutionRecord) error
}
