package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/aiorch/internal/db"
)

// kv is the consumer interface for budget counters (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrByWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) (int64, error)
}

// Retention is how long a period counter outlives the start of its period.
type Retention struct {
	Daily   time.Duration
	Monthly time.Duration
}

// DefaultRetention keeps yesterday's and last month's counters readable after rollover.
var DefaultRetention = Retention{Daily: 48 * time.Hour, Monthly: 62 * 24 * time.Hour}

// Counters persists per-period token counters as Redis integers.
// It satisfies usecase/budget.Store.
type Counters struct {
	kv        kv
	retention Retention
}

// New creates budget counters. Zero retention fields fall back to DefaultRetention.
func New(s kv, r Retention) *Counters {
	if r.Daily <= 0 {
		r.Daily = DefaultRetention.Daily
	}
	if r.Monthly <= 0 {
		r.Monthly = DefaultRetention.Monthly
	}
	return &Counters{kv: s, retention: r}
}

// IncrBy adds val to the counter. The first write of a period fixes its expiry.
func (c *Counters) IncrBy(ctx context.Context, key string, val int64) error {
	if _, err := c.kv.IncrByWithTTL(ctx, key, val, c.ttl(key)); err != nil {
		return fmt.Errorf("budget incr %s: %w", key, err)
	}
	return nil
}

// Get returns the counter value, 0 when the period has no usage yet.
func (c *Counters) Get(ctx context.Context, key string) (int64, error) {
	data, err := c.kv.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget get %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget get %s: parse %q: %w", key, data, err)
	}
	return val, nil
}

// ttl picks the retention from the period segment of
// aiorch:budget:{kind}:{provider}:{daily|monthly}:{date}.
func (c *Counters) ttl(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return c.retention.Daily
	}
	return c.retention.Monthly
}
