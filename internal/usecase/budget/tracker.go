package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// Action defines behavior when a token budget is exceeded.
type Action string

const (
	// ActionWarn logs a warning but allows the request.
	ActionWarn Action = "warn"
	// ActionReject blocks the request.
	ActionReject Action = "reject"
)

// Kind separates budgets for the same provider name.
type Kind string

const (
	// KindEmbedding counts embedding tokens.
	KindEmbedding Kind = "embedding"
	// KindGeneration counts model input + output tokens.
	KindGeneration Kind = "generation"
)

// Store is the persistence interface for budget counters.
// Implementations must tolerate repeated IncrBy calls.
type Store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// Config holds limits for one tracker. Zero limits mean unlimited.
type Config struct {
	Provider     string
	Kind         Kind
	DailyLimit   int64
	MonthlyLimit int64
	Action       Action
}

// Tracker is an in-memory token budget with optional write-behind persistence.
// Check never leaves the process; Record updates memory first, then the store.
type Tracker struct {
	mu             sync.Mutex
	cfg            Config
	dailyUsed      int64
	monthlyUsed    int64
	lastDayReset   time.Time
	lastMonthReset time.Time
	store          Store
	now            func() time.Time
	logger         *zap.Logger
}

// NewTracker creates a tracker with the given limits.
func NewTracker(cfg Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Action == "" {
		cfg.Action = ActionWarn
	}
	t := &Tracker{cfg: cfg, now: func() time.Time { return time.Now().UTC() }, logger: logger}
	now := t.now()
	t.lastDayReset = truncateToDay(now)
	t.lastMonthReset = truncateToMonth(now)
	return t
}

// WithStore attaches a persistence store and loads the current counters from it.
func (t *Tracker) WithStore(ctx context.Context, store Store) *Tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store = store
	now := t.now()

	if val, err := store.Get(ctx, t.dailyKey(now)); err == nil {
		t.dailyUsed = val
	} else {
		t.logger.Warn("Failed to load daily budget", zap.String("provider", t.cfg.Provider), zap.Error(err))
	}
	if val, err := store.Get(ctx, t.monthlyKey(now)); err == nil {
		t.monthlyUsed = val
	} else {
		t.logger.Warn("Failed to load monthly budget", zap.String("provider", t.cfg.Provider), zap.Error(err))
	}

	t.logger.Info("Budget loaded",
		zap.String("provider", t.cfg.Provider),
		zap.String("kind", string(t.cfg.Kind)),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("monthly_used", t.monthlyUsed),
	)
	return t
}

// Provider returns the provider this tracker counts for.
func (t *Tracker) Provider() string { return t.cfg.Provider }

func (t *Tracker) dailyKey(now time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:daily:%s", domain.KeyPrefix, t.cfg.Kind, t.cfg.Provider, now.Format("2006-01-02"))
}

func (t *Tracker) monthlyKey(now time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:monthly:%s", domain.KeyPrefix, t.cfg.Kind, t.cfg.Provider, now.Format("2006-01"))
}

// Check verifies the budget allows a new request.
// With ActionReject an exhausted budget returns an error wrapping domain.ErrBudgetExceeded.
func (t *Tracker) Check(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	dailyExceeded := t.cfg.DailyLimit > 0 && t.dailyUsed >= t.cfg.DailyLimit
	monthlyExceeded := t.cfg.MonthlyLimit > 0 && t.monthlyUsed >= t.cfg.MonthlyLimit
	if !dailyExceeded && !monthlyExceeded {
		return nil
	}

	if t.cfg.Action == ActionReject {
		return fmt.Errorf("%s %s budget: %w", t.cfg.Provider, t.cfg.Kind, domain.ErrBudgetExceeded)
	}

	t.logger.Warn("Token budget exceeded",
		zap.String("provider", t.cfg.Provider),
		zap.String("kind", string(t.cfg.Kind)),
		zap.Int64("daily_used", t.dailyUsed),
		zap.Int64("daily_limit", t.cfg.DailyLimit),
		zap.Int64("monthly_used", t.monthlyUsed),
		zap.Int64("monthly_limit", t.cfg.MonthlyLimit),
	)
	return nil
}

// Record registers consumed tokens. The store write survives caller cancellation
// but is bounded by a short timeout.
func (t *Tracker) Record(ctx context.Context, tokens int64) {
	if tokens <= 0 {
		return
	}

	t.mu.Lock()
	t.resetIfNeeded()
	t.dailyUsed += tokens
	t.monthlyUsed += tokens
	store := t.store
	now := t.now()
	t.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	for _, key := range []string{t.dailyKey(now), t.monthlyKey(now)} {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			t.logger.Warn("Failed to persist budget", zap.String("key", key), zap.Error(err))
		}
	}
}

// Remaining returns tokens left in the daily and monthly budgets (-1 if unlimited).
func (t *Tracker) Remaining() (daily, monthly int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	return remaining(t.cfg.DailyLimit, t.dailyUsed), remaining(t.cfg.MonthlyLimit, t.monthlyUsed)
}

// Snapshot is a point-in-time view of a tracker's counters.
type Snapshot struct {
	Provider     string
	Kind         Kind
	DailyLimit   int64
	DailyUsed    int64
	MonthlyLimit int64
	MonthlyUsed  int64
}

// Snapshot returns the current limits and counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()
	return Snapshot{
		Provider:     t.cfg.Provider,
		Kind:         t.cfg.Kind,
		DailyLimit:   t.cfg.DailyLimit,
		DailyUsed:    t.dailyUsed,
		MonthlyLimit: t.cfg.MonthlyLimit,
		MonthlyUsed:  t.monthlyUsed,
	}
}

func remaining(limit, used int64) int64 {
	if limit == 0 {
		return -1
	}
	return max(0, limit-used)
}

// resetIfNeeded zeroes counters when the day or month rolls over.
func (t *Tracker) resetIfNeeded() {
	now := t.now()
	if today := truncateToDay(now); today.After(t.lastDayReset) {
		t.dailyUsed = 0
		t.lastDayReset = today
	}
	if thisMonth := truncateToMonth(now); thisMonth.After(t.lastMonthReset) {
		t.monthlyUsed = 0
		t.lastMonthReset = thisMonth
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
