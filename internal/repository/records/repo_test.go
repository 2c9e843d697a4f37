package records

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	r := New(db)
	if err := r.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return r
}

func rec(id, usage string, attempt int, at time.Time) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID:          id,
		Fingerprint: "fp-" + usage,
		UsageType:   usage,
		ConfigID:    "main",
		Provider:    "openai",
		Model:       "gpt-4o",
		Attempt:     attempt,
		InputTokens: 10,
		Latency:     1500 * time.Millisecond,
		Outcome:     domain.OutcomeTransient,
		Error:       "503 overloaded",
		CreatedAt:   at,
	}
}

func TestAppendAndListRecent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, r0 := range []domain.ExecutionRecord{
		rec("a", "interview", 1, base),
		rec("b", "interview", 2, base.Add(time.Second)),
		rec("c", "tasks", 1, base.Add(2*time.Second)),
	} {
		if err := r.Append(ctx, r0); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := r.ListRecent(ctx, "interview", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Latency != 1500*time.Millisecond {
		t.Errorf("latency not preserved: %v", got[0].Latency)
	}
	if got[0].Outcome != domain.OutcomeTransient || got[0].Error != "503 overloaded" {
		t.Errorf("unexpected record: %+v", got[0])
	}

	all, err := r.ListRecent(ctx, "", 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" {
		t.Errorf("unexpected listing: %+v", all)
	}
}

func TestAppend_DuplicateIDFails(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := r.Append(ctx, rec("dup", "interview", 1, now)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := r.Append(ctx, rec("dup", "interview", 1, now)); err == nil {
		t.Fatal("expected primary key violation")
	}
}

func TestByFingerprint(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_ = r.Append(ctx, rec("second", "interview", 2, base.Add(time.Second)))
	_ = r.Append(ctx, rec("first", "interview", 1, base))
	hit := rec("hit", "interview", 0, base.Add(time.Minute))
	hit.Outcome = domain.OutcomeCacheHit
	hit.CacheHit = true
	hit.CacheTier = domain.TierExact
	_ = r.Append(ctx, hit)

	got, err := r.ByFingerprint(ctx, "fp-interview")
	if err != nil {
		t.Fatalf("by fingerprint: %v", err)
	}
	if len(got) != 3 || got[0].ID != "first" || got[2].ID != "hit" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[2].CacheHit || got[2].CacheTier != domain.TierExact {
		t.Errorf("cache fields lost: %+v", got[2])
	}
}
