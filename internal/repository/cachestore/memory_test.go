package cachestore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

func entry(tier domain.Tier, key, content string) domain.CacheEntry {
	return domain.CacheEntry{
		Tier:      tier,
		Key:       key,
		Payload:   domain.CachedPayload{Content: content, Provider: "openai", Model: "gpt"},
		CreatedAt: time.Unix(1_700_000_000, 0),
		TTL:       time.Hour,
	}
}

func TestMemory_PutGet(t *testing.T) {
	m, err := NewMemory(10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()

	if err := m.Put(ctx, entry(domain.TierExact, "k", "hello")); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := m.Get(ctx, domain.TierExact, "k")
	if err != nil || got == nil {
		t.Fatalf("expected hit, got %v, %v", got, err)
	}
	if got.Payload.Content != "hello" {
		t.Errorf("unexpected content: %q", got.Payload.Content)
	}

	// Same key in another tier is a different entry.
	if got, _ := m.Get(ctx, domain.TierTemplate, "k"); got != nil {
		t.Error("expected miss in another tier")
	}
}

func TestMemory_Expired(t *testing.T) {
	m, _ := NewMemory(10, 0)
	ctx := context.Background()
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0).Add(2 * time.Hour) }

	_ = m.Put(ctx, entry(domain.TierExact, "k", "v"))
	if got, _ := m.Get(ctx, domain.TierExact, "k"); got != nil {
		t.Fatal("expected expired entry to miss")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not removed, len=%d", m.Len())
	}
}

func TestMemory_OverwriteKeepsBytesAccurate(t *testing.T) {
	m, _ := NewMemory(10, 0)
	ctx := context.Background()

	_ = m.Put(ctx, entry(domain.TierExact, "k", "short"))
	first := m.Bytes()
	_ = m.Put(ctx, entry(domain.TierExact, "k", "short"))

	if m.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", m.Len())
	}
	if m.Bytes() != first {
		t.Errorf("bytes drifted: %d != %d", m.Bytes(), first)
	}
}

func TestMemory_EntryCapEvictsLRU(t *testing.T) {
	m, _ := NewMemory(2, 0)
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()

	_ = m.Put(ctx, entry(domain.TierExact, "a", "1"))
	_ = m.Put(ctx, entry(domain.TierExact, "b", "2"))
	_, _ = m.Get(ctx, domain.TierExact, "a") // a becomes most recent
	_ = m.Put(ctx, entry(domain.TierExact, "c", "3"))

	if got, _ := m.Get(ctx, domain.TierExact, "b"); got != nil {
		t.Error("expected b evicted")
	}
	if got, _ := m.Get(ctx, domain.TierExact, "a"); got == nil {
		t.Error("expected a kept")
	}
}

func TestMemory_ByteCapEvicts(t *testing.T) {
	big := strings.Repeat("x", 1000)
	size := entrySize(&domain.CacheEntry{Key: "a", Payload: domain.CachedPayload{Content: big, Provider: "openai", Model: "gpt"}})

	m, _ := NewMemory(100, size*2)
	m.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	ctx := context.Background()

	_ = m.Put(ctx, entry(domain.TierExact, "a", big))
	_ = m.Put(ctx, entry(domain.TierExact, "b", big))
	_ = m.Put(ctx, entry(domain.TierExact, "c", big))

	if m.Len() != 2 {
		t.Fatalf("expected 2 entries under byte cap, got %d", m.Len())
	}
	if m.Bytes() > size*2 {
		t.Errorf("byte cap exceeded: %d", m.Bytes())
	}
	if got, _ := m.Get(ctx, domain.TierExact, "a"); got != nil {
		t.Error("expected oldest entry evicted")
	}
}

func TestMemory_EntryLargerThanCap(t *testing.T) {
	m, _ := NewMemory(10, 100)
	if err := m.Put(context.Background(), entry(domain.TierExact, "a", strings.Repeat("x", 500))); err == nil {
		t.Fatal("expected error for oversized entry")
	}
}
