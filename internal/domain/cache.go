package domain

import "time"

// Tier names a cache strategy.
type Tier string

const (
	// TierNone marks a response that was not served from cache.
	TierNone Tier = ""
	// TierExact is the L1 exact-hash tier.
	TierExact Tier = "L1"
	// TierSemantic is the L2 similarity tier.
	TierSemantic Tier = "L2"
	// TierTemplate is the L3 deterministic-template tier.
	TierTemplate Tier = "L3"
)

// CachedPayload is the stored model answer plus its usage metadata.
type CachedPayload struct {
	Content      string `json:"content"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	ConfigID     string `json:"config_id,omitempty"`
}

// CacheEntry is one cached response in one tier. Entries are replaced wholesale.
type CacheEntry struct {
	Tier      Tier              `json:"tier"`
	Key       string            `json:"key"`
	Payload   CachedPayload     `json:"payload"`
	Scope     map[string]string `json:"scope,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
}

// Expired reports whether the entry outlived its TTL at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.CreatedAt.Add(e.TTL))
}
