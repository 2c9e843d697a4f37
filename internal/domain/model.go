package domain

import (
	"context"
	"time"
)

// ModelConfig describes one model endpoint serving a usage type.
// Configs sharing a usage type form a fallback chain ordered by Priority (lowest first).
type ModelConfig struct {
	ID        string
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Defaults  Sampling
	UsageType string
	Priority  int
	Primary   bool
	Active    bool
	Timeout   time.Duration
}

// ProviderRequest is the canonical payload sent to a provider client.
// It is identical across every attempt of a fallback chain except for Model.
type ProviderRequest struct {
	Model        string
	SystemPrompt string
	Conversation []Turn
	Sampling     Sampling
}

// ProviderResponse is the canonical, provider-independent model answer.
type ProviderResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// ProviderClient calls one model provider. Implementations translate provider-specific
// shapes into ProviderResponse and classify failures as *ProviderError.
type ProviderClient interface {
	Call(ctx context.Context, cfg ModelConfig, req ProviderRequest) (ProviderResponse, error)
}

// Usage reports token consumption of a served response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is what the orchestrator hands back to callers.
type Response struct {
	Content  string `json:"content"`
	Usage    Usage  `json:"usage"`
	CacheHit bool   `json:"cache_hit"`
	Tier     Tier   `json:"tier,omitempty"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	ConfigID string `json:"config_id,omitempty"`
}
