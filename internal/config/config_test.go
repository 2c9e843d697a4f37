package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Providers: map[string]ProviderConfig{
			"openai": {APIKey: "sk-test"},
		},
		Models: map[string]ModelConfig{
			"main": {Provider: "openai", Model: "gpt-4o", UsageType: "interview"},
		},
		Routing: RoutingConfig{Chains: map[string][]string{"interview": {"main"}}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidBudgetAction(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = []string{"localhost:6379"}
	cfg.Providers["openai"] = ProviderConfig{
		APIKey: "sk-test",
		Budget: BudgetConfig{DailyTokenLimit: 1000000, Action: "invalid_action"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid budget action")
	}

	expected := `providers.openai.budget.action must be "warn" or "reject", got "invalid_action"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_ValidBudgetActions(t *testing.T) {
	validActions := []string{"", "warn", "reject"}

	for _, action := range validActions {
		t.Run("action="+action, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database.Addrs = []string{"localhost:6379"}
			cfg.Embedding.Budget = BudgetConfig{DailyTokenLimit: 10, Action: action}

			if err := cfg.Validate(); err != nil {
				t.Fatalf("unexpected error for valid action %q: %v", action, err)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_RedisBackendRequiresAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Backend = BackendRedis

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}

	cfg.Database.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNeedsRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.CacheTTL = 3600
	if cfg.NeedsRedis() {
		t.Error("embedding cache alone must run in process")
	}

	cfg.Similarity.Backend = BackendRedis
	if !cfg.NeedsRedis() {
		t.Error("redis similarity backend needs a store")
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Similarity.Backend = "qdrant"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown similarity backend")
	}
}

func TestValidate_ThresholdRange(t *testing.T) {
	cfg := validConfig()
	cfg.Dedup.Threshold = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestValidate_ModelReferences(t *testing.T) {
	cfg := validConfig()
	cfg.Models["ghost"] = ModelConfig{Provider: "mistral", Model: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg = validConfig()
	cfg.Routing.Chains["tasks"] = []string{"missing"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown chain model")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 90 {
		t.Errorf("expected WriteTimeoutSec=90, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Cache.TTL.L1 != 604800 || cfg.Cache.TTL.L2 != 86400 || cfg.Cache.TTL.L3 != 2592000 {
		t.Errorf("unexpected cache ttls: %+v", cfg.Cache.TTL)
	}
	if cfg.Cache.SemanticThreshold != 0.95 {
		t.Errorf("expected SemanticThreshold=0.95, got %v", cfg.Cache.SemanticThreshold)
	}
	if cfg.Dedup.Threshold != 0.85 {
		t.Errorf("expected dedup Threshold=0.85, got %v", cfg.Dedup.Threshold)
	}
	if cfg.Cache.Backend != BackendMemory || cfg.Similarity.Backend != BackendMemory {
		t.Errorf("expected memory backends, got %q / %q", cfg.Cache.Backend, cfg.Similarity.Backend)
	}
	if cfg.SQL.Driver != "sqlite" || cfg.SQL.DSN != "aiorch.db" {
		t.Errorf("unexpected sql defaults: %+v", cfg.SQL)
	}
	if cfg.Router.CallTimeoutSec != 60 || cfg.Router.ConfigSource != "static" {
		t.Errorf("unexpected router defaults: %+v", cfg.Router)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:  HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Cache: CacheConfig{KeyVersion: "v7", TTL: TTLConfig{L1: 60}, SemanticThreshold: 0.9},
		Dedup: DedupConfig{Threshold: 0.8},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Cache.KeyVersion != "v7" || cfg.Cache.TTL.L1 != 60 || cfg.Cache.SemanticThreshold != 0.9 {
		t.Errorf("cache overrides lost: %+v", cfg.Cache)
	}
	if cfg.Dedup.Threshold != 0.8 {
		t.Errorf("expected dedup Threshold=0.8, got %v", cfg.Dedup.Threshold)
	}
}

func TestParse_ExpandsEnvAndResolvesModels(t *testing.T) {
	t.Setenv("AIORCH_TEST_KEY", "sk-from-env")

	cfg, err := Parse([]byte(`
http:
  port: 8080
providers:
  openai:
    api_key: ${AIORCH_TEST_KEY}
    base_url: ${AIORCH_TEST_UNSET:-https://api.openai.com/v1}
  claude:
    type: anthropic
    api_key: x
models:
  main:
    provider: openai
    model: gpt-4o
    usage_type: interview
    primary: true
    timeout_sec: 20
    temperature: 0.3
  backup:
    provider: claude
    model: claude-sonnet
    usage_type: interview
    priority: 1
    active: false
routing:
  chains:
    interview: [main, backup]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	models := cfg.ModelConfigs()
	main := models["main"]
	if main.APIKey != "sk-from-env" || main.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("provider credentials not inherited: %+v", main)
	}
	if main.Timeout != 20*time.Second || !main.Active || !main.Primary {
		t.Errorf("unexpected main config: %+v", main)
	}
	if main.Defaults.Temperature == nil || *main.Defaults.Temperature != 0.3 {
		t.Errorf("temperature lost: %+v", main.Defaults)
	}
	if models["backup"].Active {
		t.Error("expected backup inactive")
	}
	if got := cfg.Providers["claude"].ProviderType("claude"); got != "anthropic" {
		t.Errorf("expected anthropic type, got %q", got)
	}
}
