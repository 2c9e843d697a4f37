package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// Backend names shared by the cache and similarity sections.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the aiorch service configuration.
type Config struct {
	HTTP       HTTPConfig                `yaml:"http"`
	Auth       AuthConfig                `yaml:"auth"`
	Logging    LoggingConfig             `yaml:"logging"`
	Database   DatabaseConfig            `yaml:"database"`
	SQL        SQLConfig                 `yaml:"sql"`
	Embedding  EmbeddingConfig           `yaml:"embedding"`
	Similarity SimilarityConfig          `yaml:"similarity"`
	Cache      CacheConfig               `yaml:"cache"`
	Dedup      DedupConfig               `yaml:"dedup"`
	Router     RouterConfig              `yaml:"router"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
	Models     map[string]ModelConfig    `yaml:"models"`
	Routing    RoutingConfig             `yaml:"routing"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json, console (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis/Valkey connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// SQLConfig holds the execution record store settings.
type SQLConfig struct {
	Driver string `yaml:"driver"` // sqlite (default), mysql
	DSN    string `yaml:"dsn"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any limit is set.
func (b BudgetConfig) Enabled() bool { return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0 }

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Provider   string       `yaml:"provider"` // openai, hashing (default)
	APIKey     string       `yaml:"api_key"`
	BaseURL    string       `yaml:"base_url"`
	Model      string       `yaml:"model"`
	Dimensions int          `yaml:"dimensions"`
	Budget     BudgetConfig `yaml:"budget"`
	CacheTTL   int          `yaml:"cache_ttl_sec"` // 0 disables the embedding cache
	CacheSize  int          `yaml:"cache_size"`    // in-process vectors, shared through Redis when a store is open
	TextPrefix string       `yaml:"text_prefix"`   // prepended to every input, e.g. "passage: " for e5 models
}

// SimilarityConfig holds similarity store settings.
type SimilarityConfig struct {
	Backend         string `yaml:"backend"` // memory (default), redis
	TimeoutMs       int    `yaml:"timeout_ms"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// TTLConfig holds per-tier cache TTLs in seconds.
type TTLConfig struct {
	L1 int `yaml:"l1"`
	L2 int `yaml:"l2"`
	L3 int `yaml:"l3"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled            bool      `yaml:"enabled"`
	Backend            string    `yaml:"backend"` // memory (default), redis
	KeyVersion         string    `yaml:"key_version"`
	TTL                TTLConfig `yaml:"ttl"`
	SemanticThreshold  float64   `yaml:"semantic_threshold"`
	SemanticUsageTypes []string  `yaml:"semantic_usage_types"`
	MaxEntries         int       `yaml:"max_entries"`
	MaxBytes           int64     `yaml:"max_bytes"`
	TimeoutMs          int       `yaml:"timeout_ms"`
}

// DedupConfig holds duplicate detection settings.
type DedupConfig struct {
	Threshold float64 `yaml:"threshold"`
}

// RouterConfig holds model routing settings.
type RouterConfig struct {
	PropagateCancel bool   `yaml:"propagate_cancel"`
	CallTimeoutSec  int    `yaml:"call_timeout_sec"`
	ConfigSource    string `yaml:"config_source"` // static (default), sql
}

// ProviderConfig holds credentials and limits for one model provider.
type ProviderConfig struct {
	Type    string       `yaml:"type"` // openai, anthropic (default: provider name)
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// ModelConfig describes one model endpoint in YAML.
type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	UsageType   string   `yaml:"usage_type"`
	Priority    int      `yaml:"priority"`
	Primary     bool     `yaml:"primary"`
	Active      *bool    `yaml:"active"` // default true
	TimeoutSec  int      `yaml:"timeout_sec"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   int      `yaml:"max_tokens"`
	Stop        []string `yaml:"stop"`
}

// RoutingConfig maps usage types to ordered model ids.
type RoutingConfig struct {
	Chains map[string][]string `yaml:"chains"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit YAML path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 90
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.SQL.Driver == "" {
		c.SQL.Driver = "sqlite"
	}
	if c.SQL.DSN == "" && c.SQL.Driver == "sqlite" {
		c.SQL.DSN = "aiorch.db"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hashing"
	}
	if c.Similarity.Backend == "" {
		c.Similarity.Backend = BackendMemory
	}
	if c.Similarity.TimeoutMs <= 0 {
		c.Similarity.TimeoutMs = 2000
	}
	if c.Similarity.HNSWM <= 0 {
		c.Similarity.HNSWM = 16
	}
	if c.Similarity.HNSWEFConstruct <= 0 {
		c.Similarity.HNSWEFConstruct = 200
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendMemory
	}
	if c.Cache.KeyVersion == "" {
		c.Cache.KeyVersion = "v1"
	}
	if c.Cache.TTL.L1 <= 0 {
		c.Cache.TTL.L1 = 7 * 24 * 3600
	}
	if c.Cache.TTL.L2 <= 0 {
		c.Cache.TTL.L2 = 24 * 3600
	}
	if c.Cache.TTL.L3 <= 0 {
		c.Cache.TTL.L3 = 30 * 24 * 3600
	}
	if c.Cache.SemanticThreshold <= 0 {
		c.Cache.SemanticThreshold = 0.95
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.MaxBytes <= 0 {
		c.Cache.MaxBytes = 64 << 20
	}
	if c.Cache.TimeoutMs <= 0 {
		c.Cache.TimeoutMs = 300
	}
	if c.Dedup.Threshold <= 0 {
		c.Dedup.Threshold = 0.85
	}
	if c.Router.CallTimeoutSec <= 0 {
		c.Router.CallTimeoutSec = 60
	}
	if c.Router.ConfigSource == "" {
		c.Router.ConfigSource = "static"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.NeedsRedis() && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required when a redis backend is selected")
	}
	if err := oneOf("cache.backend", c.Cache.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("similarity.backend", c.Similarity.Backend, BackendMemory, BackendRedis); err != nil {
		return err
	}
	if err := oneOf("sql.driver", c.SQL.Driver, "sqlite", "mysql"); err != nil {
		return err
	}
	if err := oneOf("embedding.provider", c.Embedding.Provider, "openai", "hashing"); err != nil {
		return err
	}
	if err := oneOf("router.config_source", c.Router.ConfigSource, "static", "sql"); err != nil {
		return err
	}
	if err := unitInterval("cache.semantic_threshold", c.Cache.SemanticThreshold); err != nil {
		return err
	}
	if err := unitInterval("dedup.threshold", c.Dedup.Threshold); err != nil {
		return err
	}
	if err := budgetAction("embedding.budget.action", c.Embedding.Budget.Action); err != nil {
		return err
	}
	for name, p := range c.Providers {
		if err := oneOf("providers."+name+".type", p.ProviderType(name), "openai", "anthropic"); err != nil {
			return err
		}
		if err := budgetAction("providers."+name+".budget.action", p.Budget.Action); err != nil {
			return err
		}
	}
	for id, m := range c.Models {
		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("models.%s.provider %q is not configured under providers", id, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("models.%s.model is required", id)
		}
	}
	for usage, ids := range c.Routing.Chains {
		for _, id := range ids {
			if _, ok := c.Models[id]; !ok {
				return fmt.Errorf("routing.chains.%s references unknown model %q", usage, id)
			}
		}
	}
	return nil
}

// NeedsRedis reports whether any component is configured to use Redis/Valkey.
func (c *Config) NeedsRedis() bool {
	return (c.Cache.Enabled && c.Cache.Backend == BackendRedis) ||
		c.Similarity.Backend == BackendRedis ||
		c.Embedding.Budget.Enabled() ||
		c.anyProviderBudget()
}

func (c *Config) anyProviderBudget() bool {
	for _, p := range c.Providers {
		if p.Budget.Enabled() {
			return true
		}
	}
	return false
}

// ProviderType returns the client implementation used for a provider entry.
func (p ProviderConfig) ProviderType(name string) string {
	if p.Type != "" {
		return p.Type
	}
	return name
}

// ModelConfigs resolves YAML models into domain configs, inheriting provider credentials.
func (c *Config) ModelConfigs() map[string]domain.ModelConfig {
	out := make(map[string]domain.ModelConfig, len(c.Models))
	for id, m := range c.Models {
		p := c.Providers[m.Provider]
		active := true
		if m.Active != nil {
			active = *m.Active
		}
		out[id] = domain.ModelConfig{
			ID:       id,
			Provider: m.Provider,
			Model:    m.Model,
			APIKey:   p.APIKey,
			BaseURL:  p.BaseURL,
			Defaults: domain.Sampling{
				Temperature: m.Temperature,
				TopP:        m.TopP,
				MaxTokens:   m.MaxTokens,
				Stop:        m.Stop,
			},
			UsageType: m.UsageType,
			Priority:  m.Priority,
			Primary:   m.Primary,
			Active:    active,
			Timeout:   time.Duration(m.TimeoutSec) * time.Second,
		}
	}
	return out
}

func oneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

func unitInterval(field string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be within [0, 1], got %v", field, v)
	}
	return nil
}

func budgetAction(field, action string) error {
	switch action {
	case "", "warn", "reject":
		return nil
	default:
		return fmt.Errorf("%s must be \"warn\" or \"reject\", got %q", field, action)
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
