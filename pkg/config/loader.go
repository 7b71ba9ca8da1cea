package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Load reads configuration from the process environment (optionally seeded
// from a local .env file, mirroring the teacher's local-dev convenience),
// applies system defaults, and validates the result. This is the single
// entry point services call at startup.
func Load(_ context.Context) (*Config, error) {
	log := slog.With("component", "config")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load .env file, continuing with process environment", "error", err)
	}

	cfg := &Config{
		Defaults: DefaultDefaults(),
	}

	var err error
	if cfg.Bus, err = loadBusConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	if cfg.Store, err = loadStoreConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	if cfg.Cache, err = loadCacheConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	if cfg.Vector, err = loadVectorConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	if cfg.ObjectStore, err = loadObjectStoreConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	if cfg.Redaction, err = loadRedactionConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	cfg.Providers = loadProviderConfigs()
	if cfg.Spend, err = loadSpendConfig(); err != nil {
		return nil, NewLoadError("environment", err)
	}
	cfg.ShadowMode = loadShadowModeConfig(cfg.Defaults)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("configuration loaded",
		"providers", len(cfg.Providers),
		"shadow_mode_default", cfg.ShadowMode.DefaultForNewTenants)

	return cfg, nil
}

// Validate runs struct-tag validation over every section of Config using
// go-playground/validator, matching the teacher's validator.go approach but
// scoped to environment-sourced settings instead of YAML agent graphs.
func Validate(cfg *Config) error {
	v := validator.New()

	sections := map[string]any{
		"defaults":     cfg.Defaults,
		"bus":          cfg.Bus,
		"store":        cfg.Store,
		"cache":        cfg.Cache,
		"vector":       cfg.Vector,
		"object_store": cfg.ObjectStore,
		"redaction":    cfg.Redaction,
		"spend":        cfg.Spend,
	}
	for name, section := range sections {
		if err := v.Struct(section); err != nil {
			return NewValidationError(name, err)
		}
	}
	for name, p := range cfg.Providers {
		if err := v.Struct(p); err != nil {
			return NewValidationError("providers."+name, err)
		}
	}
	return nil
}

func loadBusConfig() (BusConfig, error) {
	brokers := envCSV("ALUSKORT_BUS_BROKERS")
	if len(brokers) == 0 {
		return BusConfig{}, fmt.Errorf("%w: ALUSKORT_BUS_BROKERS", ErrMissingRequiredField)
	}
	return BusConfig{
		Brokers: brokers,
		GroupID: envString("ALUSKORT_BUS_GROUP_ID", "aluskort"),
	}, nil
}

func loadStoreConfig() (StoreConfig, error) {
	dsn := os.Getenv("ALUSKORT_STORE_DSN")
	if dsn == "" {
		return StoreConfig{}, fmt.Errorf("%w: ALUSKORT_STORE_DSN", ErrMissingRequiredField)
	}
	return StoreConfig{
		DSN:             dsn,
		MaxOpenConns:    envInt("ALUSKORT_STORE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    envInt("ALUSKORT_STORE_MAX_IDLE_CONNS", 5),
		StatementTimeMS: envInt("ALUSKORT_STORE_STATEMENT_TIMEOUT_MS", 5000),
	}, nil
}

func loadCacheConfig() (CacheConfig, error) {
	url := os.Getenv("ALUSKORT_CACHE_URL")
	if url == "" {
		return CacheConfig{}, fmt.Errorf("%w: ALUSKORT_CACHE_URL", ErrMissingRequiredField)
	}
	return CacheConfig{URL: url}, nil
}

func loadVectorConfig() (VectorConfig, error) {
	endpoint := os.Getenv("ALUSKORT_VECTOR_ENDPOINT")
	if endpoint == "" {
		return VectorConfig{}, fmt.Errorf("%w: ALUSKORT_VECTOR_ENDPOINT", ErrMissingRequiredField)
	}
	return VectorConfig{Endpoint: endpoint}, nil
}

func loadObjectStoreConfig() (ObjectStoreConfig, error) {
	endpoint := os.Getenv("ALUSKORT_OBJECT_STORE_ENDPOINT")
	bucket := os.Getenv("ALUSKORT_OBJECT_STORE_BUCKET")
	kmsKeyID := os.Getenv("ALUSKORT_KMS_KEY_ID")
	if endpoint == "" || bucket == "" || kmsKeyID == "" {
		return ObjectStoreConfig{}, fmt.Errorf("%w: ALUSKORT_OBJECT_STORE_ENDPOINT/ALUSKORT_OBJECT_STORE_BUCKET/ALUSKORT_KMS_KEY_ID", ErrMissingRequiredField)
	}
	return ObjectStoreConfig{Endpoint: endpoint, Bucket: bucket, KMSKeyID: kmsKeyID}, nil
}

func loadRedactionConfig() (RedactionConfig, error) {
	encoded := os.Getenv("ALUSKORT_PII_REDACTION_KEY")
	if encoded == "" {
		return RedactionConfig{}, fmt.Errorf("%w: ALUSKORT_PII_REDACTION_KEY", ErrMissingRequiredField)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return RedactionConfig{}, fmt.Errorf("%w: ALUSKORT_PII_REDACTION_KEY is not valid base64: %v", ErrInvalidValue, err)
	}
	return RedactionConfig{Key: key}, nil
}

// knownProviders lists the provider names the Context Gateway's
// PromptAdapter implementations recognize (§4.B "Provider-neutral
// adaptation"). Credentials are read per-provider so an operator can run
// with a subset configured.
var knownProviders = []string{"anthropic", "bedrock"}

func loadProviderConfigs() map[string]ProviderConfig {
	providers := make(map[string]ProviderConfig)
	for _, name := range knownProviders {
		envVar := "ALUSKORT_PROVIDER_" + strings.ToUpper(name) + "_API_KEY"
		if key := os.Getenv(envVar); key != "" {
			providers[name] = ProviderConfig{Name: name, APIKeyEnv: envVar, APIKey: key}
		}
	}
	return providers
}

func loadSpendConfig() (SpendConfig, error) {
	soft := envFloat("ALUSKORT_SPEND_MONTHLY_SOFT_CAP_USD", 8000)
	hard := envFloat("ALUSKORT_SPEND_MONTHLY_HARD_CAP_USD", 10000)
	return SpendConfig{MonthlySoftCapUSD: soft, MonthlyHardCapUSD: hard}, nil
}

func loadShadowModeConfig(d *Defaults) ShadowModeConfig {
	return ShadowModeConfig{
		DefaultForNewTenants:  envBool("ALUSKORT_SHADOW_MODE_DEFAULT", d.ShadowModeDefaultForNewTenants),
		GoLiveRequiresSignoff: envBool("ALUSKORT_SHADOW_GO_LIVE_REQUIRES_SIGNOFF", true),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envCSV(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid float env var, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("invalid bool env var, using fallback", "key", key, "value", raw, "fallback", fallback)
		return fallback
	}
	return v
}
