package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaoNguyen09/repo-explainer/internal/domain/repo"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "repoexplainer.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "REPOEXPLAINER_PORT")
	setString(&cfg.Server.CORSOrigins, "CORS_ORIGINS")
	setDuration(&cfg.Server.RequestTimeout, "REPOEXPLAINER_REQUEST_TIMEOUT")
	setString(&cfg.Server.Timezone, "TZ")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Level, "REPOEXPLAINER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "REPOEXPLAINER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "REPOEXPLAINER_LOG_ASYNC")

	// Source host
	setString(&cfg.GitHub.APIURL, "REPOEXPLAINER_GITHUB_API_URL")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setDuration(&cfg.GitHub.Timeout, "REPOEXPLAINER_GITHUB_TIMEOUT")
	setInt(&cfg.GitHub.MaxConcurrent, "REPOEXPLAINER_GITHUB_MAX_CONCURRENT")
	setDuration(&cfg.GitHub.RetryDelay, "REPOEXPLAINER_GITHUB_RETRY_DELAY")

	// LLM
	setString(&cfg.LLM.Provider, "AI_PROVIDER")
	setString(&cfg.LLM.Provider, "REPOEXPLAINER_LLM_PROVIDER")
	setString(&cfg.LLM.Model, "MODEL")
	setString(&cfg.LLM.Model, "REPOEXPLAINER_LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "REPOEXPLAINER_LLM_BASE_URL")
	setString(&cfg.LLM.APIKey, "REPOEXPLAINER_LLM_API_KEY")
	setInt(&cfg.LLM.MaxTokens, "REPOEXPLAINER_LLM_MAX_TOKENS")
	setDuration(&cfg.LLM.Timeout, "REPOEXPLAINER_LLM_TIMEOUT")
	setDuration(&cfg.LLM.RetryDelay, "REPOEXPLAINER_LLM_RETRY_DELAY")
	loadProviderEnv(&cfg.LLM)

	// Pipeline budgets
	setInt(&cfg.Selector.MaxFiles, "REPOEXPLAINER_SELECTOR_MAX_FILES")
	setInt(&cfg.Selector.MaxTokens, "REPOEXPLAINER_SELECTOR_MAX_TOKENS")
	setInt(&cfg.Selector.MaxListingBytes, "REPOEXPLAINER_SELECTOR_MAX_LISTING_BYTES")
	setInt(&cfg.Fetcher.Workers, "REPOEXPLAINER_FETCHER_WORKERS")
	setInt64(&cfg.Fetcher.MaxFileBytes, "REPOEXPLAINER_FETCHER_MAX_FILE_BYTES")
	setInt(&cfg.Context.BudgetBytes, "REPOEXPLAINER_CONTEXT_BUDGET_BYTES")
	setInt(&cfg.Context.TreeSummaryBytes, "REPOEXPLAINER_CONTEXT_TREE_SUMMARY_BYTES")
	setInt(&cfg.Context.TreeDepth, "REPOEXPLAINER_CONTEXT_TREE_DEPTH")
	setInt(&cfg.Explain.MaxTreeEntries, "REPOEXPLAINER_MAX_TREE_ENTRIES")
	setInt(&cfg.Explain.MaxInstructionsBytes, "REPOEXPLAINER_MAX_INSTRUCTIONS_BYTES")

	// Cache
	setString(&cfg.Cache.Backend, "REPOEXPLAINER_CACHE_BACKEND")
	setInt64(&cfg.Cache.L1MaxSizeMB, "REPOEXPLAINER_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "REPOEXPLAINER_CACHE_TTL")
	setDuration(&cfg.Cache.CleanupInterval, "REPOEXPLAINER_CACHE_CLEANUP_INTERVAL")
	setString(&cfg.Cache.NATSBucket, "REPOEXPLAINER_CACHE_NATS_BUCKET")
	setString(&cfg.Cache.CredentialSecret, "REPOEXPLAINER_CACHE_CREDENTIAL_SECRET")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "REPOEXPLAINER_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "REPOEXPLAINER_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "REPOEXPLAINER_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "REPOEXPLAINER_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "REPOEXPLAINER_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")

	setInt(&cfg.Breaker.MaxFailures, "REPOEXPLAINER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "REPOEXPLAINER_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerDay, "REPOEXPLAINER_RATE_PER_DAY")
	setInt(&cfg.Rate.Burst, "REPOEXPLAINER_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "REPOEXPLAINER_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "REPOEXPLAINER_RATE_MAX_IDLE_TIME")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "OTEL_EXPORTER_OTLP_INSECURE")
}

// loadProviderEnv fills the API key and base URL from the conventional
// per-provider variables when they were not set explicitly.
func loadProviderEnv(llm *LLM) {
	switch llm.Provider {
	case "anthropic", "claude":
		llm.Provider = "anthropic"
		setIfEmpty(&llm.APIKey, "ANTHROPIC_API_KEY")
	case "gemini":
		setIfEmpty(&llm.APIKey, "GEMINI_API_KEY")
	case "openai":
		setIfEmpty(&llm.APIKey, "OPENAI_API_KEY")
	case "litellm":
		setIfEmpty(&llm.APIKey, "LITELLM_MASTER_KEY")
		setIfEmpty(&llm.BaseURL, "LITELLM_URL")
	}
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.GitHub.APIURL == "" {
		return errors.New("github.api_url is required")
	}
	if cfg.GitHub.MaxConcurrent < 1 {
		return errors.New("github.max_concurrent must be >= 1")
	}
	if cfg.LLM.Provider == "" {
		return errors.New("llm.provider is required")
	}
	if cfg.LLM.MaxTokens < 1 {
		return errors.New("llm.max_tokens must be >= 1")
	}
	if cfg.Selector.MaxFiles < 1 {
		return errors.New("selector.max_files must be >= 1")
	}
	if cfg.Selector.MaxTokens < 1 {
		return errors.New("selector.max_tokens must be >= 1")
	}
	if cfg.Fetcher.Workers < 1 {
		return errors.New("fetcher.workers must be >= 1")
	}
	if cfg.Fetcher.MaxFileBytes < 1 {
		return errors.New("fetcher.max_file_bytes must be >= 1")
	}
	if cfg.Context.TreeSummaryBytes < 1 {
		return errors.New("context.tree_summary_bytes must be >= 1")
	}
	if cfg.Context.BudgetBytes < cfg.Context.TreeSummaryBytes+len(repo.TreeHeader)+1 {
		return fmt.Errorf("context.budget_bytes must exceed context.tree_summary_bytes by more than the %d byte tree header", len(repo.TreeHeader))
	}
	if cfg.Explain.MaxTreeEntries < 1 {
		return errors.New("explain.max_tree_entries must be >= 1")
	}
	switch cfg.Cache.Backend {
	case "memory":
	case "nats":
		if cfg.NATS.URL == "" {
			return errors.New("nats.url is required for cache.backend=nats")
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for cache.backend=postgres")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	default:
		return fmt.Errorf("cache.backend %q is not one of memory, nats, postgres", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Rate.RequestsPerDay <= 0 {
		return errors.New("rate.requests_per_day must be > 0")
	}
	return nil
}

func setIfEmpty(dst *string, key string) {
	if *dst == "" {
		setString(dst, key)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
