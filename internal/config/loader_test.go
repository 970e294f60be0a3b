package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8000" {
		t.Errorf("expected port 8000, got %s", cfg.Server.Port)
	}
	if cfg.Selector.MaxFiles != 30 {
		t.Errorf("expected selector.max_files 30, got %d", cfg.Selector.MaxFiles)
	}
	if cfg.Fetcher.MaxFileBytes != 5000 {
		t.Errorf("expected fetcher.max_file_bytes 5000, got %d", cfg.Fetcher.MaxFileBytes)
	}
	if cfg.LLM.MaxTokens != 10000 {
		t.Errorf("expected llm.max_tokens 10000, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Cache.TTL != 7*24*time.Hour {
		t.Errorf("expected cache ttl 7d, got %v", cfg.Cache.TTL)
	}
	if cfg.Rate.RequestsPerDay != 20 {
		t.Errorf("expected 20 requests/day, got %v", cfg.Rate.RequestsPerDay)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origins: "http://example.com"
llm:
  provider: gemini
  model: gemini-2.5-flash
context:
  budget_bytes: 80000
cache:
  backend: nats
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("unexpected llm section %+v", cfg.LLM)
	}
	if cfg.Context.BudgetBytes != 80000 {
		t.Errorf("expected budget 80000, got %d", cfg.Context.BudgetBytes)
	}
	if cfg.Cache.Backend != "nats" {
		t.Errorf("expected nats backend, got %s", cfg.Cache.Backend)
	}
	// Unchanged fields keep defaults
	if cfg.Context.TreeSummaryBytes != 20000 {
		t.Errorf("expected default tree summary bytes, got %d", cfg.Context.TreeSummaryBytes)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	if err := loadYAML(&cfg, "/nonexistent/path.yaml"); err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("REPOEXPLAINER_PORT", "7070")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("AI_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("REPOEXPLAINER_FETCHER_WORKERS", "8")
	t.Setenv("REPOEXPLAINER_CACHE_TTL", "1h")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("expected github token, got %q", cfg.GitHub.Token)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.APIKey != "g-key" {
		t.Errorf("unexpected llm section %+v", cfg.LLM)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Fetcher.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Fetcher.Workers)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("expected cache ttl 1h, got %v", cfg.Cache.TTL)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
}

func TestProviderEnv(t *testing.T) {
	tests := []struct {
		provider string
		env      map[string]string
		want     LLM
	}{
		{
			provider: "claude",
			env:      map[string]string{"ANTHROPIC_API_KEY": "a"},
			want:     LLM{Provider: "anthropic", APIKey: "a"},
		},
		{
			provider: "openai",
			env:      map[string]string{"OPENAI_API_KEY": "o"},
			want:     LLM{Provider: "openai", APIKey: "o"},
		},
		{
			provider: "litellm",
			env:      map[string]string{"LITELLM_MASTER_KEY": "m", "LITELLM_URL": "http://proxy:4000"},
			want:     LLM{Provider: "litellm", APIKey: "m", BaseURL: "http://proxy:4000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			llm := LLM{Provider: tt.provider}
			loadProviderEnv(&llm)
			if !reflect.DeepEqual(llm, tt.want) {
				t.Errorf("got %+v, want %+v", llm, tt.want)
			}
		})
	}
}

func TestProviderEnvKeepsExplicitKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env")
	llm := LLM{Provider: "anthropic", APIKey: "explicit"}
	loadProviderEnv(&llm)
	if llm.APIKey != "explicit" {
		t.Errorf("explicit key overwritten: %q", llm.APIKey)
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()
	t.Setenv("REPOEXPLAINER_FETCHER_WORKERS", "many")
	t.Setenv("REPOEXPLAINER_CACHE_TTL", "soon")
	loadEnv(&cfg)
	if cfg.Fetcher.Workers != 4 {
		t.Errorf("invalid int should be ignored, got %d", cfg.Fetcher.Workers)
	}
	if cfg.Cache.TTL != 7*24*time.Hour {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Cache.TTL)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty provider",
			modify: func(c *Config) { c.LLM.Provider = "" },
			errMsg: "llm.provider is required",
		},
		{
			name:   "zero workers",
			modify: func(c *Config) { c.Fetcher.Workers = 0 },
			errMsg: "fetcher.workers must be >= 1",
		},
		{
			name:   "budget below tree summary",
			modify: func(c *Config) { c.Context.BudgetBytes = c.Context.TreeSummaryBytes },
			errMsg: "context.budget_bytes must exceed context.tree_summary_bytes by more than the 19 byte tree header",
		},
		{
			name: "budget leaves no room beside the header",
			modify: func(c *Config) {
				c.Context.TreeSummaryBytes = 1
				c.Context.BudgetBytes = 20
			},
			errMsg: "context.budget_bytes must exceed context.tree_summary_bytes by more than the 19 byte tree header",
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.Cache.Backend = "redis" },
			errMsg: `cache.backend "redis" is not one of memory, nats, postgres`,
		},
		{
			name: "postgres without dsn",
			modify: func(c *Config) {
				c.Cache.Backend = "postgres"
				c.Postgres.DSN = ""
			},
			errMsg: "postgres.dsn is required for cache.backend=postgres",
		},
		{
			name:   "zero breaker failures",
			modify: func(c *Config) { c.Breaker.MaxFailures = 0 },
			errMsg: "breaker.max_failures must be >= 1",
		},
		{
			name:   "zero rate burst",
			modify: func(c *Config) { c.Rate.Burst = 0 },
			errMsg: "rate.burst must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := validate(&cfg)
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.errMsg)
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := Defaults()
	if err := validate(&cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestCORSOriginList(t *testing.T) {
	s := Server{CORSOrigins: " http://a.test, ,http://b.test "}
	got := s.CORSOriginList()
	want := []string{"http://a.test", "http://b.test"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
