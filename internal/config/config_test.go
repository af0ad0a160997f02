package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FRESHDESK_DOMAIN", "acme.freshdesk.com")
	t.Setenv("FRESHDESK_API_KEY", "fd-test")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TIMEZONE", "UTC")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)

	cfg := LoadConfig()

	if cfg.FreshdeskDomain != "acme.freshdesk.com" {
		t.Fatalf("unexpected domain: %q", cfg.FreshdeskDomain)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("unexpected provider: %q", cfg.LLMProvider)
	}
	if cfg.CacheDir != "./data/feedbacks" {
		t.Fatalf("unexpected cache dir default: %q", cfg.CacheDir)
	}
	if cfg.DBPath != "./insightbot.db" {
		t.Fatalf("unexpected db path default: %q", cfg.DBPath)
	}
	if cfg.FetchMaxPages != 10 || cfg.FetchPageDelayMS != 500 {
		t.Fatalf("unexpected fetch defaults: pages=%d delay=%d", cfg.FetchMaxPages, cfg.FetchPageDelayMS)
	}
	if len(cfg.ResolvedStatuses) != 2 || cfg.FeedbackType != "Feedback" {
		t.Fatalf("unexpected filter defaults: %+v", cfg)
	}
	if cfg.MinClusterSize != 3 || cfg.LowConfidenceThreshold != 0.70 || cfg.CorrelationWindowDays != 14 {
		t.Fatalf("unexpected aggregation defaults: %+v", cfg)
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.SlackConfigured() {
		t.Fatal("slack should not be configured")
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
freshdesk_domain: "yaml.freshdesk.com"
freshdesk_api_key: "yaml-key"
llm_provider: "anthropic"
anthropic_api_key: "yaml-anthropic"
cache_dir: "./yaml-cache"
fetch_max_pages: 5
resolved_statuses: [5]
product_attributes: ["game_title"]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("FRESHDESK_API_KEY", "env-key")

	cfg := LoadConfig()

	if cfg.FreshdeskDomain != "yaml.freshdesk.com" {
		t.Fatalf("yaml value lost: %q", cfg.FreshdeskDomain)
	}
	if cfg.FreshdeskAPIKey != "env-key" {
		t.Fatalf("env override lost: %q", cfg.FreshdeskAPIKey)
	}
	if cfg.CacheDir != "./yaml-cache" || cfg.FetchMaxPages != 5 {
		t.Fatalf("yaml settings lost: %+v", cfg)
	}
	if len(cfg.ResolvedStatuses) != 1 || cfg.ResolvedStatuses[0] != 5 {
		t.Fatalf("resolved statuses: %v", cfg.ResolvedStatuses)
	}
	if len(cfg.ProductAttributes) != 1 || cfg.ProductAttributes[0] != "game_title" {
		t.Fatalf("product attributes: %v", cfg.ProductAttributes)
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	t.Setenv("X_STR", "value")
	s := "old"
	envOverride(&s, "X_STR")
	if s != "value" {
		t.Fatalf("envOverride: %q", s)
	}
	envOverride(&s, "X_STR_UNSET")
	if s != "value" {
		t.Fatalf("envOverride must keep prior value: %q", s)
	}

	t.Setenv("X_INT", "42")
	n := 1
	envOverrideInt(&n, "X_INT")
	if n != 42 {
		t.Fatalf("envOverrideInt: %d", n)
	}

	t.Setenv("X_FLOAT", "0.55")
	f := 0.1
	envOverrideFloat(&f, "X_FLOAT")
	if f != 0.55 {
		t.Fatalf("envOverrideFloat: %v", f)
	}
}

func TestDerivedDurations(t *testing.T) {
	cfg := Config{FetchPageDelayMS: 250, CorrelationWindowDays: 7}
	if cfg.PageDelay() != 250*time.Millisecond {
		t.Fatalf("page delay: %s", cfg.PageDelay())
	}
	if cfg.CorrelationWindow() != 7*24*time.Hour {
		t.Fatalf("correlation window: %s", cfg.CorrelationWindow())
	}
}
