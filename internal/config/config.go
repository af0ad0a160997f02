package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	FreshdeskDomain string `yaml:"freshdesk_domain"`
	FreshdeskAPIKey string `yaml:"freshdesk_api_key"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMMaxRetries   int    `yaml:"llm_max_retries"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	CacheDir        string `yaml:"cache_dir"`
	ReportOutputDir string `yaml:"report_output_dir"`
	DBPath          string `yaml:"db_path"`
	GameContextPath string `yaml:"game_context_path"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	FetchMaxPages        int `yaml:"fetch_max_pages"`
	FetchPageDelayMS     int `yaml:"fetch_page_delay_ms"`
	FetchMaxRetries      int `yaml:"fetch_max_retries"`
	DefaultDateRangeDays int `yaml:"default_date_range_days"`

	ResolvedStatuses   []int    `yaml:"resolved_statuses"`
	FeedbackType       string   `yaml:"feedback_type"`
	ProductAttributes  []string `yaml:"product_attributes"`
	PlatformAttributes []string `yaml:"platform_attributes"`

	MinClusterSize         int     `yaml:"min_cluster_size"`
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
	CorrelationWindowDays  int     `yaml:"correlation_window_days"`
	TopIssuesLimit         int     `yaml:"top_issues_limit"`

	AnalysisSchedule           string `yaml:"analysis_schedule"`
	Timezone                   string `yaml:"timezone"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	// .env is optional; real env vars still win below.
	_ = godotenv.Load()

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.FreshdeskDomain, "FRESHDESK_DOMAIN")
	envOverride(&cfg.FreshdeskAPIKey, "FRESHDESK_API_KEY")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverrideInt(&cfg.LLMMaxRetries, "LLM_MAX_RETRIES")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.CacheDir, "CACHE_DIR")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.GameContextPath, "GAME_CONTEXT_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverrideInt(&cfg.FetchMaxPages, "FETCH_MAX_PAGES")
	envOverrideInt(&cfg.FetchPageDelayMS, "FETCH_PAGE_DELAY_MS")
	envOverrideInt(&cfg.FetchMaxRetries, "FETCH_MAX_RETRIES")
	envOverrideInt(&cfg.DefaultDateRangeDays, "DEFAULT_DATE_RANGE_DAYS")
	envOverrideInt(&cfg.MinClusterSize, "MIN_CLUSTER_SIZE")
	envOverrideFloat(&cfg.LowConfidenceThreshold, "LOW_CONFIDENCE_THRESHOLD")
	envOverrideInt(&cfg.CorrelationWindowDays, "CORRELATION_WINDOW_DAYS")
	envOverrideInt(&cfg.TopIssuesLimit, "TOP_ISSUES_LIMIT")
	envOverride(&cfg.AnalysisSchedule, "ANALYSIS_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "./data/feedbacks"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./insightbot.db"
	}
	if cfg.GameContextPath == "" {
		cfg.GameContextPath = "./context/game_features.yaml"
	}
	if cfg.FetchMaxPages == 0 {
		cfg.FetchMaxPages = 10
	}
	if cfg.FetchPageDelayMS == 0 {
		cfg.FetchPageDelayMS = 500
	}
	if cfg.FetchMaxRetries == 0 {
		cfg.FetchMaxRetries = 3
	}
	if cfg.DefaultDateRangeDays == 0 {
		cfg.DefaultDateRangeDays = 30
	}
	if len(cfg.ResolvedStatuses) == 0 {
		cfg.ResolvedStatuses = []int{4, 5}
	}
	if cfg.FeedbackType == "" {
		cfg.FeedbackType = "Feedback"
	}
	if len(cfg.ProductAttributes) == 0 {
		cfg.ProductAttributes = []string{"game"}
	}
	if len(cfg.PlatformAttributes) == 0 {
		cfg.PlatformAttributes = []string{"os", "platform"}
	}
	if cfg.MinClusterSize == 0 {
		cfg.MinClusterSize = 3
	}
	if cfg.LowConfidenceThreshold == 0 {
		cfg.LowConfidenceThreshold = 0.70
	}
	if cfg.CorrelationWindowDays == 0 {
		cfg.CorrelationWindowDays = 14
	}
	if cfg.TopIssuesLimit == 0 {
		cfg.TopIssuesLimit = 10
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	required := map[string]string{
		"freshdesk_domain":  cfg.FreshdeskDomain,
		"freshdesk_api_key": cfg.FreshdeskAPIKey,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.SlackBotToken != "" && cfg.ReportChannelID == "" {
		log.Fatalf("slack_bot_token is set but report_channel_id is not configured")
	}
	if cfg.SlackBotToken == "" {
		log.Printf("WARNING: Slack is not configured. Reports stay on disk only.")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.FetchMaxPages < 1 {
		log.Fatalf("invalid fetch_max_pages '%d': must be >= 1", cfg.FetchMaxPages)
	}
	if cfg.DefaultDateRangeDays < 1 {
		log.Fatalf("invalid default_date_range_days '%d': must be >= 1", cfg.DefaultDateRangeDays)
	}
	if cfg.LowConfidenceThreshold < 0 || cfg.LowConfidenceThreshold > 1 {
		log.Fatalf("invalid low_confidence_threshold '%f': must be between 0 and 1", cfg.LowConfidenceThreshold)
	}
	if cfg.MinClusterSize < 1 {
		log.Fatalf("invalid min_cluster_size '%d': must be >= 1", cfg.MinClusterSize)
	}
	if cfg.CorrelationWindowDays < 1 {
		log.Fatalf("invalid correlation_window_days '%d': must be >= 1", cfg.CorrelationWindowDays)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}

	return cfg
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.ReportChannelID != ""
}

func (c Config) PageDelay() time.Duration {
	return time.Duration(c.FetchPageDelayMS) * time.Millisecond
}

func (c Config) CorrelationWindow() time.Duration {
	return time.Duration(c.CorrelationWindowDays) * 24 * time.Hour
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
