package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	AdminUserID      int64  `env:"ADMIN_USER"`

	// LLM settings
	LLMProvider      LLMProvider   `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL"`
	OpenAIModel      string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string        `env:"YANDEX_FOLDER_ID"`
	LLMTimeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Storage
	DataFilePath      string `env:"DATA_FILE_PATH" envDefault:"data/messages.json"`
	WordListsFilePath string `env:"WORDLISTS_FILE_PATH" envDefault:"data/wordlists.yaml"`

	// Digest
	DigestHour     int    `env:"DIGEST_HOUR" envDefault:"13"`
	DigestMinute   int    `env:"DIGEST_MINUTE" envDefault:"0"`
	DigestTimezone string `env:"DIGEST_TIMEZONE" envDefault:"Europe/Kyiv"`
	KeywordsCount  int    `env:"KEYWORDS_COUNT" envDefault:"5"`

	// Transport
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"15s"`

	// Metrics listener, disabled when empty
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

// Validate checks the credentials of the selected provider and the digest schedule.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderYandex:
		if c.YandexOAuthToken == "" || c.YandexFolderID == "" {
			return fmt.Errorf("YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID are required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown llm provider: %s", c.LLMProvider)
	}
	if c.DigestHour < 0 || c.DigestHour > 23 {
		return fmt.Errorf("DIGEST_HOUR out of range: %d", c.DigestHour)
	}
	if c.DigestMinute < 0 || c.DigestMinute > 59 {
		return fmt.Errorf("DIGEST_MINUTE out of range: %d", c.DigestMinute)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.KeywordsCount <= 0 {
		c.KeywordsCount = 5
	}
	return nil
}

// Location resolves DigestTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DigestTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DIGEST_TIMEZONE %q: %w", c.DigestTimezone, err)
	}
	return loc, nil
}
