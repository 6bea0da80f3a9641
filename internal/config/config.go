package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultBaseIntervalMinutes = 3
	DefaultMaxIntervalMinutes  = 60
	DefaultIntervalIncrementS  = 30

	DefaultSimilarityThreshold      = 0.85
	DefaultMaxHistorySize           = 500
	DefaultSimilarityRetentionHours = 48

	DefaultFetchTimeoutS = 12
	DefaultNeoDailyLimit = 100

	DefaultControlHost = "127.0.0.1"
	DefaultControlPort = 18420

	DefaultBufSize = 100

	DefaultEmbeddingBatchSize = 16
	DefaultEmbeddingTimeoutMs = 15000
)

type Config struct {
	DataDir   string          `json:"dataDir"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Sources   SourcesConfig   `json:"sources"`
	Channels  ChannelsConfig  `json:"channels"`
	Embedding EmbeddingConfig `json:"embedding"`
	Control   ControlConfig   `json:"control"`
	Denylist  []string        `json:"denylist,omitempty"`
}

type SchedulerConfig struct {
	BaseIntervalMinutes int      `json:"baseIntervalMinutes"`
	MaxIntervalMinutes  int      `json:"maxIntervalMinutes"`
	IncrementSeconds    int      `json:"incrementSeconds"`
	SweepSchedules      []string `json:"sweepSchedules,omitempty"` // cron expressions for forced full sweeps
}

type SourcesConfig struct {
	Social      SocialConfig      `json:"social"`
	Legislative LegislativeConfig `json:"legislative"`
	Neo         NeoConfig         `json:"neo"`
	Market      MarketConfig      `json:"market"`
}

// SourceSettings holds the runtime-tunable knobs every source carries.
type SourceSettings struct {
	Enabled                  bool    `json:"enabled"`
	Weight                   float64 `json:"weight"`
	RetentionHours           int     `json:"retentionHours"`
	LookbackHours            int     `json:"lookbackHours"`
	TimeoutSeconds           int     `json:"timeoutSeconds,omitempty"`
	SimilarityEnabled        bool    `json:"similarityEnabled,omitempty"`
	SimilarityThreshold      float64 `json:"similarityThreshold,omitempty"`
	MaxHistorySize           int     `json:"maxHistorySize,omitempty"`
	SimilarityRetentionHours int     `json:"similarityRetentionHours,omitempty"`
}

type SocialConfig struct {
	SourceSettings
	Subreddit string `json:"subreddit,omitempty"`
	Author    string `json:"author,omitempty"` // "any" or a specific poster
	BaseURL   string `json:"baseUrl,omitempty"`
}

type LegislativeConfig struct {
	SourceSettings
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type NeoConfig struct {
	SourceSettings
	APIKey     string `json:"apiKey,omitempty"`
	BaseURL    string `json:"baseUrl,omitempty"`
	DailyLimit int    `json:"dailyLimit,omitempty"`
}

type MarketConfig struct {
	SourceSettings
	APIKey   string `json:"apiKey,omitempty"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Category string `json:"category,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Webhook  WebhookConfig  `json:"webhook"`
}

type TelegramConfig struct {
	Enabled bool    `json:"enabled"`
	Token   string  `json:"token"`
	ChatIDs []int64 `json:"chatIds"`
	Proxy   string  `json:"proxy,omitempty"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider,omitempty"` // "api" (default) or "ollama"
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Model     string `json:"model,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	TimeoutMs int    `json:"timeoutMs,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
}

type ControlConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

func DefaultConfig() *Config {
	return &Config{
		DataDir: filepath.Join(ConfigDir(), "data"),
		Scheduler: SchedulerConfig{
			BaseIntervalMinutes: DefaultBaseIntervalMinutes,
			MaxIntervalMinutes:  DefaultMaxIntervalMinutes,
			IncrementSeconds:    DefaultIntervalIncrementS,
		},
		Sources: SourcesConfig{
			Social: SocialConfig{
				SourceSettings: SourceSettings{
					Enabled:        true,
					Weight:         3,
					RetentionHours: 24,
					LookbackHours:  24,
					TimeoutSeconds: DefaultFetchTimeoutS,
				},
				Subreddit: "news",
				Author:    "any",
			},
			Legislative: LegislativeConfig{
				SourceSettings: SourceSettings{
					Enabled:        false,
					Weight:         1,
					RetentionHours: 168,
					LookbackHours:  24,
					TimeoutSeconds: DefaultFetchTimeoutS,
				},
			},
			Neo: NeoConfig{
				SourceSettings: SourceSettings{
					Enabled:        false,
					Weight:         1,
					RetentionHours: 168,
					LookbackHours:  24,
					TimeoutSeconds: DefaultFetchTimeoutS,
				},
				DailyLimit: DefaultNeoDailyLimit,
			},
			Market: MarketConfig{
				SourceSettings: SourceSettings{
					Enabled:                  true,
					Weight:                   2,
					RetentionHours:           24,
					LookbackHours:            24,
					TimeoutSeconds:           DefaultFetchTimeoutS,
					SimilarityEnabled:        true,
					SimilarityThreshold:      DefaultSimilarityThreshold,
					MaxHistorySize:           DefaultMaxHistorySize,
					SimilarityRetentionHours: DefaultSimilarityRetentionHours,
				},
				Category: "general",
			},
		},
		Channels: ChannelsConfig{},
		Control: ControlConfig{
			Enabled: true,
			Host:    DefaultControlHost,
			Port:    DefaultControlPort,
		},
		Denylist: []string{"onlyfans", "gofundme"},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".newswatch")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("NEWSWATCH_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if url := os.Getenv("NEWSWATCH_WEBHOOK_URL"); url != "" {
		cfg.Channels.Webhook.URL = url
	}
	if key := os.Getenv("NEWSWATCH_CONGRESS_API_KEY"); key != "" {
		cfg.Sources.Legislative.APIKey = key
	}
	if key := os.Getenv("NEWSWATCH_NASA_API_KEY"); key != "" {
		cfg.Sources.Neo.APIKey = key
	}
	if key := os.Getenv("NEWSWATCH_MARKET_API_KEY"); key != "" {
		cfg.Sources.Market.APIKey = key
	}
	if key := os.Getenv("FINNHUB_API_KEY"); key != "" && cfg.Sources.Market.APIKey == "" {
		cfg.Sources.Market.APIKey = key
	}
	if key := os.Getenv("NEWSWATCH_EMBEDDING_API_KEY"); key != "" {
		cfg.Embedding.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = key
	}
	if url := os.Getenv("NEWSWATCH_EMBEDDING_BASE_URL"); url != "" {
		cfg.Embedding.BaseURL = url
	}
	if dir := os.Getenv("NEWSWATCH_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if port := os.Getenv("NEWSWATCH_CONTROL_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Control.Port = parsed
		}
	}

	return cfg, nil
}

// SaveConfig writes the configuration back to disk; the control surface
// calls this after runtime tuning so adjustments survive restarts.
func SaveConfig(cfg *Config) error {
	if err := os.MkdirAll(ConfigDir(), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
