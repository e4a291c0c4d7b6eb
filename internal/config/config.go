package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel          = "gpt-4o-mini"
	DefaultMaxTokens      = 600
	DefaultTemperature    = 0.8
	DefaultLLMTimeoutMs   = 20000
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 18600
	DefaultBusSize        = 100
	DefaultDecayFactor    = 0.98
	DefaultDecaySchedule  = "0 0 3 * * *"

	// Per-channel body limits, overridable in config.
	DefaultSMSLimit     = 160
	DefaultDMLimit      = 280
	DefaultEmailLimit   = 1200
	DefaultGenericLimit = 500
)

type Config struct {
	Organization string          `json:"organization"`
	Store        StoreConfig     `json:"store"`
	Provider     ProviderConfig  `json:"provider"`
	Channels     ChannelsConfig  `json:"channels"`
	Compose      ComposeConfig   `json:"compose"`
	Gateway      GatewayConfig   `json:"gateway"`
	Retention    RetentionConfig `json:"retention"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

// ProviderConfig points at an OpenAI-compatible chat-completion API.
// An empty APIKey disables the LLM entirely; composition then always
// uses the deterministic fallback.
type ProviderConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseUrl,omitempty"`
	Model          string `json:"model,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
	TimeoutMs      int    `json:"timeoutMs,omitempty"`
}

type ChannelsConfig struct {
	Email EmailConfig    `json:"email"`
	SMS   SMSConfig      `json:"sms"`
	DM    TelegramConfig `json:"dm"`
}

type EmailConfig struct {
	Enabled     bool   `json:"enabled"`
	FromAddress string `json:"fromAddress,omitempty"`
}

type SMSConfig struct {
	Enabled    bool   `json:"enabled"`
	FromNumber string `json:"fromNumber,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	Proxy   string `json:"proxy,omitempty"`
}

type ComposeConfig struct {
	Temperature   float64        `json:"temperature,omitempty"`
	ChannelLimits map[string]int `json:"channelLimits,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type RetentionConfig struct {
	Enabled     bool    `json:"enabled"`
	Schedule    string  `json:"schedule,omitempty"`
	DecayFactor float64 `json:"decayFactor,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Organization: "default",
		Store: StoreConfig{
			DBPath: filepath.Join(ConfigDir(), "neonhub.db"),
		},
		Provider: ProviderConfig{},
		Channels: ChannelsConfig{},
		Compose:  ComposeConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Retention: RetentionConfig{
			Enabled: true,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".neonhub")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return LoadConfigFrom(ConfigPath())
}

func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
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
	if org := os.Getenv("NEONHUB_ORG"); org != "" {
		cfg.Organization = org
	}
	if dbPath := os.Getenv("NEONHUB_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if key := os.Getenv("NEONHUB_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("NEONHUB_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("NEONHUB_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
	if token := os.Getenv("NEONHUB_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.DM.Token = token
	}
	if host := os.Getenv("NEONHUB_GATEWAY_HOST"); host != "" {
		cfg.Gateway.Host = host
	}
	if port := os.Getenv("NEONHUB_GATEWAY_PORT"); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = parsed
		}
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	return SaveConfigTo(ConfigPath(), cfg)
}

func SaveConfigTo(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) Model() string {
	if c.Provider.Model != "" {
		return c.Provider.Model
	}
	return DefaultModel
}

func (c *Config) EmbeddingModel() string {
	if c.Provider.EmbeddingModel != "" {
		return c.Provider.EmbeddingModel
	}
	return DefaultEmbeddingModel
}

func (c *Config) MaxTokens() int {
	if c.Provider.MaxTokens > 0 {
		return c.Provider.MaxTokens
	}
	return DefaultMaxTokens
}

func (c *Config) Temperature() float64 {
	if c.Compose.Temperature > 0 {
		return c.Compose.Temperature
	}
	return DefaultTemperature
}

// ChannelLimit returns the max body length for a channel, falling back
// to the built-in defaults for unknown channels.
func (c *Config) ChannelLimit(channel string) int {
	if limit, ok := c.Compose.ChannelLimits[channel]; ok && limit > 0 {
		return limit
	}
	switch channel {
	case "sms":
		return DefaultSMSLimit
	case "dm":
		return DefaultDMLimit
	case "email":
		return DefaultEmailLimit
	default:
		return DefaultGenericLimit
	}
}

func (c *Config) DecayFactor() float64 {
	if c.Retention.DecayFactor > 0 && c.Retention.DecayFactor <= 1 {
		return c.Retention.DecayFactor
	}
	return DefaultDecayFactor
}

func (c *Config) RetentionSchedule() string {
	if c.Retention.Schedule != "" {
		return c.Retention.Schedule
	}
	return DefaultDecaySchedule
}
