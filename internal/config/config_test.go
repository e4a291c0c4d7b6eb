package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Organization != "default" {
		t.Fatalf("unexpected organization %q", cfg.Organization)
	}
	if cfg.Gateway.Port != DefaultPort {
		t.Fatalf("unexpected port %d", cfg.Gateway.Port)
	}
	if !cfg.Retention.Enabled {
		t.Fatal("expected retention enabled by default")
	}
	if cfg.Model() != DefaultModel {
		t.Fatalf("unexpected model %q", cfg.Model())
	}
	if cfg.MaxTokens() != DefaultMaxTokens {
		t.Fatalf("unexpected max tokens %d", cfg.MaxTokens())
	}
}

func TestLoadConfigFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Organization != "default" {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfigFromRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{nope"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfigFrom(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.Organization = "acme"
	cfg.Provider.Model = "gpt-4o"
	cfg.Channels.Email.Enabled = true
	cfg.Compose.ChannelLimits = map[string]int{"sms": 120}

	if err := SaveConfigTo(path, cfg); err != nil {
		t.Fatalf("SaveConfigTo error: %v", err)
	}

	loaded, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if loaded.Organization != "acme" {
		t.Fatalf("organization lost: %q", loaded.Organization)
	}
	if loaded.Model() != "gpt-4o" {
		t.Fatalf("model lost: %q", loaded.Model())
	}
	if !loaded.Channels.Email.Enabled {
		t.Fatal("channel flag lost")
	}
	if loaded.ChannelLimit("sms") != 120 {
		t.Fatalf("channel limit lost: %d", loaded.ChannelLimit("sms"))
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	t.Setenv("NEONHUB_ORG", "env-org")
	t.Setenv("NEONHUB_API_KEY", "sk-env")
	t.Setenv("NEONHUB_GATEWAY_PORT", "9999")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Organization != "env-org" {
		t.Fatalf("expected env org, got %q", cfg.Organization)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Fatalf("NEONHUB_API_KEY must beat OPENAI_API_KEY, got %q", cfg.Provider.APIKey)
	}
	if cfg.Gateway.Port != 9999 {
		t.Fatalf("expected env port, got %d", cfg.Gateway.Port)
	}
}

func TestOpenAIKeyFallback(t *testing.T) {
	t.Setenv("NEONHUB_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("LoadConfigFrom error: %v", err)
	}
	if cfg.Provider.APIKey != "sk-openai" {
		t.Fatalf("expected OPENAI_API_KEY fallback, got %q", cfg.Provider.APIKey)
	}
}

func TestChannelLimit(t *testing.T) {
	cfg := DefaultConfig()

	tests := map[string]int{
		"sms":   DefaultSMSLimit,
		"dm":    DefaultDMLimit,
		"email": DefaultEmailLimit,
		"post":  DefaultGenericLimit,
		"other": DefaultGenericLimit,
	}
	for channel, want := range tests {
		if got := cfg.ChannelLimit(channel); got != want {
			t.Fatalf("ChannelLimit(%q) = %d, want %d", channel, got, want)
		}
	}

	cfg.Compose.ChannelLimits = map[string]int{"sms": 70}
	if got := cfg.ChannelLimit("sms"); got != 70 {
		t.Fatalf("expected override, got %d", got)
	}
}
