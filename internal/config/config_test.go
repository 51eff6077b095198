// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

platform:
  base_url: "https://api.example.org"

providers:
  weather:
    base_url: "https://weather.example.org"
    api_key: "k"
  directions:
    base_url: "https://routes.example.org"

polling:
  timeout: "25s"
  backoff: "3s"

dispatch:
  workers: 4
  queue_size: 128
  dedupe_ttl: "5m"

bots:
  - token: "weather-token"
    feature: "weather"
  - token: "relay-token"
    feature: "relay"

alerts:
  times: ["08:00", "20:30"]
  pool_size: 2

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Polling.Timeout != 25*time.Second {
		t.Errorf("polling timeout = %v", cfg.Polling.Timeout)
	}
	if cfg.Polling.Backoff != 3*time.Second {
		t.Errorf("polling backoff = %v", cfg.Polling.Backoff)
	}
	if cfg.Dispatch.Workers != 4 || cfg.Dispatch.QueueSize != 128 {
		t.Errorf("dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Dispatch.DedupeTTL != 5*time.Minute {
		t.Errorf("dedupe ttl = %v", cfg.Dispatch.DedupeTTL)
	}
	if len(cfg.Bots) != 2 || cfg.Bots[1].Feature != "relay" {
		t.Errorf("bots = %+v", cfg.Bots)
	}
	if len(cfg.Alerts.Times) != 2 || cfg.Alerts.PoolSize != 2 {
		t.Errorf("alerts = %+v", cfg.Alerts)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
platform:
  base_url: "https://api.example.org"
bots:
  - token: "t"
    feature: "files"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Polling.Timeout != DefaultPollTimeout {
		t.Errorf("polling timeout = %v, want default", cfg.Polling.Timeout)
	}
	if cfg.Dispatch.Workers != DefaultWorkers {
		t.Errorf("workers = %d, want default", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.QueueSize != DefaultQueueSize {
		t.Errorf("queue size = %d, want default", cfg.Dispatch.QueueSize)
	}
	if cfg.Dispatch.DedupeTTL != DefaultDedupeTTL {
		t.Errorf("dedupe ttl = %v, want default", cfg.Dispatch.DedupeTTL)
	}
	if cfg.Alerts.PoolSize != DefaultAlertPoolSize {
		t.Errorf("alert pool = %d, want default", cfg.Alerts.PoolSize)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("CHATFLOW_TEST_TOKEN", "secret-token")

	configPath := writeConfig(t, `
database:
  path: "./test.db"
platform:
  base_url: "https://api.example.org"
bots:
  - token: "${CHATFLOW_TEST_TOKEN}"
    feature: "files"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bots[0].Token != "secret-token" {
		t.Errorf("token = %q, want expanded env value", cfg.Bots[0].Token)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
platform:
  base_url: "https://api.example.org"
polling:
  timeout: "soon"
bots:
  - token: "t"
    feature: "files"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "polling.timeout") {
		t.Fatalf("err = %v, want polling.timeout parse error", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database:  DatabaseConfig{Path: "./test.db"},
			Platform:  PlatformConfig{BaseURL: "https://api.example.org"},
			Providers: ProvidersConfig{Weather: WeatherProviderConfig{BaseURL: "https://weather.example.org"}},
			Bots:      []BotConfig{{Token: "t", Feature: "weather"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing platform url", func(c *Config) { c.Platform.BaseURL = "" }, "platform.base_url"},
		{"no bots", func(c *Config) { c.Bots = nil }, "at least one bot"},
		{"empty token", func(c *Config) { c.Bots[0].Token = "" }, "token"},
		{"unknown feature", func(c *Config) { c.Bots[0].Feature = "astrology" }, "feature"},
		{"duplicate token", func(c *Config) {
			c.Bots = append(c.Bots, BotConfig{Token: "t", Feature: "relay"})
		}, "duplicated"},
		{"bad alert time", func(c *Config) { c.Alerts.Times = []string{"25:00"} }, "HH:MM"},
		{"weather bot without provider", func(c *Config) {
			c.Providers.Weather.BaseURL = ""
		}, "providers.weather"},
		{"directions bot without provider", func(c *Config) {
			c.Bots[0].Feature = "directions"
		}, "providers.directions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidate_AlertTimes(t *testing.T) {
	cfg := &Config{
		Database:  DatabaseConfig{Path: "./test.db"},
		Platform:  PlatformConfig{BaseURL: "https://api.example.org"},
		Providers: ProvidersConfig{Weather: WeatherProviderConfig{BaseURL: "https://weather.example.org"}},
		Bots:      []BotConfig{{Token: "t", Feature: "weather"}},
		Alerts:    AlertsConfig{Times: []string{"00:00", "08:30", "23:59"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid times rejected: %v", err)
	}
}
