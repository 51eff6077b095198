// ABOUTME: Configuration loading and parsing for chatflow
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chatflow configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Platform  PlatformConfig  `yaml:"platform"`
	Providers ProvidersConfig `yaml:"providers"`
	Polling   PollingConfig   `yaml:"polling"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Bots      []BotConfig     `yaml:"bots"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PlatformConfig points at the messaging platform HTTP API.
type PlatformConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig points at the external data collaborators.
type ProvidersConfig struct {
	Weather    WeatherProviderConfig    `yaml:"weather"`
	Directions DirectionsProviderConfig `yaml:"directions"`
}

// WeatherProviderConfig configures the weather data API.
type WeatherProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// DirectionsProviderConfig configures the routing API.
type DirectionsProviderConfig struct {
	BaseURL string `yaml:"base_url"`
}

// PollingConfig holds the event-pull timing configuration.
type PollingConfig struct {
	Timeout time.Duration `yaml:"-"`
	Backoff time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
	BackoffRaw string `yaml:"backoff"`
}

// DispatchConfig sizes the worker pool handling events.
type DispatchConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`

	DedupeTTL     time.Duration `yaml:"-"`
	DedupeTTLRaw  string        `yaml:"dedupe_ttl"`
	DedupeMaxSize int           `yaml:"dedupe_max_size"`
}

// BotConfig binds one bot token to the feature it serves.
type BotConfig struct {
	Token   string `yaml:"token"`
	Feature string `yaml:"feature"`
}

// AlertsConfig holds the scheduled push job configuration. Times are
// "HH:MM" wall-clock values; an empty list disables the job.
type AlertsConfig struct {
	Times    []string `yaml:"times"`
	PoolSize int      `yaml:"pool_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the file leaves a field unset.
const (
	DefaultPollTimeout   = 30 * time.Second
	DefaultPollBackoff   = 2 * time.Second
	DefaultWorkers       = 8
	DefaultQueueSize     = 256
	DefaultDedupeTTL     = 10 * time.Minute
	DefaultDedupeMaxSize = 10000
	DefaultAlertPoolSize = 4
)

// Feature names a bot may be bound to.
var knownFeatures = map[string]bool{
	"weather":    true,
	"directions": true,
	"files":      true,
	"relay":      true,
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. An unset variable becomes an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Polling.Timeout == 0 {
		c.Polling.Timeout = DefaultPollTimeout
	}
	if c.Polling.Backoff == 0 {
		c.Polling.Backoff = DefaultPollBackoff
	}
	if c.Dispatch.Workers == 0 {
		c.Dispatch.Workers = DefaultWorkers
	}
	if c.Dispatch.QueueSize == 0 {
		c.Dispatch.QueueSize = DefaultQueueSize
	}
	if c.Dispatch.DedupeTTL == 0 {
		c.Dispatch.DedupeTTL = DefaultDedupeTTL
	}
	if c.Dispatch.DedupeMaxSize == 0 {
		c.Dispatch.DedupeMaxSize = DefaultDedupeMaxSize
	}
	if c.Alerts.PoolSize == 0 {
		c.Alerts.PoolSize = DefaultAlertPoolSize
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if len(c.Bots) == 0 {
		return fmt.Errorf("at least one bot is required")
	}

	seen := make(map[string]bool)
	for i, bot := range c.Bots {
		if bot.Token == "" {
			return fmt.Errorf("bots[%d].token is required", i)
		}
		if seen[bot.Token] {
			return fmt.Errorf("bots[%d].token is duplicated", i)
		}
		seen[bot.Token] = true
		if !knownFeatures[bot.Feature] {
			return fmt.Errorf("bots[%d].feature %q is unknown", i, bot.Feature)
		}
	}

	for _, bot := range c.Bots {
		switch bot.Feature {
		case "weather":
			if c.Providers.Weather.BaseURL == "" {
				return fmt.Errorf("providers.weather.base_url is required for a weather bot")
			}
		case "directions":
			if c.Providers.Directions.BaseURL == "" {
				return fmt.Errorf("providers.directions.base_url is required for a directions bot")
			}
		}
	}

	for _, at := range c.Alerts.Times {
		if !timeOfDayPattern.MatchString(at) {
			return fmt.Errorf("alerts.times entry %q is not HH:MM", at)
		}
	}

	return nil
}

var timeOfDayPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Polling.TimeoutRaw != "" {
		cfg.Polling.Timeout, err = time.ParseDuration(cfg.Polling.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing polling.timeout %q: %w", cfg.Polling.TimeoutRaw, err)
		}
	}

	if cfg.Polling.BackoffRaw != "" {
		cfg.Polling.Backoff, err = time.ParseDuration(cfg.Polling.BackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing polling.backoff %q: %w", cfg.Polling.BackoffRaw, err)
		}
	}

	if cfg.Dispatch.DedupeTTLRaw != "" {
		cfg.Dispatch.DedupeTTL, err = time.ParseDuration(cfg.Dispatch.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dispatch.dedupe_ttl %q: %w", cfg.Dispatch.DedupeTTLRaw, err)
		}
	}

	return nil
}
