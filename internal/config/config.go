package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort       = 8080
	DefaultRetentionTTL   = 24 * time.Hour
	DefaultStreamInterval = 5 * time.Second
	DefaultMaxRuns        = 500
	DefaultSigma          = 6.0
	DefaultLevelCount     = 2
	DefaultAlertCooldown  = 15 * time.Minute
)

// Config is the top-level server configuration parsed from config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API, WebSocket hub and /metrics listen on.
	HTTPPort int `yaml:"http_port"`

	// Auth configures API-key authentication on the REST surface.
	Auth AuthConfig `yaml:"auth"`

	// Retention controls how long a per-analyte evaluation stays live in the
	// in-memory store without being refreshed.
	Retention RetentionConfig `yaml:"retention"`

	// Stream controls the WebSocket broadcast cadence.
	Stream StreamConfig `yaml:"stream"`

	// Limits bounds evaluation input size as a defensive measure.
	Limits LimitsConfig `yaml:"limits"`

	// Defaults are applied when an evaluation request omits sigma or the
	// control-level count.
	Defaults DefaultsConfig `yaml:"defaults"`

	// Alerts holds reject-notification settings and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls REST client authentication.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// RetentionConfig controls in-memory evaluation retention.
type RetentionConfig struct {
	// TTL is how long an analyte's evaluation remains in the store after its
	// last update. Default: 24h.
	TTL time.Duration `yaml:"ttl"`
}

// StreamConfig controls the WebSocket hub.
type StreamConfig struct {
	// Interval is how often the hub broadcasts the live evaluation snapshot
	// to connected clients. Default: 5s.
	Interval time.Duration `yaml:"interval"`
}

// LimitsConfig bounds evaluation inputs.
type LimitsConfig struct {
	// MaxRuns is the largest number of runs accepted in one evaluation
	// request. Default: 500.
	MaxRuns int `yaml:"max_runs"`
}

// DefaultsConfig supplies per-request defaults.
type DefaultsConfig struct {
	// Sigma is the method sigma assumed when a request carries none.
	Sigma float64 `yaml:"sigma"`

	// LevelCount is the control-level count assumed when a request carries
	// none. Must be 2 or 3.
	LevelCount int `yaml:"level_count"`
}

// AlertsConfig holds reject-notification settings.
type AlertsConfig struct {
	// Cooldown suppresses repeat notifications for the same analyte for this
	// duration after one fires. Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	// Webhooks lists the notification delivery targets.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the config file at path.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:  DefaultHTTPPort,
			Retention: RetentionConfig{TTL: DefaultRetentionTTL},
			Stream:    StreamConfig{Interval: DefaultStreamInterval},
			Limits:    LimitsConfig{MaxRuns: DefaultMaxRuns},
			Defaults: DefaultsConfig{
				Sigma:      DefaultSigma,
				LevelCount: DefaultLevelCount,
			},
			Alerts: AlertsConfig{Cooldown: DefaultAlertCooldown},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Retention.TTL < 0 {
		return fmt.Errorf("server.retention.ttl must not be negative")
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	if s.Limits.MaxRuns <= 0 {
		return fmt.Errorf("server.limits.max_runs must be positive")
	}
	if s.Defaults.LevelCount != 2 && s.Defaults.LevelCount != 3 {
		return fmt.Errorf("server.defaults.level_count must be 2 or 3, got %d", s.Defaults.LevelCount)
	}
	if s.Defaults.Sigma < 0 {
		return fmt.Errorf("server.defaults.sigma must not be negative")
	}
	if s.Alerts.Cooldown < 0 {
		return fmt.Errorf("server.alerts.cooldown must not be negative")
	}
	for i, wh := range s.Alerts.Webhooks {
		switch wh.Type {
		case "teams", "slack", "pagerduty", "http":
		default:
			return fmt.Errorf("server.alerts.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}
