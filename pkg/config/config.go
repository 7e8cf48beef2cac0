// Package config loads and validates the pipewatch configuration from
// YAML with environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// envPrefix is the prefix for environment variable overrides, e.g.
	// PIPEWATCH_GITHUB_TOKEN overrides github.token.
	envPrefix = "PIPEWATCH"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default HTTP listen address.
	DefaultListen = ":8000"

	// DefaultLookbackDays is the default analytics window.
	DefaultLookbackDays = 30

	// DefaultRefreshInterval is the default live-dashboard refresh
	// cadence.
	DefaultRefreshInterval = "30s"

	// DefaultPollInterval is the default monitor poll cadence.
	DefaultPollInterval = "60s"

	// DefaultRunsPerPoll is how many runs each monitor pass fetches.
	DefaultRunsPerPoll = 20

	// DefaultDigestWindow is how many recent runs the digest covers.
	DefaultDigestWindow = 30

	// DefaultSQLitePath is the default notification database location.
	DefaultSQLitePath = "./pipewatch.db"
)

// Config is the root configuration for pipewatch.
type Config struct {
	LogLevel  string          `yaml:"log_level" mapstructure:"log_level"`
	GitHub    GitHubConfig    `yaml:"github" mapstructure:"github"`
	Analytics AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Slack     SlackConfig     `yaml:"slack" mapstructure:"slack"`
}

// GitHubConfig identifies the repository whose workflow runs are
// analyzed.
type GitHubConfig struct {
	Owner      string `yaml:"owner" mapstructure:"owner"`
	Repo       string `yaml:"repo" mapstructure:"repo"`
	Token      string `yaml:"token,omitempty" mapstructure:"token"`
	APIBaseURL string `yaml:"api_base_url,omitempty" mapstructure:"api_base_url"`
}

// AnalyticsConfig tunes metric semantics.
type AnalyticsConfig struct {
	CancelledAsFailure bool `yaml:"cancelled_as_failure" mapstructure:"cancelled_as_failure"`
	LookbackDays       int  `yaml:"lookback_days,omitempty" mapstructure:"lookback_days"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen          string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins     []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	RateLimit       RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
	RefreshInterval string          `yaml:"refresh_interval,omitempty" mapstructure:"refresh_interval"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute,omitempty" mapstructure:"requests_per_minute"`
}

// DatabaseConfig contains notification database settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`
}

// MonitorConfig contains poll job settings.
type MonitorConfig struct {
	PollInterval string `yaml:"poll_interval,omitempty" mapstructure:"poll_interval"`
	RunsPerPoll  int    `yaml:"runs_per_poll,omitempty" mapstructure:"runs_per_poll"`
	DigestWindow int    `yaml:"digest_window,omitempty" mapstructure:"digest_window"`
	DigestEvery  int    `yaml:"digest_every,omitempty" mapstructure:"digest_every"`
}

// SlackConfig contains alert delivery settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty" mapstructure:"webhook_url"`
}

// Load reads the configuration file at path, applies PIPEWATCH_*
// environment variable overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// AutomaticEnv alone does not surface env-only keys through
	// Unmarshal; bind every key seen in the file explicitly.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Dump renders the effective configuration as YAML with secrets
// redacted.
func (c *Config) Dump() (string, error) {
	redacted := *c

	if redacted.GitHub.Token != "" {
		redacted.GitHub.Token = "<redacted>"
	}

	if redacted.Slack.WebhookURL != "" {
		redacted.Slack.WebhookURL = "<redacted>"
	}

	if redacted.Database.Postgres.Password != "" {
		redacted.Database.Postgres.Password = "<redacted>"
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	return string(out), nil
}

// applyDefaults sets default values for unspecified configuration
// options.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Server.RefreshInterval == "" {
		c.Server.RefreshInterval = DefaultRefreshInterval
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute == 0 {
		c.Server.RateLimit.RequestsPerMinute = 120
	}

	if c.Analytics.LookbackDays == 0 {
		c.Analytics.LookbackDays = DefaultLookbackDays
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}

	if c.Monitor.PollInterval == "" {
		c.Monitor.PollInterval = DefaultPollInterval
	}

	if c.Monitor.RunsPerPoll == 0 {
		c.Monitor.RunsPerPoll = DefaultRunsPerPoll
	}

	if c.Monitor.DigestWindow == 0 {
		c.Monitor.DigestWindow = DefaultDigestWindow
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.GitHub.Owner == "" {
		return fmt.Errorf("github.owner is required")
	}

	if c.GitHub.Repo == "" {
		return fmt.Errorf("github.repo is required")
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, err := time.ParseDuration(c.Server.RefreshInterval); err != nil {
		return fmt.Errorf("invalid server.refresh_interval: %w", err)
	}

	if _, err := time.ParseDuration(c.Monitor.PollInterval); err != nil {
		return fmt.Errorf("invalid monitor.poll_interval: %w", err)
	}

	if c.Monitor.RunsPerPoll < 0 || c.Monitor.RunsPerPoll > 500 {
		return fmt.Errorf("monitor.runs_per_poll must be between 0 and 500")
	}

	return nil
}

// RefreshIntervalDuration returns the parsed dashboard refresh cadence.
func (c *ServerConfig) RefreshIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.RefreshInterval)

	return d
}

// PollIntervalDuration returns the parsed monitor poll cadence.
func (c *MonitorConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)

	return d
}
