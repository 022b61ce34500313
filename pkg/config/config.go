// Package config holds the process-wide moniof configuration. It is loaded
// once before serving begins and treated as read-only afterwards; there is no
// runtime reconfiguration.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/srotas-space/moniof/internal/aggregate"
	"github.com/srotas-space/moniof/internal/track"
)

// Config collects the thresholds and switches shared by all requests.
type Config struct {
	// SlackWebhook is the optional webhook URL for alert delivery. Empty
	// disables delivery; the alerting policy still runs for logs and headers.
	SlackWebhook string `mapstructure:"slack_webhook"`

	// SlowDBThreshold flags any single DB call taking at least this long.
	// Zero disables the check. The boundary is inclusive.
	SlowDBThreshold time.Duration `mapstructure:"slow_db_threshold"`

	// LowDBThreshold flags suspiciously fast DB calls (instrumentation or
	// cache sanity check). Zero disables the check.
	LowDBThreshold time.Duration `mapstructure:"low_db_threshold"`

	// LogEachDBEvent logs every DB command completion at debug level.
	LogEachDBEvent bool `mapstructure:"log_each_db_event"`

	// NPlusOneThreshold is the repeat count at which a key counts as an N+1
	// candidate within one request.
	NPlusOneThreshold int `mapstructure:"n_plus_one_trigger_count"`

	// MaxTotalQueries warns when a single request issues more DB calls than
	// this. Zero disables the check.
	MaxTotalQueries int `mapstructure:"max_total_queries"`

	// AddResponseHeaders controls the x-moniof-* response headers.
	AddResponseHeaders bool `mapstructure:"add_response_headers"`

	// LogWarnings controls the per-request warning logs at finalization.
	LogWarnings bool `mapstructure:"log_warnings"`

	// StaleAfter bounds how long an aborted request may keep its context in
	// the registry before the sweeper drops it.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// Default returns the configuration used when nothing is supplied.
func Default() *Config {
	return &Config{
		NPlusOneThreshold:  aggregate.DefaultTrigger,
		MaxTotalQueries:    60,
		AddResponseHeaders: true,
		LogWarnings:        true,
		StaleAfter:         track.DefaultStaleAfter,
	}
}

// Load reads configuration from an optional config.yaml in path plus
// MONIOF_* environment variables, with environment taking precedence.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("slack_webhook", def.SlackWebhook)
	v.SetDefault("slow_db_threshold", def.SlowDBThreshold)
	v.SetDefault("low_db_threshold", def.LowDBThreshold)
	v.SetDefault("log_each_db_event", def.LogEachDBEvent)
	v.SetDefault("n_plus_one_trigger_count", def.NPlusOneThreshold)
	v.SetDefault("max_total_queries", def.MaxTotalQueries)
	v.SetDefault("add_response_headers", def.AddResponseHeaders)
	v.SetDefault("log_warnings", def.LogWarnings)
	v.SetDefault("stale_after", def.StaleAfter)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("moniof")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate catches misconfiguration once at startup rather than per request.
func (c *Config) Validate() error {
	if c.SlackWebhook != "" {
		u, err := url.Parse(c.SlackWebhook)
		if err != nil {
			return fmt.Errorf("invalid slack webhook url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid slack webhook url %q: scheme must be http or https", c.SlackWebhook)
		}
	}
	if c.NPlusOneThreshold < 0 {
		return fmt.Errorf("n_plus_one_trigger_count must not be negative, got %d", c.NPlusOneThreshold)
	}
	return nil
}
