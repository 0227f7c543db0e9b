// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Validate reports problems wrapped with ErrInvalidConfig.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Entity is the squadron name or tag to track.
	Entity string `koanf:"entity"`

	// DataDir holds snapshot.json, events.json, last_session.json and archive/.
	DataDir string `koanf:"data_dir"`

	// PollIntervalSec is the nominal poll period; PollJitter the +/- fraction around it.
	PollIntervalSec int     `koanf:"poll_interval_sec"`
	PollJitter      float64 `koanf:"poll_jitter"`

	// GracePeriodSec is how long a closed window's session stays mutable.
	GracePeriodSec int `koanf:"grace_period_sec"`

	// EarlyStartHour and LateStartHour are the UTC start hours of the two
	// daily windows; WindowHours is their length.
	EarlyStartHour int `koanf:"early_start_hour"`
	LateStartHour  int `koanf:"late_start_hour"`
	WindowHours    int `koanf:"window_hours"`

	// Ranked listing upstream.
	ListingURL         string  `koanf:"listing_url"`
	ListingPageCap     int     `koanf:"listing_page_cap"`
	ListingPageSize    int     `koanf:"listing_page_size"`
	ListingCacheTTLSec int     `koanf:"listing_cache_ttl_sec"`
	ListingRPS         float64 `koanf:"listing_rps"`
	ListingTimeoutMS   int     `koanf:"listing_timeout_ms"`

	// Detail page upstream. DetailURL may contain {entity}.
	DetailURL         string `koanf:"detail_url"`
	DetailTimeoutMS   int    `koanf:"detail_timeout_ms"`
	DetailScoreAnchor string `koanf:"detail_score_anchor"`
	MinPlausibleScore int64  `koanf:"min_plausible_score"`

	// BreakerFailures trips a source's circuit after this many consecutive failures.
	BreakerFailures int `koanf:"breaker_failures"`
	// BreakerOpenSec is how long a tripped circuit stays open.
	BreakerOpenSec int `koanf:"breaker_open_sec"`

	// Summary delivery.
	Publisher         string `koanf:"publisher"` // log, redis, webhook
	NoticeQueueSize   int    `koanf:"notice_queue_size"`
	NoticeWorkers     int    `koanf:"notice_workers"`
	RedisAddr         string `koanf:"redis_addr"`
	RedisPassword     string `koanf:"redis_password"`
	RedisChannel      string `koanf:"redis_channel"`
	RedisSummaryKey   string `koanf:"redis_summary_key"`
	WebhookURL        string `koanf:"webhook_url"`
	WebhookTimeoutMS  int    `koanf:"webhook_timeout_ms"`
	MaxRosterLimit    int    `koanf:"max_roster_limit"`
	MaxEventsLimit    int    `koanf:"max_events_limit"`
	DedupeSize        int    `koanf:"dedupe_size"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		DataDir:            "data",
		PollIntervalSec:    60,
		PollJitter:         0.15,
		GracePeriodSec:     900,
		EarlyStartHour:     1,
		LateStartHour:      14,
		WindowHours:        8,
		ListingURL:         "https://warthunder.com/en/community/getclansleaderboard/dif/_hist/page/{page}/sort/dr_era5",
		ListingPageCap:     50,
		ListingPageSize:    20,
		ListingCacheTTLSec: 30,
		ListingRPS:         2,
		ListingTimeoutMS:   10_000,
		DetailURL:          "https://warthunder.com/en/community/claninfo/{entity}",
		DetailTimeoutMS:    10_000,
		DetailScoreAnchor:  "Squadron rating",
		MinPlausibleScore:  100,
		BreakerFailures:    5,
		BreakerOpenSec:     120,
		Publisher:          "log",
		NoticeQueueSize:    256,
		NoticeWorkers:      1,
		RedisChannel:       "squadwatch:summaries",
		RedisSummaryKey:    "squadwatch:summary",
		WebhookTimeoutMS:   10_000,
		MaxRosterLimit:     128,
		MaxEventsLimit:     1000,
		DedupeSize:         50_000,
	}
}

// PollInterval returns the nominal poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// GracePeriod returns the finalization delay.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSec) * time.Second
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.Entity) == "":
		return fmt.Errorf("%w: entity must not be empty", ErrInvalidConfig)
	case c.DataDir == "":
		return fmt.Errorf("%w: data_dir must not be empty", ErrInvalidConfig)
	case c.PollIntervalSec <= 0:
		return fmt.Errorf("%w: poll_interval_sec must be positive", ErrInvalidConfig)
	case c.PollJitter < 0 || c.PollJitter >= 1:
		return fmt.Errorf("%w: poll_jitter must be in [0,1)", ErrInvalidConfig)
	case c.GracePeriodSec < 0:
		return fmt.Errorf("%w: grace_period_sec must not be negative", ErrInvalidConfig)
	case c.ListingPageCap <= 0:
		return fmt.Errorf("%w: listing_page_cap must be positive", ErrInvalidConfig)
	}
	switch c.Publisher {
	case "log":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr is required for the redis publisher", ErrInvalidConfig)
		}
	case "webhook":
		if c.WebhookURL == "" {
			return fmt.Errorf("%w: webhook_url is required for the webhook publisher", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown publisher %q", ErrInvalidConfig, c.Publisher)
	}
	return nil
}
