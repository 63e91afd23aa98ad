// Package config holds the configuration sections shared by every bot built
// on the core: Telegram transport, logging and rate limiting. Applications
// embed Config inline and load the file themselves.
package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// RunModeWebhook receives updates through an HTTPS webhook.
	RunModeWebhook = "webhook"
	// RunModeLongpoll receives updates with getUpdates long polling.
	RunModeLongpoll = "longpoll"
)

// Update kinds accepted by rate_limit.exclude_updates.
const (
	UpdateCallback    = "callback"
	UpdateMessage     = "message"
	UpdateInlineQuery = "inline_query"
)

// TelegramConfig holds the bot credentials and update source.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds is how long getUpdates may hold a request; 0 -> 10.
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	// DropPendingUpdates discards updates queued while the bot was offline.
	DropPendingUpdates bool `yaml:"drop_pending_updates" envconfig:"TELEGRAM_DROP_PENDING_UPDATES"`
}

// LongPollTimeout returns the effective long poll timeout.
func (t TelegramConfig) LongPollTimeout() int {
	if t.LongPollTimeoutSeconds <= 0 {
		return 10
	}
	return t.LongPollTimeoutSeconds
}

// WebhookConfig specifies the webhook listener.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
	// SecretToken is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET_TOKEN"`
}

// Addr is the host:port the webhook server binds to.
func (w WebhookConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Listen, w.Port)
}

// LoggingConfig defines the log handler and its file outputs.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Stacks      string `yaml:"stacks"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Rotation; zero values keep lumberjack defaults.
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
	// Profile is "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig is a per-user token bucket. ExcludeUpdates lists update
// kinds that bypass it.
type RateLimitConfig struct {
	IntervalMS int `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	// Burst allows short bursts above the steady rate; 0 -> 1.
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Excludes reports whether kind bypasses the limiter.
func (r RateLimitConfig) Excludes(kind string) bool {
	for _, v := range r.ExcludeUpdates {
		if v == kind {
			return true
		}
	}
	return false
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Normalize validates the core sections and fills defaults in place.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Telegram.normalize(); err != nil {
		return err
	}
	if cfg.Telegram.RunMode == RunModeWebhook {
		if err := cfg.Webhook.validate(); err != nil {
			return err
		}
	}
	return cfg.RateLimit.normalize()
}

func (t *TelegramConfig) normalize() error {
	if strings.TrimSpace(t.Token) == "" {
		return errors.New("telegram token is required")
	}
	switch mode := strings.ToLower(strings.TrimSpace(t.RunMode)); mode {
	case "", "polling", RunModeLongpoll:
		t.RunMode = RunModeLongpoll
	case RunModeWebhook:
		t.RunMode = mode
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", t.RunMode)
	}
	if t.LongPollTimeoutSeconds < 0 {
		return errors.New("telegram.longpoll_timeout_seconds must be >= 0")
	}
	return nil
}

func (w *WebhookConfig) validate() error {
	if strings.TrimSpace(w.URL) == "" {
		return errors.New("webhook.url is required when telegram.run_mode is 'webhook'")
	}
	if strings.TrimSpace(w.Listen) == "" {
		return errors.New("webhook.listen is required when telegram.run_mode is 'webhook'")
	}
	if w.Port <= 0 {
		return errors.New("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
	}
	return nil
}

func (r *RateLimitConfig) normalize() error {
	if r.IntervalMS < 0 {
		return errors.New("rate_limit.interval_ms must be >= 0")
	}
	if r.Burst < 0 {
		return errors.New("rate_limit.burst must be >= 0")
	}
	if r.Burst == 0 {
		r.Burst = 1
	}
	kept := r.ExcludeUpdates[:0]
	for _, v := range r.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		switch key {
		case "":
			continue
		case UpdateCallback, UpdateMessage, UpdateInlineQuery:
			kept = append(kept, key)
		default:
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, inline_query", v)
		}
	}
	r.ExcludeUpdates = kept
	return nil
}
