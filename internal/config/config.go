// Package config holds the roombot application configuration: the shared
// core sections plus storage, booking, knowledge-base and metrics settings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/roombot/core/config"
	coredatabase "github.com/m3rciful/roombot/core/database"
	"github.com/m3rciful/roombot/core/locale"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Knowledge-base backends.
const (
	KBNone     = "none"
	KBQnAMaker = "qnamaker"
	KBStatic   = "static"
)

// StorageConfig selects where conversation state lives.
type StorageConfig struct {
	Backend    string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	MemorySize int    `yaml:"memory_size"`
	// TTLHours expires idle conversations; 0 keeps them forever.
	TTLHours int `yaml:"ttl_hours" envconfig:"STORAGE_TTL_HOURS"`
}

// TTL returns the configured expiry as a duration.
func (s StorageConfig) TTL() time.Duration {
	return time.Duration(s.TTLHours) * time.Hour
}

// BookingConfig controls the booking dialog.
type BookingConfig struct {
	Locale   string `yaml:"locale" envconfig:"BOT_LOCALE"`
	Timezone string `yaml:"timezone" envconfig:"BOT_TIMEZONE"`
	// TurnTimeoutSeconds bounds store and knowledge-base calls per turn.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`
}

// Location resolves Timezone; it is validated by Normalize.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TurnTimeout returns the per-turn deadline.
func (b BookingConfig) TurnTimeout() time.Duration {
	return time.Duration(b.TurnTimeoutSeconds) * time.Second
}

// KBConfig configures the question-answering knowledge base.
type KBConfig struct {
	Backend         string `yaml:"backend" envconfig:"KB_BACKEND"`
	Endpoint        string `yaml:"endpoint" envconfig:"KB_ENDPOINT"`
	KnowledgeBaseID string `yaml:"kb_id" envconfig:"KB_ID"`
	EndpointKey     string `yaml:"endpoint_key" envconfig:"KB_ENDPOINT_KEY"`
	Top             int    `yaml:"top"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	StaticFile      string `yaml:"static_file" envconfig:"KB_STATIC_FILE"`
}

// Timeout returns the HTTP timeout for remote lookups.
func (k KBConfig) Timeout() time.Duration {
	return time.Duration(k.TimeoutSeconds) * time.Second
}

// MetricsConfig configures the Prometheus listener; empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// SenderConfig tunes the outbound message dispatcher.
type SenderConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
	// MaxDurationMS bounds the time spent on one reply batch, retries included.
	MaxDurationMS int `yaml:"max_duration_ms"`
}

// Config is the full roombot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config      `yaml:"database"`
	Redis    coredatabase.RedisConfig `yaml:"redis"`
	Storage  StorageConfig            `yaml:"storage"`
	Booking  BookingConfig            `yaml:"booking"`
	KB       KBConfig                 `yaml:"kb"`
	Metrics  MetricsConfig            `yaml:"metrics"`
	Sender   SenderConfig             `yaml:"sender"`
}

// CoreConfig exposes the shared core sections.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads configuration from a YAML file, applies environment overrides
// and normalizes the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applies environment overrides and normalizes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = StorageMemory
	case StorageMemory, StoragePostgres, StorageRedis:
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: memory, postgres, redis", cfg.Storage.Backend)
	}
	if cfg.Storage.MemorySize <= 0 {
		cfg.Storage.MemorySize = 10000
	}
	if cfg.Storage.TTLHours < 0 {
		return fmt.Errorf("storage.ttl_hours must be >= 0")
	}
	switch cfg.Storage.Backend {
	case StoragePostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for the postgres backend")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
	case StorageRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	}

	if strings.TrimSpace(cfg.Booking.Locale) == "" {
		cfg.Booking.Locale = locale.DefaultLanguage
	}
	if cfg.Booking.Timezone == "" {
		cfg.Booking.Timezone = "Asia/Bangkok"
	}
	if _, err := time.LoadLocation(cfg.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid booking.timezone %q: %w", cfg.Booking.Timezone, err)
	}
	if cfg.Booking.TurnTimeoutSeconds <= 0 {
		cfg.Booking.TurnTimeoutSeconds = 15
	}

	cfg.KB.Backend = strings.ToLower(strings.TrimSpace(cfg.KB.Backend))
	switch cfg.KB.Backend {
	case "":
		cfg.KB.Backend = KBNone
	case KBNone:
	case KBQnAMaker:
		if cfg.KB.Endpoint == "" || cfg.KB.KnowledgeBaseID == "" || cfg.KB.EndpointKey == "" {
			return fmt.Errorf("kb.endpoint, kb.kb_id and kb.endpoint_key are required for the qnamaker backend")
		}
	case KBStatic:
		if cfg.KB.StaticFile == "" {
			return fmt.Errorf("kb.static_file is required for the static backend")
		}
	default:
		return fmt.Errorf("invalid kb.backend %q; allowed: none, qnamaker, static", cfg.KB.Backend)
	}
	if cfg.KB.TimeoutSeconds <= 0 {
		cfg.KB.TimeoutSeconds = 10
	}

	if cfg.Sender.MaxRetries < 0 {
		return fmt.Errorf("sender.max_retries must be >= 0")
	}
	if cfg.Sender.MaxDurationMS < 0 {
		return fmt.Errorf("sender.max_duration_ms must be >= 0")
	}
	return nil
}
