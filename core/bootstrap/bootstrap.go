package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/roombot/core/config"
	coredatabase "github.com/m3rciful/roombot/core/database"
	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/session"
)

// Storage backends accepted by Options.Backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Redis    coredatabase.RedisConfig

	// Backend selects the conversation store; empty -> memory.
	Backend    string
	MemorySize int
	TTL        time.Duration

	LoggerInit   func(*coreconfig.Config) error
	Connect      func(coredatabase.Config) (*sqlx.DB, error)
	Migrate      func(coredatabase.Config) error
	ConnectRedis func(coredatabase.RedisConfig) (*redis.Client, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB and Redis are nil unless the selected backend needs them.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Store session.Store
}

// Close releases the connections held by r.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger and the conversation store backend. The
// postgres backend connects and applies migrations; redis connects and pings.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendMemory
	}

	res := &Result{}
	switch backend {
	case BackendMemory:
		res.Store = session.NewMemoryStore(opts.MemorySize, opts.TTL)

	case BackendPostgres:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		db, err := connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}
		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		res.DB = db
		res.Store = session.NewPostgresStore(db, opts.TTL)

	case BackendRedis:
		connect := opts.ConnectRedis
		if connect == nil {
			connect = coredatabase.ConnectRedis
		}
		client, err := connect(opts.Redis)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
		}
		res.Redis = client
		res.Store = session.NewRedisStore(client, opts.TTL)

	default:
		return nil, fmt.Errorf("bootstrap: unknown storage backend %q", opts.Backend)
	}

	logger.LogEvent(logger.Background(), logger.Store, slog.LevelInfo, "store.ready",
		slog.String("status", "ok"),
		slog.String("backend", backend),
		slog.Int64("ttl_ms", opts.TTL.Milliseconds()),
	)
	return res, nil
}
