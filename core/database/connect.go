package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/roombot/core/logger"
)

const (
	defaultPoolSize = 5
	readyTimeout    = 30 * time.Second
	readyInterval   = 2 * time.Second
)

// Connect waits for Postgres to accept connections, then returns a pooled
// handle sized by cfg.MaxConnections.
func Connect(cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	attrs := []slog.Attr{
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
	}
	start := time.Now()
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err == nil {
		err = waitReady(ctx, db.DB)
	}
	took := logger.Took(start)
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect", append(attrs,
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if pool <= 0 {
		pool = defaultPoolSize
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect", append(attrs,
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", took),
	)...)
	return db, nil
}

// waitReady pings db every readyInterval until it answers or ctx ends. The
// last ping error is returned on timeout.
func waitReady(ctx context.Context, db *sql.DB) error {
	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			return nil
		}
		logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait",
			slog.String("status", "retry"),
			slog.Int("attempts", attempt),
			slog.String("err", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not ready after %d attempts: %w", attempt, err)
		case <-ticker.C:
		}
	}
}
