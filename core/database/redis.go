package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/m3rciful/roombot/core/logger"
)

// ConnectRedis opens a Redis client and verifies it with a PING.
func ConnectRedis(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Ping(ctx).Err()
	took := time.Since(start)
	if err != nil {
		_ = client.Close()
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "redis.connect",
			slog.String("status", "fail"),
			slog.String("addr", cfg.Addr),
			slog.Int("db", cfg.DB),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "redis.connect",
		slog.String("status", "ok"),
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return client, nil
}
