package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3rciful/roombot/core/logger"
)

// Store loads and saves conversation records by conversation key.
type Store interface {
	// Load returns ErrNotFound when the key has no record.
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// LoadOrNew returns the stored record for key or a fresh idle record. A
// record that no longer decodes is replaced by a fresh one so the
// conversation can continue; the next save overwrites it.
func LoadOrNew(ctx context.Context, s Store, key string) (Record, error) {
	start := time.Now()
	rec, err := s.Load(ctx, key)
	switch {
	case err == nil:
		logStore(ctx, slog.LevelDebug, "store.load", key, start, nil, slog.String("cache", "hit"))
		return rec, nil
	case errors.Is(err, ErrNotFound):
		logStore(ctx, slog.LevelDebug, "store.load", key, start, nil, slog.String("cache", "miss"))
		return NewRecord(), nil
	case errors.Is(err, ErrCorrupt):
		logStore(ctx, slog.LevelWarn, "store.load", key, start, err, slog.String("cache", "miss"))
		return NewRecord(), nil
	default:
		logStore(ctx, slog.LevelError, "store.load", key, start, err)
		return Record{}, err
	}
}

// Put stamps the record and saves it.
func Put(ctx context.Context, s Store, key string, rec Record) (Record, error) {
	start := time.Now()
	rec.UpdatedAt = time.Now().UTC()
	if rec.ID == "" {
		rec.ID = NewRecord().ID
	}
	if err := s.Save(ctx, key, rec); err != nil {
		logStore(ctx, slog.LevelError, "store.save", key, start, err)
		return Record{}, err
	}
	logStore(ctx, slog.LevelDebug, "store.save", key, start, nil,
		slog.String("session_id", rec.ID),
		slog.String("mode", string(rec.Mode)),
	)
	return rec, nil
}

func logStore(ctx context.Context, level slog.Level, event, key string, start time.Time, err error, extra ...slog.Attr) {
	log := logger.Store
	if log == nil {
		return
	}
	if level < slog.LevelInfo && !logger.ShouldSampleDebug() {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.String("status", logger.Status(err)),
		slog.String("session_key", key),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	attrs = append(attrs, extra...)
	log.LogAttrs(ctx, level, event, attrs...)
}
