package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/m3rciful/roombot/core/logger"
)

// RunMigrations applies every pending up migration found in
// cfg.MigrationsPath.
func RunMigrations(cfg Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := pingOnce(ctx, cfg); err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}

	dir, err := resolveMigrationsPath(cfg.MigrationsPath)
	if err != nil {
		return err
	}
	set := loadMigrationSet(dir)
	preview, truncated := logger.SummarizeStrings(set.names(), 6)
	logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "migrate.resolve",
		slog.String("path", dir),
		slog.Int("files_total", len(set)),
		slog.String("files_preview", preview),
		slog.Bool("files_truncated", truncated),
	)

	m, err := migrate.New("file://"+dir, cfg.URL())
	if err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.migrate",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := logger.Took(start)
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "migrate.apply",
			slog.String("status", "fail"),
			slog.Duration("duration", took),
			slog.String("err", upErr.Error()),
		)
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	to, _, _ := m.Version()

	applied := set.between(uint64(from), uint64(to))
	preview, _ = logger.SummarizeStrings(applied, 6)
	logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "migrate.summary",
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", preview),
		slog.Duration("duration", took),
	)
	return nil
}

func pingOnce(ctx context.Context, cfg Config) error {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	defer db.Close()
	return waitReady(ctx, db)
}

func resolveMigrationsPath(path string) (string, error) {
	if path == "" {
		path = "migrations"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}
	return abs, nil
}

type migrationFile struct {
	name    string
	version uint64
}

// migrationSet is the *.up.sql files of a directory in version order.
type migrationSet []migrationFile

func loadMigrationSet(dir string) migrationSet {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var set migrationSet
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		set = append(set, migrationFile{name: e.Name(), version: parseVersion(e.Name())})
	}
	sort.Slice(set, func(i, j int) bool { return set[i].version < set[j].version })
	return set
}

func (s migrationSet) names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.name
	}
	return out
}

// between lists the files with from < version <= to.
func (s migrationSet) between(from, to uint64) []string {
	var out []string
	for _, f := range s {
		if f.version > from && f.version <= to {
			out = append(out, f.name)
		}
	}
	return out
}

func parseVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}
