// Package logger is the process-wide structured logger: a slog handler that
// writes flat, ordered lines through an async writer to stdout and optional
// rotating files.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/m3rciful/roombot/core/buildinfo"
	coreconfig "github.com/m3rciful/roombot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	sinks   []*asyncWriter
	closers []io.Closer

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(1, 50)
	traceAll     bool

	componentsMu sync.RWMutex
	components   = map[string]*slog.Logger{}

	// L is the root logger. It is nil until InitLogger runs.
	L *slog.Logger

	// Component loggers, set by InitLogger.
	DB         *slog.Logger
	TG         *slog.Logger
	MIG        *slog.Logger
	TWire      *slog.Logger
	Store      *slog.Logger
	SVCBooking *slog.Logger
	SVCFAQ     *slog.Logger
)

// settings is the logging section resolved to concrete values.
type settings struct {
	level   slog.Level
	format  logFormat
	order   []string
	stacks  bool
	sample  [2]int
	profile string
}

func resolve(cfg coreconfig.LoggingConfig) settings {
	s := settings{
		level:   parseLevel(cfg.Level),
		format:  formatJSON,
		order:   parseKeyOrder(cfg.KeysOrder),
		stacks:  isTruthy(cfg.Stacks),
		sample:  [2]int{1, 50},
		profile: strings.ToLower(strings.TrimSpace(cfg.Profile)),
	}
	if s.profile == "" {
		s.profile = "prod"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if spec := strings.TrimSpace(cfg.DebugSample); spec != "" {
		num, den := parseRatioSpec(spec)
		s.sample = [2]int{num, den}
	}
	return s
}

// InitLogger installs the root logger and the component loggers. Calls after
// the first are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		if cfg != nil {
			lc = cfg.Logging
		}
		s := resolve(lc)
		levelVar.Set(s.level)
		debugSampler.Set(s.sample[0], s.sample[1])
		traceAll = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		main, errs, err := openFiles(lc)
		if err != nil {
			initErr = err
			return
		}
		hc := handlerConfig{
			level:    &levelVar,
			writer:   newAsyncWriter(append([]io.Writer{os.Stdout}, main...), 64*1024),
			format:   s.format,
			keyOrder: s.order,
			stacks:   s.stacks,
		}
		sinks = append(sinks, hc.writer)
		if len(errs) > 0 {
			hc.errWriter = newAsyncWriter(errs, 16*1024)
			sinks = append(sinks, hc.errWriter)
		}

		L = slog.New(newStructuredHandler(hc))
		slog.SetDefault(L)

		DB = Component("db")
		TG = Component("tg")
		MIG = Component("db.migrate")
		TWire = Component("tg.wire")
		Store = Component("store")
		SVCBooking = Component("service.booking")
		SVCFAQ = Component("service.faq")

		bi := buildinfo.Read()
		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("version", bi.Version),
			slog.String("build_commit", bi.Commit),
			slog.String("build_time", bi.Date),
			slog.String("go_version", bi.GoVersion),
			slog.String("cfg_profile", s.profile),
			slog.String("level", s.level.String()),
		)
	})
	return initErr
}

// openFiles opens the rotating bot and errors files under Dir. A missing Dir
// means stdout only.
func openFiles(cfg coreconfig.LoggingConfig) (main, errs []io.Writer, err error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	open := func(name string) io.Writer {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    max(cfg.MaxSizeMB, 0),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		if lj.MaxSize == 0 {
			lj.MaxSize = 50
		}
		closers = append(closers, lj)
		return lj
	}
	if name := strings.TrimSpace(cfg.BotFile); name != "" {
		main = append(main, open(name))
	}
	if name := strings.TrimSpace(cfg.ErrorsFile); name != "" {
		errs = append(errs, open(name))
	}
	return main, errs, nil
}

// Shutdown flushes pending lines and closes the files. It is safe to call
// more than once.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	for _, w := range sinks {
		errs = append(errs, w.Flush(), w.Close())
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// parseKeyOrder reads a comma separated key list; "" and "default" give the
// built-in order.
func parseKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	var order []string
	if raw != "default" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background is context.Background, for call sites outside a request.
func Background() context.Context {
	return context.Background()
}

// Component returns the logger tagged with component=name. Loggers are cached
// per name; before InitLogger it returns nil.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return L
	}
	componentsMu.RLock()
	log, ok := components[name]
	componentsMu.RUnlock()
	if ok {
		return log
	}
	componentsMu.Lock()
	defer componentsMu.Unlock()
	if log, ok = components[name]; !ok {
		log = L.With("component", name)
		components[name] = log
	}
	return log
}

// LogEvent writes one event line. A nil log falls back to the context logger,
// then to L.
func LogEvent(ctx context.Context, log *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if log == nil {
		log = FromContext(ctx)
	}
	if log == nil {
		log = L
	}
	if log == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	log.LogAttrs(ctx, level, "", attrs...)
}

// Event logs through the named component logger.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	log := Component(component)
	if log == nil {
		if log = FromContext(ctx); log != nil && component != "" {
			log = log.With("component", component)
		}
	}
	LogEvent(ctx, log, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 in the environment lets every line through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}
