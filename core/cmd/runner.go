// Package cmd is the shared main for bots built on core: it resolves the
// config path, bootstraps the app and runs it until SIGINT or SIGTERM.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m3rciful/roombot/core/buildinfo"
	coreconfig "github.com/m3rciful/roombot/core/config"
	"github.com/m3rciful/roombot/core/logger"
	coretelegram "github.com/m3rciful/roombot/core/telegram"
)

// ConfigCarrier is an app config embedding the core sections.
type ConfigCarrier interface {
	CoreConfig() *coreconfig.Config
}

// TelegramApp builds the options RunTelegram needs. Apps that also
// implement io.Closer are closed after the bot stops.
type TelegramApp interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires a binary together.
type Options struct {
	// ConfigEnvVar names the variable holding the config path; default
	// CONFIG_PATH. The -config flag wins over it.
	ConfigEnvVar      string
	DefaultConfigPath string
	// Args are the command line arguments; nil means os.Args[1:].
	Args []string
	// Stdout receives -version output; nil means os.Stdout.
	Stdout io.Writer

	LoadConfig func(path string) (ConfigCarrier, error)
	Bootstrap  func(cfg ConfigCarrier) (TelegramApp, error)

	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
}

// Run loads the config, bootstraps the app and blocks in RunTelegram.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}

	path, showVersion, err := parseArgs(opts)
	if err != nil {
		return err
	}
	if showVersion {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		_, err := fmt.Fprintln(out, buildinfo.Read())
		return err
	}

	log.Printf("loading config: %s", path)
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load config: %w", err)
	}
	if cfg == nil || cfg.CoreConfig() == nil {
		return errors.New("cmd: config has no core section")
	}

	app, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	if app == nil {
		return errors.New("cmd: bootstrap returned no app")
	}
	defer shutdownLogger(opts.ShutdownLogger)
	if closer, ok := app.(io.Closer); ok {
		defer closeApp(closer)
	}

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: telegram options: %w", err)
	}
	withLifecycleLogs(&runOpts, time.Now())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

// parseArgs resolves the config path: -config, then the env variable, then
// DefaultConfigPath.
func parseArgs(opts Options) (string, bool, error) {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}

	fs := flag.NewFlagSet("roombot", flag.ContinueOnError)
	path := fs.String("config", "", "path to the YAML config (overrides $"+env+")")
	version := fs.Bool("version", false, "print the build version and exit")
	if err := fs.Parse(args); err != nil {
		return "", false, fmt.Errorf("cmd: %w", err)
	}
	if *version {
		return "", true, nil
	}

	p := *path
	if p == "" {
		p = os.Getenv(env)
	}
	if p == "" {
		p = opts.DefaultConfigPath
	}
	if p == "" {
		return "", false, fmt.Errorf("cmd: no config path (-config, $%s or default)", env)
	}
	return p, false, nil
}

// withLifecycleLogs logs "ready" after the app's OnStart and "shutdown"
// before its OnStop.
func withLifecycleLogs(opts *coretelegram.RunOptions, startedAt time.Time) {
	onStart, onStop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, "app", "ready",
			slog.String("status", "ok"),
			slog.String("version", buildinfo.Read().String()),
			slog.Duration("startup_duration", logger.Took(startedAt)),
		)
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, "app", "shutdown", slog.String("status", "ok"))
		if onStop != nil {
			return onStop(ctx, rt)
		}
		return nil
	}
}

func shutdownLogger(fn func() error) {
	if fn == nil {
		fn = logger.Shutdown
	}
	if err := fn(); err != nil {
		log.Printf("logger shutdown: %v", err)
	}
}

func closeApp(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn(context.Background(), "app", "app.close",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
