// Package bot assembles the roombot Telegram application: the conversation
// service, the handlers and the runtime hooks.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/roombot/core/bootstrap"
	"github.com/m3rciful/roombot/core/dialog"
	"github.com/m3rciful/roombot/core/faq"
	"github.com/m3rciful/roombot/core/locale"
	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/metrics"
	"github.com/m3rciful/roombot/core/session"
	tg "github.com/m3rciful/roombot/core/telegram"
	"github.com/m3rciful/roombot/core/telegram/router"
	tgsender "github.com/m3rciful/roombot/core/telegram/sender"
	"github.com/m3rciful/roombot/core/telegram/ui"
	"github.com/m3rciful/roombot/internal/config"
	"github.com/m3rciful/roombot/internal/conversation"
)

var _ ui.Replies = (*Handlers)(nil)

// purger is implemented by stores that expire records lazily.
type purger interface {
	Purge(ctx context.Context) (int64, error)
}

const maxPurgeInterval = time.Hour

// App is a configured roombot instance.
type App struct {
	cfg      *config.Config
	infra    *bootstrap.Result
	locale   *locale.Locale
	metrics  *metrics.Metrics
	service  *conversation.Service
	handlers *Handlers
	registry *tg.Registry

	metricsServer *metrics.Server
	stopPurge     context.CancelFunc
	purgeDone     chan struct{}
}

// Bootstrap initializes logging and storage from cfg and builds the app.
func Bootstrap(cfg *config.Config) (*App, error) {
	infra, err := bootstrap.Run(bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.Database,
		Redis:      cfg.Redis,
		Backend:    cfg.Storage.Backend,
		MemorySize: cfg.Storage.MemorySize,
		TTL:        cfg.Storage.TTL(),
	})
	if err != nil {
		return nil, err
	}
	app, err := New(cfg, infra)
	if err != nil {
		return nil, errors.Join(err, infra.Close())
	}
	return app, nil
}

// New builds the app on top of initialized infrastructure.
func New(cfg *config.Config, infra *bootstrap.Result) (*App, error) {
	if cfg == nil || infra == nil || infra.Store == nil {
		return nil, errors.New("bot: config and store are required")
	}

	loc, err := locale.Load(cfg.Booking.Locale)
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	kb, err := NewKnowledgeBase(cfg.KB)
	if err != nil {
		return nil, err
	}
	var responder *faq.Responder
	if kb != nil {
		responder = faq.NewResponder(kb, loc)
	}

	m := metrics.New()
	machine := dialog.NewMachine(loc, dialog.LayoutParser{
		Location: cfg.Booking.Location(),
		Relative: loc,
	})
	svc, err := conversation.New(conversation.Options{
		Store:   infra.Store,
		Locks:   session.NewLocks(),
		Machine: machine,
		Vocab:   loc,
		FAQ:     responder,
		Metrics: m,
		Timeout: cfg.Booking.TurnTimeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}

	handlers := NewHandlers(svc, loc, m)
	reg := tg.NewRegistry()
	if err := handlers.Register(reg); err != nil {
		return nil, fmt.Errorf("bot: register handlers: %w", err)
	}

	logger.LogEvent(logger.Background(), logger.TWire, slog.LevelInfo, "app.build",
		slog.String("status", "ok"),
		slog.String("locale", loc.Tag().String()),
		slog.String("kb", cfg.KB.Backend),
		slog.Bool("faq", svc.FAQEnabled()),
	)

	return &App{
		cfg:      cfg,
		infra:    infra,
		locale:   loc,
		metrics:  m,
		service:  svc,
		handlers: handlers,
		registry: reg,
	}, nil
}

// TelegramRunOptions assembles the runtime configuration.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	h := a.handlers

	routes := router.Routes(a.registry, router.Options{
		AdminID: core.Telegram.AdminID,
		Replies: h,
	})

	sc := a.cfg.Sender
	return tg.RunOptions{
		Config:   core,
		Registry: a.registry,
		HTTP:     tg.HTTPOptions{Retries: 1, Backoff: 500 * time.Millisecond},
		DispatcherOptions: tgsender.Options{
			Workers:      sc.Workers,
			QueueSize:    sc.QueueSize,
			MaxRetries:   sc.MaxRetries,
			RetryBackoff: time.Duration(sc.RetryBackoffMS) * time.Millisecond,
			MaxDuration:  time.Duration(sc.MaxDurationMS) * time.Millisecond,
			OnFailure: func(context.Context, string, error) {
				a.metrics.SendFailed()
			},
		},
		Middlewares: tg.DefaultMiddlewares(core, tg.MiddlewareHooks{
			OnLimited:     h.RateLimited,
			ObserveUpdate: a.metrics.Update,
		}),
		Routes:      routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	if listen := a.cfg.Metrics.Listen; listen != "" {
		srv := metrics.NewServer(listen, a.metrics)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("bot: metrics listener: %w", err)
		}
		a.metricsServer = srv
	}

	if p, ok := a.infra.Store.(purger); ok && a.cfg.Storage.TTL() > 0 {
		interval := a.cfg.Storage.TTL()
		if interval > maxPurgeInterval {
			interval = maxPurgeInterval
		}
		purgeCtx, cancel := context.WithCancel(ctx)
		a.stopPurge = cancel
		a.purgeDone = make(chan struct{})
		go a.purgeLoop(purgeCtx, p, interval)
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	a.haltPurge()
	if a.metricsServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := a.metricsServer.Shutdown(shutdownCtx)
	a.metricsServer = nil
	return err
}

func (a *App) haltPurge() {
	if a.stopPurge == nil {
		return
	}
	a.stopPurge()
	<-a.purgeDone
	a.stopPurge = nil
}

func (a *App) purgeLoop(ctx context.Context, p purger, interval time.Duration) {
	defer close(a.purgeDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			n, err := p.Purge(ctx)
			level := slog.LevelDebug
			if err != nil {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("status", logger.Status(err)),
				slog.Int64("purged", n),
				slog.Duration("duration", logger.Took(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("err", err.Error()))
			}
			logger.LogEvent(ctx, logger.Store, level, "store.purge", attrs...)
		}
	}
}

// Close releases the storage connections.
func (a *App) Close() error {
	a.haltPurge()
	return a.infra.Close()
}
