package router

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/m3rciful/roombot/core/logger"
	tg "github.com/m3rciful/roombot/core/telegram"
	"github.com/m3rciful/roombot/core/telegram/commands"
	"github.com/m3rciful/roombot/core/telegram/middleware"
	"github.com/m3rciful/roombot/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// Options configures the routes built from a registry.
type Options struct {
	// AdminID is the only user allowed to run AdminOnly commands.
	AdminID int64
	// Replies answers unmatched updates; nil leaves them silent.
	Replies ui.Replies
}

func (o Options) reply(pick func(ui.Replies) tele.HandlerFunc) tele.HandlerFunc {
	if o.Replies == nil {
		return nil
	}
	return pick(o.Replies)
}

// Routes returns every route for reg: one per command, the callback
// dispatcher, then text and documents. The global middleware chain is
// applied by the bot, not here.
func Routes(reg *tg.Registry, opts Options) []tg.Route {
	routes := CommandRoutes(reg, opts)
	routes = append(routes, CallbackRoute(reg, opts))
	routes = append(routes, TextRoutes(reg, opts)...)

	logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(reg.Commands())),
		slog.Int("callbacks", len(reg.ListCallbacks())),
		slog.Int("routes", len(routes)),
	)
	return routes
}

// CommandRoutes binds each registered command to its slash endpoint, in
// name order.
func CommandRoutes(reg *tg.Registry, opts Options) []tg.Route {
	names := make([]string, 0, len(reg.Commands()))
	for name := range reg.Commands() {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]tg.Route, 0, len(names))
	for _, name := range names {
		routes = append(routes, tg.Route{
			Endpoint: name,
			Handler:  commandHandler(name, reg.Commands()[name], opts),
		})
	}
	return routes
}

// commandHandler applies the admin gate and the handler.handled summary.
// Slash commands and their text aliases share it.
func commandHandler(name string, cmd commands.Command, opts Options) tele.HandlerFunc {
	label := normalizeHandlerName(name)
	h := cmd.Handler
	if cmd.AdminOnly {
		h = middleware.AdminOnlyMiddleware(middleware.AdminOptions{
			AdminID:  opts.AdminID,
			OnReject: opts.reply(ui.Replies.Denied),
		})(h)
	}
	return func(c tele.Context) error {
		return handleWithSummary(c, label, time.Now(), func() error { return h(c) })
	}
}
