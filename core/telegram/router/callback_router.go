package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/roombot/core/telegram"
	"github.com/m3rciful/roombot/core/telegram/callbacks"
	"github.com/m3rciful/roombot/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// CallbackRoute dispatches inline button presses by their unique key. A
// matched callback is answered before its handler runs so the client stops
// its spinner; an unmatched one is left to Replies.UnknownCallback.
func CallbackRoute(reg *tg.Registry, opts Options) tg.Route {
	notFound := opts.reply(ui.Replies.UnknownCallback)

	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		start := time.Now()
		key := callbacks.CallbackKey(c)
		name := "callback." + normalizeHandlerName(key)
		keyAttr := slog.String("cb_key", key)

		if h, ok := reg.GetCallback(key); ok {
			_ = c.Respond()
			return handleWithSummary(c, name, start, func() error { return h(c) }, keyAttr)
		}

		return handleWithSummary(c, name, start, func() error {
			if notFound != nil {
				return notFound(c)
			}
			return c.Respond()
		}, keyAttr, slog.String("reason", "not_found"))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
