package middleware

import (
	"log/slog"

	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/roombot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware attaches the request context (rid plus update, user and
// chat ids) to c and, when debug sampling allows, logs one update.received
// line. It belongs once, at the top of the global chain.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		c.Set("rid", logger.RIDFrom(ctx))
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "tg", "update.received", receivedAttrs(c)...)
		}
		return next(c)
	}
}

// receivedAttrs describes the update beyond the ids the handler already
// adds from the context.
func receivedAttrs(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("kind", UpdateKind(c.Update()))}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil {
		if user.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
		}
		if user.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", user.LanguageCode))
		}
	}

	if cb := c.Callback(); cb != nil {
		key, payload := callbacks.ParseCallbackData(cb)
		if key != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
		}
		if payload != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
		}
	} else if text := c.Text(); text != "" {
		attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(text, 256)))
	}
	return attrs
}
