package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/roombot/core/logger"
	tghelpers "github.com/m3rciful/roombot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware turns a handler panic into an error so one bad update
// cannot stop the poller.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err = fmt.Errorf("panic: %v", r)
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
				slog.String("stack", logger.SanitizeLimit(string(debug.Stack()), 2048)),
			)
		}()
		return next(c)
	}
}
