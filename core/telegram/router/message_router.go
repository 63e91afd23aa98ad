package router

import (
	"time"

	tg "github.com/m3rciful/roombot/core/telegram"
	"github.com/m3rciful/roombot/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// TextRoutes handles text and documents. Text naming a command (an alias, or
// a slash form telebot did not match) runs that command; any other text goes
// to the registry's text fallback.
func TextRoutes(reg *tg.Registry, opts Options) []tg.Route {
	unknownText := opts.reply(ui.Replies.UnknownText)
	unknownDoc := opts.reply(ui.Replies.UnknownDocument)

	text := func(c tele.Context) error {
		if name, cmd, ok := reg.LookupCommand(c.Text()); ok {
			return commandHandler(name, cmd, opts)(c)
		}
		start := time.Now()
		if fb := reg.TextFallback(); fb != nil {
			return handleWithSummary(c, "turn", start, func() error { return fb(c) })
		}
		return runOrSkip(c, "unknown_text", start, unknownText)
	}

	document := func(c tele.Context) error {
		return runOrSkip(c, "unexpected_document", time.Now(), unknownDoc)
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnDocument, Handler: document},
	}
}

func runOrSkip(c tele.Context, name string, start time.Time, h tele.HandlerFunc) error {
	if h == nil {
		logHandlerSummary(c, name, start, "skip", nil)
		return nil
	}
	return handleWithSummary(c, name, start, func() error { return h(c) })
}
