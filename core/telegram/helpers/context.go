package helpers

import (
	"context"
	"strconv"

	"github.com/m3rciful/roombot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const contextKey = "logger_ctx"

// StoreContext caches ctx on c for later handlers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context cached on c, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	if v := c.Get(contextKey); v != nil {
		if ctx, ok := v.(context.Context); ok {
			return ctx, true
		}
	}
	return nil, false
}

// BuildContext returns the request context for c, creating it on first use.
// It carries the update identifiers, a correlation id and the tg logger.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	f := logger.Fields{UpdateID: c.Update().ID}
	if chat := c.Chat(); chat != nil {
		f.ChatID = chat.ID
		f.Session = ConversationKey(c)
	}
	if user := c.Sender(); user != nil {
		f.UserID = user.ID
	}
	f.RID = logger.BuildRID(f.UpdateID, f.ChatID, f.UserID)

	ctx := logger.WithFields(context.Background(), f)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// ConversationKey identifies the conversation an update belongs to: the chat
// id in decimal, or the sender id when the update carries no chat.
func ConversationKey(c tele.Context) string {
	if chat := c.Chat(); chat != nil {
		return strconv.FormatInt(chat.ID, 10)
	}
	if user := c.Sender(); user != nil {
		return strconv.FormatInt(user.ID, 10)
	}
	return ""
}

// WithHandler names the handler in the cached context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}
