package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	fieldsKey ctxKey = iota
	loggerKey
)

// Fields are the request identifiers a context carries. The handler adds the
// non-zero ones to every record logged with that context.
type Fields struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
	Session  string
}

// WithFields replaces the identifiers carried by ctx.
func WithFields(ctx context.Context, f Fields) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, fieldsKey, f)
}

// FieldsFrom returns the identifiers carried by ctx.
func FieldsFrom(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey).(Fields)
	return f
}

func update(ctx context.Context, fn func(*Fields)) context.Context {
	f := FieldsFrom(ctx)
	fn(&f)
	return WithFields(ctx, f)
}

// WithRID sets the request correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return update(ctx, func(f *Fields) { f.RID = rid })
}

// WithUpdateMeta sets the Telegram update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return update(ctx, func(f *Fields) {
		f.UpdateID, f.UserID, f.ChatID = updateID, userID, chatID
	})
}

// WithHandler names the handler serving the request.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	return update(ctx, func(f *Fields) { f.Handler = handler })
}

// WithSession sets the conversation key used by the session store.
func WithSession(ctx context.Context, key string) context.Context {
	if key == "" {
		return ctx
	}
	return update(ctx, func(f *Fields) { f.Session = key })
}

// RIDFrom returns the correlation id carried by ctx.
func RIDFrom(ctx context.Context) string { return FieldsFrom(ctx).RID }

// ChatIDFrom returns the chat id carried by ctx.
func ChatIDFrom(ctx context.Context) int64 { return FieldsFrom(ctx).ChatID }

// WithLogger stores log in ctx; LogEvent falls back to it when no component
// logger is given.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, or the base logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// BuildRID returns a short correlation id: the update, chat and user ids in
// base 36, dot separated.
func BuildRID(updateID int, chatID, userID int64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(updateID), 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(chatID, 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(userID, 36))
	return b.String()
}

// appendFields adds ctx identifiers to fields without overriding attrs set
// on the record itself.
func appendFields(ctx context.Context, fields map[string]any) {
	f := FieldsFrom(ctx)
	setIfAbsent := func(key string, val any, zero bool) {
		if zero {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = val
		}
	}
	setIfAbsent("rid", f.RID, f.RID == "")
	setIfAbsent("update_id", f.UpdateID, f.UpdateID == 0)
	setIfAbsent("user_id", f.UserID, f.UserID == 0)
	setIfAbsent("chat_id", f.ChatID, f.ChatID == 0)
	setIfAbsent("handler", f.Handler, f.Handler == "")
	setIfAbsent("session_key", f.Session, f.Session == "")
}
