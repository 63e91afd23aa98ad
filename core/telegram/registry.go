package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry collects the commands, inline-button callbacks and the text
// fallback of a bot. Routes are built from it once at startup; callbacks may
// be added later.
type Registry struct {
	commands     map[string]commands.Command
	callbacks    map[string]tele.HandlerFunc
	callbacksMu  sync.RWMutex
	textFallback tele.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		callbacks: make(map[string]tele.HandlerFunc),
	}
}

// RegisterCommand adds cmd under name ("/book"). Invalid and duplicate
// registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	switch {
	case !cmd.Valid():
		wireLog(slog.LevelWarn, "register.command.skip", slog.String("name", name), slog.String("reason", "invalid"))
	case !strings.HasPrefix(name, "/"):
		wireLog(slog.LevelWarn, "register.command.skip", slog.String("name", name), slog.String("reason", "no_slash_prefix"))
	default:
		name = strings.ToLower(name)
		if _, exists := r.commands[name]; exists {
			wireLog(slog.LevelWarn, "register.command.duplicate", slog.String("name", name))
			return
		}
		r.commands[name] = cmd
	}
}

// ListCommands returns the commands sorted by name; listedOnly drops hidden
// and admin-only ones.
func (r *Registry) ListCommands(listedOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if listedOnly && !cmd.Listed() {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves text to a registered command: slash text by name,
// bare text by alias.
func (r *Registry) LookupCommand(text string) (string, commands.Command, bool) {
	if name, ok := commands.Name(text); ok {
		cmd, found := r.commands[name]
		return name, cmd, found
	}
	if strings.TrimSpace(text) == "" {
		return "", commands.Command{}, false
	}
	for name, cmd := range r.commands {
		if cmd.MatchesAlias(text) {
			return name, cmd, true
		}
	}
	return "", commands.Command{}, false
}

// Commands returns all registered commands.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback maps an inline button unique key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		wireLog(slog.LevelWarn, "register.callback.skip",
			slog.String("key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid callback registration")
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		wireLog(slog.LevelWarn, "register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler for key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys, sorted.
func (r *Registry) ListCallbacks() []string {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetTextFallback sets the handler for text that is not a command.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the text fallback handler.
func (r *Registry) TextFallback() tele.HandlerFunc {
	return r.textFallback
}

func wireLog(level slog.Level, event string, attrs ...slog.Attr) {
	logger.LogEvent(context.Background(), logger.TWire, level, event, attrs...)
}

// InitBotCommands publishes the listed commands to the Telegram menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		wireLog(slog.LevelError, "register.commands.set_failed",
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}
