// Package commands describes slash commands registered with the bot.
package commands

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command. Aliases are bare words (no slash) that run the
// command when sent as the whole message, matched case-insensitively.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}

// Valid reports whether the command can be registered.
func (c Command) Valid() bool {
	return c.Handler != nil && strings.TrimSpace(c.Description) != ""
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool {
	return !c.Hidden && !c.AdminOnly
}

// MatchesAlias reports whether text is one of the aliases.
func (c Command) MatchesAlias(text string) bool {
	text = strings.TrimSpace(text)
	for _, alias := range c.Aliases {
		if strings.EqualFold(strings.TrimPrefix(alias, "/"), text) {
			return true
		}
	}
	return false
}

// Name extracts the command name from slash-prefixed text: "/Book@bot now"
// gives "/book". ok is false when text is not a command.
func Name(text string) (name string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	name = fields[0]
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return strings.ToLower(name), true
}
