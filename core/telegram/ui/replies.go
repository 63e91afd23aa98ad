// Package ui declares the replies a bot gives when an update reaches no
// registered handler.
package ui

import tele "gopkg.in/telebot.v4"

// Replies answers updates that no command, callback or text fallback claims.
type Replies interface {
	// UnknownText answers text when the registry has no text fallback.
	UnknownText() tele.HandlerFunc
	// UnknownDocument answers uploads.
	UnknownDocument() tele.HandlerFunc
	// UnknownCallback answers inline buttons with no registered handler.
	// It must answer the callback query itself.
	UnknownCallback() tele.HandlerFunc
	// Denied answers admin-only commands sent by anyone else.
	Denied() tele.HandlerFunc
}
