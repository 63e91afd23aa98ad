package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	outMessagesKey = "out_messages"
	outKeyboardKey = "out_kb"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("endpoint", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// noteOutgoing counts messages queued while handling c.
func noteOutgoing(c tele.Context, n int, kb bool) {
	total, hadKB := OutgoingCounts(c)
	c.Set(outMessagesKey, total+n)
	c.Set(outKeyboardKey, hadKB || kb)
}

// OutgoingCounts reports how many messages were queued for c and whether
// any of them carried a keyboard.
func OutgoingCounts(c tele.Context) (int, bool) {
	n, _ := c.Get(outMessagesKey).(int)
	kb, _ := c.Get(outKeyboardKey).(bool)
	return n, kb
}

func hasMarkup(opts *tele.SendOptions) bool {
	return opts != nil && opts.ReplyMarkup != nil
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	noteOutgoing(c, 1, hasMarkup(sendOpts))
	return sendAsync(c, "send.text", "sendMessage", func() error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	})
}

// SendMDV2 sends a message with MarkdownV2 parse mode and optional reply markup.
func SendMDV2(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2, ReplyMarkup: rm}
	return SendText(c, text, opts)
}

// Outgoing is one message of an ordered batch.
type Outgoing struct {
	What any
	Opts *tele.SendOptions
}

// SendSequence delivers msgs in order as a single dispatcher job. When the
// queue is unavailable the batch is sent synchronously.
func SendSequence(c tele.Context, msgs []Outgoing) error {
	if len(msgs) == 0 {
		return nil
	}
	steps := make([]func() error, 0, len(msgs))
	kb := false
	for _, m := range msgs {
		m := m
		kb = kb || hasMarkup(m.Opts)
		steps = append(steps, func() error {
			if m.Opts != nil {
				return c.Send(m.What, m.Opts)
			}
			return c.Send(m.What)
		})
	}

	noteOutgoing(c, len(msgs), kb)

	disp := currentDispatcher()
	if disp == nil {
		return sender.RunSequence(steps)
	}
	ctx := BuildContext(c)
	if err := disp.EnqueueSequence(ctx, "send.sequence", "sendMessage", steps); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", "send.sequence"),
				slog.Int("messages", len(msgs)),
				slog.String("err", err.Error()),
			)
			return sender.RunSequence(steps)
		}
		return err
	}
	return nil
}
