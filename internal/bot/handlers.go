package bot

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/roombot/core/locale"
	"github.com/m3rciful/roombot/core/logger"
	"github.com/m3rciful/roombot/core/message"
	"github.com/m3rciful/roombot/core/metrics"
	tg "github.com/m3rciful/roombot/core/telegram"
	"github.com/m3rciful/roombot/core/telegram/callbacks"
	"github.com/m3rciful/roombot/core/telegram/commands"
	tghelpers "github.com/m3rciful/roombot/core/telegram/helpers"
	"github.com/m3rciful/roombot/internal/conversation"
)

// Handlers binds Telegram updates to the conversation service.
type Handlers struct {
	svc     *conversation.Service
	loc     *locale.Locale
	metrics *metrics.Metrics
	render  renderer
}

// NewHandlers creates the update handlers.
func NewHandlers(svc *conversation.Service, loc *locale.Locale, m *metrics.Metrics) *Handlers {
	return &Handlers{
		svc:     svc,
		loc:     loc,
		metrics: m,
		render:  renderer{cancelLabel: loc.Text(locale.MsgCancelButton)},
	}
}

// Register wires commands, the cancel callback and the conversation turn
// into reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	reg.RegisterCommand("/start", commands.Command{
		Description: "Start booking a meeting room",
		Handler:     h.Book,
	})
	reg.RegisterCommand("/book", commands.Command{
		Description: "Book a meeting room",
		Handler:     h.Book,
	})
	reg.RegisterCommand("/faq", commands.Command{
		Description: "Ask a question",
		Handler:     h.FAQ,
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Description: "Cancel the current conversation",
		Handler:     h.Cancel,
	})
	reg.RegisterCommand("/help", commands.Command{
		Description: "Show help",
		Handler:     h.Help,
	})
	reg.RegisterCommand("/stats", commands.Command{
		Description: "Show bot statistics",
		Handler:     h.Stats,
		AdminOnly:   true,
		Hidden:      true,
	})
	if err := reg.RegisterCallback(CallbackBookingCancel, h.CancelBooking); err != nil {
		return err
	}
	reg.SetTextFallback(h.Turn)
	return nil
}

// Turn runs one conversation turn for free text.
func (h *Handlers) Turn(c tele.Context) error {
	return h.reply(c, func(ctx context.Context, key string) (conversation.Reply, error) {
		return h.svc.Handle(ctx, key, c.Text())
	})
}

// Book starts a booking or resumes the pending question.
func (h *Handlers) Book(c tele.Context) error {
	return h.reply(c, h.svc.StartBooking)
}

// FAQ switches to the question service.
func (h *Handlers) FAQ(c tele.Context) error {
	return h.reply(c, h.svc.StartFAQ)
}

// Cancel drops the conversation state.
func (h *Handlers) Cancel(c tele.Context) error {
	return h.reply(c, h.svc.Cancel)
}

// CancelBooking handles the inline cancel button of a summary card.
func (h *Handlers) CancelBooking(c tele.Context) error {
	sessionID := callbacks.CallbackPayload(c)
	return h.reply(c, func(ctx context.Context, key string) (conversation.Reply, error) {
		return h.svc.CancelBooking(ctx, key, sessionID)
	})
}

// Help sends the command overview.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendText(c, h.loc.Text(locale.MsgHelp))
}

// Stats sends the counter snapshot to the admin.
func (h *Handlers) Stats(c tele.Context) error {
	snap, err := h.metrics.Snapshot()
	if err != nil {
		return err
	}
	lookups := 0
	for _, n := range snap.Lookups {
		lookups += n
	}
	text := h.loc.Text(locale.MsgStats, map[string]any{
		"Uptime":    snap.Uptime.Round(time.Second).String(),
		"Turns":     snap.Turns,
		"Booked":    snap.Bookings[metrics.BookingBooked],
		"Cancelled": snap.Bookings[metrics.BookingCancelled],
		"Reprompts": snap.Reprompts,
		"Lookups":   lookups,
		"NoMatch":   snap.Lookups[metrics.LookupNoMatch],
		"SendFails": snap.SendFails,
		"Limited":   snap.Updates[metrics.UpdateLimited],
	})
	return tghelpers.SendText(c, text)
}

// AdminOnly answers commands reserved for the admin.
func (h *Handlers) AdminOnly(c tele.Context) error {
	return tghelpers.SendText(c, h.loc.Text(locale.MsgAdminOnly))
}

// Denied returns AdminOnly as a handler.
func (h *Handlers) Denied() tele.HandlerFunc {
	return h.AdminOnly
}

// RateLimited answers updates dropped by the rate limiter.
func (h *Handlers) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: h.loc.Text(locale.MsgRateLimited)})
	}
	return tghelpers.SendText(c, h.loc.Text(locale.MsgRateLimited))
}

// UnknownText is used when no text fallback is wired.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return h.Turn
}

// UnknownDocument answers non-text uploads.
func (h *Handlers) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, h.loc.Text(locale.MsgUnknownInput))
	}
}

// UnknownCallback answers buttons the bot no longer handles.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: h.loc.Text(locale.MsgBookingStale)})
	}
}

// reply runs a service call for the update's conversation and sends the
// result. The state is already saved when the sends are queued.
func (h *Handlers) reply(c tele.Context, call func(ctx context.Context, key string) (conversation.Reply, error)) error {
	ctx := tghelpers.BuildContext(c)
	key := tghelpers.ConversationKey(c)

	res, err := call(ctx, key)
	if err != nil {
		logger.Error(ctx, "service.conversation", "turn.failed",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		if sendErr := tghelpers.SendSequence(c, h.render.render(
			[]message.Message{message.Text(h.loc.Text(locale.MsgErrorGeneric))}, "",
		)); sendErr != nil {
			logger.Warn(ctx, "service.conversation", "turn.notify_failed",
				slog.String("status", "fail"),
				slog.String("err", sendErr.Error()),
			)
		}
		return err
	}

	logger.Debug(ctx, "service.conversation", "turn.done",
		slog.String("status", "ok"),
		slog.String("dialog", res.Dialog),
		slog.String("outcome", res.Outcome),
		slog.Int("messages", len(res.Messages)),
	)
	return tghelpers.SendSequence(c, h.render.render(res.Messages, res.SessionID))
}
