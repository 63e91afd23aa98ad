package bot

import (
	"strings"

	"github.com/mattn/go-runewidth"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/roombot/core/message"
	"github.com/m3rciful/roombot/core/telegram/format"
	tghelpers "github.com/m3rciful/roombot/core/telegram/helpers"
	"github.com/m3rciful/roombot/core/telegram/keyboard"
)

// CallbackBookingCancel is the inline button that cancels a booking.
const CallbackBookingCancel = "booking_cancel"

const choicesPerRow = 2

// renderer converts transport-neutral replies into Telegram sends.
type renderer struct {
	cancelLabel string
}

// render maps msgs to an ordered batch. Choices become a one-time reply
// keyboard; cards are sent as MarkdownV2 tables with an inline cancel button
// bound to sessionID; plain texts clear any pending keyboard.
func (r renderer) render(msgs []message.Message, sessionID string) []tghelpers.Outgoing {
	out := make([]tghelpers.Outgoing, 0, len(msgs))
	for _, m := range msgs {
		switch {
		case m.IsCard():
			opts := &tele.SendOptions{ParseMode: tele.ModeMarkdownV2}
			if sessionID != "" {
				opts.ReplyMarkup = keyboard.SingleCancelMarkup(CallbackBookingCancel, sessionID, r.cancelLabel)
			}
			out = append(out, tghelpers.Outgoing{What: renderCard(*m.Card), Opts: opts})
		case len(m.Choices) > 0:
			out = append(out, tghelpers.Outgoing{
				What: m.Text,
				Opts: &tele.SendOptions{ReplyMarkup: keyboard.ChoiceKeyboard(m.Choices, choicesPerRow)},
			})
		case strings.TrimSpace(m.Text) != "":
			out = append(out, tghelpers.Outgoing{
				What: m.Text,
				Opts: &tele.SendOptions{ReplyMarkup: keyboard.RemoveKeyboard()},
			})
		}
	}
	return out
}

// renderCard lays the facts out as an aligned monospace table under a bold
// title. Labels are padded by display width so Thai and CJK text line up.
func renderCard(card message.Card) string {
	width := 0
	for _, f := range card.Facts {
		if w := runewidth.StringWidth(f.Label); w > width {
			width = w
		}
	}

	var b strings.Builder
	if card.Title != "" {
		b.WriteString("*")
		b.WriteString(format.EscapeV2(card.Title))
		b.WriteString("*\n")
	}
	if len(card.Facts) == 0 {
		return strings.TrimRight(b.String(), "\n")
	}
	b.WriteString("```\n")
	for _, f := range card.Facts {
		b.WriteString(format.EscapeCodeV2(runewidth.FillRight(f.Label, width)))
		b.WriteString(" : ")
		b.WriteString(format.EscapeCodeV2(f.Value))
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String()
}
