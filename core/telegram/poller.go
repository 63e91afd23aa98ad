package telegram

import (
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/roombot/core/config"
)

// allowedUpdates limits delivery to what the bot handles; Telegram then
// drops edits, polls and membership changes server side.
var allowedUpdates = []string{"message", "callback_query"}

// BuildPoller returns the update source selected by cfg.Telegram.RunMode.
// cfg is expected to be normalized.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:         cfg.Webhook.Addr(),
			SecretToken:    cfg.Webhook.SecretToken,
			DropUpdates:    cfg.Telegram.DropPendingUpdates,
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        time.Duration(cfg.Telegram.LongPollTimeout()) * time.Second,
		AllowedUpdates: allowedUpdates,
	}
}
