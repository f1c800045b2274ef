package telegram

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// WebhookOptions declares how Telegram reaches the bot.
type WebhookOptions struct {
	PublicURL   string
	SecretToken string
	DropPending bool
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// PollerOptionsFrom maps the service config onto poller settings.
func PollerOptionsFrom(cfg *coreconfig.Config) PollerOptions {
	return PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			PublicURL:   cfg.Webhook.PublicURL(),
			SecretToken: cfg.Webhook.SecretToken,
			DropPending: cfg.Webhook.DropPending,
		},
	}
}

// BuildPoller returns a Telebot poller based on provided options.
//
// The webhook poller has no Listen address and skips setWebhook: RunTelegram
// registers the webhook itself so a failure stops startup, and the HTTP server
// hands updates to Bot.ProcessUpdate.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			IgnoreSetWebhook: true,
			SecretToken:      opts.Webhook.SecretToken,
			DropUpdates:      opts.Webhook.DropPending,
			AllowedUpdates:   []string{"message"},
			Endpoint:         &tele.WebhookEndpoint{PublicURL: opts.Webhook.PublicURL},
		}
	}

	timeout := defaultLongPollTimeout
	if opts.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout, AllowedUpdates: []string{"message"}}
}
