package router

import (
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/pocketreg/core/telegram"
)

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	// UnknownCommand handles "/..." text that matches no registered command.
	UnknownCommand tele.HandlerFunc
}

// TextRoutes builds the handler for plain text. Command-looking text never
// reaches the registry's text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if strings.HasPrefix(text, "/") {
			if reg != nil {
				if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil && !cmd.AdminOnly {
					return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
						return cmd.Handler(c)
					})
				}
			}
			if opts.UnknownCommand != nil {
				return handleWithSummary(c, "unknown_command", start, func() error {
					return opts.UnknownCommand(c)
				})
			}
			logHandlerSummary(c, "unknown_command", start, "skip", nil)
			return nil
		}

		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "text", start, func() error {
					return fb(c)
				})
			}
		}
		logHandlerSummary(c, "text", start, "skip", nil)
		return nil
	}

	return []tg.Route{{Endpoint: tele.OnText, Handler: handler}}
}
