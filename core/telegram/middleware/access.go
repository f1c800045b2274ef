package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
	tghelpers "github.com/m3rciful/pocketreg/core/telegram/helpers"
)

// AdminOptions configures AdminOnlyMiddleware.
type AdminOptions struct {
	// AdminID of 0 means no admin: every caller is rejected.
	AdminID int64
	// OnReject replies to a rejected caller. Nil rejects silently.
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware guards operator commands such as /stats.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	isAdmin := func(c tele.Context) bool {
		return opts.AdminID != 0 && tghelpers.SenderID(c) == opts.AdminID
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if isAdmin(c) {
				return next(c)
			}
			logger.Info(tghelpers.BuildContext(c), "tg", "tg.admin_reject",
				slog.String("status", "skip"),
				slog.Bool("admin_configured", opts.AdminID != 0),
			)
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
