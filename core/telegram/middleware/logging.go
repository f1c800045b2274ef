package middleware

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
	tghelpers "github.com/m3rciful/pocketreg/core/telegram/helpers"
)

// LoggerMiddleware sets the correlation id of the update and logs a sampled
// receipt line. Message text is logged only at debug level and truncated.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		chatID, userID := tghelpers.ChatID(c), tghelpers.SenderID(c)

		rid := logger.BuildRID(upd.ID, chatID, userID)
		tghelpers.SetRID(c, rid)

		ctx := logger.WithRID(context.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", updateKind(upd)),
			}
			if user := c.Sender(); user != nil {
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}
			if t := c.Text(); t != "" {
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 128)))
			}
			logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		}

		start := time.Now()
		err := next(c)
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, nil, slog.LevelDebug, "update.done",
				slog.Duration("duration", logger.Took(start)),
			)
		}
		return err
	}
}

func updateKind(upd tele.Update) string {
	switch {
	case upd.Message != nil && upd.Message.Text != "":
		return "message"
	case upd.Message != nil:
		return "message_other"
	case upd.Callback != nil:
		return "callback"
	case upd.EditedMessage != nil:
		return "edited_message"
	}
	return "other"
}
