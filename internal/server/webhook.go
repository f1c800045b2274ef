package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
)

// HeaderSecretToken is set by Telegram when setWebhook received a secret.
const HeaderSecretToken = "X-Telegram-Bot-Api-Secret-Token"

// UpdateProcessor dispatches a decoded update to the bot handlers.
// *tele.Bot satisfies it.
type UpdateProcessor interface {
	ProcessUpdate(u tele.Update)
}

// webhookIntake decodes the body into an update and hands it to the bot.
// Handler outcome never changes the reply: Telegram only needs a 200 to stop
// redelivering.
func webhookIntake(updates UpdateProcessor, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if secret != "" {
			got := c.GetHeader(HeaderSecretToken)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.HTTP.LogAttrs(ctx, slog.LevelWarn, "",
					slog.String("event", "webhook.reject"),
					slog.String("status", "fail"),
					slog.String("err_code", "bad_secret"),
				)
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
		}

		var upd tele.Update
		if err := c.ShouldBindJSON(&upd); err != nil {
			logger.HTTP.LogAttrs(ctx, slog.LevelWarn, "",
				slog.String("event", "webhook.decode"),
				slog.String("status", "fail"),
				logger.Err(err),
			)
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		updates.ProcessUpdate(upd)
		c.Status(http.StatusOK)
	}
}
