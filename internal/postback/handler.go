// Package postback serves the trading platform's registration callback.
package postback

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/internal/registration"
)

const component = "postback"

// RegisteredText is sent to a user once their registration is confirmed.
const RegisteredText = "🎉 Ты успешно зарегистрирован!\nДоступ открыт."

// Response statuses.
const (
	StatusOK      = "OK"
	StatusNoMatch = "NO_MATCH"
	StatusError   = "ERROR"
)

// Confirmer matches a postback against claimed trader IDs.
type Confirmer interface {
	ConfirmPostback(ctx context.Context, clickID, traderID *string) (registration.Confirmation, error)
}

// Notifier delivers a message to a chat user.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// Response is the JSON body of every postback reply.
type Response struct {
	Status   string `json:"status"`
	TraderID string `json:"trader_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Handler answers GET /pocket/reg.
type Handler struct {
	confirmer Confirmer
	notifier  Notifier
}

// NewHandler builds a handler. A nil notifier skips notifications.
func NewHandler(confirmer Confirmer, notifier Notifier) *Handler {
	return &Handler{confirmer: confirmer, notifier: notifier}
}

// Register mounts the handler on path.
func (h *Handler) Register(r gin.IRoutes, path string) {
	r.GET(path, h.Handle)
}

// Handle confirms the registration and notifies the matched user. The
// confirmation is persisted before the notification is attempted, and a failed
// notification does not change the reply.
func (h *Handler) Handle(c *gin.Context) {
	ctx := c.Request.Context()
	clickID := optionalQuery(c, "click_id")
	traderID := optionalQuery(c, "trader_id")

	conf, err := h.confirmer.ConfirmPostback(ctx, clickID, traderID)
	if err != nil {
		code := "internal"
		if registration.IsStorage(err) {
			code = "storage"
		}
		logger.Error(ctx, component, "postback.failed",
			slog.String("status", "fail"),
			slog.String("click_id", deref(clickID)),
			slog.String("trader_id", deref(traderID)),
			slog.String("err_code", code),
			logger.Err(err),
		)
		c.JSON(http.StatusInternalServerError, Response{Status: StatusError, Error: code})
		return
	}

	if !conf.Matched {
		c.JSON(http.StatusOK, Response{Status: StatusNoMatch})
		return
	}

	if h.notifier != nil {
		if err := h.notifier.Notify(ctx, conf.UserID, RegisteredText); err != nil {
			logger.Warn(ctx, component, "postback.notify",
				slog.String("status", "fail"),
				slog.String("user_id", conf.UserID),
				slog.String("trader_id", conf.TraderID),
				logger.Err(err),
			)
		} else {
			logger.Info(ctx, component, "postback.notify",
				slog.String("status", "ok"),
				slog.String("user_id", conf.UserID),
			)
		}
	}

	c.JSON(http.StatusOK, Response{Status: StatusOK, TraderID: conf.TraderID})
}

// optionalQuery returns nil when key is absent from the query string.
func optionalQuery(c *gin.Context, key string) *string {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
