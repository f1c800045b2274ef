package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/core/telegram/sender"
)

// ErrDelivery marks every failed outbound notification.
var ErrDelivery = errors.New("chat: delivery failed")

// DeliveryError describes a notification that did not reach the user.
type DeliveryError struct {
	UserID string
	Kind   string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s (%s): %s", e.UserID, e.Kind, sender.SanitizeError(e.Err))
}

// Unwrap exposes ErrDelivery and the underlying Bot API error.
func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDelivery, e.Err}
}

// Code is picked up as err_code by loggers.
func (e *DeliveryError) Code() string {
	return "delivery_" + e.Kind
}

// MessageSender is the slice of *tele.Bot the gateway needs.
type MessageSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Gateway sends notifications outside of any update, e.g. after a postback.
type Gateway struct {
	sender MessageSender
}

// NewGateway wraps s (normally the running *tele.Bot).
func NewGateway(s MessageSender) *Gateway {
	return &Gateway{sender: s}
}

// Notify sends text to the private chat of userID in a single attempt.
func (g *Gateway) Notify(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return &DeliveryError{UserID: userID, Kind: "bad_chat_id", Err: err}
	}

	start := time.Now()
	if _, err := g.sender.Send(tele.ChatID(chatID), text); err != nil {
		return &DeliveryError{UserID: userID, Kind: sender.ClassifyError(err), Err: err}
	}
	logger.Debug(ctx, "tg", "notify.sent",
		slog.String("user_id", userID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
