package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/core/telegram/sender"
)

var replyQueue atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes SendText through d. A nil d makes replies synchronous.
func SetDispatcher(d *sender.Dispatcher) {
	replyQueue.Store(d)
}

// SendText replies to the current chat with plain text. Bot replies never
// use a parse mode so user-supplied ids are echoed literally.
func SendText(c tele.Context, text string) error {
	countReply(c)
	send := func() error { return c.Send(text) }

	d := replyQueue.Load()
	if d == nil {
		return send()
	}
	ctx := BuildContext(c)
	switch err := d.Enqueue(ctx, "reply", "sendMessage", send); {
	case err == nil:
		return nil
	case errors.Is(err, sender.ErrQueueFull), errors.Is(err, sender.ErrQueueClosed):
		// deliver inline rather than drop the reply
		logger.Warn(ctx, "tg.sender", "queue.bypass", slog.String("reason", sender.SanitizeError(err)))
		return send()
	default:
		return err
	}
}
