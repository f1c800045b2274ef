package helpers

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
)

const (
	contextKey = "logger_ctx"
	ridKey     = "rid"
	repliesKey = "replies"
)

// StoreContext attaches reusable context to tele.Context for downstream helpers.
func StoreContext(c tele.Context, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(contextKey, ctx)
}

// ContextFrom returns the context stored by middleware, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	if ctx, ok := c.Get(contextKey).(context.Context); ok {
		return ctx, true
	}
	return nil, false
}

// SetRID exposes the correlation id of the update to downstream handlers.
func SetRID(c tele.Context, rid string) {
	c.Set(ridKey, rid)
}

// BuildContext derives a context.Context carrying the update correlation id and
// update/user/chat ids, caching it on c.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}

	var updateID int
	if upd := c.Update(); upd.ID != 0 {
		updateID = upd.ID
	}
	chatID, userID := ChatID(c), SenderID(c)

	rid, _ := c.Get(ridKey).(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component("tg"))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler enriches stored context with handler metadata for downstream logs.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

// SenderID returns the Telegram id of the update author or 0.
func SenderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// ChatID returns the id of the chat the update belongs to or 0.
func ChatID(c tele.Context) int64 {
	if ch := c.Chat(); ch != nil {
		return ch.ID
	}
	return 0
}

// UserKey is the decimal string form of the sender id used as storage key.
func UserKey(c tele.Context) (string, bool) {
	id := SenderID(c)
	if id == 0 {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

// Replies reports how many replies the current handler queued.
func Replies(c tele.Context) int {
	n, _ := c.Get(repliesKey).(int)
	return n
}

func countReply(c tele.Context) {
	c.Set(repliesKey, Replies(c)+1)
}
