package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pocketreg/core/logger"
	tghelpers "github.com/m3rciful/pocketreg/core/telegram/helpers"
)

// ErrHandlerPanic wraps the value recovered from a panicking handler.
type ErrHandlerPanic struct {
	Value any
}

func (e ErrHandlerPanic) Error() string { return fmt.Sprintf("telegram handler panic: %v", e.Value) }

// Code classifies the error for update logs.
func (e ErrHandlerPanic) Code() string { return "panic" }

// RecoverMiddleware converts a handler panic into ErrHandlerPanic so the
// update loop keeps serving other users.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic",
				slog.String("status", "fail"),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			err = ErrHandlerPanic{Value: r}
		}()
		return next(c)
	}
}
