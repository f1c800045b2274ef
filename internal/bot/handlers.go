// Package bot holds the chat side of the registration flow: command and text
// handlers plus the outbound notification gateway.
package bot

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/pocketreg/core/telegram"
	tghelpers "github.com/m3rciful/pocketreg/core/telegram/helpers"
	"github.com/m3rciful/pocketreg/internal/registration"
)

// Registrar is the part of registration.Service the handlers use.
type Registrar interface {
	Start(ctx context.Context, userID string) (registration.UserRecord, error)
	SubmitTraderID(ctx context.Context, userID, text string) (registration.UserRecord, error)
	Status(ctx context.Context, userID string) (registration.UserStatus, error)
	Stats(ctx context.Context) (registration.Stats, error)
}

// Handlers answers chat updates.
type Handlers struct {
	svc Registrar
}

// NewHandlers binds handlers to svc.
func NewHandlers(svc Registrar) *Handlers {
	return &Handlers{svc: svc}
}

// Register adds the commands and the trader ID text handler to reg.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", tg.Command{Handler: h.Start, Description: "Начать регистрацию"})
	reg.RegisterCommand("/status", tg.Command{Handler: h.Status, Description: "Статус регистрации"})
	reg.RegisterCommand("/stats", tg.Command{Handler: h.Stats, Description: "Статистика регистраций", AdminOnly: true})
	reg.SetTextFallback(h.TraderID)
}

// Start resets the sender to waiting for a trader ID and greets them.
func (h *Handlers) Start(c tele.Context) error {
	userID, ok := tghelpers.UserKey(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if _, err := h.svc.Start(ctx, userID); err != nil {
		return h.unavailable(c, err)
	}
	return tghelpers.SendText(c, GreetingText)
}

// TraderID treats any non-command text as a claimed trader ID.
func (h *Handlers) TraderID(c tele.Context) error {
	userID, ok := tghelpers.UserKey(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	_, err := h.svc.SubmitTraderID(ctx, userID, c.Text())
	switch {
	case err == nil:
		return tghelpers.SendText(c, WaitingText)
	case errors.Is(err, registration.ErrInvalidIDFormat):
		return tghelpers.SendText(c, InvalidIDText)
	case errors.Is(err, registration.ErrTraderIDClaimed):
		return tghelpers.SendText(c, ClaimedText)
	}
	return h.unavailable(c, err)
}

// Status reports the sender's registration state.
func (h *Handlers) Status(c tele.Context) error {
	userID, ok := tghelpers.UserKey(c)
	if !ok {
		return nil
	}
	st, err := h.svc.Status(tghelpers.BuildContext(c), userID)
	if err != nil {
		return h.unavailable(c, err)
	}

	var text string
	switch st.State {
	case registration.StateConfirmed:
		text = fmt.Sprintf(StatusConfirmedText, st.TraderID)
	case registration.StateWaitingReg:
		text = fmt.Sprintf(StatusWaitingRegText, st.Record.EnteredID)
	case registration.StateWaitingID:
		text = StatusWaitingIDText
	default:
		text = StatusUnregisteredText
	}
	return tghelpers.SendText(c, text)
}

// Stats shows per-state counters. Admin only.
func (h *Handlers) Stats(c tele.Context) error {
	st, err := h.svc.Stats(tghelpers.BuildContext(c))
	if err != nil {
		return h.unavailable(c, err)
	}
	return tghelpers.SendText(c, fmt.Sprintf(StatsText, st.Total, st.WaitingID, st.WaitingReg, st.Confirmed))
}

// NotAllowed answers a non-admin calling an admin command.
func NotAllowed(c tele.Context) error {
	return tghelpers.SendText(c, NotAllowedText)
}

// unavailable tells the user to retry later and hands err to the summary logger.
func (h *Handlers) unavailable(c tele.Context, err error) error {
	_ = tghelpers.SendText(c, UnavailableText)
	return err
}
