package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/pocketreg/core/telegram"
	"github.com/m3rciful/pocketreg/internal/registration"
)

// fakeContext implements the parts of tele.Context the handlers touch.
type fakeContext struct {
	tele.Context
	sender *tele.User
	text   string
	store  map[string]interface{}
	sent   []string
}

func newFakeContext(userID int64, text string) *fakeContext {
	c := &fakeContext{text: text, store: map[string]interface{}{}}
	if userID != 0 {
		c.sender = &tele.User{ID: userID}
	}
	return c
}

func (c *fakeContext) Sender() *tele.User { return c.sender }

func (c *fakeContext) Chat() *tele.Chat {
	if c.sender == nil {
		return nil
	}
	return &tele.Chat{ID: c.sender.ID, Type: tele.ChatPrivate}
}

func (c *fakeContext) Text() string { return c.text }

func (c *fakeContext) Update() tele.Update { return tele.Update{ID: 1} }

func (c *fakeContext) Get(key string) interface{} { return c.store[key] }

func (c *fakeContext) Set(key string, v interface{}) { c.store[key] = v }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, fmt.Sprint(what))
	return nil
}

func (c *fakeContext) lastReply(t *testing.T) string {
	t.Helper()
	if len(c.sent) == 0 {
		t.Fatal("no reply sent")
	}
	return c.sent[len(c.sent)-1]
}

type fakeRegistrar struct {
	started   []string
	submitted []string
	submitErr error
	startErr  error
	status    registration.UserStatus
	stats     registration.Stats
}

func (f *fakeRegistrar) Start(_ context.Context, userID string) (registration.UserRecord, error) {
	f.started = append(f.started, userID)
	return registration.UserRecord{Status: registration.StatusWaitingID}, f.startErr
}

func (f *fakeRegistrar) SubmitTraderID(_ context.Context, userID, text string) (registration.UserRecord, error) {
	f.submitted = append(f.submitted, userID+"="+text)
	if f.submitErr != nil {
		return registration.UserRecord{}, f.submitErr
	}
	return registration.UserRecord{Status: registration.StatusWaitingReg, EnteredID: text}, nil
}

func (f *fakeRegistrar) Status(context.Context, string) (registration.UserStatus, error) {
	return f.status, nil
}

func (f *fakeRegistrar) Stats(context.Context) (registration.Stats, error) {
	return f.stats, nil
}

func TestStartResetsAndGreets(t *testing.T) {
	svc := &fakeRegistrar{}
	c := newFakeContext(7, "/start")

	if err := NewHandlers(svc).Start(c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(svc.started) != 1 || svc.started[0] != "7" {
		t.Fatalf("started = %v", svc.started)
	}
	if got := c.lastReply(t); got != GreetingText {
		t.Fatalf("reply = %q", got)
	}
}

func TestStartStorageFailure(t *testing.T) {
	storeErr := registration.WriteError("file", errors.New("disk full"))
	svc := &fakeRegistrar{startErr: storeErr}
	c := newFakeContext(7, "/start")

	if err := NewHandlers(svc).Start(c); !errors.Is(err, registration.ErrStorageWrite) {
		t.Fatalf("err = %v, want storage write", err)
	}
	if got := c.lastReply(t); got != UnavailableText {
		t.Fatalf("reply = %q", got)
	}
}

func TestTraderIDReplies(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"accepted", nil, WaitingText},
		{"invalid", registration.ErrInvalidIDFormat, InvalidIDText},
		{"claimed", fmt.Errorf("submit: %w", registration.ErrTraderIDClaimed), ClaimedText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeRegistrar{submitErr: tc.err}
			c := newFakeContext(7, "12345")
			if err := NewHandlers(svc).TraderID(c); err != nil {
				t.Fatalf("TraderID: %v", err)
			}
			if got := c.lastReply(t); got != tc.want {
				t.Fatalf("reply = %q, want %q", got, tc.want)
			}
			if len(svc.submitted) != 1 || svc.submitted[0] != "7=12345" {
				t.Fatalf("submitted = %v", svc.submitted)
			}
		})
	}
}

func TestHandlersIgnoreUpdatesWithoutSender(t *testing.T) {
	svc := &fakeRegistrar{}
	c := newFakeContext(0, "42")
	h := NewHandlers(svc)

	if err := h.Start(c); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.TraderID(c); err != nil {
		t.Fatalf("TraderID: %v", err)
	}
	if len(svc.started)+len(svc.submitted) != 0 || len(c.sent) != 0 {
		t.Fatalf("anonymous update reached the service")
	}
}

func TestStatusReplies(t *testing.T) {
	cases := []struct {
		name   string
		status registration.UserStatus
		want   string
	}{
		{"unknown", registration.UserStatus{State: registration.StateUnregistered}, StatusUnregisteredText},
		{"waiting id", registration.UserStatus{State: registration.StateWaitingID}, StatusWaitingIDText},
		{"waiting reg", registration.UserStatus{
			State:  registration.StateWaitingReg,
			Record: registration.UserRecord{Status: registration.StatusWaitingReg, EnteredID: "42"},
		}, fmt.Sprintf(StatusWaitingRegText, "42")},
		{"confirmed", registration.UserStatus{State: registration.StateConfirmed, TraderID: "42"}, fmt.Sprintf(StatusConfirmedText, "42")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newFakeContext(7, "/status")
			if err := NewHandlers(&fakeRegistrar{status: tc.status}).Status(c); err != nil {
				t.Fatalf("Status: %v", err)
			}
			if got := c.lastReply(t); got != tc.want {
				t.Fatalf("reply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStatsReply(t *testing.T) {
	svc := &fakeRegistrar{stats: registration.Stats{WaitingID: 1, WaitingReg: 2, Confirmed: 3, Total: 6}}
	c := newFakeContext(1, "/stats")

	if err := NewHandlers(svc).Stats(c); err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if got, want := c.lastReply(t), fmt.Sprintf(StatsText, 6, 1, 2, 3); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestRegisterWiresCommandsAndFallback(t *testing.T) {
	reg := tg.NewRegistry()
	NewHandlers(&fakeRegistrar{}).Register(reg)

	for _, name := range []string{"/start", "/status", "/stats"} {
		if _, _, ok := reg.LookupCommand(name); !ok {
			t.Fatalf("command %s not registered", name)
		}
	}
	if _, cmd, _ := reg.LookupCommand("/stats"); !cmd.AdminOnly {
		t.Fatal("/stats must be admin only")
	}
	if reg.TextFallback() == nil {
		t.Fatal("text fallback not set")
	}
}
