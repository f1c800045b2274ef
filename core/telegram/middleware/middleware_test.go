package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type testContext struct {
	tele.Context
	user  *tele.User
	store map[string]interface{}
}

func newTestContext(userID int64) *testContext {
	return &testContext{user: &tele.User{ID: userID}, store: map[string]interface{}{}}
}

func (c *testContext) Sender() *tele.User            { return c.user }
func (c *testContext) Chat() *tele.Chat              { return &tele.Chat{ID: c.user.ID} }
func (c *testContext) Text() string                  { return "42" }
func (c *testContext) Get(key string) interface{}    { return c.store[key] }
func (c *testContext) Set(key string, v interface{}) { c.store[key] = v }
func (c *testContext) Update() tele.Update {
	return tele.Update{ID: 7, Message: &tele.Message{Text: "42"}}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	cases := []struct {
		name     string
		adminID  int64
		userID   int64
		wantNext bool
	}{
		{"admin passes", 10, 10, true},
		{"other user rejected", 10, 11, false},
		{"no admin configured", 0, 10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ran, rejected bool
			h := AdminOnlyMiddleware(AdminOptions{
				AdminID:  tc.adminID,
				OnReject: func(tele.Context) error { rejected = true; return nil },
			})(func(tele.Context) error { ran = true; return nil })

			if err := h(newTestContext(tc.userID)); err != nil {
				t.Fatalf("handler: %v", err)
			}
			if ran != tc.wantNext || rejected == tc.wantNext {
				t.Fatalf("ran=%v rejected=%v", ran, rejected)
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })

	err := h(newTestContext(1))
	var pe ErrHandlerPanic
	if !errors.As(err, &pe) || pe.Value != "boom" {
		t.Fatalf("err = %v, want ErrHandlerPanic(boom)", err)
	}
	if pe.Code() != "panic" {
		t.Fatalf("code = %q", pe.Code())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var handled, limited int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Now:       func() time.Time { return now },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})(func(tele.Context) error { handled++; return nil })

	_ = h(newTestContext(1))
	_ = h(newTestContext(1))
	_ = h(newTestContext(2))
	now = now.Add(2 * time.Second)
	_ = h(newTestContext(1))

	if handled != 3 || limited != 1 {
		t.Fatalf("handled=%d limited=%d, want 3/1", handled, limited)
	}
}

func TestRateLimitMiddlewareExcludedKind(t *testing.T) {
	var handled int
	h := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})(func(tele.Context) error { handled++; return nil })

	for i := 0; i < 3; i++ {
		_ = h(newTestContext(1))
	}
	if handled != 3 {
		t.Fatalf("handled = %d, want 3", handled)
	}
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	c := newTestContext(5)
	h := LoggerMiddleware(func(tele.Context) error { return nil })
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rid, _ := c.store["rid"].(string); rid == "" {
		t.Fatal("rid not stored on context")
	}
}
