package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
	tg "github.com/m3rciful/pocketreg/core/telegram"
	"github.com/m3rciful/pocketreg/internal/postback"
	"github.com/m3rciful/pocketreg/internal/registration"
	"github.com/m3rciful/pocketreg/internal/storage/filestore"
)

func testConfig() *coreconfig.Config {
	return &coreconfig.Config{
		Telegram: coreconfig.TelegramConfig{Token: "123:abc", RunMode: coreconfig.RunModeWebhook, AdminID: 1},
		Webhook:  coreconfig.WebhookConfig{URL: "https://example.test", Path: "/"},
		HTTP:     coreconfig.HTTPConfig{Listen: "127.0.0.1", PostbackPath: "/pocket/reg", ShutdownTimeoutSeconds: 1},
		Storage:  coreconfig.StorageConfig{Driver: coreconfig.StorageFile},
	}
}

func updateBody(updateID int, userID int64, text string) string {
	b, _ := json.Marshal(map[string]any{
		"update_id": updateID,
		"message": map[string]any{
			"message_id": updateID,
			"date":       0,
			"chat":       map[string]any{"id": userID, "type": "private"},
			"from":       map[string]any{"id": userID, "first_name": "u"},
			"text":       text,
		},
	})
	return string(b)
}

func TestRegistrationFlowThroughWebhookAndPostback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	store := filestore.New(filepath.Join(t.TempDir(), "db.json"))
	a := New(cfg, store, nil)

	opts, err := a.TelegramRunOptions()
	if err != nil {
		t.Fatalf("TelegramRunOptions: %v", err)
	}
	// unreachable API: replies fail fast and must not break the flow
	opts.Settings = &tele.Settings{
		Token:       cfg.Telegram.Token,
		URL:         "http://127.0.0.1:1",
		Offline:     true,
		Synchronous: true,
		Poller:      &tele.Webhook{IgnoreSetWebhook: true},
	}
	opts.DisableHelperDispatcher = true

	ready := make(chan struct{})
	onStart := opts.OnStart
	opts.OnStart = func(ctx context.Context, rt tg.Runtime) error {
		if err := onStart(ctx, rt); err != nil {
			return err
		}
		close(ready)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.RunTelegram(ctx, opts) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("RunTelegram exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not start")
	}

	h := a.server.Handler()
	post := func(body string) {
		t.Helper()
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		if w.Code != http.StatusOK {
			t.Fatalf("webhook code = %d", w.Code)
		}
	}
	post(updateBody(1, 5, "/start"))
	post(updateBody(2, 5, "abc"))
	post(updateBody(3, 5, "42"))

	doc, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec, ok := doc.User("5"); !ok || rec.Status != registration.StatusWaitingReg || rec.EnteredID != "42" {
		t.Fatalf("user 5 = %+v, %v", rec, ok)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pocket/reg?click_id=c1&trader_id=42", nil))
	var resp postback.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || resp.Status != postback.StatusOK || resp.TraderID != "42" {
		t.Fatalf("postback = %d %+v", w.Code, resp)
	}
	if doc, _ = store.Load(context.Background()); doc.StateOf("5") != registration.StateConfirmed {
		t.Fatalf("state = %s, want confirmed", doc.StateOf("5"))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunTelegram: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestServerOptionsFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Port = 9000
	cfg.Webhook.SecretToken = "s"
	opts := New(cfg, filestore.New(filepath.Join(t.TempDir(), "db.json")), nil).serverOptions()

	if opts.Addr != "127.0.0.1:9000" || opts.PostbackPath != "/pocket/reg" || opts.WebhookPath != "/" {
		t.Fatalf("options = %+v", opts)
	}
	if opts.SecretToken != "s" || opts.ShutdownTimeout != time.Second {
		t.Fatalf("options = %+v", opts)
	}
}
