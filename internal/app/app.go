// Package app composes the registration service, the chat handlers and the
// HTTP server into one Telegram runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
	tg "github.com/m3rciful/pocketreg/core/telegram"
	"github.com/m3rciful/pocketreg/core/telegram/router"
	tgsender "github.com/m3rciful/pocketreg/core/telegram/sender"
	"github.com/m3rciful/pocketreg/internal/bot"
	"github.com/m3rciful/pocketreg/internal/postback"
	"github.com/m3rciful/pocketreg/internal/registration"
	"github.com/m3rciful/pocketreg/internal/server"
)

// Closer releases the store backing the service.
type Closer interface {
	Close() error
}

// App holds the wired components for one process.
type App struct {
	cfg      *coreconfig.Config
	svc      *registration.Service
	handlers *bot.Handlers
	registry *tg.Registry
	closer   Closer

	server *server.Server
}

// New wires the service on top of store. closer may be nil.
func New(cfg *coreconfig.Config, store registration.Store, closer Closer) *App {
	svc := registration.NewService(store, registration.Options{
		RejectDuplicateClaims: cfg.Storage.RejectDuplicateClaims,
	})
	handlers := bot.NewHandlers(svc)
	reg := tg.NewRegistry()
	handlers.Register(reg)

	return &App{
		cfg:      cfg,
		svc:      svc,
		handlers: handlers,
		registry: reg,
		closer:   closer,
	}
}

// Service exposes the registration service.
func (a *App) Service() *registration.Service {
	return a.svc
}

// TelegramRunOptions describes middlewares, routes and lifecycle hooks for
// tg.RunTelegram.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	if a.cfg == nil {
		return tg.RunOptions{}, fmt.Errorf("app: nil config")
	}

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       a.cfg.Telegram.AdminID,
		OnAdminReject: bot.NotAllowed,
	})
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{})...)

	return tg.RunOptions{
		Config:            a.cfg,
		Registry:          a.registry,
		DispatcherOptions: tgsender.OptionsFrom(a.cfg.Sender),
		Middlewares:       tg.DefaultMiddlewares(a.cfg, nil),
		Routes:            routes,
		OnStart:           a.start,
		OnStop:            a.stop,
	}, nil
}

// start builds the notification gateway on the live bot and opens the HTTP
// server. The update intake is mounted only in webhook mode.
func (a *App) start(ctx context.Context, rt tg.Runtime) error {
	pb := postback.NewHandler(a.svc, bot.NewGateway(rt.Bot))

	opts := a.serverOptions()
	var updates server.UpdateProcessor
	if rt.Webhook {
		updates = rt.Bot
	} else {
		opts.WebhookPath = ""
	}
	a.server = server.New(opts, pb, updates)
	return a.server.Start(ctx)
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
	}
	return errors.Join(errs...)
}

func (a *App) serverOptions() server.Options {
	return server.Options{
		Addr:            a.cfg.HTTP.Addr(),
		PostbackPath:    a.cfg.HTTP.PostbackPath,
		WebhookPath:     a.cfg.Webhook.Path,
		SecretToken:     a.cfg.Webhook.SecretToken,
		ShutdownTimeout: time.Duration(a.cfg.HTTP.ShutdownTimeoutSeconds) * time.Second,
	}
}
