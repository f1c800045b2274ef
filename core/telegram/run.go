package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
	"github.com/m3rciful/pocketreg/core/logger"
	tghelpers "github.com/m3rciful/pocketreg/core/telegram/helpers"
	tgsender "github.com/m3rciful/pocketreg/core/telegram/sender"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// Settings overrides the bot settings derived from Config (tests use Offline).
	Settings *tele.Settings

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
	Webhook    bool
}

// RunTelegram composes a Telegram bot, runs OnStart and then serves updates
// until ctx is done. In webhook mode the bot only registers the webhook; the
// updates themselves arrive through whatever HTTP server OnStart launched.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}

	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	var settings tele.Settings
	if opts.Settings != nil {
		settings = *opts.Settings
	} else {
		pollTimeout := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
		if pollTimeout <= 0 {
			pollTimeout = defaultLongPollTimeout
		}
		settings = tele.Settings{
			Token:  cfg.Telegram.Token,
			Poller: BuildPoller(PollerOptionsFrom(cfg)),
			Client: BuildHTTPClient(ClientOptions{Timeout: pollTimeout + 10*time.Second, DialRetries: 2}),
		}
	}
	settings.OnError = onBotError

	buildStart := time.Now()
	bot, err := tele.NewBot(settings)
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	useHelperDispatcher := !opts.DisableHelperDispatcher
	if useHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if useHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
		c := dispatcher.Counters()
		logger.TG.Info("", slog.String("event", "sender.summary"),
			slog.Uint64("sent", c.Sent),
			slog.Uint64("retried", c.Retried),
			slog.Uint64("failed", c.Failed),
		)
	}

	_, webhook := bot.Poller.(*tele.Webhook)
	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg, Webhook: webhook}
	logMode(ctx, bot.Poller, time.Since(buildStart))

	// abort runs OnStop so resources handed to the app are released even
	// when start-up never completes.
	abort := func(err error) error {
		if opts.OnStop != nil {
			err = errors.Join(err, opts.OnStop(context.WithoutCancel(ctx), rt))
		}
		release()
		return err
	}

	if hook, ok := bot.Poller.(*tele.Webhook); ok && !settings.Offline {
		if err := bot.SetWebhook(hook); err != nil {
			return abort(fmt.Errorf("telegram: setWebhook failed: %w", err))
		}
		logger.TG.Info("", slog.String("event", "webhook.set"), slog.String("status", "ok"))
	}
	if !webhook && !opts.DisableWebhookCleanup && !settings.Offline {
		// a webhook left over from a deploy would make getUpdates fail
		if err := bot.RemoveWebhook(false); err != nil {
			logger.TG.Warn("", slog.String("event", "delete_webhook"), slog.String("status", "fail"), logger.Err(err))
		} else {
			logger.TG.Info("", slog.String("event", "delete_webhook"), slog.String("status", "ok"))
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	if !settings.Offline {
		SetupCommands(bot, reg)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return abort(err)
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
		runErr = errors.New("telegram: bot stopped unexpectedly")
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	switch p := poller.(type) {
	case *tele.Webhook:
		publicURL := ""
		if p.Endpoint != nil {
			publicURL = p.Endpoint.PublicURL
		}
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("public_url", publicURL),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	case *tele.LongPoller:
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	}
}

// onBotError receives errors telebot does not return to a caller: handler
// errors and poller failures.
func onBotError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "tg.error",
		slog.String("status", "fail"),
		slog.String("err", tgsender.SanitizeError(err)),
	)
}
