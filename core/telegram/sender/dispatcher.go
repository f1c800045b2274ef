// Package sender delivers chat replies on a small worker pool so update
// handlers return before the Bot API answers.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/pocketreg/core/config"
	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/core/telegram/netutil"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull means every queue slot is taken; the caller may send inline.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options sizes the pool and bounds retries of one reply.
type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	// RetryBackoff grows linearly with the attempt number.
	RetryBackoff time.Duration
	// MaxDuration caps the total time spent on one reply, waits included.
	MaxDuration time.Duration
}

// OptionsFrom maps the sender config section onto dispatcher options.
func OptionsFrom(cfg coreconfig.SenderConfig) Options {
	return Options{
		QueueSize:    cfg.QueueSize,
		Workers:      cfg.Workers,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 10 * time.Second
	}
	return o
}

// Counters is a snapshot of delivery outcomes since the dispatcher started.
type Counters struct {
	Sent    uint64
	Retried uint64
	Failed  uint64
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher runs queued Bot API calls and retries those that provably did
// not reach Telegram.
type Dispatcher struct {
	opts  Options
	queue chan job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sent, retried, failed atomic.Uint64
}

// NewDispatcher starts opts.Workers workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, queue: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.queue {
				d.deliver(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run without blocking. endpoint names the Bot API method
// for logs.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.queue <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Counters returns current delivery totals.
func (d *Dispatcher) Counters() Counters {
	return Counters{Sent: d.sent.Load(), Retried: d.retried.Load(), Failed: d.failed.Load()}
}

// Close stops intake and waits until queued replies are delivered or given up.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) deliver(j job) {
	// the update that queued the reply is usually finished by now
	ctx := context.WithoutCancel(j.ctx)
	start := time.Now()
	deadline := start.Add(d.opts.MaxDuration)

	for attempt := 1; ; attempt++ {
		err := j.run()
		if err == nil {
			d.sent.Add(1)
			d.report(ctx, j, attempt, start, nil)
			return
		}

		delay, ok := d.retryDelay(attempt, err)
		if !ok || time.Now().Add(delay).After(deadline) {
			d.failed.Add(1)
			d.report(ctx, j, attempt, start, err)
			return
		}
		d.retried.Add(1)
		logger.Debug(ctx, component, "send.retry",
			slog.String("action", j.action),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("err_code", ClassifyError(err)),
		)
		time.Sleep(delay)
	}
}

// retryDelay decides whether attempt may be followed by another one.
func (d *Dispatcher) retryDelay(attempt int, err error) (time.Duration, bool) {
	if attempt > d.opts.MaxRetries || !netutil.Undelivered(err) {
		return 0, false
	}
	delay := d.opts.RetryBackoff * time.Duration(attempt)
	if wait := netutil.RetryAfter(err); wait > delay {
		delay = wait
	}
	return delay, true
}

func (d *Dispatcher) report(ctx context.Context, j job, attempts int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
		slog.Duration("duration", logger.Took(start)),
	}
	if attempts > 1 {
		attrs = append(attrs, slog.Int("attempts", attempts))
	}
	if err == nil {
		level := slog.LevelDebug
		if attempts > 1 {
			level = slog.LevelInfo
		}
		logger.LogEvent(ctx, logger.Component(component), level, "send.done",
			append(attrs, slog.String("status", "ok"))...)
		return
	}
	logger.Error(ctx, component, "send.done", append(attrs,
		slog.String("status", "fail"),
		slog.String("err", SanitizeError(err)),
		slog.String("err_code", ClassifyError(err)),
	)...)
}

// ClassifyError names the failure kind of a Bot API call for logs and error codes.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case netutil.RetryAfter(err) > 0:
		return "flood"
	case netutil.IsTimeout(err):
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	if netutil.IsDialError(err) {
		return "dial"
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatus(err); {
	case status == http.StatusForbidden:
		return "forbidden"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// SanitizeError renders err for logs with any bot token redacted.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return logger.SanitizeLimit(tokenRe.ReplaceAllString(err.Error(), "bot<redacted>"), 256)
}

func httpStatus(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	return 0
}
