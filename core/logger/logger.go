// Package logger owns the process-wide structured slog logger and the
// per-component loggers derived from it.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/m3rciful/pocketreg/core/buildinfo"
	coreconfig "github.com/m3rciful/pocketreg/core/config"
)

const writerBuffer = 64 * 1024

var (
	mu      sync.Mutex
	started bool
	stopped bool

	sink    *asyncWriter
	closers []io.Closer

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(1, 50)
	trace        bool

	// L is the base logger. Until InitLogger runs it writes plain text to stdout.
	L = slog.New(slog.NewTextHandler(os.Stdout, nil))

	TG    = L.With("component", "tg")
	TWire = L.With("component", "tg.wire")
	DB    = L.With("component", "db")
	MIG   = L.With("component", "db.migrate")
	HTTP  = L.With("component", "http")
)

// InitLogger replaces L with the structured handler described by cfg.
// Calls after the first are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}
	started = true

	s := resolveSettings(cfg)
	levelVar.Set(s.level)
	debugSampler.Set(s.sampleNum, s.sampleDen)
	trace = s.trace

	var sinks []io.Writer
	sinks, closers = s.openSinks()
	sink = newAsyncWriter(sinks, writerBuffer)

	setBase(slog.New(newStructuredHandler(handlerConfig{
		level:    &levelVar,
		writer:   sink,
		format:   s.format,
		keyOrder: s.keyOrder,
	})))

	L.LogAttrs(context.Background(), slog.LevelInfo, "",
		slog.String("component", "app"),
		slog.String("event", "startup"),
		slog.String("version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("go_version", runtime.Version()),
		slog.String("cfg_profile", s.profile),
		slog.String("level", s.level.String()),
	)
	return nil
}

func setBase(base *slog.Logger) {
	L = base
	slog.SetDefault(base)
	TG = Component("tg")
	TWire = Component("tg.wire")
	DB = Component("db")
	MIG = Component("db.migrate")
	HTTP = Component("http")
}

// Shutdown drains buffered records and closes the log file. It is safe to
// call more than once.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if stopped {
		return nil
	}
	stopped = true

	var errs []error
	if sink != nil {
		errs = append(errs, sink.Flush(), sink.Close())
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ShouldSampleDebug reports whether a high-volume debug record should be
// written. LOG_TRACE=1 lets every record through.
func ShouldSampleDebug() bool {
	return trace || debugSampler.Allow()
}
