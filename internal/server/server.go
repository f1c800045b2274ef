// Package server runs the public HTTP endpoint: Telegram webhook intake,
// the registration postback and a health probe.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/m3rciful/pocketreg/core/logger"
	"github.com/m3rciful/pocketreg/internal/postback"
)

const defaultShutdownTimeout = 10 * time.Second

// Options configures routes and lifecycle of the server.
type Options struct {
	Addr         string
	PostbackPath string
	// WebhookPath mounts the update intake; empty disables it (longpoll mode).
	WebhookPath string
	// SecretToken, when set, must match X-Telegram-Bot-Api-Secret-Token.
	SecretToken     string
	ShutdownTimeout time.Duration
}

// Server wraps a gin engine and the net/http server serving it.
type Server struct {
	opts   Options
	engine *gin.Engine
	srv    *http.Server
	done   chan error
}

// New builds the router. updates may be nil when WebhookPath is empty.
func New(opts Options, pb *postback.Handler, updates UpdateProcessor) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	engine := gin.New()
	engine.Use(requestID(), accessLog(), recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if pb != nil {
		pb.Register(engine, opts.PostbackPath)
	}
	if opts.WebhookPath != "" && updates != nil {
		engine.POST(opts.WebhookPath, webhookIntake(updates, opts.SecretToken))
	}

	return &Server{
		opts:   opts,
		engine: engine,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and serves in the background. Bind errors are
// returned immediately so a taken port fails start-up.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		logger.HTTP.Error("", slog.String("event", "http.listen"), slog.String("status", "fail"),
			slog.String("listen", s.opts.Addr), logger.Err(err))
		return fmt.Errorf("http: listen %s: %w", s.opts.Addr, err)
	}

	s.done = make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.HTTP.Error("", slog.String("event", "http.serve"), slog.String("status", "fail"), logger.Err(err))
		}
		s.done <- err
	}()

	logger.HTTP.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "http.listen"),
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
		slog.String("path", s.opts.PostbackPath),
	)
	return nil
}

// Shutdown drains in-flight requests, bounded by the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	err := s.srv.Shutdown(ctx)
	if err == nil {
		err = <-s.done
	}
	status := "ok"
	if err != nil {
		status = "fail"
	}
	logger.HTTP.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "http.shutdown"),
		slog.String("status", status),
		slog.Duration("duration", logger.Took(start)),
		logger.Err(err),
	)
	return err
}
