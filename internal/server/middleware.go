package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/m3rciful/pocketreg/core/logger"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

// requestID reuses an inbound X-Request-ID or mints a new one and stores it
// in the request context for every log line of the request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := logger.SanitizeLimit(c.GetHeader(HeaderRequestID), 64)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := logger.WithRID(c.Request.Context(), rid)
		ctx = logger.WithLogger(ctx, logger.HTTP)
		if route := c.FullPath(); route != "" {
			ctx = logger.WithRoute(ctx, route)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}

// accessLog writes one line per request. Health probes are logged at debug.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		level := slog.LevelInfo
		status := "ok"
		switch {
		case code >= http.StatusInternalServerError:
			level, status = slog.LevelError, "fail"
		case code >= http.StatusBadRequest:
			level, status = slog.LevelWarn, "fail"
		case c.FullPath() == "/healthz":
			level = slog.LevelDebug
		}
		logger.HTTP.LogAttrs(c.Request.Context(), level, "",
			slog.String("event", "http.request"),
			slog.String("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("http_code", code),
			slog.Duration("duration", logger.Took(start)),
		)
	}
}

// recovery turns a handler panic into a logged 500.
func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		logger.HTTP.LogAttrs(c.Request.Context(), slog.LevelError, "",
			slog.String("event", "http.panic"),
			slog.String("status", "fail"),
			slog.String("path", c.Request.URL.Path),
			slog.Any("err", rec),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"status": "ERROR", "error": "internal"})
	})
}
