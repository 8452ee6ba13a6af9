package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const slogLoggerKey = "slogLogger"

// SlogLoggerMiddleware 将 slog 集成到 Gin，并注入 Correlation ID 与活动 ID。
// 5xx 记为 Error，4xx 记为 Warn。
func SlogLoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		attrs := []any{
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
		}
		if eventID := c.Param("eventId"); eventID != "" {
			attrs = append(attrs, slog.String("event_id", eventID))
		}
		requestLogger := logger.With(attrs...)
		c.Set(slogLoggerKey, requestLogger)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		requestLogger.Log(c.Request.Context(), level, "request completed",
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes", c.Writer.Size()),
		)
	}
}

// LoggerFromContext 返回上下文中的 slog.Logger。
func LoggerFromContext(c *gin.Context) *slog.Logger {
	if value, ok := c.Get(slogLoggerKey); ok {
		if logger, ok := value.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}
