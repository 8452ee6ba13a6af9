package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"certEngine/internal/api/middleware"
	"certEngine/internal/metrics"
)

// NewRouter 构建 Gin 路由引擎，挂载通用中间件、健康检查与 /metrics。
func NewRouter(logger *slog.Logger) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.CorrelationIDMiddleware(),
		middleware.SlogLoggerMiddleware(logger),
		metrics.GinMiddleware("/metrics"),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}
