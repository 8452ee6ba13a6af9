package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"certEngine/internal/api/middleware"
	"certEngine/internal/certificate"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// statusFromError 将领域错误映射为 400/404/500 三类状态码。
// 未配置模板、背景图不可用都属于生成失败，返回 500。
func statusFromError(err error) int {
	switch {
	case errors.Is(err, certificate.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, certificate.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// exposesDetail reports whether err's text can be shown to the caller.
// Unexpected server failures keep their detail in the log only.
func exposesDetail(err error, status int) bool {
	return status < http.StatusInternalServerError ||
		errors.Is(err, certificate.ErrTemplateNotConfigured) ||
		errors.Is(err, certificate.ErrAssetUnavailable)
}

// respondError writes err with its mapped status.
func respondError(c *gin.Context, err error, msg string) {
	respondErrorStatus(c, statusFromError(err), err, msg)
}

func respondErrorStatus(c *gin.Context, status int, err error, msg string) {
	body := gin.H{"error": msg}
	if exposesDetail(err, status) {
		body["detail"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFromContext(c).Error(msg, slog.Any("error", err))
	}
	if step, ok := certificate.FailedStep(err); ok {
		body["step"] = step
	}
	c.JSON(status, body)
}
