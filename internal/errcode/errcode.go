package errcode

import (
	"errors"

	"certEngine/internal/certificate"
)

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如资源缺失但流程可继续）
// - 5xxx：系统错误（需要中断流程）
const (
	OK              = 0
	InvalidInput    = 4000
	ResourceMissing = 4004
	SystemError     = 5000
)

// FromError maps a generation error to a notification code.
func FromError(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, certificate.ErrInvalidInput):
		return InvalidInput
	case errors.Is(err, certificate.ErrNotFound), errors.Is(err, certificate.ErrTemplateNotConfigured):
		return ResourceMissing
	default:
		return SystemError
	}
}

// Worse returns the more severe of two codes; a larger code is more severe.
func Worse(a, b int) int {
	if b > a {
		return b
	}
	return a
}
