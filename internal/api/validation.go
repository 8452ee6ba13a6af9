package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"certEngine/internal/certificate"
)

// registerValidators 向 gin 的 validator 引擎注册证书相关的校验标签：
//   - certcolor：6 位十六进制颜色，可带 '#'
//   - certkind：空字符串或三种模板类型之一
func registerValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("certcolor", func(fl validator.FieldLevel) bool {
		return certificate.ValidColor(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("certkind", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		return raw == "" || certificate.Kind(raw).Valid()
	})
}

// eventIDParam 读取路径中的 :eventId。
func eventIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("eventId"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid event id")
		return 0, false
	}
	return uint(id), true
}

// kindParam parses a template type from the path or query; empty means the default kind.
func kindParam(c *gin.Context, raw string) (certificate.Kind, bool) {
	kind, err := certificate.ParseKind(raw)
	if err != nil {
		BadRequest(c, err.Error())
		return "", false
	}
	return kind, true
}
