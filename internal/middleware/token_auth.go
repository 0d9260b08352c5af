package middleware

import (
	"github.com/dushixiang/strike/internal/xe"
	"github.com/dushixiang/strike/pkg/nostd"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TokenAuthConfig 写接口令牌校验配置
type TokenAuthConfig struct {
	TokenHash string // bcrypt 哈希
	Logger    *zap.Logger
}

// TokenAuth 校验 bearer 令牌，未配置哈希时拒绝所有请求
func TokenAuth(config TokenAuthConfig) echo.MiddlewareFunc {
	hash := []byte(config.TokenHash)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := nostd.GetToken(c)
			if token == "" || len(hash) == 0 {
				config.Logger.Warn("api token missing",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return xe.ErrInvalidToken
			}
			if err := nostd.BcryptMatch(hash, []byte(token)); err != nil {
				config.Logger.Warn("invalid api token",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return xe.ErrInvalidToken
			}
			return next(c)
		}
	}
}
