package nostd

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const Token = "X-Strike-Token"

// GetToken 依次从 Authorization: Bearer、自定义请求头、查询参数中取令牌
func GetToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	token := c.Request().Header.Get(Token)
	if len(token) > 0 {
		return token
	}
	return c.QueryParam(Token)
}
