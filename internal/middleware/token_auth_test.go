package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dushixiang/strike/internal/xe"
	"github.com/dushixiang/strike/pkg/nostd"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runAuth(t *testing.T, hash string, setup func(r *http.Request)) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/manager/tick", nil)
	setup(req)
	c := e.NewContext(req, httptest.NewRecorder())
	h := TokenAuth(TokenAuthConfig{TokenHash: hash, Logger: zap.NewNop()})(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	return h(c)
}

func TestTokenAuth(t *testing.T) {
	hashed, err := nostd.BcryptEncode([]byte("s3cret"))
	require.NoError(t, err)
	hash := string(hashed)

	err = runAuth(t, hash, func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") })
	assert.NoError(t, err)

	err = runAuth(t, hash, func(r *http.Request) { r.Header.Set(nostd.Token, "s3cret") })
	assert.NoError(t, err)

	err = runAuth(t, hash, func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") })
	assert.ErrorIs(t, err, xe.ErrInvalidToken)

	err = runAuth(t, hash, func(r *http.Request) {})
	assert.ErrorIs(t, err, xe.ErrInvalidToken)

	// 未配置哈希
	err = runAuth(t, "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") })
	assert.ErrorIs(t, err, xe.ErrInvalidToken)
}
