package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/service"
	"throwmail/backend/internal/storage/memory"
)

func newAuthTestRouter(t *testing.T) (*gin.Engine, *service.MailboxService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			Domains: []string{"throw.mail"},
			TTL:     10 * time.Minute,
		},
	}
	mailboxes := service.NewMailboxService(memory.NewStore(), cfg, nil)
	authorizer := service.NewAuthorizer(mailboxes, nil, zap.NewNop())

	router := gin.New()
	router.GET("/protected", TokenAuth(authorizer), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextKeyAddress))
	})
	return router, mailboxes
}

func TestTokenAuth(t *testing.T) {
	router, mailboxes := newAuthTestRouter(t)

	t.Run("有效令牌放行并注入地址", func(t *testing.T) {
		mb, err := mailboxes.Generate(context.Background(), "")
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", mb.User)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, mb.Address, w.Body.String())
	})

	t.Run("缺少令牌返回403且响应体为空", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("未知令牌返回403", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "not-a-real-token")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)

	t.Run("突发额度内放行", func(t *testing.T) {
		assert.True(t, limiter.Allow("10.0.0.1"))
		assert.True(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("超出突发额度拒绝", func(t *testing.T) {
		assert.False(t, limiter.Allow("10.0.0.1"))
	})

	t.Run("不同IP独立计数", func(t *testing.T) {
		assert.True(t, limiter.Allow("10.0.0.2"))
	})
}
