package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/service"
	"throwmail/backend/internal/storage/memory"
)

type testEnv struct {
	router *gin.Engine
	inbox  *service.InboxService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Mailbox: config.MailboxConfig{
			Domains: []string{"throw.mail", "temp.example"},
			TTL:     10 * time.Minute,
		},
		Message: config.MessageConfig{
			TTL: 10 * time.Minute,
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}

	store := memory.NewStore()
	mailboxes := service.NewMailboxService(store, cfg, nil)
	inbox := service.NewInboxService(store, cfg)
	authorizer := service.NewAuthorizer(mailboxes, nil, zap.NewNop())

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxes,
		InboxService:   inbox,
		Authorizer:     authorizer,
		Logger:         zap.NewNop(),
	})

	return &testEnv{router: router, inbox: inbox}
}

func (e *testEnv) generate(t *testing.T, body string) generateMailResponse {
	t.Helper()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/mail", strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp generateMailResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGenerateMail(t *testing.T) {
	env := newTestEnv(t)

	t.Run("返回令牌地址和过期时刻", func(t *testing.T) {
		resp := env.generate(t, "")

		assert.Len(t, resp.User, 32)
		assert.True(t, strings.HasSuffix(resp.Mail, "@throw.mail"))

		// ttl 是绝对的 Unix 秒时刻
		expires := time.Unix(resp.TTL, 0)
		assert.WithinDuration(t, time.Now().Add(10*time.Minute), expires, 10*time.Second)
	})

	t.Run("请求体指定域名", func(t *testing.T) {
		resp := env.generate(t, `{"domain":"temp.example"}`)
		assert.True(t, strings.HasSuffix(resp.Mail, "@temp.example"))
	})

	t.Run("未配置的域名返回400", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/mail", strings.NewReader(`{"domain":"evil.example"}`))
		req.Header.Set("Content-Type", "application/json")
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCheckInbox(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mb := env.generate(t, "")

	t.Run("缺少令牌返回403且响应体为空", func(t *testing.T) {
		w := httptest.NewRecorder()
		env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/mail/inbox", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Body.String())
	})

	t.Run("未知令牌返回403", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/mail/inbox", nil)
		req.Header.Set("Authorization", "deadbeef")
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("空收件箱返回空数组", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/mail/inbox", nil)
		req.Header.Set("Authorization", mb.User)
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})

	t.Run("投递后可按时间升序读取", func(t *testing.T) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		_, err := env.inbox.Append(ctx, mb.Mail, base.Add(time.Minute), domain.Payload{Subject: "second"})
		require.NoError(t, err)
		_, err = env.inbox.Append(ctx, mb.Mail, base, domain.Payload{
			From:    "alice@example.com",
			To:      []string{mb.Mail},
			Subject: "first",
			Text:    "hello",
		})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/mail/inbox", nil)
		req.Header.Set("Authorization", mb.User)
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)

		var records []inboxRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
		require.Len(t, records, 2)
		assert.Equal(t, "first", records[0].Payload.Subject)
		assert.Equal(t, "second", records[1].Payload.Subject)
		assert.Equal(t, mb.Mail, records[0].Destination)
		assert.Equal(t, "alice@example.com", records[0].Payload.From)
		assert.NotZero(t, records[0].TTL)
	})

	t.Run("令牌只能读自己的收件箱", func(t *testing.T) {
		other := env.generate(t, "")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/mail/inbox", nil)
		req.Header.Set("Authorization", other.User)
		env.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", w.Body.String())
	})
}
