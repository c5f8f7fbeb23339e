package smtp

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/domain"
)

// fakePublisher 记录投递的事件，可切换为满载状态。
type fakePublisher struct {
	events [][]byte
	full   bool
}

func (p *fakePublisher) TryPublish(event []byte) bool {
	if p.full {
		return false
	}
	p.events = append(p.events, event)
	return true
}

func smtpTestConfig() *config.Config {
	return &config.Config{
		Mailbox: config.MailboxConfig{
			Domains: []string{"throw.mail"},
			TTL:     10 * time.Minute,
		},
		SMTP: config.SMTPConfig{
			BindAddr:        ":2525",
			Domain:          "throw.mail",
			MaxMessageBytes: 1 << 20,
		},
	}
}

func newTestSession(t *testing.T, publisher Publisher) gosmtp.Session {
	t.Helper()

	backend := NewBackend(smtpTestConfig(), publisher, zap.NewNop())
	session, err := backend.NewSession(nil)
	require.NoError(t, err)
	return session
}

func TestSession_Rcpt(t *testing.T) {
	t.Run("服务域名内的任意本地部分都接受", func(t *testing.T) {
		session := newTestSession(t, &fakePublisher{})

		assert.NoError(t, session.Rcpt("anything@throw.mail", nil))
		assert.NoError(t, session.Rcpt("<UPPER@THROW.MAIL>", nil))
	})

	t.Run("外部域名返回550", func(t *testing.T) {
		session := newTestSession(t, &fakePublisher{})

		err := session.Rcpt("user@gmail.com", nil)
		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 550, smtpErr.Code)
	})

	t.Run("非法地址返回501", func(t *testing.T) {
		session := newTestSession(t, &fakePublisher{})

		for _, addr := range []string{"no-at-sign", "@throw.mail", "user@"} {
			err := session.Rcpt(addr, nil)
			var smtpErr *gosmtp.SMTPError
			require.ErrorAs(t, err, &smtpErr, addr)
			assert.Equal(t, 501, smtpErr.Code)
		}
	})
}

func TestSession_Data(t *testing.T) {
	raw := "From: alice@example.com\r\n" +
		"To: one@throw.mail\r\n" +
		"Subject: hi\r\n" +
		"\r\n" +
		"body text\r\n"

	t.Run("接受后投递一条通知", func(t *testing.T) {
		publisher := &fakePublisher{}
		session := newTestSession(t, publisher)

		require.NoError(t, session.Mail("alice@example.com", nil))
		require.NoError(t, session.Rcpt("one@throw.mail", nil))
		require.NoError(t, session.Rcpt("two@throw.mail", nil))
		require.NoError(t, session.Data(strings.NewReader(raw)))

		require.Len(t, publisher.events, 1)

		var n domain.InboundNotification
		require.NoError(t, json.Unmarshal(publisher.events[0], &n))
		assert.Equal(t, []string{"one@throw.mail", "two@throw.mail"}, n.Recipients)
		assert.Equal(t, "alice@example.com", n.Payload.From)
		assert.Equal(t, "hi", n.Payload.Subject)
		assert.Contains(t, n.Payload.Text, "body text")
		assert.False(t, n.Timestamp.IsZero())
	})

	t.Run("队列满返回451临时错误", func(t *testing.T) {
		session := newTestSession(t, &fakePublisher{full: true})

		require.NoError(t, session.Mail("alice@example.com", nil))
		require.NoError(t, session.Rcpt("one@throw.mail", nil))

		err := session.Data(strings.NewReader(raw))
		var smtpErr *gosmtp.SMTPError
		require.ErrorAs(t, err, &smtpErr)
		assert.Equal(t, 451, smtpErr.Code)
	})

	t.Run("无法解析的内容报错", func(t *testing.T) {
		session := newTestSession(t, &fakePublisher{})

		require.NoError(t, session.Rcpt("one@throw.mail", nil))
		assert.Error(t, session.Data(strings.NewReader("garbage")))
	})
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "a@throw.mail", normalizeAddress(" <A@Throw.Mail> "))
	assert.Equal(t, "a@throw.mail", normalizeAddress("a@throw.mail"))
}
