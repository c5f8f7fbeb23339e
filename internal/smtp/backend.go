package smtp

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/domain"
)

// Publisher 向入站事件队列投递通知。
type Publisher interface {
	TryPublish(event []byte) bool
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 这是一个只接收邮件的 SMTP 服务器：
// 只接受发往本服务域名的邮件，外部域名一律返回 550，
// 不提供中继。服务域名内的任意本地部分都接受，
// 收件人是否仍有对应邮箱在投递侧判定。
type Backend struct {
	cfg       *config.Config
	publisher Publisher
	log       *zap.Logger
	domainSet map[string]struct{}
}

// NewBackend 创建 SMTP Backend。
func NewBackend(cfg *config.Config, publisher Publisher, log *zap.Logger) *Backend {
	domainSet := make(map[string]struct{}, len(cfg.Mailbox.Domains))
	for _, d := range cfg.Mailbox.Domains {
		domainSet[strings.ToLower(d)] = struct{}{}
	}
	return &Backend{
		cfg:       cfg,
		publisher: publisher,
		log:       log,
		domainSet: domainSet,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 防中继的关键点：只验证收件人域名是否由本服务提供，
// 域名之外的地址拒收。本地部分不做存在性检查，
// 发往已过期或从未生成过的地址的邮件照常受理，
// 读取侧的授权门决定谁能看到它们。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	parts := strings.Split(addr, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if _, ok := s.backend.domainSet[parts[1]]; !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not served here",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容：解析后打包成一条入站通知投递到队列。
func (s *session) Data(r io.Reader) error {
	maxBytes := s.backend.cfg.SMTP.MaxMessageBytes
	rawBytes, err := io.ReadAll(io.LimitReader(r, maxBytes))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(rawBytes)
	if err != nil {
		return fmt.Errorf("parse email: %w", err)
	}

	notification := domain.InboundNotification{
		Timestamp:  time.Now().UTC(),
		Recipients: s.recipients,
		Payload: domain.Payload{
			From:    s.fromAddress,
			To:      s.recipients,
			Subject: parsed.Subject,
			Text:    parsed.Text,
			HTML:    parsed.HTML,
			Headers: parsed.Headers,
		},
	}

	event, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if !s.backend.publisher.TryPublish(event) {
		s.backend.log.Warn("ingest queue full, deferring delivery",
			zap.Int("recipients", len(s.recipients)),
		)
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 2},
			Message:      "server busy, try again later",
		}
	}

	s.backend.log.Info("mail accepted",
		zap.String("from", s.fromAddress),
		zap.Int("recipients", len(s.recipients)),
		zap.Int("bytes", len(rawBytes)),
	)
	return nil
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
