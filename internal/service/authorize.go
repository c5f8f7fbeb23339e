package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/monitoring"
)

// Authorizer 实现授权闸门：把调用方出示的身份凭证解析为收件地址。
//
// 纯判定函数，除一次登记表读取外没有副作用。
type Authorizer struct {
	mailboxes *MailboxService
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewAuthorizer 创建授权闸门。
func NewAuthorizer(mailboxes *MailboxService, metrics *monitoring.Metrics, log *zap.Logger) *Authorizer {
	return &Authorizer{
		mailboxes: mailboxes,
		metrics:   metrics,
		log:       log,
	}
}

// Authorize 判定一组身份凭证值。
//
// 明确策略：只考察第一个凭证值，传输层出示多个时其余一律忽略。
// 令牌格式错误、未知、已过期三种失败折叠为同一种拒绝结果，
// 避免成为令牌枚举的侧信道。
func (a *Authorizer) Authorize(ctx context.Context, identitySource []string) domain.Decision {
	token := firstToken(identitySource)
	if token == "" {
		return a.deny()
	}

	mailbox, err := a.mailboxes.LookupByUser(ctx, token)
	if err != nil {
		return a.deny()
	}

	if a.metrics != nil {
		a.metrics.RecordAuthorization(true)
	}
	return domain.Decision{
		Authorized: true,
		Address:    mailbox.Address,
	}
}

func (a *Authorizer) deny() domain.Decision {
	if a.metrics != nil {
		a.metrics.RecordAuthorization(false)
	}
	return domain.Decision{Authorized: false}
}

// firstToken 取第一个凭证值并去掉可选的 Bearer 前缀。
func firstToken(identitySource []string) string {
	if len(identitySource) == 0 {
		return ""
	}
	token := strings.TrimSpace(identitySource[0])
	if rest, ok := strings.CutPrefix(token, "Bearer "); ok {
		token = strings.TrimSpace(rest)
	}
	return token
}
