package domain

import (
	"errors"
	"time"
)

// ErrNotificationInvalid 表示入站通知缺少必要字段。
var ErrNotificationInvalid = errors.New("inbound notification invalid")

// InboundNotification 是邮件传输边界投递的一条入站通知的解析结果。
//
// 一条通知对应一封入站邮件；Recipients 中的每个地址都会在收件存储中
// 产生一条独立的 Message，时间戳和内容完全相同。
type InboundNotification struct {
	Timestamp  time.Time `json:"timestamp"`
	Recipients []string  `json:"recipients"`
	Payload    Payload   `json:"payload"`
}

// Validate 校验通知的必要字段。
func (n *InboundNotification) Validate() error {
	if n.Timestamp.IsZero() {
		return ErrNotificationInvalid
	}
	if len(n.Recipients) == 0 {
		return ErrNotificationInvalid
	}
	return nil
}
