package domain

import (
	"time"
)

// Mailbox 表示一个临时邮箱及其归属令牌。
//
// User 是邮箱的唯一凭证：创建时一次性下发，不可找回、不可重发。
// Address 与 User 一一对应；过期后整条记录视为不存在。
type Mailbox struct {
	User      string    `json:"user"`
	Address   string    `json:"address"`
	LocalPart string    `json:"localPart"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired 在指定时间判断邮箱是否已过期。
func (m *Mailbox) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
