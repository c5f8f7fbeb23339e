package domain

import "time"

// Payload 表示一封邮件的结构化内容。
//
// 对核心而言这是不透明数据：入站管道原样写入，收件接口原样返回，
// 任何组件都不解释其中的字段。
type Payload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Message 表示投递到某个收件地址的一封邮件。
//
// (Destination, Timestamp) 是唯一键：同键重复写入以后写覆盖先写，
// 这是已知并接受的限制（时间戳实际来自不同的投递时刻，冲突概率极低）。
type Message struct {
	Destination string    `json:"destination"`
	Timestamp   time.Time `json:"timestamp"`
	Payload     Payload   `json:"payload"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired 在指定时间判断邮件是否已过期。
func (m *Message) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// SortKey 返回排序键字符串，用作同一收件地址下的消息键。
func (m *Message) SortKey() string {
	return m.Timestamp.UTC().Format(time.RFC3339Nano)
}
