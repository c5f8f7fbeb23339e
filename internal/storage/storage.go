package storage

import (
	"context"
	"errors"

	"throwmail/backend/internal/domain"
)

var (
	// ErrMailboxNotFound 表示邮箱不存在或已过期。
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrStorageUnavailable 表示底层存储读写失败。
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// MailboxRepository 定义邮箱登记表的存取操作。
//
// 所有读取都必须排除已过期的记录：存储引擎自身不过滤时（内存实现），
// 由实现显式检查 ExpiresAt。
type MailboxRepository interface {
	SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	GetMailboxByUser(ctx context.Context, user string) (*domain.Mailbox, error)
	GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error)
	DeleteExpiredMailboxes(ctx context.Context) (int, error)
}

// MessageRepository 定义收件存储的存取操作。
//
// SaveMessage 不校验收件地址对应的邮箱是否存在：入站投递与邮箱登记
// 相互独立。同 (destination, timestamp) 重复写入为覆盖语义。
type MessageRepository interface {
	SaveMessage(ctx context.Context, message *domain.Message) error
	ListMessagesByDestination(ctx context.Context, destination string) ([]domain.Message, error)
	DeleteExpiredMessages(ctx context.Context) (int, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	MessageRepository

	Close() error
	Health(ctx context.Context) error
}
