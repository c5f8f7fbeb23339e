package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/storage"
)

// Store 使用内存保存邮箱与邮件数据，主要用于开发和测试。
//
// 内存引擎不会自动淘汰过期行，因此每次读取都显式过滤
// ExpiresAt 已过的记录，并依赖外部定时调用 DeleteExpired*
// 做后台清扫以限制内存增长。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*domain.Mailbox           // address -> mailbox
	byUser    map[string]string                    // user token -> address
	messages  map[string]map[string]*domain.Message // destination -> sortKey -> message
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*domain.Mailbox),
		byUser:    make(map[string]string),
		messages:  make(map[string]map[string]*domain.Message),
	}
}

// SaveMailbox 保存邮箱记录。
func (s *Store) SaveMailbox(_ context.Context, mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *mailbox
	s.mailboxes[copied.Address] = &copied
	s.byUser[copied.User] = copied.Address
	return nil
}

// GetMailboxByUser 根据用户令牌查询邮箱，过期视为不存在。
func (s *Store) GetMailboxByUser(_ context.Context, user string) (*domain.Mailbox, error) {
	s.mu.RLock()
	address, ok := s.byUser[user]
	var mb *domain.Mailbox
	if ok {
		mb = s.mailboxes[address]
	}
	s.mu.RUnlock()

	if mb == nil || mb.Expired(time.Now()) {
		return nil, storage.ErrMailboxNotFound
	}
	copied := *mb
	return &copied, nil
}

// GetMailboxByAddress 根据完整地址查询邮箱，过期视为不存在。
func (s *Store) GetMailboxByAddress(_ context.Context, address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	mb := s.mailboxes[address]
	s.mu.RUnlock()

	if mb == nil || mb.Expired(time.Now()) {
		return nil, storage.ErrMailboxNotFound
	}
	copied := *mb
	return &copied, nil
}

// DeleteExpiredMailboxes 删除所有过期邮箱，返回删除数量。
func (s *Store) DeleteExpiredMailboxes(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for address, mb := range s.mailboxes {
		if mb.Expired(now) {
			delete(s.mailboxes, address)
			delete(s.byUser, mb.User)
			count++
		}
	}
	return count, nil
}

// SaveMessage 保存一封邮件，同键覆盖。
func (s *Store) SaveMessage(_ context.Context, message *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox, ok := s.messages[message.Destination]
	if !ok {
		inbox = make(map[string]*domain.Message)
		s.messages[message.Destination] = inbox
	}
	copied := *message
	inbox[copied.SortKey()] = &copied
	return nil
}

// ListMessagesByDestination 返回某个地址下全部未过期邮件，按时间戳升序。
//
// 空收件箱返回空切片，不是错误。
func (s *Store) ListMessagesByDestination(_ context.Context, destination string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	result := make([]domain.Message, 0, len(s.messages[destination]))
	for _, msg := range s.messages[destination] {
		if msg.Expired(now) {
			continue
		}
		result = append(result, *msg)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// DeleteExpiredMessages 删除所有过期邮件，返回删除数量。
func (s *Store) DeleteExpiredMessages(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for destination, inbox := range s.messages {
		for key, msg := range inbox {
			if msg.Expired(now) {
				delete(inbox, key)
				count++
			}
		}
		if len(inbox) == 0 {
			delete(s.messages, destination)
		}
	}
	return count, nil
}

// Close 关闭存储连接。内存存储无需释放资源。
func (s *Store) Close() error {
	return nil
}

// Health 健康检查。内存存储总是健康的。
func (s *Store) Health(_ context.Context) error {
	return nil
}
