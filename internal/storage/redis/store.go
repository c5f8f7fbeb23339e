package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/storage"
)

const (
	mailboxAddrPrefix = "mailbox:addr:"
	mailboxUserPrefix = "mailbox:user:"
	inboxPrefix       = "inbox:"
	messagePrefix     = "message:"
)

// Store 基于 Redis 的存储实现。
//
// 键级 TTL 承担所有记录的被动过期：
//   - 邮箱记录存于 mailbox:addr:{address}，EXPIREAT 到期后自动消失；
//   - mailbox:user:{user} 是 令牌→地址 的二级索引，与主记录同时过期；
//   - 每封邮件存于 message:{destination}:{sortKey}，按地址的有序集合
//     inbox:{destination} 以时间戳为分值维护排序。
//
// 有序集合成员不会随邮件键一起过期，读取时惰性剔除，
// 后台清扫负责兜底。
type Store struct {
	rdb *goredis.Client
}

// NewStore 连接 Redis 并创建存储实例。
func NewStore(cfg *config.RedisConfig) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{rdb: rdb}, nil
}

// NewStoreWithClient 使用已有客户端创建存储实例，测试用。
func NewStoreWithClient(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

// SaveMailbox 保存邮箱记录及其用户索引，两个键同时过期。
func (s *Store) SaveMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	data, err := json.Marshal(mailbox)
	if err != nil {
		return fmt.Errorf("%w: marshal mailbox: %v", storage.ErrStorageUnavailable, err)
	}

	pipe := s.rdb.TxPipeline()
	addrKey := mailboxAddrPrefix + mailbox.Address
	userKey := mailboxUserPrefix + mailbox.User
	pipe.Set(ctx, addrKey, data, 0)
	pipe.ExpireAt(ctx, addrKey, mailbox.ExpiresAt)
	pipe.Set(ctx, userKey, mailbox.Address, 0)
	pipe.ExpireAt(ctx, userKey, mailbox.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: save mailbox: %v", storage.ErrStorageUnavailable, err)
	}
	return nil
}

// GetMailboxByUser 通过用户索引解析邮箱。
func (s *Store) GetMailboxByUser(ctx context.Context, user string) (*domain.Mailbox, error) {
	address, err := s.rdb.Get(ctx, mailboxUserPrefix+user).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("%w: get user index: %v", storage.ErrStorageUnavailable, err)
	}
	return s.GetMailboxByAddress(ctx, address)
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(ctx context.Context, address string) (*domain.Mailbox, error) {
	data, err := s.rdb.Get(ctx, mailboxAddrPrefix+address).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, fmt.Errorf("%w: get mailbox: %v", storage.ErrStorageUnavailable, err)
	}

	var mailbox domain.Mailbox
	if err := json.Unmarshal([]byte(data), &mailbox); err != nil {
		return nil, fmt.Errorf("%w: unmarshal mailbox: %v", storage.ErrStorageUnavailable, err)
	}
	// TTL 到期与键删除之间存在窗口，读取侧再做一次显式判断。
	if mailbox.Expired(time.Now()) {
		return nil, storage.ErrMailboxNotFound
	}
	return &mailbox, nil
}

// DeleteExpiredMailboxes 对 Redis 而言是空操作：键到期即消失。
func (s *Store) DeleteExpiredMailboxes(_ context.Context) (int, error) {
	return 0, nil
}

// SaveMessage 保存一封邮件并更新收件有序集合。
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%w: marshal message: %v", storage.ErrStorageUnavailable, err)
	}

	sortKey := message.SortKey()
	msgKey := messagePrefix + message.Destination + ":" + sortKey
	inboxKey := inboxPrefix + message.Destination

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, msgKey, data, 0)
	pipe.ExpireAt(ctx, msgKey, message.ExpiresAt)
	pipe.ZAdd(ctx, inboxKey, goredis.Z{
		Score:  float64(message.Timestamp.UnixNano()),
		Member: sortKey,
	})
	pipe.ExpireAt(ctx, inboxKey, message.ExpiresAt)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: save message: %v", storage.ErrStorageUnavailable, err)
	}
	return nil
}

// ListMessagesByDestination 按时间戳升序返回某地址的全部未过期邮件。
func (s *Store) ListMessagesByDestination(ctx context.Context, destination string) ([]domain.Message, error) {
	inboxKey := inboxPrefix + destination
	members, err := s.rdb.ZRange(ctx, inboxKey, 0, -1).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []domain.Message{}, nil
		}
		return nil, fmt.Errorf("%w: range inbox: %v", storage.ErrStorageUnavailable, err)
	}

	now := time.Now()
	result := make([]domain.Message, 0, len(members))
	for _, member := range members {
		data, err := s.rdb.Get(ctx, messagePrefix+destination+":"+member).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				// 邮件键已过期，惰性剔除集合成员。
				s.rdb.ZRem(ctx, inboxKey, member)
				continue
			}
			return nil, fmt.Errorf("%w: get message: %v", storage.ErrStorageUnavailable, err)
		}

		var message domain.Message
		if err := json.Unmarshal([]byte(data), &message); err != nil {
			return nil, fmt.Errorf("%w: unmarshal message: %v", storage.ErrStorageUnavailable, err)
		}
		if message.Expired(now) {
			s.rdb.ZRem(ctx, inboxKey, member)
			continue
		}
		result = append(result, message)
	}
	return result, nil
}

// DeleteExpiredMessages 清理收件集合中指向已过期邮件的悬空成员。
func (s *Store) DeleteExpiredMessages(ctx context.Context) (int, error) {
	count := 0
	iter := s.rdb.Scan(ctx, 0, inboxPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		inboxKey := iter.Val()
		destination := inboxKey[len(inboxPrefix):]

		members, err := s.rdb.ZRange(ctx, inboxKey, 0, -1).Result()
		if err != nil {
			continue
		}
		for _, member := range members {
			exists, err := s.rdb.Exists(ctx, messagePrefix+destination+":"+member).Result()
			if err != nil || exists > 0 {
				continue
			}
			if err := s.rdb.ZRem(ctx, inboxKey, member).Err(); err == nil {
				count++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("%w: scan inboxes: %v", storage.ErrStorageUnavailable, err)
	}
	return count, nil
}

// Close 关闭 Redis 连接。
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Health 通过 PING 检查 Redis 连接。
func (s *Store) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
