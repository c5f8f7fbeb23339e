package service

import (
	"context"
	"fmt"
	"time"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/storage"
)

// InboxService 封装收件存储的业务操作。
type InboxService struct {
	repo storage.MessageRepository
	cfg  *config.Config
}

// NewInboxService 创建收件业务服务。
func NewInboxService(repo storage.MessageRepository, cfg *config.Config) *InboxService {
	return &InboxService{repo: repo, cfg: cfg}
}

// Append 向指定地址追加一封邮件。
//
// 不保证幂等：同 (destination, timestamp) 的重复调用为覆盖写，
// 这正好吸收上游传输层 at-least-once 重投产生的重复。
func (s *InboxService) Append(ctx context.Context, destination string, timestamp time.Time, payload domain.Payload) (*domain.Message, error) {
	message := &domain.Message{
		Destination: destination,
		Timestamp:   timestamp.UTC(),
		Payload:     payload,
		ExpiresAt:   time.Now().UTC().Add(s.cfg.Message.TTL),
	}

	if err := s.repo.SaveMessage(ctx, message); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return message, nil
}

// ListByDestination 返回指定地址的全部未过期邮件，按时间戳升序。
//
// 空收件箱返回空切片，不是错误。
func (s *InboxService) ListByDestination(ctx context.Context, destination string) ([]domain.Message, error) {
	messages, err := s.repo.ListMessagesByDestination(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}
