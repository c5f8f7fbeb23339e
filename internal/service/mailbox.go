package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/monitoring"
	"throwmail/backend/internal/storage"
)

var (
	// ErrDomainNotAllowed 表示请求的域名不在配置列表中。
	ErrDomainNotAllowed = errors.New("domain not allowed")
)

const localPartLength = 10

// MailboxService 封装邮箱登记的业务操作。
type MailboxService struct {
	repo      storage.MailboxRepository
	cfg       *config.Config
	domainSet map[string]struct{}
	metrics   *monitoring.Metrics

	// rand.Rand 非并发安全，生成本地部分时加锁。
	mu       sync.Mutex
	random   *rand.Rand
	alphabet []rune
}

// NewMailboxService 创建邮箱业务服务。
func NewMailboxService(repo storage.MailboxRepository, cfg *config.Config, metrics *monitoring.Metrics) *MailboxService {
	domainSet := make(map[string]struct{}, len(cfg.Mailbox.Domains))
	for _, d := range cfg.Mailbox.Domains {
		domainSet[d] = struct{}{}
	}

	return &MailboxService{
		repo:      repo,
		cfg:       cfg,
		domainSet: domainSet,
		metrics:   metrics,
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
		alphabet: []rune("abcdefghijklmnopqrstuvwxyz" +
			"ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"),
	}
}

// Generate 创建一个新的临时邮箱。
//
// 用户令牌取 UUIDv4 的十六进制形式（128 位熵）；本地部分为固定长度的
// 随机字母数字串，生成时不做唯一性校验。碰撞概率视为可忽略，
// 这是明确接受的风险而非缺陷。
func (s *MailboxService) Generate(ctx context.Context, requestedDomain string) (*domain.Mailbox, error) {
	selectedDomain := s.pickDomain(requestedDomain)
	if selectedDomain == "" {
		return nil, ErrDomainNotAllowed
	}

	localPart := s.randomLocalPart()
	now := time.Now().UTC()

	mailbox := &domain.Mailbox{
		User:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Address:   fmt.Sprintf("%s@%s", localPart, selectedDomain),
		LocalPart: localPart,
		Domain:    selectedDomain,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.Mailbox.TTL),
	}

	if err := s.repo.SaveMailbox(ctx, mailbox); err != nil {
		return nil, fmt.Errorf("save mailbox: %w", err)
	}

	if s.metrics != nil {
		s.metrics.MailboxesGenerated.Inc()
	}

	return mailbox, nil
}

// LookupByUser 根据用户令牌解析邮箱。
//
// 存储实现已过滤过期记录，这里仍显式检查一次 ExpiresAt，
// 保证换用不感知 TTL 的存储引擎时语义不变。
func (s *MailboxService) LookupByUser(ctx context.Context, user string) (*domain.Mailbox, error) {
	mailbox, err := s.repo.GetMailboxByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if mailbox.Expired(time.Now()) {
		return nil, storage.ErrMailboxNotFound
	}
	return mailbox, nil
}

// pickDomain 挑选合法的邮箱域名，空请求使用默认域名。
func (s *MailboxService) pickDomain(requested string) string {
	if requested == "" {
		return s.cfg.Mailbox.Domains[0]
	}
	requested = strings.ToLower(strings.TrimSpace(requested))
	if _, ok := s.domainSet[requested]; ok {
		return requested
	}
	return ""
}

// randomLocalPart 生成固定长度的随机本地部分。
func (s *MailboxService) randomLocalPart() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := make([]rune, localPartLength)
	for i := range b {
		b[i] = s.alphabet[s.random.Intn(len(s.alphabet))]
	}
	return string(b)
}
