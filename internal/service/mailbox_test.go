package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/storage"
	"throwmail/backend/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Mailbox: config.MailboxConfig{
			Domains: []string{"throw.mail", "temp.example"},
			TTL:     10 * time.Minute,
		},
		Message: config.MessageConfig{
			TTL: 10 * time.Minute,
		},
	}
}

func TestMailboxService_Generate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewMailboxService(store, testConfig(), nil)

	t.Run("生成邮箱成功", func(t *testing.T) {
		before := time.Now().UTC()
		mb, err := svc.Generate(ctx, "")
		require.NoError(t, err)

		assert.Len(t, mb.User, 32)
		assert.NotContains(t, mb.User, "-")
		assert.Equal(t, "throw.mail", mb.Domain)
		assert.Equal(t, mb.LocalPart+"@"+mb.Domain, mb.Address)
		assert.Len(t, mb.LocalPart, 10)

		// 过期时刻应落在 now+TTL 附近
		assert.WithinDuration(t, before.Add(10*time.Minute), mb.ExpiresAt, 5*time.Second)
	})

	t.Run("生成后可按令牌解析", func(t *testing.T) {
		mb, err := svc.Generate(ctx, "")
		require.NoError(t, err)

		got, err := svc.LookupByUser(ctx, mb.User)
		require.NoError(t, err)
		assert.Equal(t, mb.Address, got.Address)
	})

	t.Run("指定域名生效且不区分大小写", func(t *testing.T) {
		mb, err := svc.Generate(ctx, "Temp.Example")
		require.NoError(t, err)
		assert.Equal(t, "temp.example", mb.Domain)
	})

	t.Run("未配置的域名被拒绝", func(t *testing.T) {
		_, err := svc.Generate(ctx, "evil.example")
		assert.ErrorIs(t, err, ErrDomainNotAllowed)
	})

	t.Run("连续生成的令牌互不相同", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			mb, err := svc.Generate(ctx, "")
			require.NoError(t, err)
			assert.False(t, seen[mb.User])
			seen[mb.User] = true
		}
	})
}

func TestMailboxService_GenerateProperties(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := testConfig()
	svc := NewMailboxService(store, cfg, nil)

	alphabet := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	rapid.Check(t, func(t *rapid.T) {
		requested := rapid.SampledFrom([]string{"", "throw.mail", "temp.example"}).Draw(t, "domain")

		mb, err := svc.Generate(ctx, requested)
		require.NoError(t, err)

		assert.Contains(t, cfg.Mailbox.Domains, mb.Domain)
		assert.Len(t, mb.LocalPart, 10)
		for _, r := range mb.LocalPart {
			assert.True(t, strings.ContainsRune(alphabet, r))
		}
		assert.True(t, mb.ExpiresAt.After(mb.CreatedAt))
	})
}

func TestMailboxService_LookupByUser(t *testing.T) {
	ctx := context.Background()

	t.Run("未知令牌返回未找到", func(t *testing.T) {
		svc := NewMailboxService(memory.NewStore(), testConfig(), nil)

		_, err := svc.LookupByUser(ctx, "unknown")
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})

	t.Run("过期邮箱视为不存在", func(t *testing.T) {
		store := memory.NewStore()
		cfg := testConfig()
		cfg.Mailbox.TTL = time.Nanosecond
		svc := NewMailboxService(store, cfg, nil)

		mb, err := svc.Generate(ctx, "")
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)

		_, err = svc.LookupByUser(ctx, mb.User)
		assert.ErrorIs(t, err, storage.ErrMailboxNotFound)
	})
}
