package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnv 设置环境变量并在测试结束时恢复原值。
func setEnv(t *testing.T, key, value string) {
	t.Helper()

	original, existed := os.LookupEnv(key)
	require.NoError(t, os.Setenv(key, value))
	t.Cleanup(func() {
		if existed {
			os.Setenv(key, original)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("默认配置", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"throw.mail"}, cfg.Mailbox.Domains)
		assert.Equal(t, 10*time.Minute, cfg.Mailbox.TTL)
		assert.Equal(t, 10*time.Minute, cfg.Message.TTL)
		assert.Equal(t, ":25", cfg.SMTP.BindAddr)
		assert.Equal(t, int64(10*1024*1024), cfg.SMTP.MaxMessageBytes)
		assert.Equal(t, "memory", cfg.Storage.Backend)
		assert.Equal(t, 4, cfg.Ingest.Workers)
		assert.Equal(t, 1024, cfg.Ingest.QueueDepth)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		setEnv(t, "THROWMAIL_SERVER_PORT", "9090")
		setEnv(t, "THROWMAIL_MAILBOX_DOMAINS", "a.example, B.Example")
		setEnv(t, "THROWMAIL_MAILBOX_TTL", "30m")
		setEnv(t, "THROWMAIL_STORAGE_BACKEND", "redis")
		setEnv(t, "THROWMAIL_REDIS_ADDRESS", "redis.internal:6380")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, []string{"a.example", "b.example"}, cfg.Mailbox.Domains)
		assert.Equal(t, 30*time.Minute, cfg.Mailbox.TTL)
		assert.Equal(t, "redis", cfg.Storage.Backend)
		assert.Equal(t, "redis.internal:6380", cfg.Redis.Address)
	})

	t.Run("非法邮箱生存时间报错", func(t *testing.T) {
		setEnv(t, "THROWMAIL_MAILBOX_TTL", "not-a-duration")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("生存时间必须为正", func(t *testing.T) {
		setEnv(t, "THROWMAIL_MAILBOX_TTL", "-5m")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("未知存储后端报错", func(t *testing.T) {
		setEnv(t, "THROWMAIL_STORAGE_BACKEND", "dynamodb")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("空域名列表报错", func(t *testing.T) {
		setEnv(t, "THROWMAIL_MAILBOX_DOMAINS", " , ")

		_, err := Load()
		assert.Error(t, err)
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList("a, b"))
	assert.Equal(t, []string{"a"}, parseList("a,,"))
	assert.Empty(t, parseList(" "))
}
