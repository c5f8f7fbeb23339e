package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 定义邮箱登记的核心业务配置
type MailboxConfig struct {
	Domains []string      // 可生成邮箱的域名列表，第一个为默认域名
	TTL     time.Duration // 邮箱生存时间，过期后视为不存在，默认 10 分钟
}

// MessageConfig 定义邮件记录的配置
type MessageConfig struct {
	TTL time.Duration // 单封邮件的生存时间，默认 10 分钟
}

// SMTPConfig 定义入站 SMTP 服务器的配置
type SMTPConfig struct {
	BindAddr        string // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain          string // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageBytes int64  // 单封邮件大小上限，默认 10MB
}

// IngestConfig 定义入站投递管道的配置
type IngestConfig struct {
	Workers         int           // 消费协程数，默认 4
	QueueDepth      int           // 本地队列容量，默认 1024
	BatchSize       int           // 单批最多处理的通知数，默认 16
	Linger          time.Duration // 凑批等待时间，默认 200ms
	DeadLetterLimit int           // 死信缓冲保留条数，默认 256
}

// StorageConfig 定义存储后端选择
type StorageConfig struct {
	Backend       string        // "memory" 或 "redis"，默认 "memory"
	SweepInterval time.Duration // 过期清扫周期，默认 1 分钟
}

// RedisConfig 定义 Redis 存储服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server  ServerConfig
	Mailbox MailboxConfig
	Message MessageConfig
	SMTP    SMTPConfig
	Ingest  IngestConfig
	Storage StorageConfig
	Redis   RedisConfig
	CORS    CORSConfig
	Log     LogConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: THROWMAIL_
// 例如: THROWMAIL_SERVER_PORT, THROWMAIL_MAILBOX_DOMAINS
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("throwmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mailbox.domains", "throw.mail")
	viper.SetDefault("mailbox.ttl", "10m")
	viper.SetDefault("message.ttl", "10m")
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "throw.mail")
	viper.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	viper.SetDefault("ingest.workers", 4)
	viper.SetDefault("ingest.queue_depth", 1024)
	viper.SetDefault("ingest.batch_size", 16)
	viper.SetDefault("ingest.linger", "200ms")
	viper.SetDefault("ingest.dead_letter_limit", 256)
	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.sweep_interval", "1m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)

	mailboxTTL, err := time.ParseDuration(viper.GetString("mailbox.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.ttl: %w", err)
	}
	if mailboxTTL <= 0 {
		return nil, fmt.Errorf("mailbox.ttl must be positive")
	}

	messageTTL, err := time.ParseDuration(viper.GetString("message.ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid message.ttl: %w", err)
	}
	if messageTTL <= 0 {
		return nil, fmt.Errorf("message.ttl must be positive")
	}

	domains := parseDomains(viper.GetString("mailbox.domains"))
	if len(domains) == 0 {
		return nil, fmt.Errorf("mailbox.domains must not be empty")
	}

	backend := strings.ToLower(viper.GetString("storage.backend"))
	if backend != "memory" && backend != "redis" {
		return nil, fmt.Errorf("storage.backend must be \"memory\" or \"redis\", got %q", backend)
	}

	sweepInterval, err := time.ParseDuration(viper.GetString("storage.sweep_interval"))
	if err != nil || sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	linger, err := time.ParseDuration(viper.GetString("ingest.linger"))
	if err != nil || linger <= 0 {
		linger = 200 * time.Millisecond
	}

	workers := viper.GetInt("ingest.workers")
	if workers <= 0 {
		workers = 4
	}
	queueDepth := viper.GetInt("ingest.queue_depth")
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	batchSize := viper.GetInt("ingest.batch_size")
	if batchSize <= 0 {
		batchSize = 16
	}
	deadLetterLimit := viper.GetInt("ingest.dead_letter_limit")
	if deadLetterLimit <= 0 {
		deadLetterLimit = 256
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			Domains: domains,
			TTL:     mailboxTTL,
		},
		Message: MessageConfig{
			TTL: messageTTL,
		},
		SMTP: SMTPConfig{
			BindAddr:        viper.GetString("smtp.bind_addr"),
			Domain:          viper.GetString("smtp.domain"),
			MaxMessageBytes: viper.GetInt64("smtp.max_message_bytes"),
		},
		Ingest: IngestConfig{
			Workers:         workers,
			QueueDepth:      queueDepth,
			BatchSize:       batchSize,
			Linger:          linger,
			DeadLetterLimit: deadLetterLimit,
		},
		Storage: StorageConfig{
			Backend:       backend,
			SweepInterval: sweepInterval,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 依次尝试当前目录和父目录；文件不存在时静默跳过，
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
