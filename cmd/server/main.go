package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"throwmail/backend/internal/config"
	"throwmail/backend/internal/health"
	"throwmail/backend/internal/logger"
	"throwmail/backend/internal/monitoring"
	"throwmail/backend/internal/queue"
	"throwmail/backend/internal/service"
	"throwmail/backend/internal/smtp"
	"throwmail/backend/internal/storage"
	"throwmail/backend/internal/storage/memory"
	redisstore "throwmail/backend/internal/storage/redis"
	httptransport "throwmail/backend/internal/transport/http"
)

// main 启动同时包含 HTTP API 与入站 SMTP 的一次性邮箱服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting throwmail server",
		zap.Strings("domains", cfg.Mailbox.Domains),
		zap.Duration("mailbox_ttl", cfg.Mailbox.TTL),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	switch cfg.Storage.Backend {
	case "redis":
		store, err = redisstore.NewStore(&cfg.Redis)
		if err != nil {
			panic(fmt.Sprintf("failed to connect redis: %v", err))
		}
		log.Info("using redis storage", zap.String("address", cfg.Redis.Address))
	default:
		store = memory.NewStore()
		log.Info("using memory storage")
	}
	defer store.Close()

	// 初始化监控系统
	// promauto 在创建时自动注册指标，整个进程只创建一次
	metrics := monitoring.NewMetrics()

	healthChecker := health.NewChecker(store, log)

	// 初始化服务层
	mailboxService := service.NewMailboxService(store, cfg, metrics)
	inboxService := service.NewInboxService(store, cfg)
	authorizer := service.NewAuthorizer(mailboxService, metrics, log)
	ingestService := service.NewIngestService(inboxService, metrics, log)

	// 入站投递队列
	ingestQueue := queue.New(queue.Options{
		Workers:         cfg.Ingest.Workers,
		Depth:           cfg.Ingest.QueueDepth,
		BatchSize:       cfg.Ingest.BatchSize,
		Linger:          cfg.Ingest.Linger,
		DeadLetterLimit: cfg.Ingest.DeadLetterLimit,
	}, func(ctx context.Context, events [][]byte) [][]byte {
		result := ingestService.ProcessBatch(ctx, events)
		return result.DeadLetters
	}, metrics, log)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		MailboxService: mailboxService,
		InboxService:   inboxService,
		Authorizer:     authorizer,
		Metrics:        metrics,
		Health:         healthChecker,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// SMTP 服务器
	smtpBackend := smtp.NewBackend(cfg, ingestQueue, log)
	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = 10 * time.Second
	smtpServer.WriteTimeout = 10 * time.Second
	smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageBytes
	smtpServer.MaxRecipients = 50

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 投递队列 goroutine，ctx 取消后排空再退出
	group.Go(func() error {
		log.Info("starting ingest queue",
			zap.Int("workers", cfg.Ingest.Workers),
			zap.Int("depth", cfg.Ingest.QueueDepth),
		)
		ingestQueue.Start(groupCtx)
		log.Info("ingest queue drained")
		return nil
	})

	// 定时清理过期邮箱和邮件 goroutine
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Storage.SweepInterval)
		defer ticker.Stop()

		log.Info("starting expiry sweep task", zap.Duration("interval", cfg.Storage.SweepInterval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("expiry sweep task stopped")
				return nil
			case <-ticker.C:
				mailboxes, err := store.DeleteExpiredMailboxes(groupCtx)
				if err != nil {
					log.Error("failed to sweep expired mailboxes", zap.Error(err))
				} else if mailboxes > 0 {
					metrics.MailboxesExpired.Add(float64(mailboxes))
					log.Info("expired mailboxes swept", zap.Int("count", mailboxes))
				}

				messages, err := store.DeleteExpiredMessages(groupCtx)
				if err != nil {
					log.Error("failed to sweep expired messages", zap.Error(err))
				} else if messages > 0 {
					log.Info("expired messages swept", zap.Int("count", messages))
				}
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
