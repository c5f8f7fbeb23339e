package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"throwmail/backend/internal/storage"
)

// Checker 健康检查器
type Checker struct {
	handler healthcheck.Handler
	store   storage.Store
	logger  *zap.Logger
}

// NewChecker 创建健康检查器并注册存储检查。
func NewChecker(store storage.Store, logger *zap.Logger) *Checker {
	c := &Checker{
		handler: healthcheck.NewHandler(),
		store:   store,
		logger:  logger,
	}

	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(500))
	c.handler.AddReadinessCheck("storage", c.storageCheck())

	return c
}

// storageCheck 带超时探测存储后端。
func (c *Checker) storageCheck() healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := c.store.Health(ctx); err != nil {
			c.logger.Warn("storage health check failed", zap.Error(err))
			return err
		}
		return nil
	}
}

// LiveHandler 返回存活探针处理器。
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.handler.LiveEndpoint
}

// ReadyHandler 返回就绪探针处理器。
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.handler.ReadyEndpoint
}
