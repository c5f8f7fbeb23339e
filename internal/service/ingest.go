package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/monitoring"
)

// IngestService 把入站通知批次转换为收件存储写入。
//
// 每条通知独立处理：解析失败只丢弃该条（交回队列做死信），
// 单个收件人的写入失败也不影响同一封邮件的其他收件人。
// 部分投递是期望的降级行为，刻意不做跨收件人事务。
type IngestService struct {
	inbox   *InboxService
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewIngestService 创建入站投递服务。
func NewIngestService(inbox *InboxService, metrics *monitoring.Metrics, log *zap.Logger) *IngestService {
	return &IngestService{
		inbox:   inbox,
		metrics: metrics,
		log:     log,
	}
}

// BatchResult 汇总一个批次的处理结果。
type BatchResult struct {
	Delivered     int      // 成功写入的 Message 条数
	ParseFailures int      // 无法解码而丢弃的通知数
	WriteFailures int      // 失败的单收件人写入次数
	DeadLetters   [][]byte // 需要进入死信缓冲的原始事件
}

// ProcessBatch 处理一批原始入站事件。
//
// 批内元素相互隔离，任何单条失败都不会中断整批处理。
func (s *IngestService) ProcessBatch(ctx context.Context, events [][]byte) BatchResult {
	var result BatchResult
	for _, raw := range events {
		notification, err := parseNotification(raw)
		if err != nil {
			result.ParseFailures++
			result.DeadLetters = append(result.DeadLetters, raw)
			if s.metrics != nil {
				s.metrics.IngestParseFailures.Inc()
			}
			s.log.Warn("dropping unparseable inbound event",
				zap.Int("size", len(raw)),
				zap.Error(err),
			)
			continue
		}

		delivered, failed := s.fanOut(ctx, notification)
		result.Delivered += delivered
		result.WriteFailures += failed
	}
	return result
}

// fanOut 把一条通知展开为每收件人一条的独立写入。
func (s *IngestService) fanOut(ctx context.Context, n *domain.InboundNotification) (delivered, failed int) {
	for _, recipient := range n.Recipients {
		if _, err := s.inbox.Append(ctx, recipient, n.Timestamp, n.Payload); err != nil {
			failed++
			if s.metrics != nil {
				s.metrics.IngestWriteFailures.Inc()
			}
			s.log.Error("inbox write failed",
				zap.String("destination", recipient),
				zap.Time("timestamp", n.Timestamp),
				zap.Error(err),
			)
			continue
		}
		delivered++
		if s.metrics != nil {
			s.metrics.MessagesIngested.Inc()
		}
	}
	return delivered, failed
}

// parseNotification 把一条不透明事件解码为结构化通知。
func parseNotification(raw []byte) (*domain.InboundNotification, error) {
	var notification domain.InboundNotification
	if err := json.Unmarshal(raw, &notification); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if err := notification.Validate(); err != nil {
		return nil, err
	}
	return &notification, nil
}
