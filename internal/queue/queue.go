package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"throwmail/backend/internal/monitoring"
)

// ErrQueueClosed 表示队列已停止接收事件。
var ErrQueueClosed = errors.New("queue closed")

// Handler 处理一批事件，返回需要进入死信缓冲的事件。
type Handler func(ctx context.Context, events [][]byte) (deadLetters [][]byte)

// Options 队列配置。
type Options struct {
	Workers         int           // 消费协程数
	Depth           int           // 通道缓冲容量
	BatchSize       int           // 单批最多凑齐的事件数
	Linger          time.Duration // 批次未满时的最长等待
	DeadLetterLimit int           // 死信缓冲保留条数，超出后淘汰最旧的
}

// Queue 是进程内的入站事件队列。
//
// 固定数量的消费协程从缓冲通道取事件并凑批交给 Handler；
// 上游（SMTP 会话）用 TryPublish 投递，队列满时立即失败，
// 由传输层把背压表达为临时错误而不是无界缓冲。
type Queue struct {
	opts    Options
	events  chan []byte
	done    chan struct{}
	handler Handler
	metrics *monitoring.Metrics
	log     *zap.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once

	mu   sync.Mutex
	dead [][]byte
}

// New 创建队列。
func New(opts Options, handler Handler, metrics *monitoring.Metrics, log *zap.Logger) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Depth <= 0 {
		opts.Depth = 64
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.DeadLetterLimit <= 0 {
		opts.DeadLetterLimit = 64
	}

	return &Queue{
		opts:    opts,
		events:  make(chan []byte, opts.Depth),
		done:    make(chan struct{}),
		handler: handler,
		metrics: metrics,
		log:     log,
	}
}

// Start 启动消费协程，阻塞直到 ctx 取消且存量事件处理完毕。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	<-ctx.Done()
	q.close()
	q.wg.Wait()
}

// Publish 投递一个事件，队列满时阻塞。
func (q *Queue) Publish(ctx context.Context, event []byte) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.events <- event:
		q.trackDepth()
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish 投递一个事件，队列满或已关闭时立即返回 false。
func (q *Queue) TryPublish(event []byte) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.events <- event:
		q.trackDepth()
		return true
	default:
		return false
	}
}

// DeadLetters 返回死信缓冲的快照。
func (q *Queue) DeadLetters() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([][]byte, len(q.dead))
	copy(snapshot, q.dead)
	return snapshot
}

// worker 消费协程：凑批后交给 Handler，死信写入缓冲。
//
// 队列关闭后继续排空通道里已受理的事件，避免丢投递。
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		var event []byte
		select {
		case event = <-q.events:
		case <-q.done:
			select {
			case event = <-q.events:
			default:
				return
			}
		}

		batch := q.fillBatch(event)
		q.trackDepth()

		// Handler 内部保证单条失败不影响其他条目。
		deadLetters := q.handler(context.WithoutCancel(ctx), batch)
		q.bury(deadLetters)
	}
}

// fillBatch 以首个事件起批，凑满 BatchSize 或等满 Linger 为止。
func (q *Queue) fillBatch(first []byte) [][]byte {
	batch := [][]byte{first}
	if q.opts.BatchSize <= 1 {
		return batch
	}

	timer := time.NewTimer(q.opts.Linger)
	defer timer.Stop()

	for len(batch) < q.opts.BatchSize {
		select {
		case event := <-q.events:
			batch = append(batch, event)
		case <-timer.C:
			return batch
		case <-q.done:
			select {
			case event := <-q.events:
				batch = append(batch, event)
			default:
				return batch
			}
		}
	}
	return batch
}

// bury 把死信写入有界缓冲，超限时淘汰最旧的条目。
func (q *Queue) bury(deadLetters [][]byte) {
	if len(deadLetters) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, event := range deadLetters {
		q.dead = append(q.dead, event)
		if q.metrics != nil {
			q.metrics.IngestDeadLetters.Inc()
		}
	}
	if overflow := len(q.dead) - q.opts.DeadLetterLimit; overflow > 0 {
		q.dead = q.dead[overflow:]
	}
	q.log.Warn("events moved to dead letter buffer",
		zap.Int("count", len(deadLetters)),
		zap.Int("buffered", len(q.dead)),
	)
}

func (q *Queue) close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func (q *Queue) trackDepth() {
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(len(q.events)))
	}
}
