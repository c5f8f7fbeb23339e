package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// promauto 在构造时向默认注册表注册指标，整个进程只应创建一次。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱指标
	MailboxesGenerated prometheus.Counter
	MailboxesExpired   prometheus.Counter

	// 入站管道指标
	MessagesIngested    prometheus.Counter
	IngestParseFailures prometheus.Counter
	IngestWriteFailures prometheus.Counter
	IngestDeadLetters   prometheus.Counter
	QueueDepth          prometheus.Gauge

	// 授权指标
	Authorizations *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throwmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "throwmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailboxesGenerated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throwmail_mailboxes_generated_total",
				Help: "Total number of mailboxes generated",
			},
		),

		MailboxesExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throwmail_mailboxes_expired_total",
				Help: "Total number of mailboxes removed by the expiry sweep",
			},
		),

		MessagesIngested: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throwmail_messages_ingested_total",
				Help: "Total number of messages written to inboxes",
			},
		),

		IngestParseFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throwmail_ingest_parse_failures_total",
				Help: "Total number of inbound notifications dropped as unparseable",
			},
		),

		IngestWriteFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throwmail_ingest_write_failures_total",
				Help: "Total number of failed per-recipient inbox writes",
			},
		),

		IngestDeadLetters: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "throwmail_ingest_dead_letters_total",
				Help: "Total number of events moved to the dead letter buffer",
			},
		),

		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "throwmail_ingest_queue_depth",
				Help: "Current number of events waiting in the local ingest queue",
			},
		),

		Authorizations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "throwmail_authorizations_total",
				Help: "Authorization gate decisions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordAuthorization 记录一次授权判定
func (m *Metrics) RecordAuthorization(authorized bool) {
	outcome := "denied"
	if authorized {
		outcome = "allowed"
	}
	m.Authorizations.WithLabelValues(outcome).Inc()
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
