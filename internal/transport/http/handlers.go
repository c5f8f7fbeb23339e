package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"throwmail/backend/internal/domain"
	"throwmail/backend/internal/middleware"
	"throwmail/backend/internal/service"
)

// Handler 聚合所有 HTTP 处理逻辑。
type Handler struct {
	mailboxes *service.MailboxService
	inbox     *service.InboxService
	logger    *zap.Logger
}

// generateMailRequest POST /mail 的可选请求体。
type generateMailRequest struct {
	Domain string `json:"domain"`
}

// generateMailResponse 新邮箱响应：访问令牌、地址和过期时刻（Unix 秒）。
type generateMailResponse struct {
	User string `json:"user"`
	Mail string `json:"mail"`
	TTL  int64  `json:"ttl"`
}

// inboxRecord 收件箱里的一封邮件。
type inboxRecord struct {
	Destination string       `json:"destination"`
	Timestamp   string       `json:"timestamp"`
	Payload     inboxPayload `json:"payload"`
	TTL         int64        `json:"ttl"`
}

type inboxPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// GenerateMail 生成一个一次性邮箱。
//
// 域名可通过请求体或 query 参数指定，缺省时使用配置的首个域名。
func (h *Handler) GenerateMail(c *gin.Context) {
	requested := c.Query("domain")
	if requested == "" && c.Request.ContentLength > 0 {
		var req generateMailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		requested = req.Domain
	}

	mb, err := h.mailboxes.Generate(c.Request.Context(), requested)
	if err != nil {
		if errors.Is(err, service.ErrDomainNotAllowed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "domain not served"})
			return
		}
		h.logger.Error("generate mailbox failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, generateMailResponse{
		User: mb.User,
		Mail: mb.Address,
		TTL:  mb.ExpiresAt.Unix(),
	})
}

// CheckInbox 返回当前令牌对应邮箱里按时间升序排列的邮件。
//
// 邮箱地址取自授权中间件写入的上下文，永不信任请求参数。
func (h *Handler) CheckInbox(c *gin.Context) {
	address := c.GetString(middleware.ContextKeyAddress)
	if address == "" {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	messages, err := h.inbox.ListByDestination(c.Request.Context(), address)
	if err != nil {
		h.logger.Error("list inbox failed",
			zap.String("destination", address),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	records := make([]inboxRecord, 0, len(messages))
	for _, msg := range messages {
		records = append(records, toInboxRecord(msg))
	}
	c.JSON(http.StatusOK, records)
}

func toInboxRecord(msg domain.Message) inboxRecord {
	return inboxRecord{
		Destination: msg.Destination,
		Timestamp:   msg.SortKey(),
		Payload: inboxPayload{
			From:    msg.Payload.From,
			To:      msg.Payload.To,
			Subject: msg.Payload.Subject,
			Text:    msg.Payload.Text,
			HTML:    msg.Payload.HTML,
			Headers: msg.Payload.Headers,
		},
		TTL: msg.ExpiresAt.Unix(),
	}
}
