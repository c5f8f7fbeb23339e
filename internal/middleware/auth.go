package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"throwmail/backend/internal/service"
)

// ContextKeyAddress 是授权通过后写入 gin 上下文的邮箱地址键。
//
// 下游处理器只信任这个值，不读取请求里自带的地址参数。
const ContextKeyAddress = "mailboxAddress"

// TokenAuth 校验 Authorization 头中的用户令牌。
//
// 未携带令牌、令牌未知或对应邮箱已过期时统一返回 403，
// 响应体为空，不向调用方泄露失败原因。
func TokenAuth(authorizer *service.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := authorizer.Authorize(c.Request.Context(), c.Request.Header.Values("Authorization"))
		if !decision.Authorized {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}

		c.Set(ContextKeyAddress, decision.Address)
		c.Next()
	}
}
