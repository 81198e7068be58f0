package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

/*
SecurityHeaders 安全响应头中间件
功能：为所有 HTTP 响应添加安全防护头，防止常见 Web 攻击。
引擎是纯 API 服务，所有 /api 响应一律禁止缓存。
*/
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
		}

		c.Next()
	}
}
