package middleware

import (
	"strings"

	"moonvpn/internal/api/response"
	"moonvpn/internal/service"

	"github.com/gin-gonic/gin"
)

/*
JWTAuth 返回 Gin JWT 认证中间件
功能：从 Authorization 头提取 Bearer 令牌，验证签名后将调用方
名称和角色注入 Gin 上下文供后续 handler 使用
*/
func JWTAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.GinUnauthorized(c, "缺少认证令牌")
			c.Abort()
			return
		}

		/* 提取 Bearer 令牌 */
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			response.GinUnauthorized(c, "认证头格式无效，需 Bearer <token>")
			c.Abort()
			return
		}

		claims, err := authService.Verify(tokenStr)
		if err != nil {
			response.GinUnauthorized(c, "无效或已过期的令牌")
			c.Abort()
			return
		}

		c.Set("caller", claims.Caller)
		c.Set("role", claims.Role)
		c.Next()
	}
}

/*
AdminAuth 管理员权限中间件
功能：检查 JWT 中间件设置的 role 字段是否为 admin，
使用安全类型断言避免非字符串类型导致的误判。
*/
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			response.GinForbidden(c, "需要管理员权限")
			c.Abort()
			return
		}
		role, ok := roleVal.(string)
		if !ok || role != "admin" {
			response.GinForbidden(c, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}
