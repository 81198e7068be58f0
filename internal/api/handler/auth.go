package handler

import (
	"moonvpn/internal/api/response"
	"moonvpn/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
AuthHandler 认证处理器
功能：服务调用方凭 API 密钥换取短期 JWT
*/
type AuthHandler struct {
	app    *types.App
	logger *zap.Logger
}

/*
NewAuthHandler 创建认证处理器
*/
func NewAuthHandler(app *types.App) *AuthHandler {
	return &AuthHandler{
		app:    app,
		logger: zap.L().Named("auth-handler"),
	}
}

/*
TokenRequest 令牌换取请求
*/
type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required,max=256"`
}

/*
Token 换取 JWT
路由：POST /api/v1/auth/token
*/
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	token, claims, err := h.app.Auth.Exchange(req.APIKey)
	if err != nil {
		h.logger.Warn("API 密钥校验失败", zap.String("client_ip", c.ClientIP()))
		response.GinUnauthorized(c, "API 密钥无效")
		return
	}

	h.logger.Info("✓ 令牌已签发", zap.String("caller", claims.Caller), zap.String("role", claims.Role))
	response.GinSuccess(c, gin.H{
		"token":      token,
		"caller":     claims.Caller,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt.Unix(),
	})
}
