/*
Package response 统一 API 响应包裹

所有接口返回统一结构：success 标记、稳定错误码、消息和数据。
外部协作方（机器人/仪表盘）根据 code 而非 message 做分支处理。
*/
package response

import (
	"errors"
	"net/http"

	"moonvpn/internal/errs"

	"github.com/gin-gonic/gin"
)

/*
Body 统一响应结构
*/
type Body struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

/*
GinSuccess 成功响应
*/
func GinSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

/*
GinCreated 创建成功响应
*/
func GinCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

/*
GinBadRequest 请求参数错误
*/
func GinBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Code: "BAD_REQUEST", Message: message})
}

/*
GinUnauthorized 未认证
*/
func GinUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Code: "UNAUTHORIZED", Message: message})
}

/*
GinForbidden 无权限
*/
func GinForbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Code: "FORBIDDEN", Message: message})
}

/*
GinNotFound 资源不存在
*/
func GinNotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Code: "NOT_FOUND", Message: message})
}

/*
GinInternalError 内部错误
*/
func GinInternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Code: "INTERNAL", Message: message})
}

/*
GinBusinessError 业务错误
功能：将业务错误映射为带稳定错误码的 HTTP 响应：
余额不足/无容量 → 409；资源不存在 → 404；并发冲突 → 409；
面板不可用 → 503；其余 → 500
*/
func GinBusinessError(c *gin.Context, err error) {
	code := errs.Code(err)
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, errs.ErrInsufficientFunds),
		errors.Is(err, errs.ErrNoCapacity),
		errors.Is(err, errs.ErrConcurrentModification),
		errors.Is(err, errs.ErrAccountExists),
		errors.Is(err, errs.ErrPlanImmutable):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrAccountNotFound),
		errors.Is(err, errs.ErrPanelNotFound),
		errors.Is(err, errs.ErrPlanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrRemoteUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrOperationTimeout):
		status = http.StatusGatewayTimeout
	}

	c.JSON(status, Body{Success: false, Code: code, Message: err.Error()})
}
