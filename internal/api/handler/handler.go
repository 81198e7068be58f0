/*
Package handler API 处理器

所有 handler 持有 *types.App 上下文，参数校验用 gin binding，
业务错误通过 response.GinBusinessError 统一映射为带稳定错误码的
HTTP 响应。
*/
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

/*
intQuery 读取整数 query 参数，缺失或非法时返回默认值
*/
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
