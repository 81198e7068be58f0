package handler

import (
	"strings"

	"moonvpn/internal/api/response"
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
	"moonvpn/internal/service"
	"moonvpn/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
AccountHandler 账号处理器
功能：处理客户账号的开通、续费、迁移、删除和查询。
开通/续费等写操作要求 X-Idempotency-Key 头，重放返回原订单。
*/
type AccountHandler struct {
	app    *types.App
	logger *zap.Logger
}

/*
NewAccountHandler 创建账号处理器
*/
func NewAccountHandler(app *types.App) *AccountHandler {
	return &AccountHandler{
		app:    app,
		logger: zap.L().Named("account-handler"),
	}
}

/*
idempotencyKey 读取幂等键头
*/
func idempotencyKey(c *gin.Context) (string, bool) {
	key := c.GetHeader("X-Idempotency-Key")
	if key == "" || len(key) > 64 {
		response.GinBadRequest(c, "缺少或无效的 X-Idempotency-Key 头")
		return "", false
	}
	return key, true
}

/*
CreateAccountRequest 开通请求
*/
type CreateAccountRequest struct {
	UserID string `json:"user_id" binding:"required,max=36"`
	PlanID string `json:"plan_id" binding:"required,max=36"`
}

/*
Create 开通账号
路由：POST /api/v1/accounts/create
*/
func (h *AccountHandler) Create(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	order, err := h.app.Orchestrator.Create(c.Request.Context(), service.CreateRequest{
		UserID:         req.UserID,
		PlanID:         req.PlanID,
		IdempotencyKey: key,
	})
	if err != nil {
		response.GinBusinessError(c, err)
		return
	}
	h.respondOrder(c, order)
}

/*
Renew 续费账号
路由：POST /api/v1/accounts/:id/renew
*/
func (h *AccountHandler) Renew(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	order, err := h.app.Orchestrator.Renew(c.Request.Context(), service.RenewRequest{
		AccountID:      c.Param("id"),
		IdempotencyKey: key,
	})
	if err != nil {
		response.GinBusinessError(c, err)
		return
	}
	h.respondOrder(c, order)
}

/*
Transfer 迁移账号到其他面板（仅管理员）
路由：POST /api/v1/accounts/:id/transfer
*/
func (h *AccountHandler) Transfer(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	order, err := h.app.Orchestrator.Transfer(c.Request.Context(), service.TransferRequest{
		AccountID:      c.Param("id"),
		IdempotencyKey: key,
	})
	if err != nil {
		response.GinBusinessError(c, err)
		return
	}
	h.respondOrder(c, order)
}

/*
Delete 删除账号
路由：POST /api/v1/accounts/:id/delete
*/
func (h *AccountHandler) Delete(c *gin.Context) {
	key, ok := idempotencyKey(c)
	if !ok {
		return
	}

	order, err := h.app.Orchestrator.Delete(c.Request.Context(), service.DeleteRequest{
		AccountID:      c.Param("id"),
		IdempotencyKey: key,
	})
	if err != nil {
		response.GinBusinessError(c, err)
		return
	}
	h.respondOrder(c, order)
}

/*
respondOrder 按订单终态返回
功能：completed 返回成功；failed/refunded 返回带错误码的业务失败，
订单本身仍在 data 中供调用方审计
*/
func (h *AccountHandler) respondOrder(c *gin.Context, order *models.Order) {
	if order == nil {
		response.GinInternalError(c, "订单状态不可读")
		return
	}

	switch order.Status {
	case models.OrderStatusFailed, models.OrderStatusRefunded:
		c.JSON(409, response.Body{
			Success: false,
			Code:    orderErrorCode(order),
			Message: order.LastError,
			Data:    order,
		})
	default:
		response.GinSuccess(c, order)
	}
}

func orderErrorCode(order *models.Order) string {
	if order.LastError == "" {
		return "INTERNAL"
	}
	/* 步骤日志中的错误已按 errs.Code 归类写入事件，这里从文本还原常见类别 */
	switch {
	case strings.Contains(order.LastError, "insufficient funds"):
		return errs.Code(errs.ErrInsufficientFunds)
	case strings.Contains(order.LastError, "already exists"):
		return errs.Code(errs.ErrAccountExists)
	case strings.Contains(order.LastError, "no eligible inbound"):
		return errs.Code(errs.ErrNoCapacity)
	case strings.Contains(order.LastError, "remote panel unavailable"):
		return errs.Code(errs.ErrRemoteUnavailable)
	default:
		return "PROVISION_FAILED"
	}
}

/*
Get 查询账号详情
路由：GET /api/v1/accounts/:id
*/
func (h *AccountHandler) Get(c *gin.Context) {
	acct, err := h.app.DAO.GetAccount(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if acct == nil {
		response.GinNotFound(c, "账号不存在")
		return
	}
	response.GinSuccess(c, acct)
}

/*
List 查询用户账号列表
路由：GET /api/v1/accounts?user_id=xxx&limit=&offset=
*/
func (h *AccountHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.GinBadRequest(c, "缺少 user_id 参数")
		return
	}

	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	accts, total, err := h.app.DAO.ListAccountsByUser(userID, limit, offset)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, gin.H{"items": accts, "total": total})
}

/*
GetOrder 查询订单及步骤日志
路由：GET /api/v1/orders/:id
*/
func (h *AccountHandler) GetOrder(c *gin.Context) {
	order, err := h.app.DAO.GetOrder(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if order == nil {
		response.GinNotFound(c, "订单不存在")
		return
	}

	steps, err := h.app.DAO.ListSteps(order.ID)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, gin.H{"order": order, "steps": steps})
}
