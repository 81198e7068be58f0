package handler

import (
	"moonvpn/internal/api/response"
	"moonvpn/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
WalletHandler 钱包处理器
功能：余额查询、交易记录查询和管理员手动充值
*/
type WalletHandler struct {
	app    *types.App
	logger *zap.Logger
}

/*
NewWalletHandler 创建钱包处理器
*/
func NewWalletHandler(app *types.App) *WalletHandler {
	return &WalletHandler{
		app:    app,
		logger: zap.L().Named("wallet-handler"),
	}
}

/*
Balance 查询钱包余额
路由：GET /api/v1/wallets/:user_id
*/
func (h *WalletHandler) Balance(c *gin.Context) {
	userID := c.Param("user_id")

	wallet, err := h.app.DAO.GetOrCreateWallet(userID)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	available, err := h.app.DAO.AvailableBalance(wallet)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}

	response.GinSuccess(c, gin.H{
		"user_id":   userID,
		"balance":   wallet.Balance,
		"available": available,
	})
}

/*
Transactions 查询交易记录
路由：GET /api/v1/wallets/:user_id/transactions?limit=&offset=
*/
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID := c.Param("user_id")
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	txs, total, err := h.app.DAO.ListTransactions(userID, limit, offset)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, gin.H{"items": txs, "total": total})
}

/*
RechargeRequest 充值请求
*/
type RechargeRequest struct {
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Reference   string  `json:"reference" binding:"omitempty,max=64"`
	Description string  `json:"description" binding:"omitempty,max=256"`
}

/*
Recharge 手动充值（仅管理员）
路由：POST /api/v1/wallets/:user_id/recharge
*/
func (h *WalletHandler) Recharge(c *gin.Context) {
	userID := c.Param("user_id")

	var req RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	txn, err := h.app.DAO.Recharge(userID, req.Amount, req.Reference, req.Description)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}

	h.logger.Info("✓ 手动充值完成",
		zap.String("user_id", userID),
		zap.Float64("amount", req.Amount))
	response.GinSuccess(c, txn)
}
