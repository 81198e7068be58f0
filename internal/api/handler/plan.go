package handler

import (
	"errors"

	"moonvpn/internal/api/response"
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
	"moonvpn/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
PlanHandler 套餐处理器
功能：套餐的查询（所有调用方）和增删改（仅管理员）。
已被订单引用的套餐不可变，仅允许上架/下架。
*/
type PlanHandler struct {
	app    *types.App
	logger *zap.Logger
}

/*
NewPlanHandler 创建套餐处理器
*/
func NewPlanHandler(app *types.App) *PlanHandler {
	return &PlanHandler{
		app:    app,
		logger: zap.L().Named("plan-handler"),
	}
}

/*
CreatePlanRequest 创建/更新套餐请求
*/
type CreatePlanRequest struct {
	Name             string  `json:"name" binding:"required,min=1,max=64"`
	Price            float64 `json:"price" binding:"gte=0"`
	DurationDays     int     `json:"duration_days" binding:"required,min=1,max=3650"`
	TrafficQuota     int64   `json:"traffic_quota" binding:"gte=0"`
	AllowedProtocols string  `json:"allowed_protocols" binding:"omitempty,max=256,json"`
	AllowedRegions   string  `json:"allowed_regions" binding:"omitempty,max=256,json"`
	AutoRenew        bool    `json:"auto_renew"`
	Enabled          bool    `json:"enabled"`
}

/*
Create 创建套餐（仅管理员）
路由：POST /api/v1/plans/create
*/
func (h *PlanHandler) Create(c *gin.Context) {
	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	plan := &models.Plan{
		Name:             req.Name,
		Price:            req.Price,
		DurationDays:     req.DurationDays,
		TrafficQuota:     req.TrafficQuota,
		AllowedProtocols: req.AllowedProtocols,
		AllowedRegions:   req.AllowedRegions,
		AutoRenew:        req.AutoRenew,
		Enabled:          req.Enabled,
	}
	if err := h.app.DAO.CreatePlan(plan); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}

	h.logger.Info("✓ 套餐已创建", zap.String("name", plan.Name))
	response.GinCreated(c, plan)
}

/*
List 套餐列表
路由：GET /api/v1/plans
*/
func (h *PlanHandler) List(c *gin.Context) {
	onlyEnabled := c.Query("all") == ""
	plans, err := h.app.DAO.ListPlans(onlyEnabled)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, plans)
}

/*
Get 套餐详情
路由：GET /api/v1/plans/:id
*/
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.app.DAO.GetPlan(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if plan == nil {
		response.GinNotFound(c, "套餐不存在")
		return
	}
	response.GinSuccess(c, plan)
}

/*
Update 更新套餐（仅管理员）
路由：POST /api/v1/plans/:id/update
*/
func (h *PlanHandler) Update(c *gin.Context) {
	plan, err := h.app.DAO.GetPlan(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if plan == nil {
		response.GinNotFound(c, "套餐不存在")
		return
	}

	var req CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	plan.Name = req.Name
	plan.Price = req.Price
	plan.DurationDays = req.DurationDays
	plan.TrafficQuota = req.TrafficQuota
	plan.AllowedProtocols = req.AllowedProtocols
	plan.AllowedRegions = req.AllowedRegions
	plan.AutoRenew = req.AutoRenew
	plan.Enabled = req.Enabled

	if err := h.app.DAO.UpdatePlan(plan); err != nil {
		if errors.Is(err, errs.ErrPlanImmutable) {
			response.GinBusinessError(c, err)
			return
		}
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, plan)
}

/*
Toggle 上架/下架套餐（仅管理员）
路由：POST /api/v1/plans/:id/toggle
*/
func (h *PlanHandler) Toggle(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	if err := h.app.DAO.TogglePlan(c.Param("id"), req.Enabled); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, nil)
}

/*
Delete 删除套餐（仅管理员）
路由：POST /api/v1/plans/:id/delete
*/
func (h *PlanHandler) Delete(c *gin.Context) {
	if err := h.app.DAO.DeletePlan(c.Param("id")); err != nil {
		if errors.Is(err, errs.ErrPlanImmutable) {
			response.GinBusinessError(c, err)
			return
		}
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, nil)
}
