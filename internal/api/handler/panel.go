package handler

import (
	"context"
	"time"

	"moonvpn/internal/api/response"
	"moonvpn/internal/db/models"
	"moonvpn/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

/*
PanelHandler 面板处理器（仅管理员）
功能：面板/入站的增删改查、健康视图和手动探测
*/
type PanelHandler struct {
	app    *types.App
	logger *zap.Logger
}

/*
NewPanelHandler 创建面板处理器
*/
func NewPanelHandler(app *types.App) *PanelHandler {
	return &PanelHandler{
		app:    app,
		logger: zap.L().Named("panel-handler"),
	}
}

/*
CreatePanelRequest 创建/更新面板请求
*/
type CreatePanelRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=64"`
	Endpoint     string `json:"endpoint" binding:"required,url,max=256"`
	Region       string `json:"region" binding:"omitempty,max=32"`
	Username     string `json:"username" binding:"required,max=128"`
	Password     string `json:"password" binding:"required,max=256"`
	CapacityHint int    `json:"capacity_hint" binding:"gte=0"`
	Enabled      bool   `json:"enabled"`
}

/*
Create 创建面板
路由：POST /api/v1/panels/create
*/
func (h *PanelHandler) Create(c *gin.Context) {
	var req CreatePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	panel := &models.Panel{
		Name:         req.Name,
		Endpoint:     req.Endpoint,
		Region:       req.Region,
		Username:     req.Username,
		Password:     req.Password,
		CapacityHint: req.CapacityHint,
		Status:       models.PanelStatusUp,
		Enabled:      req.Enabled,
	}
	if err := h.app.DAO.CreatePanel(panel); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}

	h.logger.Info("✓ 面板已创建", zap.String("name", panel.Name))
	response.GinCreated(c, panel)
}

/*
List 面板列表（含健康状态）
路由：GET /api/v1/panels
*/
func (h *PanelHandler) List(c *gin.Context) {
	panels, err := h.app.DAO.ListPanels(false)
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, panels)
}

/*
Get 面板详情
路由：GET /api/v1/panels/:id
*/
func (h *PanelHandler) Get(c *gin.Context) {
	panel, err := h.app.DAO.GetPanel(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if panel == nil {
		response.GinNotFound(c, "面板不存在")
		return
	}
	response.GinSuccess(c, panel)
}

/*
Update 更新面板
路由：POST /api/v1/panels/:id/update
*/
func (h *PanelHandler) Update(c *gin.Context) {
	panel, err := h.app.DAO.GetPanel(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if panel == nil {
		response.GinNotFound(c, "面板不存在")
		return
	}

	var req CreatePanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	panel.Name = req.Name
	panel.Endpoint = req.Endpoint
	panel.Region = req.Region
	panel.Username = req.Username
	panel.Password = req.Password
	panel.CapacityHint = req.CapacityHint
	panel.Enabled = req.Enabled

	if err := h.app.DAO.UpdatePanel(panel); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, panel)
}

/*
Delete 删除面板
路由：POST /api/v1/panels/:id/delete
*/
func (h *PanelHandler) Delete(c *gin.Context) {
	if err := h.app.DAO.DeletePanel(c.Param("id")); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, nil)
}

/*
Probe 立即探测面板
路由：POST /api/v1/panels/:id/probe
*/
func (h *PanelHandler) Probe(c *gin.Context) {
	panelID := c.Param("id")
	gw, err := h.app.Registry.Gateway(panelID)
	if err != nil {
		response.GinBusinessError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	probeErr := gw.Probe(ctx)
	panel, _ := h.app.DAO.GetPanel(panelID)

	result := gin.H{"reachable": probeErr == nil}
	if probeErr != nil {
		result["error"] = probeErr.Error()
	}
	if panel != nil {
		result["status"] = panel.Status
	}
	response.GinSuccess(c, result)
}

/*
CreateInboundRequest 创建/更新入站请求
*/
type CreateInboundRequest struct {
	RemoteID      int    `json:"remote_id" binding:"gte=0"`
	Protocol      string `json:"protocol" binding:"required,oneof=vless vmess trojan shadowsocks"`
	Port          int    `json:"port" binding:"gte=0,lte=65535"`
	Capacity      int    `json:"capacity" binding:"required,gt=0"`
	DefaultParams string `json:"default_params" binding:"omitempty,max=4096,json"`
	Enabled       bool   `json:"enabled"`
}

/*
CreateInbound 在面板下创建入站
路由：POST /api/v1/panels/:id/inbounds/create
*/
func (h *PanelHandler) CreateInbound(c *gin.Context) {
	panel, err := h.app.DAO.GetPanel(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if panel == nil {
		response.GinNotFound(c, "面板不存在")
		return
	}

	var req CreateInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	inbound := &models.Inbound{
		PanelID:       panel.ID,
		RemoteID:      req.RemoteID,
		Protocol:      req.Protocol,
		Port:          req.Port,
		Capacity:      req.Capacity,
		DefaultParams: req.DefaultParams,
		Enabled:       req.Enabled,
	}
	if err := h.app.DAO.CreateInbound(inbound); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinCreated(c, inbound)
}

/*
UpdateInbound 更新入站
路由：POST /api/v1/inbounds/:id/update
*/
func (h *PanelHandler) UpdateInbound(c *gin.Context) {
	inbound, err := h.app.DAO.GetInbound(c.Param("id"))
	if err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	if inbound == nil {
		response.GinNotFound(c, "入站不存在")
		return
	}

	var req CreateInboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.GinBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	inbound.RemoteID = req.RemoteID
	inbound.Protocol = req.Protocol
	inbound.Port = req.Port
	inbound.Capacity = req.Capacity
	inbound.DefaultParams = req.DefaultParams
	inbound.Enabled = req.Enabled

	if err := h.app.DAO.UpdateInbound(inbound); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, inbound)
}

/*
DeleteInbound 删除入站
路由：POST /api/v1/inbounds/:id/delete
*/
func (h *PanelHandler) DeleteInbound(c *gin.Context) {
	if err := h.app.DAO.DeleteInbound(c.Param("id")); err != nil {
		response.GinInternalError(c, err.Error())
		return
	}
	response.GinSuccess(c, nil)
}
