package api

import (
	"moonvpn/internal/api/handler"
	"moonvpn/internal/api/middleware"
	"moonvpn/internal/types"
	"moonvpn/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 设置路由
func SetupRouter(app *types.App, wsServer *ws.Server) *gin.Engine {
	// 设置Gin模式
	if app.Config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodyLimit(1 << 20)) /* 1MB 请求体上限，纯 API 服务无文件上传 */
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(app.Config.Server.CORSAllowedOrigins))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		summary, _ := app.Registry.HealthSummary()
		c.JSON(200, gin.H{
			"status": "ok",
			"cache":  app.DB.HasRedis(),
			"panels": summary,
		})
	})

	/*
		Prometheus /metrics 和 /ws/stats 包含敏感运行指标，
		仅允许本地/内网访问，生产环境应通过反向代理进一步限制。
	*/
	router.GET("/metrics", localOnlyGuard(), gin.WrapH(promhttp.Handler()))

	// WebSocket 事件流（通知子系统订阅）
	router.GET("/ws/events", wsServer.HandleWebSocket)
	router.GET("/ws/stats", localOnlyGuard(), func(c *gin.Context) {
		c.JSON(200, wsServer.Stats())
	})

	// API v1
	v1 := router.Group("/api/v1")
	{
		// 认证路由（无需JWT）
		authHandler := handler.NewAuthHandler(app)
		v1.POST("/auth/token", authHandler.Token)

		// 需要JWT认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(app.Auth))
		{
			// 账号生命周期
			accounts := authorized.Group("/accounts")
			{
				accountHandler := handler.NewAccountHandler(app)
				accounts.GET("", accountHandler.List)
				accounts.GET("/:id", accountHandler.Get)
				accounts.POST("/create", accountHandler.Create)
				accounts.POST("/:id/renew", accountHandler.Renew)
				accounts.POST("/:id/delete", accountHandler.Delete)

				/* 管理员专用：跨面板迁移 */
				accounts.POST("/:id/transfer", middleware.AdminAuth(), accountHandler.Transfer)

				// 订单审计
				authorized.GET("/orders/:id", accountHandler.GetOrder)
			}

			// 钱包
			wallets := authorized.Group("/wallets")
			{
				walletHandler := handler.NewWalletHandler(app)
				wallets.GET("/:user_id", walletHandler.Balance)
				wallets.GET("/:user_id/transactions", walletHandler.Transactions)
				wallets.POST("/:user_id/recharge", middleware.AdminAuth(), walletHandler.Recharge)
			}

			// 套餐管理
			plans := authorized.Group("/plans")
			{
				planHandler := handler.NewPlanHandler(app)
				plans.GET("", planHandler.List)
				plans.GET("/:id", planHandler.Get)

				// 仅管理员
				adminPlans := plans.Group("")
				adminPlans.Use(middleware.AdminAuth())
				{
					adminPlans.POST("/create", planHandler.Create)
					adminPlans.POST("/:id/update", planHandler.Update)
					adminPlans.POST("/:id/toggle", planHandler.Toggle)
					adminPlans.POST("/:id/delete", planHandler.Delete)
				}
			}

			// 面板与入站管理（仅管理员）
			panels := authorized.Group("/panels")
			panels.Use(middleware.AdminAuth())
			{
				panelHandler := handler.NewPanelHandler(app)
				panels.GET("", panelHandler.List)
				panels.GET("/:id", panelHandler.Get)
				panels.POST("/create", panelHandler.Create)
				panels.POST("/:id/update", panelHandler.Update)
				panels.POST("/:id/delete", panelHandler.Delete)
				panels.POST("/:id/probe", panelHandler.Probe)
				panels.POST("/:id/inbounds/create", panelHandler.CreateInbound)

				authorized.POST("/inbounds/:id/update", middleware.AdminAuth(), panelHandler.UpdateInbound)
				authorized.POST("/inbounds/:id/delete", middleware.AdminAuth(), panelHandler.DeleteInbound)
			}
		}
	}

	return router
}

/*
localOnlyGuard 本地访问限制中间件
功能：限制端点仅允许 127.0.0.1/::1 访问，
用于保护 /metrics、/ws/stats 等内部端点
*/
func localOnlyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip != "127.0.0.1" && ip != "::1" && ip != "localhost" {
			c.JSON(403, gin.H{
				"success": false,
				"message": "此端点仅允许本地访问",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
