package types

import (
	"moonvpn/internal/config"
	"moonvpn/internal/db/dao"
	"moonvpn/internal/db/database"
	"moonvpn/internal/service"
)

/*
App 应用实例
功能：全局应用上下文，聚合配置、数据库管理器、数据访问层
和各后台服务，供路由和 handler 注入使用
*/
type App struct {
	Config *config.Config
	DB     *database.Manager
	DAO    *dao.DAO

	Registry     *service.PanelRegistry
	Orchestrator *service.Orchestrator
	Allocator    *service.Allocator
	Bus          *service.EventBus
	Auth         *service.AuthService
	Pool         *service.WorkerPool
}

/*
NewApp 创建应用实例
*/
func NewApp(cfg *config.Config, dbManager *database.Manager) *App {
	return &App{
		Config: cfg,
		DB:     dbManager,
		DAO:    dao.New(dbManager.DB),
	}
}
