package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moonvpn/internal/api"
	"moonvpn/internal/config"
	"moonvpn/internal/db/database"
	"moonvpn/internal/pkg/logger"
	"moonvpn/internal/server"
	"moonvpn/internal/service"
	"moonvpn/internal/types"
	"moonvpn/internal/ws"

	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "./config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "覆盖服务器端口")
)

/*
main 程序入口
启动流程：
 1. 初始化引导日志 → 首次运行写默认配置
 2. 加载配置文件 → 用配置重新初始化日志
 3. 初始化数据库（SQLite/MySQL/Postgres + 可选 Redis）+ 自动迁移
 4. 组装服务：面板注册表 → 分配器 → 编排器 → 续费调度器 → 对账扫描器
 5. 组装路由 → 启动 HTTP/2（+ 可选 HTTP/3）服务器
 6. 等待 SIGINT/SIGTERM → 优雅关闭（调度器在账号/面板边界退出）
*/
func main() {
	startupBegin := time.Now()
	flag.Parse()

	/* 阶段 1：引导日志（配置加载前使用临时 console 日志） */
	if err := logger.Init(&logger.Config{
		Level:  "info",
		Format: "console",
	}); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	defer logger.Sync()

	/* 首次运行：写出默认配置供运维修改 */
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Warn("默认配置写出失败", zap.Error(err))
		} else {
			logger.Info("✓ 已生成默认配置文件", zap.String("path", *configPath))
		}
	}

	/* 阶段 2：加载配置 → 用配置重新初始化日志系统 */
	cfg := config.LoadConfigOrDefault(*configPath)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logger.Fatal("重新初始化日志系统失败", zap.Error(err))
	}

	/* 阶段 3：初始化数据库（必须串行，后续服务依赖它） */
	dbStart := time.Now()
	dbManager, err := database.NewManager(&database.ManagerConfig{
		Database: &database.Config{
			Type:         database.DBType(cfg.Database.Type),
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			DBName:       cfg.Database.DBName,
			SSLMode:      cfg.Database.SSLMode,
			Charset:      cfg.Database.Charset,
			SQLitePath:   cfg.Database.SQLitePath,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			LogLevel:     cfg.Database.LogLevel,
		},
		Redis: &database.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
		},
	})
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer dbManager.Close()
	logger.Info("✓ 数据库初始化完成", zap.Duration("耗时", time.Since(dbStart)))

	/* 阶段 4：组装应用上下文和后台服务 */
	app := types.NewApp(cfg, dbManager)
	app.Auth = service.NewAuthService(cfg.Auth)
	app.Bus = service.NewEventBus()

	app.Registry = service.NewPanelRegistry(app.DAO, cfg.Gateway, nil)
	app.Registry.Start()
	defer app.Registry.Stop()

	app.Allocator = service.NewAllocator(app.DAO)
	app.Orchestrator = service.NewOrchestrator(
		app.DAO, app.Registry, app.Allocator, app.Bus, dbManager.Redis, cfg.Provision)

	app.Pool = service.NewWorkerPool(cfg.Provision.Workers, 0)
	defer app.Pool.Stop()

	renewal := service.NewRenewalScheduler(app.DAO, app.Orchestrator, app.Pool, dbManager.Redis, cfg.Renewal)
	renewal.Start()
	defer renewal.Stop()

	reconciler := service.NewReconciliationSweeper(
		app.DAO, app.Registry, app.Orchestrator, app.Bus, app.Pool, dbManager.Redis, cfg.Reconcile)
	reconciler.Start()
	defer reconciler.Stop()

	wsServer := ws.NewServer(app.Bus, cfg.Server.WSMaxConnections)

	/* 阶段 5：组装路由 + 启动 HTTP 服务器 */
	router := api.SetupRouter(app, wsServer)
	http2Addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled && cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		tlsConfig = createTLSConfig(cfg)
	}

	http2Server := server.NewHTTP2Server(
		http2Addr, router, tlsConfig,
		time.Duration(cfg.Server.ReadTimeout)*time.Second,
		time.Duration(cfg.Server.WriteTimeout)*time.Second,
	)
	go func() {
		if cfg.TLS.Enabled {
			logger.Info("✓ HTTPS 服务器启动", zap.String("addr", http2Addr))
		} else {
			logger.Info("✓ HTTP 服务器启动", zap.String("addr", http2Addr))
		}
		var err error
		if cfg.TLS.Enabled {
			err = http2Server.Start(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			err = http2Server.StartInsecure()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常退出", zap.Error(err))
		}
	}()

	var http3Server *server.HTTP3Server
	if cfg.Server.EnableHTTP3 && cfg.TLS.Enabled {
		http3Addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTP3Port)
		http3Server = server.NewHTTP3Server(http3Addr, router, tlsConfig)
		go func() {
			logger.Info("✓ HTTP/3 (QUIC) 服务器启动", zap.String("addr", http3Addr))
			if err := http3Server.Start(); err != nil {
				logger.Error("HTTP/3 服务器错误", zap.Error(err))
			}
		}()
	} else if cfg.Server.EnableHTTP3 {
		logger.Warn("HTTP/3 已启用但 TLS 未配置，跳过 HTTP/3 服务器")
	}

	logger.Info("✓ MoonVPN 开通引擎启动完成",
		zap.Duration("总耗时", time.Since(startupBegin)),
		zap.String("监听地址", http2Addr))

	/* 阶段 6：等待退出信号 → 优雅关闭 */
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，正在优雅关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := http2Server.Shutdown(ctx); err != nil {
		logger.Error("关闭 HTTP/2 服务器失败", zap.Error(err))
	}
	if http3Server != nil {
		if err := http3Server.Shutdown(ctx); err != nil {
			logger.Error("关闭 HTTP/3 服务器失败", zap.Error(err))
		}
	}

	logger.Info("✓ 所有服务器已停止")
}

/*
createTLSConfig 构建 TLS 配置
功能：根据配置的最低版本要求构建，默认 TLS 1.3
*/
func createTLSConfig(cfg *config.Config) *tls.Config {
	minVersion := uint16(tls.VersionTLS13)
	if cfg.TLS.MinVersion == "TLS 1.2" {
		minVersion = tls.VersionTLS12
	}
	return &tls.Config{
		MinVersion: minVersion,
	}
}
