package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"
)

/*
  Manager 数据库管理器
  功能：统一管理 GORM 数据库连接和可选的 Redis 缓存连接，
  提供初始化、迁移、关闭等生命周期管理
*/
type Manager struct {
	DB    *gorm.DB
	Redis *RedisClient

	dbConfig *Config
}

/*
  ManagerConfig 管理器配置
  功能：聚合数据库和 Redis 的配置信息
*/
type ManagerConfig struct {
	Database *Config      `yaml:"database" json:"database"`
	Redis    *RedisConfig `yaml:"redis" json:"redis"`
}

/*
  NewManager 创建数据库管理器
  功能：初始化数据库和 Redis 连接，自动执行数据库迁移。
  Redis 为可选组件，连接失败仅告警不中断启动。
*/
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	if cfg == nil || cfg.Database == nil {
		cfg = &ManagerConfig{Database: DefaultConfig()}
	}

	manager := &Manager{
		dbConfig: cfg.Database,
	}

	db, err := NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	manager.DB = db

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	/* 初始化 Redis（可选组件） */
	if cfg.Redis != nil && cfg.Redis.Addr != "" {
		redisClient, err := NewRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("⚠ Redis 连接失败: %v（继续运行，不使用缓存）", err)
		} else {
			manager.Redis = redisClient
		}
	}

	return manager, nil
}

/*
  HasRedis 检查 Redis 是否可用
*/
func (m *Manager) HasRedis() bool {
	return m.Redis != nil && m.Redis.IsAvailable()
}

/*
  Close 关闭所有连接
*/
func (m *Manager) Close() error {
	var errs []error

	if m.DB != nil {
		sqlDB, err := m.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("关闭数据库连接失败: %w", err))
			}
		}
	}

	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("关闭 Redis 连接失败: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("关闭连接时发生错误: %v", errs)
	}

	log.Println("✓ 所有数据库连接已关闭")
	return nil
}

/*
  GetDBType 获取当前数据库类型
*/
func (m *Manager) GetDBType() DBType {
	return m.dbConfig.Type
}
