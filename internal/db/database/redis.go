package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

/*
  RedisConfig Redis 连接配置
*/
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	/* 连接池配置 */
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

/*
  DefaultRedisConfig 返回默认 Redis 配置
*/
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 3,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

/*
  RedisClient Redis 客户端封装
  功能：提供 Redis 连接管理和常用操作的封装。
  引擎中用于幂等结果缓存、扫描分布式锁和面板会话缓存，
  Redis 不可用时各处均回退为数据库/本地实现。
*/
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

/*
  NewRedisClient 创建 Redis 客户端
  功能：根据配置初始化 Redis 连接，连接失败时返回错误（Redis 为可选组件）
*/
func NewRedisClient(cfg *RedisConfig) (*RedisClient, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()

	/* 测试连接 */
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis 连接失败 [%s]: %w", cfg.Addr, err)
	}

	log.Printf("✓ Redis 连接成功 [%s]", cfg.Addr)

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

/*
  Set 设置缓存
*/
func (r *RedisClient) Set(key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(r.ctx, key, value, expiration).Err()
}

/*
  Get 获取缓存
*/
func (r *RedisClient) Get(key string) (string, error) {
	return r.client.Get(r.ctx, key).Result()
}

/*
  Del 删除缓存
*/
func (r *RedisClient) Del(keys ...string) error {
	return r.client.Del(r.ctx, keys...).Err()
}

/*
  SetNX 设置键值对（仅在键不存在时）
  功能：原子性地设置键值对，用于扫描任务的分布式锁
*/
func (r *RedisClient) SetNX(key string, value interface{}, expiration time.Duration) (bool, error) {
	return r.client.SetNX(r.ctx, key, value, expiration).Result()
}

/*
  Expire 设置过期时间
*/
func (r *RedisClient) Expire(key string, expiration time.Duration) error {
	return r.client.Expire(r.ctx, key, expiration).Err()
}

/*
  Close 关闭 Redis 连接
*/
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

/*
  IsAvailable 检查 Redis 是否可用
*/
func (r *RedisClient) IsAvailable() bool {
	if r == nil || r.client == nil {
		return false
	}
	return r.client.Ping(r.ctx).Err() == nil
}
