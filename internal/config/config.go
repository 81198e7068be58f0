package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	TLS       TLSConfig       `yaml:"tls"`
	Log       LogConfig       `yaml:"log"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Provision ProvisionConfig `yaml:"provision"`
	Renewal   RenewalConfig   `yaml:"renewal"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	HTTP3Port    int    `yaml:"http3_port"`   // HTTP/3 (QUIC) 端口
	Mode         string `yaml:"mode"`         // debug, release
	EnableHTTP3  bool   `yaml:"enable_http3"` // 启用 HTTP/3
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`

	/* CORS 跨域配置 */
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"` /* 允许的来源列表，["*"] 表示允许所有（仅开发环境） */

	/* 事件流 WebSocket 配置 */
	WSMaxConnections int `yaml:"ws_max_connections"` /* 事件订阅连接上限，0 表示不限制 */
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type     string `yaml:"type"`     // 数据库类型: sqlite, mysql, postgres
	Host     string `yaml:"host"`     // 数据库主机
	Port     int    `yaml:"port"`     // 数据库端口
	User     string `yaml:"user"`     // 数据库用户名
	Password string `yaml:"password"` // 数据库密码
	DBName   string `yaml:"db_name"`  // 数据库名称
	SSLMode  string `yaml:"ssl_mode"` // SSL模式 (postgres)
	Charset  string `yaml:"charset"`  // 字符集 (mysql)

	/* SQLite 专用 */
	SQLitePath string `yaml:"sqlite_path"`

	/* 连接池 */
	MaxOpenConns int `yaml:"max_open_conns"` // 最大打开连接数
	MaxIdleConns int `yaml:"max_idle_conns"` // 最大空闲连接数

	/* 日志 */
	LogLevel string `yaml:"log_level"` // silent, error, warn, info
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	MaxRetries   int    `yaml:"max_retries"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret     string         `yaml:"jwt_secret"`
	JWTExpiration int            `yaml:"jwt_expiration"` // 单位：小时
	APIKeys       []APIKeyConfig `yaml:"api_keys"`       /* 服务调用方（机器人/仪表盘）API 密钥列表 */
}

// APIKeyConfig 服务调用方 API 密钥配置
type APIKeyConfig struct {
	Name    string `yaml:"name"`     /* 调用方名称：bot / dashboard */
	KeyHash string `yaml:"key_hash"` /* 密钥的 bcrypt 哈希，明文不落盘 */
	Role    string `yaml:"role"`     /* 角色：service / admin */
}

// TLSConfig TLS配置
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"` // TLS 1.2, TLS 1.3
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, console
	OutputPath string `yaml:"output_path"` // 日志文件路径
	MaxSize    int    `yaml:"max_size"`    // 单个日志文件大小(MB)
	MaxBackups int    `yaml:"max_backups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"max_age"`     // 保留天数
	Compress   bool   `yaml:"compress"`    // 是否压缩
}

/*
GatewayConfig 远程面板网关配置
功能：统一控制所有面板客户端的超时、重试与熔断参数。
重试仅针对瞬时错误（超时/5xx/连接重置），认证拒绝和 4xx 立即失败。
*/
type GatewayConfig struct {
	RequestTimeout   int     `yaml:"request_timeout"`    /* 单次远程调用超时（秒），默认 5 */
	MaxAttempts      int     `yaml:"max_attempts"`       /* 最大尝试次数（含首次），默认 3 */
	BaseDelayMS      int     `yaml:"base_delay_ms"`      /* 退避基础延迟（毫秒），默认 200 */
	MaxDelayMS       int     `yaml:"max_delay_ms"`       /* 退避延迟上限（毫秒），默认 5000 */
	JitterFrac       float64 `yaml:"jitter_frac"`        /* 抖动比例 [0,1]，默认 0.2 */
	BreakerThreshold int     `yaml:"breaker_threshold"`  /* 连续失败多少次后熔断，默认 5 */
	BreakerCooldown  int     `yaml:"breaker_cooldown"`   /* 熔断冷却时间（秒），冷却后放行一次探测请求，默认 30 */
	PanelConcurrency int     `yaml:"panel_concurrency"`  /* 单面板并发调用上限，防止压垮远程面板，默认 4 */
	ProbeInterval    int     `yaml:"probe_interval"`     /* 面板健康探测周期（秒），默认 60 */
	SessionCacheTTL  int     `yaml:"session_cache_ttl"`  /* 会话令牌缓存时间（秒），默认 1800 */
}

/*
ProvisionConfig 开通编排配置
*/
type ProvisionConfig struct {
	Workers          int `yaml:"workers"`           /* 工作池协程数，默认 8 */
	OperationTimeout int `yaml:"operation_timeout"` /* 单次开通/续费操作整体超时（秒），独立于单次远程调用超时，默认 60 */
}

/*
RenewalConfig 续费调度配置

suspend 与 delete 的关系为可配置策略（源系统未明确）：
  - suspend_mode=remote_disable：暂停时在远程面板禁用客户端（默认）
  - suspend_mode=local_flag：暂停仅标记本地状态，远程客户端不动
暂停超过 grace_period 后转为 expired 并排队删除远程客户端。
*/
type RenewalConfig struct {
	Interval    int    `yaml:"interval"`     /* 扫描周期（秒），默认 300 */
	Lookahead   int    `yaml:"lookahead"`    /* 到期前多久开始处理（小时），默认 24 */
	GracePeriod int    `yaml:"grace_period"` /* 暂停宽限期（小时），超过后转 expired 并删除远程客户端，默认 72 */
	SuspendMode string `yaml:"suspend_mode"` /* remote_disable / local_flag */
}

/*
ReconcileConfig 对账扫描配置
*/
type ReconcileConfig struct {
	Interval int `yaml:"interval"` /* 每面板对账周期（秒），默认 600 */
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.warnInsecureDefaults()
	return config, nil
}

/*
warnInsecureDefaults 检查生产环境下是否使用了不安全的默认值
功能：在 release 模式下对 JWT 默认密钥、空 API 密钥列表等输出警告，
提醒运维人员及时修改，避免上线后被利用。
*/
func (c *Config) warnInsecureDefaults() {
	if c.Server.Mode != "release" {
		return
	}

	if c.Auth.JWTSecret == "change-this-secret-in-production" || len(c.Auth.JWTSecret) < 16 {
		fmt.Println("[SECURITY WARNING] 生产环境使用了默认或过短的 JWT 密钥，请立即修改 auth.jwt_secret")
	}
	if len(c.Auth.APIKeys) == 0 {
		fmt.Println("[SECURITY WARNING] 未配置任何服务调用方 API 密钥，所有业务接口将不可用，请配置 auth.api_keys")
	}
	for _, o := range c.Server.CORSAllowedOrigins {
		if o == "*" {
			fmt.Println("[SECURITY WARNING] 生产环境 CORS 允许所有来源（*），请配置具体域名白名单 server.cors_allowed_origins")
			break
		}
	}
}

// LoadConfigOrDefault 加载配置或使用默认值
func LoadConfigOrDefault(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}

	config, err := LoadConfig(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v, using defaults\n", err)
		return DefaultConfig()
	}

	return config
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			HTTP3Port:          8443,
			Mode:               "debug",
			EnableHTTP3:        false,
			ReadTimeout:        30,
			WriteTimeout:       30,
			CORSAllowedOrigins: []string{"*"}, /* 开发模式默认允许所有，生产环境应改为具体域名 */
			WSMaxConnections:   100,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			SQLitePath:   "./data/moonvpn.db",
			Host:         "localhost",
			Port:         3306,
			User:         "root",
			Password:     "",
			DBName:       "moonvpn",
			SSLMode:      "disable",
			Charset:      "utf8mb4",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			LogLevel:     "warn",
		},
		Redis: RedisConfig{
			Addr:         "",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 3,
			MaxRetries:   3,
		},
		Auth: AuthConfig{
			JWTSecret:     "change-this-secret-in-production",
			JWTExpiration: 24,
			APIKeys:       nil,
		},
		TLS: TLSConfig{
			Enabled:    false,
			CertFile:   "",
			KeyFile:    "",
			MinVersion: "TLS 1.3",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "./logs/moonvpn.log",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Gateway: GatewayConfig{
			RequestTimeout:   5,
			MaxAttempts:      3,
			BaseDelayMS:      200,
			MaxDelayMS:       5000,
			JitterFrac:       0.2,
			BreakerThreshold: 5,
			BreakerCooldown:  30,
			PanelConcurrency: 4,
			ProbeInterval:    60,
			SessionCacheTTL:  1800,
		},
		Provision: ProvisionConfig{
			Workers:          8,
			OperationTimeout: 60,
		},
		Renewal: RenewalConfig{
			Interval:    300,
			Lookahead:   24,
			GracePeriod: 72,
			SuspendMode: "remote_disable",
		},
		Reconcile: ReconcileConfig{
			Interval: 600,
		},
	}
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	/* 0600：仅所有者可读写，配置文件含敏感信息（密钥/密码） */
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
