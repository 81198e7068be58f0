package models

import (
	"time"
)

/*
PanelStatus 面板健康状态枚举
功能：定义远程网关面板的健康状态，用于分配决策和熔断联动

状态流转（每个探测周期内单调，不来回抖动）：

	up → degraded → down
	down 状态的面板在冷却探测成功后恢复为 up
*/
type PanelStatus string

const (
	PanelStatusUp       PanelStatus = "up"       /* 正常：探测通过，可分配新账号 */
	PanelStatusDegraded PanelStatus = "degraded" /* 降级：出现失败但未达熔断阈值，暂停分配新账号 */
	PanelStatusDown     PanelStatus = "down"     /* 不可用：熔断开启或探测连续失败 */
)

/*
Panel 远程网关面板模型
功能：存储独立运营的远程 VPN 网关面板的接入信息和健康状态。
每个面板是一个外部托管的网关实例，引擎通过其客户端管理 API
创建/更新/删除客户凭证。面板协议细节对引擎不可见，仅按能力契约交互。
*/
type Panel struct {
	BaseModel
	Name     string `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"` /* 面板显示名称（唯一） */
	Endpoint string `gorm:"type:varchar(256);not null" json:"endpoint"`        /* 面板 API 地址，如 https://p1.example.com:2053 */
	Region   string `gorm:"type:varchar(32);index" json:"region"`              /* 部署地区，用于套餐地区约束过滤 */

	/* 认证凭证：每面板恰好一组有效凭证（不序列化） */
	Username string `gorm:"type:varchar(128)" json:"-"`
	Password string `gorm:"type:varchar(256)" json:"-"`

	/* 健康与容量 */
	Status       PanelStatus `gorm:"type:varchar(16);default:'up';not null;index" json:"status"` /* 当前健康状态 */
	CapacityHint int         `gorm:"default:0" json:"capacity_hint"`                             /* 容量提示（面板级账号上限，0 表示不限制） */
	LastProbeAt  time.Time   `gorm:"" json:"last_probe_at"`                                      /* 最后一次探测时间 */
	Enabled      bool        `gorm:"default:true;not null" json:"enabled"`                       /* 管理员开关，禁用后不参与分配和对账 */

	/* 关联 */
	Inbounds []Inbound `gorm:"foreignKey:PanelID" json:"inbounds,omitempty"`
}

func (Panel) TableName() string {
	return "panels"
}

/*
Inbound 入站模型
功能：面板上的一个开通槽位（协议/端口配置），客户凭证挂载在入站之下。
容量不小于已分配账号数由分配器保证（建议性预留 + 台账计数）。
*/
type Inbound struct {
	BaseModel
	PanelID       string `gorm:"type:varchar(36);index;not null" json:"panel_id"`  /* 所属面板 ID */
	RemoteID      int    `gorm:"not null" json:"remote_id"`                        /* 面板侧入站 ID */
	Protocol      string `gorm:"type:varchar(16);not null;index" json:"protocol"`  /* 协议：vless / vmess / trojan / shadowsocks */
	Port          int    `gorm:"default:0" json:"port"`                            /* 监听端口 */
	Capacity      int    `gorm:"default:0;not null" json:"capacity"`               /* 槽位容量（可挂载客户端上限） */
	DefaultParams string `gorm:"type:text" json:"default_params"`                  /* 默认参数 JSON（flow、加密方式等），加载时校验 */
	Enabled       bool   `gorm:"default:true;not null" json:"enabled"`             /* 是否参与分配 */

	/* 关联 */
	Panel Panel `gorm:"foreignKey:PanelID" json:"-"`
}

func (Inbound) TableName() string {
	return "inbounds"
}
