package models

import (
	"time"
)

/*
AccountStatus 客户账号状态枚举
功能：定义客户 VPN 凭证的生命周期状态

状态流转：

	pending → active ⇄ suspended → expired → deleted
	                 ↘ drift（对账发现漂移，人工处理后恢复 active）

remote_client_id 仅在 pending 状态下允许为空；
deleted 仅在远程删除成功或确认远程本就不存在后才落账。
*/
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "pending"   /* 待开通：台账已建，远程面板尚未确认 */
	AccountStatusActive    AccountStatus = "active"    /* 已激活：远程创建确认且台账已提交 */
	AccountStatusSuspended AccountStatus = "suspended" /* 已暂停：到期/超量，远程客户端按策略禁用 */
	AccountStatusExpired   AccountStatus = "expired"   /* 已过期：超过宽限期，排队删除远程客户端 */
	AccountStatusDrift     AccountStatus = "drift"     /* 漂移：台账与远程面板不一致且自动修复失败，等待人工处理 */
	AccountStatusDeleted   AccountStatus = "deleted"   /* 已删除：远程删除成功或确认无需删除 */
)

/*
ClientAccount 客户账号模型
功能：客户 VPN 凭证的权威本地台账。记录套餐、分配的面板/入站、
远程身份、有效期和流量配额。同一账号上的操作通过 Version 字段
做乐观并发控制：版本不一致的写入失败，由调用方重读后重试。
*/
type ClientAccount struct {
	BaseModel
	UserID string `gorm:"type:varchar(36);index:idx_acct_user_plan;not null" json:"user_id"`
	PlanID string `gorm:"type:varchar(36);index:idx_acct_user_plan;not null" json:"plan_id"`

	/* 分配结果 */
	PanelID   string `gorm:"type:varchar(36);index;not null" json:"panel_id"`
	InboundID string `gorm:"type:varchar(36);index;not null" json:"inbound_id"`

	/*
		远程身份
		RemoteClientID：面板侧客户端 UUID，pending 状态下为空
		RemoteTag：创建时下发的幂等标签（面板侧唯一），重放 createClient 凭此返回已有客户端
	*/
	RemoteClientID string `gorm:"type:varchar(64);index" json:"remote_client_id"`
	RemoteTag      string `gorm:"type:varchar(64);uniqueIndex" json:"remote_tag"`

	Status    AccountStatus `gorm:"type:varchar(16);default:'pending';not null;index" json:"status"`
	ExpiresAt time.Time     `gorm:"not null;index" json:"expires_at"`

	/* 流量（字节）。TrafficUsed 由对账扫描单调合并，不会被陈旧读数回退 */
	TrafficQuota int64 `gorm:"default:0;not null" json:"traffic_quota"`
	TrafficUsed  int64 `gorm:"default:0;not null" json:"traffic_used"`

	/* 暂停时间，用于宽限期计算；零值表示未暂停 */
	SuspendedAt time.Time `gorm:"" json:"suspended_at"`

	/* 乐观锁版本号，每次成功写入自增 */
	Version int `gorm:"default:0;not null" json:"version"`

	/* 关联 */
	Plan    Plan    `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Panel   Panel   `gorm:"foreignKey:PanelID" json:"-"`
	Inbound Inbound `gorm:"foreignKey:InboundID" json:"-"`
}

func (ClientAccount) TableName() string {
	return "client_accounts"
}

/*
Plan 套餐模型
功能：可购买的权益定义。一旦被订单引用即不可变
（DAO 层拒绝更新/删除已被引用的套餐）。
*/
type Plan struct {
	BaseModel
	Name         string  `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	Price        float64 `gorm:"type:decimal(12,2);not null" json:"price"`
	DurationDays int     `gorm:"not null" json:"duration_days"`       /* 有效期（天） */
	TrafficQuota int64   `gorm:"default:0;not null" json:"traffic_quota"` /* 流量配额（字节），0 表示不限 */

	/*
		约束列表，JSON 数组，加载时校验而非使用时校验。
		AllowedProtocols 例：["vless","trojan"]；为空不限制。
		AllowedRegions 例：["hk","jp"]；为空不限制。
	*/
	AllowedProtocols string `gorm:"type:text" json:"allowed_protocols"`
	AllowedRegions   string `gorm:"type:text" json:"allowed_regions"`

	AutoRenew bool `gorm:"default:false;not null" json:"auto_renew"` /* 到期时是否自动续费 */
	Enabled   bool `gorm:"default:true;not null" json:"enabled"`
}

func (Plan) TableName() string {
	return "plans"
}
