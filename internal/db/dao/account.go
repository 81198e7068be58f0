package dao

import (
	"time"

	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"

	"gorm.io/gorm"
)

/* ==================== 客户账号台账 ==================== */

/*
CreateAccount 创建客户账号（pending 状态）
*/
func (d *DAO) CreateAccount(acct *models.ClientAccount) error {
	return d.DB.Create(acct).Error
}

/*
GetAccount 根据 ID 获取账号
*/
func (d *DAO) GetAccount(accountID string) (*models.ClientAccount, error) {
	var acct models.ClientAccount
	if err := d.DB.Preload("Plan").First(&acct, "id = ?", accountID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &acct, nil
}

/*
GetAccountByRemoteTag 根据幂等标签获取账号
功能：对账扫描用远程客户端的标签反查台账
*/
func (d *DAO) GetAccountByRemoteTag(tag string) (*models.ClientAccount, error) {
	var acct models.ClientAccount
	if err := d.DB.First(&acct, "remote_tag = ?", tag).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &acct, nil
}

/*
UpdateAccountCAS 带乐观锁的账号更新
功能：以读取时的版本号为条件写入，版本不一致（其间被并发修改）时
返回 ErrConcurrentModification，调用方应重读后重试。
成功写入后 acct.Version 自增。
*/
func (d *DAO) UpdateAccountCAS(acct *models.ClientAccount) error {
	oldVersion := acct.Version
	acct.Version = oldVersion + 1

	result := d.DB.Model(&models.ClientAccount{}).
		Where("id = ? AND version = ?", acct.ID, oldVersion).
		Updates(map[string]interface{}{
			"panel_id":         acct.PanelID,
			"inbound_id":       acct.InboundID,
			"remote_client_id": acct.RemoteClientID,
			"status":           acct.Status,
			"expires_at":       acct.ExpiresAt,
			"traffic_quota":    acct.TrafficQuota,
			"traffic_used":     acct.TrafficUsed,
			"suspended_at":     acct.SuspendedAt,
			"version":          acct.Version,
		})
	if result.Error != nil {
		acct.Version = oldVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		acct.Version = oldVersion
		return errs.ErrConcurrentModification
	}
	return nil
}

/*
ListAccountsByUser 获取用户的账号列表
*/
func (d *DAO) ListAccountsByUser(userID string, limit, offset int) ([]models.ClientAccount, int64, error) {
	limit, offset = SanitizePagination(limit, offset, 200)

	var accts []models.ClientAccount
	var total int64

	q := d.DB.Model(&models.ClientAccount{}).Where("user_id = ?", userID)
	q.Count(&total)

	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&accts).Error; err != nil {
		return nil, 0, err
	}
	return accts, total, nil
}

/*
GetActiveAccountByUserPlan 获取用户在某套餐下的活跃账号
功能：同一 (user, plan) 至多一个活跃账号的约束检查
*/
func (d *DAO) GetActiveAccountByUserPlan(userID, planID string) (*models.ClientAccount, error) {
	var acct models.ClientAccount
	err := d.DB.Where("user_id = ? AND plan_id = ? AND status IN ?",
		userID, planID,
		[]models.AccountStatus{models.AccountStatusPending, models.AccountStatusActive, models.AccountStatusSuspended}).
		First(&acct).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &acct, nil
}

/*
ListRenewable 列出需要续费处理的账号
功能：active 状态且（到期时间进入 lookahead 窗口 或 流量用尽）的账号
*/
func (d *DAO) ListRenewable(deadline time.Time) ([]models.ClientAccount, error) {
	var accts []models.ClientAccount
	err := d.DB.Preload("Plan").
		Where("status = ?", models.AccountStatusActive).
		Where("expires_at <= ? OR (traffic_quota > 0 AND traffic_used >= traffic_quota)", deadline).
		Find(&accts).Error
	return accts, err
}

/*
ListSuspendedBefore 列出在指定时间之前暂停的账号
功能：宽限期到期处理，转 expired 并排队删除远程客户端
*/
func (d *DAO) ListSuspendedBefore(cutoff time.Time) ([]models.ClientAccount, error) {
	var accts []models.ClientAccount
	err := d.DB.
		Where("status = ? AND suspended_at <= ?", models.AccountStatusSuspended, cutoff).
		Find(&accts).Error
	return accts, err
}

/*
ListAccountsByPanel 列出引用某面板的未删除账号
功能：对账扫描的本地侧输入
*/
func (d *DAO) ListAccountsByPanel(panelID string) ([]models.ClientAccount, error) {
	var accts []models.ClientAccount
	err := d.DB.
		Where("panel_id = ? AND status NOT IN ?", panelID,
			[]models.AccountStatus{models.AccountStatusDeleted}).
		Find(&accts).Error
	return accts, err
}

/*
CountAccountsByInbound 统计各入站的已分配账号数
功能：返回 inbound_id → 占用数的映射，分配器据此计算容量余量。
pending/active/suspended 均占用槽位，expired/drift 保留占用直到删除。
*/
func (d *DAO) CountAccountsByInbound(panelID string) (map[string]int, error) {
	type row struct {
		InboundID string
		Cnt       int
	}
	var rows []row
	err := d.DB.Model(&models.ClientAccount{}).
		Select("inbound_id, COUNT(*) as cnt").
		Where("panel_id = ? AND status NOT IN ?", panelID,
			[]models.AccountStatus{models.AccountStatusDeleted}).
		Group("inbound_id").Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.InboundID] = r.Cnt
	}
	return counts, nil
}

/*
MergeTraffic 单调合并流量读数
功能：仅当新读数大于当前值时更新 traffic_used，
陈旧读数不会让已用流量回退。
*/
func (d *DAO) MergeTraffic(accountID string, used int64) error {
	return d.DB.Model(&models.ClientAccount{}).
		Where("id = ? AND traffic_used < ?", accountID, used).
		Update("traffic_used", used).Error
}
