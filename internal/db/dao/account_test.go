package dao

import (
	"errors"
	"testing"
	"time"

	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
)

func newTestAccount(tag string) *models.ClientAccount {
	return &models.ClientAccount{
		UserID:    "user-1",
		PlanID:    "plan-1",
		PanelID:   "panel-1",
		InboundID: "inbound-1",
		RemoteTag: tag,
		Status:    models.AccountStatusActive,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
}

/*
TestUpdateAccountCAS 测试乐观锁版本冲突
功能：两个读者各持同一版本，后写者必须失败且版本号被还原
*/
func TestUpdateAccountCAS(t *testing.T) {
	d := setupTestDAO(t)

	acct := newTestAccount("tag-1")
	if err := d.CreateAccount(acct); err != nil {
		t.Fatalf("创建账号失败: %v", err)
	}

	copy1, _ := d.GetAccount(acct.ID)
	copy2, _ := d.GetAccount(acct.ID)

	copy1.Status = models.AccountStatusSuspended
	if err := d.UpdateAccountCAS(copy1); err != nil {
		t.Fatalf("第一个写入应成功: %v", err)
	}
	if copy1.Version != 1 {
		t.Errorf("成功写入后版本应自增为 1, 实际 %d", copy1.Version)
	}

	copy2.Status = models.AccountStatusExpired
	err := d.UpdateAccountCAS(copy2)
	if !errors.Is(err, errs.ErrConcurrentModification) {
		t.Fatalf("陈旧版本写入应返回 ErrConcurrentModification, 实际 %v", err)
	}
	if copy2.Version != 0 {
		t.Errorf("失败写入后版本应还原为 0, 实际 %d", copy2.Version)
	}

	/* 数据库里保留的是先写者的结果 */
	fresh, _ := d.GetAccount(acct.ID)
	if fresh.Status != models.AccountStatusSuspended {
		t.Errorf("账号状态应为 suspended, 实际 %s", fresh.Status)
	}

	/* 重读后重新提交可成功 */
	copy2 = fresh
	copy2.Status = models.AccountStatusExpired
	if err := d.UpdateAccountCAS(copy2); err != nil {
		t.Errorf("重读后的写入应成功: %v", err)
	}
}

/*
TestMergeTrafficMonotonic 测试流量单调合并
功能：陈旧的较小读数不会让已用流量回退
*/
func TestMergeTrafficMonotonic(t *testing.T) {
	d := setupTestDAO(t)

	acct := newTestAccount("tag-1")
	if err := d.CreateAccount(acct); err != nil {
		t.Fatalf("创建账号失败: %v", err)
	}

	if err := d.MergeTraffic(acct.ID, 1000); err != nil {
		t.Fatalf("流量合并失败: %v", err)
	}
	fresh, _ := d.GetAccount(acct.ID)
	if fresh.TrafficUsed != 1000 {
		t.Errorf("流量应为 1000, 实际 %d", fresh.TrafficUsed)
	}

	/* 陈旧读数被忽略 */
	if err := d.MergeTraffic(acct.ID, 500); err != nil {
		t.Fatalf("流量合并失败: %v", err)
	}
	fresh, _ = d.GetAccount(acct.ID)
	if fresh.TrafficUsed != 1000 {
		t.Errorf("陈旧读数不应回退流量: 期望 1000, 实际 %d", fresh.TrafficUsed)
	}

	if err := d.MergeTraffic(acct.ID, 2000); err != nil {
		t.Fatalf("流量合并失败: %v", err)
	}
	fresh, _ = d.GetAccount(acct.ID)
	if fresh.TrafficUsed != 2000 {
		t.Errorf("更大读数应被采纳: 期望 2000, 实际 %d", fresh.TrafficUsed)
	}
}

/*
TestListRenewable 测试续费扫描查询
功能：到期进入窗口或流量用尽的 active 账号被选中
*/
func TestListRenewable(t *testing.T) {
	d := setupTestDAO(t)

	plan := &models.Plan{Name: "基础套餐", Price: 10, DurationDays: 30}
	plan.ID = "plan-1"
	if err := d.CreatePlan(plan); err != nil {
		t.Fatalf("创建套餐失败: %v", err)
	}

	/* 即将到期 */
	expiring := newTestAccount("tag-expiring")
	expiring.ExpiresAt = time.Now().Add(1 * time.Hour)
	d.CreateAccount(expiring)

	/* 流量用尽，未到期 */
	exhausted := newTestAccount("tag-exhausted")
	exhausted.TrafficQuota = 100
	exhausted.TrafficUsed = 100
	d.CreateAccount(exhausted)

	/* 正常账号 */
	healthy := newTestAccount("tag-healthy")
	d.CreateAccount(healthy)

	/* 已暂停的不参与 */
	suspended := newTestAccount("tag-suspended")
	suspended.Status = models.AccountStatusSuspended
	suspended.ExpiresAt = time.Now().Add(-1 * time.Hour)
	d.CreateAccount(suspended)

	accts, err := d.ListRenewable(time.Now().Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("续费扫描查询失败: %v", err)
	}
	if len(accts) != 2 {
		t.Fatalf("应选中 2 个账号, 实际 %d", len(accts))
	}
	tags := map[string]bool{}
	for _, a := range accts {
		tags[a.RemoteTag] = true
	}
	if !tags["tag-expiring"] || !tags["tag-exhausted"] {
		t.Errorf("选中集合不匹配: %v", tags)
	}
}

/*
TestGetActiveAccountByUserPlan 测试同套餐活跃账号唯一性查询
*/
func TestGetActiveAccountByUserPlan(t *testing.T) {
	d := setupTestDAO(t)

	deleted := newTestAccount("tag-deleted")
	deleted.Status = models.AccountStatusDeleted
	d.CreateAccount(deleted)

	got, err := d.GetActiveAccountByUserPlan("user-1", "plan-1")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got != nil {
		t.Error("已删除的账号不应被视为活跃")
	}

	active := newTestAccount("tag-active")
	d.CreateAccount(active)

	got, err = d.GetActiveAccountByUserPlan("user-1", "plan-1")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if got == nil || got.RemoteTag != "tag-active" {
		t.Errorf("应返回活跃账号 tag-active, 实际 %+v", got)
	}
}

/*
TestCountAccountsByInbound 测试入站占用统计
功能：pending/active/suspended 占用槽位，deleted 不占用
*/
func TestCountAccountsByInbound(t *testing.T) {
	d := setupTestDAO(t)

	for i, status := range []models.AccountStatus{
		models.AccountStatusPending,
		models.AccountStatusActive,
		models.AccountStatusSuspended,
		models.AccountStatusDeleted,
	} {
		acct := newTestAccount("tag-" + string(rune('a'+i)))
		acct.Status = status
		d.CreateAccount(acct)
	}

	counts, err := d.CountAccountsByInbound("panel-1")
	if err != nil {
		t.Fatalf("统计失败: %v", err)
	}
	if counts["inbound-1"] != 3 {
		t.Errorf("inbound-1 占用应为 3, 实际 %d", counts["inbound-1"])
	}
}
