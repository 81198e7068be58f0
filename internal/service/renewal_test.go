package service

import (
	"context"
	"testing"
	"time"

	"moonvpn/internal/config"
	"moonvpn/internal/db/models"
)

func newTestScheduler(env *testEnv, suspendMode string) *RenewalScheduler {
	return NewRenewalScheduler(env.dao, env.orch, env.pool, nil, config.RenewalConfig{
		Interval:    300,
		Lookahead:   24,
		GracePeriod: 72,
		SuspendMode: suspendMode,
	})
}

/*
TestSweepAutoRenews 测试自动续费
功能：开自动续费且余额充足的到期账号被续费，有效期顺延、不暂停
*/
func TestSweepAutoRenews(t *testing.T) {
	env := newTestEnv(t)
	panel, inbound := env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	plan := env.seedPlan(t, "自动续费套餐", 10, 30, true)
	env.fund(t, "user-1", 100)

	acct := env.seedActiveAccount(t, "user-1", plan, panel, inbound, "tag-auto")
	acct.ExpiresAt = time.Now().Add(1 * time.Hour)
	if err := env.dao.UpdateAccountCAS(acct); err != nil {
		t.Fatalf("预置到期时间失败: %v", err)
	}

	newTestScheduler(env, "remote_disable").Sweep(context.Background())

	fresh, _ := env.dao.GetAccount(acct.ID)
	if fresh.Status != models.AccountStatusActive {
		t.Fatalf("自动续费后应保持 active, 实际 %s", fresh.Status)
	}
	if !fresh.ExpiresAt.After(time.Now().Add(29 * 24 * time.Hour)) {
		t.Errorf("有效期应顺延约 30 天, 实际 %v", fresh.ExpiresAt)
	}

	wallet, _ := env.dao.GetWalletByUserID("user-1")
	if wallet.Balance != 90 {
		t.Errorf("自动续费应扣费 10: 期望 90, 实际 %f", wallet.Balance)
	}
}

/*
TestSweepAutoRenewIdempotent 测试同一到期周期内重复扫描不重复扣费
*/
func TestSweepAutoRenewIdempotent(t *testing.T) {
	env := newTestEnv(t)
	panel, inbound := env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	plan := env.seedPlan(t, "自动续费套餐", 10, 30, true)
	env.fund(t, "user-1", 100)

	acct := env.seedActiveAccount(t, "user-1", plan, panel, inbound, "tag-idem")
	acct.ExpiresAt = time.Now().Add(1 * time.Hour)
	if err := env.dao.UpdateAccountCAS(acct); err != nil {
		t.Fatalf("预置到期时间失败: %v", err)
	}

	/* 第一轮续费成功后账号离开扫描窗口；就算窗口判断出错，
	   以 (账号, 原到期时间) 派生的幂等键也会命中原订单 */
	sched := newTestScheduler(env, "remote_disable")
	sched.Sweep(context.Background())
	sched.Sweep(context.Background())

	wallet, _ := env.dao.GetWalletByUserID("user-1")
	if wallet.Balance != 90 {
		t.Errorf("重复扫描不应重复扣费: 期望 90, 实际 %f", wallet.Balance)
	}
}

/*
TestSweepSuspendsWithoutAutoRenew 测试无自动续费的到期账号被暂停
功能：remote_disable 模式下远程客户端被禁用
*/
func TestSweepSuspendsWithoutAutoRenew(t *testing.T) {
	env := newTestEnv(t)
	panel, inbound := env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	plan := env.seedPlan(t, "手动套餐", 10, 30, false)

	acct := env.seedActiveAccount(t, "user-1", plan, panel, inbound, "tag-manual")
	acct.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if err := env.dao.UpdateAccountCAS(acct); err != nil {
		t.Fatalf("预置到期时间失败: %v", err)
	}

	events, cancel := env.bus.Subscribe(16)
	defer cancel()

	newTestScheduler(env, "remote_disable").Sweep(context.Background())

	fresh, _ := env.dao.GetAccount(acct.ID)
	if fresh.Status != models.AccountStatusSuspended {
		t.Fatalf("账号应被暂停, 实际 %s", fresh.Status)
	}
	if fresh.SuspendedAt.IsZero() {
		t.Error("暂停时间应被记录")
	}

	fake := env.fakes["p-a"]
	if fake.updateCalls != 1 {
		t.Errorf("remote_disable 模式应禁用远程客户端, 更新 %d 次", fake.updateCalls)
	}
	if fake.lastUpdate.Enable {
		t.Error("远程更新应携带 Enable=false")
	}

	waitEvent(t, events, EventAccountSuspended)
}

/*
TestSweepLocalFlagKeepsRemoteUntouched 测试 local_flag 模式不触碰远程
*/
func TestSweepLocalFlagKeepsRemoteUntouched(t *testing.T) {
	env := newTestEnv(t)
	panel, inbound := env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	plan := env.seedPlan(t, "手动套餐", 10, 30, false)

	acct := env.seedActiveAccount(t, "user-1", plan, panel, inbound, "tag-local")
	acct.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if err := env.dao.UpdateAccountCAS(acct); err != nil {
		t.Fatalf("预置到期时间失败: %v", err)
	}

	newTestScheduler(env, "local_flag").Sweep(context.Background())

	fresh, _ := env.dao.GetAccount(acct.ID)
	if fresh.Status != models.AccountStatusSuspended {
		t.Fatalf("账号应被暂停, 实际 %s", fresh.Status)
	}
	if env.fakes["p-a"].updateCalls != 0 {
		t.Errorf("local_flag 模式不应触碰远程, 更新 %d 次", env.fakes["p-a"].updateCalls)
	}
}

/*
TestSweepExpiresAfterGracePeriod 测试宽限期耗尽后过期删除
功能：suspended 超过宽限期 → expired → 排队删除远程客户端 → deleted
*/
func TestSweepExpiresAfterGracePeriod(t *testing.T) {
	env := newTestEnv(t)
	panel, inbound := env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	plan := env.seedPlan(t, "手动套餐", 10, 30, false)

	acct := env.seedActiveAccount(t, "user-1", plan, panel, inbound, "tag-grace")
	acct.Status = models.AccountStatusSuspended
	acct.SuspendedAt = time.Now().Add(-100 * time.Hour)
	acct.ExpiresAt = time.Now().Add(-100 * time.Hour)
	if err := env.dao.UpdateAccountCAS(acct); err != nil {
		t.Fatalf("预置暂停状态失败: %v", err)
	}

	events, cancel := env.bus.Subscribe(16)
	defer cancel()

	newTestScheduler(env, "remote_disable").Sweep(context.Background())

	fresh, _ := env.dao.GetAccount(acct.ID)
	if fresh.Status != models.AccountStatusDeleted {
		t.Fatalf("宽限期耗尽后应删除, 实际 %s", fresh.Status)
	}
	if env.fakes["p-a"].hasClient("tag-grace") {
		t.Error("远程客户端应已删除")
	}

	waitEvent(t, events, EventAccountExpired)
}

/*
TestSweepGraceWindowHolds 测试宽限期内的暂停账号不被动
*/
func TestSweepGraceWindowHolds(t *testing.T) {
	env := newTestEnv(t)
	panel, inbound := env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	plan := env.seedPlan(t, "手动套餐", 10, 30, false)

	acct := env.seedActiveAccount(t, "user-1", plan, panel, inbound, "tag-hold")
	acct.Status = models.AccountStatusSuspended
	acct.SuspendedAt = time.Now().Add(-1 * time.Hour)
	if err := env.dao.UpdateAccountCAS(acct); err != nil {
		t.Fatalf("预置暂停状态失败: %v", err)
	}

	newTestScheduler(env, "remote_disable").Sweep(context.Background())

	fresh, _ := env.dao.GetAccount(acct.ID)
	if fresh.Status != models.AccountStatusSuspended {
		t.Errorf("宽限期内的账号应保持 suspended, 实际 %s", fresh.Status)
	}
	if env.fakes["p-a"].deleteCalls != 0 {
		t.Error("宽限期内不应触发远程删除")
	}
}
