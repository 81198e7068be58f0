package service

import (
	"context"
	"errors"
	"testing"

	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
)

/*
TestNextStatusTransitions 测试探测健康状态机
功能：瞬态失败单调降级 up → degraded → down，探测成功直接恢复，
业务拒绝说明面板活着、视为通过
*/
func TestNextStatusTransitions(t *testing.T) {
	transient := errs.NewTransient("probe", 503, errors.New("面板过载"))
	permanent := errs.NewPermanent("probe", 403, errors.New("凭证失效"))

	tests := []struct {
		name     string
		current  models.PanelStatus
		probeErr error
		want     models.PanelStatus
	}{
		{"探测成功保持 up", models.PanelStatusUp, nil, models.PanelStatusUp},
		{"瞬态失败 up 降级 degraded", models.PanelStatusUp, transient, models.PanelStatusDegraded},
		{"瞬态失败 degraded 降级 down", models.PanelStatusDegraded, transient, models.PanelStatusDown},
		{"瞬态失败 down 保持 down", models.PanelStatusDown, transient, models.PanelStatusDown},
		{"探测成功 down 直接恢复 up", models.PanelStatusDown, nil, models.PanelStatusUp},
		{"业务拒绝视为探测通过", models.PanelStatusUp, permanent, models.PanelStatusUp},
		{"超时按瞬态失败降级", models.PanelStatusUp, context.DeadlineExceeded, models.PanelStatusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextStatus(tt.current, tt.probeErr); got != tt.want {
				t.Errorf("nextStatus(%s, %v) = %s, 期望 %s", tt.current, tt.probeErr, got, tt.want)
			}
		})
	}
}

/*
TestRegistryAcquireSemaphore 测试单面板并发许可
*/
func TestRegistryAcquireSemaphore(t *testing.T) {
	env := newTestEnv(t)
	env.seedPanel(t, "panel-a", "p-a", "hk", 10)

	/* 并发上限 2：占满后第三次获取应随上下文超时失败 */
	_, release1, err := env.reg.Acquire(context.Background(), "panel-a")
	if err != nil {
		t.Fatalf("第一次获取许可失败: %v", err)
	}
	_, release2, err := env.reg.Acquire(context.Background(), "panel-a")
	if err != nil {
		t.Fatalf("第二次获取许可失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := env.reg.Acquire(ctx, "panel-a"); !errors.Is(err, context.Canceled) {
		t.Errorf("许可占满时应随上下文取消失败, 实际 %v", err)
	}

	release1()
	if _, release3, err := env.reg.Acquire(context.Background(), "panel-a"); err != nil {
		t.Errorf("释放许可后获取应成功: %v", err)
	} else {
		release3()
	}
	release2()
}

/*
TestRegistryGatewayCachesEntry 测试网关实例按面板缓存
*/
func TestRegistryGatewayCachesEntry(t *testing.T) {
	env := newTestEnv(t)
	env.seedPanel(t, "panel-a", "p-a", "hk", 10)

	gw1, err := env.reg.Gateway("panel-a")
	if err != nil {
		t.Fatalf("获取网关失败: %v", err)
	}
	gw2, err := env.reg.Gateway("panel-a")
	if err != nil {
		t.Fatalf("获取网关失败: %v", err)
	}
	if gw1 != gw2 {
		t.Error("同一面板应复用缓存的网关实例")
	}

	if _, err := env.reg.Gateway("panel-missing"); !errors.Is(err, errs.ErrPanelNotFound) {
		t.Errorf("未知面板应返回 ErrPanelNotFound, 实际 %v", err)
	}
}

/*
TestRegistryHealthSummary 测试面板健康摘要
*/
func TestRegistryHealthSummary(t *testing.T) {
	env := newTestEnv(t)
	env.seedPanel(t, "panel-a", "p-a", "hk", 10)
	env.seedPanel(t, "panel-b", "p-b", "jp", 10)
	if err := env.dao.UpdatePanelStatus("panel-b", models.PanelStatusDown); err != nil {
		t.Fatalf("更新面板状态失败: %v", err)
	}

	summary, err := env.reg.HealthSummary()
	if err != nil {
		t.Fatalf("获取健康摘要失败: %v", err)
	}
	if summary != "1/2 up" {
		t.Errorf("健康摘要不匹配: 期望 1/2 up, 实际 %s", summary)
	}
}
