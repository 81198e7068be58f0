package dao

import (
	"errors"
	"testing"

	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
)

/*
TestPlanImmutableOnceReferenced 测试被订单引用后的套餐不可变
*/
func TestPlanImmutableOnceReferenced(t *testing.T) {
	d := setupTestDAO(t)

	plan := &models.Plan{Name: "月付套餐", Price: 10, DurationDays: 30, Enabled: true}
	if err := d.CreatePlan(plan); err != nil {
		t.Fatalf("创建套餐失败: %v", err)
	}

	/* 未被引用时可以修改 */
	plan.Price = 12
	if err := d.UpdatePlan(plan); err != nil {
		t.Fatalf("未引用套餐的更新应成功: %v", err)
	}

	order := &models.Order{
		UserID:         "user-1",
		PlanID:         plan.ID,
		Type:           models.OrderTypeCreate,
		IdempotencyKey: "key-1",
	}
	if err := d.CreateOrder(order); err != nil {
		t.Fatalf("创建订单失败: %v", err)
	}

	plan.Price = 99
	if err := d.UpdatePlan(plan); !errors.Is(err, errs.ErrPlanImmutable) {
		t.Errorf("已引用套餐的更新应返回 ErrPlanImmutable, 实际 %v", err)
	}
	if err := d.DeletePlan(plan.ID); !errors.Is(err, errs.ErrPlanImmutable) {
		t.Errorf("已引用套餐的删除应返回 ErrPlanImmutable, 实际 %v", err)
	}

	/* 上架/下架不受不可变约束 */
	if err := d.TogglePlan(plan.ID, false); err != nil {
		t.Errorf("已引用套餐的下架应被允许: %v", err)
	}
	fresh, _ := d.GetPlan(plan.ID)
	if fresh.Enabled {
		t.Error("下架后 enabled 应为 false")
	}
	if fresh.Price != 12 {
		t.Errorf("价格不应被修改: 期望 12, 实际 %f", fresh.Price)
	}
}

/*
TestListPlansOrder 测试套餐列表按价格排序且可过滤下架
*/
func TestListPlansOrder(t *testing.T) {
	d := setupTestDAO(t)

	d.CreatePlan(&models.Plan{Name: "高级", Price: 30, DurationDays: 30, Enabled: true})
	d.CreatePlan(&models.Plan{Name: "基础", Price: 10, DurationDays: 30, Enabled: true})

	retired := &models.Plan{Name: "停售", Price: 20, DurationDays: 30, Enabled: true}
	d.CreatePlan(retired)
	d.TogglePlan(retired.ID, false)

	plans, err := d.ListPlans(true)
	if err != nil {
		t.Fatalf("查询套餐失败: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("应只返回上架套餐: 期望 2, 实际 %d", len(plans))
	}
	if plans[0].Name != "基础" || plans[1].Name != "高级" {
		t.Errorf("套餐应按价格升序: %s, %s", plans[0].Name, plans[1].Name)
	}

	all, _ := d.ListPlans(false)
	if len(all) != 3 {
		t.Errorf("全量列表应包含下架套餐: 期望 3, 实际 %d", len(all))
	}
}
