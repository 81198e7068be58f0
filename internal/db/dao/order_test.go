package dao

import (
	"testing"

	"moonvpn/internal/db/models"
)

/*
TestOrderIdempotencyKeyUnique 测试幂等键唯一约束与反查
*/
func TestOrderIdempotencyKeyUnique(t *testing.T) {
	d := setupTestDAO(t)

	first := &models.Order{
		UserID:         "user-1",
		Type:           models.OrderTypeCreate,
		IdempotencyKey: "key-1",
	}
	if err := d.CreateOrder(first); err != nil {
		t.Fatalf("创建订单失败: %v", err)
	}

	dup := &models.Order{
		UserID:         "user-1",
		Type:           models.OrderTypeCreate,
		IdempotencyKey: "key-1",
	}
	if err := d.CreateOrder(dup); err == nil {
		t.Error("相同幂等键的订单创建应被唯一索引拒绝")
	}

	got, err := d.GetOrderByIdempotencyKey("key-1")
	if err != nil {
		t.Fatalf("幂等键反查失败: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("幂等键应命中原订单 %s", first.ID)
	}

	missing, err := d.GetOrderByIdempotencyKey("nonexistent")
	if err != nil || missing != nil {
		t.Errorf("未知幂等键应返回 nil: order=%v err=%v", missing, err)
	}
}

/*
TestAppendStepWriteAhead 测试步骤日志只追加
功能：started 意向与 ok/failed 结果都被保留，失败不覆盖历史
*/
func TestAppendStepWriteAhead(t *testing.T) {
	d := setupTestDAO(t)

	order := &models.Order{
		UserID:         "user-1",
		Type:           models.OrderTypeCreate,
		IdempotencyKey: "key-1",
	}
	if err := d.CreateOrder(order); err != nil {
		t.Fatalf("创建订单失败: %v", err)
	}

	d.AppendStep(order.ID, "ReserveFunds", models.StepOutcomeStarted, "")
	d.AppendStep(order.ID, "ReserveFunds", models.StepOutcomeOK, "")
	d.AppendStep(order.ID, "RemoteCreate", models.StepOutcomeStarted, "")
	d.AppendStep(order.ID, "RemoteCreate", models.StepOutcomeFailed, "面板超时")

	steps, err := d.ListSteps(order.ID)
	if err != nil {
		t.Fatalf("查询步骤日志失败: %v", err)
	}
	if len(steps) != 4 {
		t.Fatalf("步骤日志应有 4 条, 实际 %d", len(steps))
	}

	outcomes := map[string]map[models.StepOutcome]int{}
	for _, s := range steps {
		if outcomes[s.Step] == nil {
			outcomes[s.Step] = map[models.StepOutcome]int{}
		}
		outcomes[s.Step][s.Outcome]++
	}
	if outcomes["ReserveFunds"][models.StepOutcomeStarted] != 1 ||
		outcomes["ReserveFunds"][models.StepOutcomeOK] != 1 {
		t.Error("ReserveFunds 的意向和结果都应被保留")
	}
	if outcomes["RemoteCreate"][models.StepOutcomeFailed] != 1 {
		t.Error("失败步骤应被记录而非静默吞掉")
	}
}

/*
TestSetOrderErrorTruncates 测试失败原因截断
*/
func TestSetOrderErrorTruncates(t *testing.T) {
	d := setupTestDAO(t)

	order := &models.Order{
		UserID:         "user-1",
		Type:           models.OrderTypeCreate,
		IdempotencyKey: "key-1",
	}
	if err := d.CreateOrder(order); err != nil {
		t.Fatalf("创建订单失败: %v", err)
	}

	long := make([]byte, 1024)
	for i := range long {
		long[i] = 'x'
	}
	if err := d.SetOrderError(order.ID, string(long)); err != nil {
		t.Fatalf("记录失败原因失败: %v", err)
	}

	got, _ := d.GetOrder(order.ID)
	if len(got.LastError) != 512 {
		t.Errorf("失败原因应截断到 512 字节, 实际 %d", len(got.LastError))
	}
}
