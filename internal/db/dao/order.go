package dao

import (
	"moonvpn/internal/db/models"

	"gorm.io/gorm"
)

/* ==================== 订单与步骤日志 ==================== */

/*
CreateOrder 创建订单
*/
func (d *DAO) CreateOrder(order *models.Order) error {
	return d.DB.Create(order).Error
}

/*
GetOrder 根据 ID 获取订单
*/
func (d *DAO) GetOrder(orderID string) (*models.Order, error) {
	var order models.Order
	if err := d.DB.First(&order, "id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

/*
GetOrderByIdempotencyKey 根据幂等键获取订单
功能：相同幂等键的重放请求返回原订单而不重新执行
*/
func (d *DAO) GetOrderByIdempotencyKey(key string) (*models.Order, error) {
	var order models.Order
	if err := d.DB.First(&order, "idempotency_key = ?", key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

/*
AdvanceOrder 推进订单步骤指针和状态
功能：更新当前步骤名和订单状态。状态只向前推进
（failed → refunded 是唯一的例外），由编排器调用顺序保证。
*/
func (d *DAO) AdvanceOrder(orderID, step string, status models.OrderStatus) error {
	updates := map[string]interface{}{"status": status}
	if step != "" {
		updates["step"] = step
	}
	return d.DB.Model(&models.Order{}).Where("id = ?", orderID).Updates(updates).Error
}

/*
SetOrderAccount 回填订单关联的账号 ID
*/
func (d *DAO) SetOrderAccount(orderID, accountID string) error {
	return d.DB.Model(&models.Order{}).Where("id = ?", orderID).
		Update("account_id", accountID).Error
}

/*
SetOrderHold 回填订单关联的钱包冻结 ID
*/
func (d *DAO) SetOrderHold(orderID, holdID string) error {
	return d.DB.Model(&models.Order{}).Where("id = ?", orderID).
		Update("hold_id", holdID).Error
}

/*
SetOrderError 记录订单失败原因
*/
func (d *DAO) SetOrderError(orderID, msg string) error {
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return d.DB.Model(&models.Order{}).Where("id = ?", orderID).
		Update("last_error", msg).Error
}

/*
AppendStep 追加步骤日志（write-ahead）
功能：每个步骤执行前写 started 意向，结束后写 ok/failed 结果。
日志只追加，崩溃后可从最后记录的步骤恢复或补偿。
*/
func (d *DAO) AppendStep(orderID, step string, outcome models.StepOutcome, detail string) error {
	if len(detail) > 512 {
		detail = detail[:512]
	}
	return d.DB.Create(&models.OrderStep{
		OrderID: orderID,
		Step:    step,
		Outcome: outcome,
		Detail:  detail,
	}).Error
}

/*
ListSteps 获取订单的步骤日志（时间正序）
*/
func (d *DAO) ListSteps(orderID string) ([]models.OrderStep, error) {
	var steps []models.OrderStep
	err := d.DB.Where("order_id = ?", orderID).
		Order("created_at ASC").Find(&steps).Error
	return steps, err
}
