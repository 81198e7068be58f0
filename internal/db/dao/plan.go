package dao

import (
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"

	"gorm.io/gorm"
)

/* ==================== 套餐管理 ==================== */

/*
CreatePlan 创建套餐
*/
func (d *DAO) CreatePlan(plan *models.Plan) error {
	return d.DB.Create(plan).Error
}

/*
GetPlan 根据 ID 获取套餐
*/
func (d *DAO) GetPlan(planID string) (*models.Plan, error) {
	var plan models.Plan
	if err := d.DB.First(&plan, "id = ?", planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

/*
ListPlans 获取套餐列表
*/
func (d *DAO) ListPlans(onlyEnabled bool) ([]models.Plan, error) {
	var plans []models.Plan
	q := d.DB.Order("price ASC")
	if onlyEnabled {
		q = q.Where("enabled = ?", true)
	}
	err := q.Find(&plans).Error
	return plans, err
}

/*
planReferenced 检查套餐是否已被订单引用
*/
func (d *DAO) planReferenced(planID string) (bool, error) {
	var count int64
	if err := d.DB.Model(&models.Order{}).Where("plan_id = ?", planID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

/*
UpdatePlan 更新套餐
功能：已被订单引用的套餐不可变，返回 ErrPlanImmutable。
上架/下架通过 TogglePlan 单独处理，不受不可变约束。
*/
func (d *DAO) UpdatePlan(plan *models.Plan) error {
	referenced, err := d.planReferenced(plan.ID)
	if err != nil {
		return err
	}
	if referenced {
		return errs.ErrPlanImmutable
	}
	return d.DB.Save(plan).Error
}

/*
TogglePlan 上架/下架套餐
功能：仅修改 enabled 标记，不触碰定价和权益字段，
因此对已被引用的套餐也允许执行。
*/
func (d *DAO) TogglePlan(planID string, enabled bool) error {
	return d.DB.Model(&models.Plan{}).Where("id = ?", planID).
		Update("enabled", enabled).Error
}

/*
DeletePlan 删除套餐
功能：已被订单引用的套餐不可删除，返回 ErrPlanImmutable
*/
func (d *DAO) DeletePlan(planID string) error {
	referenced, err := d.planReferenced(planID)
	if err != nil {
		return err
	}
	if referenced {
		return errs.ErrPlanImmutable
	}
	return d.DB.Delete(&models.Plan{}, "id = ?", planID).Error
}
