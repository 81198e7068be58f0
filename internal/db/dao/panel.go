package dao

import (
	"time"

	"moonvpn/internal/db/models"

	"gorm.io/gorm"
)

/* ==================== 面板与入站 ==================== */

/*
CreatePanel 创建面板
*/
func (d *DAO) CreatePanel(panel *models.Panel) error {
	return d.DB.Create(panel).Error
}

/*
GetPanel 根据 ID 获取面板
*/
func (d *DAO) GetPanel(panelID string) (*models.Panel, error) {
	var panel models.Panel
	if err := d.DB.Preload("Inbounds").First(&panel, "id = ?", panelID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &panel, nil
}

/*
ListPanels 获取面板列表
*/
func (d *DAO) ListPanels(onlyEnabled bool) ([]models.Panel, error) {
	var panels []models.Panel
	q := d.DB.Preload("Inbounds").Order("id ASC")
	if onlyEnabled {
		q = q.Where("enabled = ?", true)
	}
	err := q.Find(&panels).Error
	return panels, err
}

/*
UpdatePanel 更新面板
*/
func (d *DAO) UpdatePanel(panel *models.Panel) error {
	return d.DB.Save(panel).Error
}

/*
UpdatePanelStatus 更新面板健康状态和探测时间
*/
func (d *DAO) UpdatePanelStatus(panelID string, status models.PanelStatus) error {
	return d.DB.Model(&models.Panel{}).Where("id = ?", panelID).
		Updates(map[string]interface{}{
			"status":        status,
			"last_probe_at": time.Now(),
		}).Error
}

/*
DeletePanel 删除面板（软删除）
*/
func (d *DAO) DeletePanel(panelID string) error {
	return d.DB.Delete(&models.Panel{}, "id = ?", panelID).Error
}

/*
CreateInbound 创建入站
*/
func (d *DAO) CreateInbound(inbound *models.Inbound) error {
	return d.DB.Create(inbound).Error
}

/*
GetInbound 根据 ID 获取入站
*/
func (d *DAO) GetInbound(inboundID string) (*models.Inbound, error) {
	var inbound models.Inbound
	if err := d.DB.First(&inbound, "id = ?", inboundID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &inbound, nil
}

/*
ListInboundsByPanel 获取面板的启用入站列表
*/
func (d *DAO) ListInboundsByPanel(panelID string) ([]models.Inbound, error) {
	var inbounds []models.Inbound
	err := d.DB.Where("panel_id = ? AND enabled = ?", panelID, true).
		Order("id ASC").Find(&inbounds).Error
	return inbounds, err
}

/*
UpdateInbound 更新入站
*/
func (d *DAO) UpdateInbound(inbound *models.Inbound) error {
	return d.DB.Save(inbound).Error
}

/*
DeleteInbound 删除入站（软删除）
*/
func (d *DAO) DeleteInbound(inboundID string) error {
	return d.DB.Delete(&models.Inbound{}, "id = ?", inboundID).Error
}
