package service

import (
	"encoding/json"
	"sync"

	"moonvpn/internal/db/dao"
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
	"moonvpn/internal/pkg/logger"

	"go.uber.org/zap"
)

/*
Placement 分配结果
*/
type Placement struct {
	Panel   *models.Panel
	Inbound *models.Inbound
}

/*
Allocator 入站分配器
功能：为新账号挑选 (面板, 入站)。候选集 = 启用且健康为 up 的面板 ×
启用且满足套餐协议/地区约束且有余量的入站。选最大余量者，
余量相同时依次取当前负载较低者、面板 ID 较小者、入站 ID 较小者，
保证决策可复现。

余量 = 容量 - 台账占用数 - 建议性预留数。预留在本地内存中记账：
分配时 +1，台账行落库或分配失败后释放。预留只影响本进程的
后续分配决策，不是跨进程的强一致预留。
*/
type Allocator struct {
	dao *dao.DAO

	mu       sync.Mutex
	reserved map[string]int /* inbound_id → 未落账的预留数 */
}

/*
NewAllocator 创建分配器
*/
func NewAllocator(d *dao.DAO) *Allocator {
	return &Allocator{
		dao:      d,
		reserved: make(map[string]int),
	}
}

/*
parseList 解析套餐约束 JSON 数组，空串表示不限制
*/
func parseList(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		logger.Warn("套餐约束解析失败，按不限制处理", zap.String("raw", raw), zap.Error(err))
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

/*
Allocate 为套餐挑选开通位置
功能：返回分配结果和预留释放函数。调用方在台账行创建成功或
整个操作失败后必须调用释放函数，否则预留泄漏会让入站
提前显示为满。没有合格候选时返回 ErrNoCapacity。
*/
func (a *Allocator) Allocate(plan *models.Plan, excludePanelID string) (*Placement, func(), error) {
	allowedProtocols := parseList(plan.AllowedProtocols)
	allowedRegions := parseList(plan.AllowedRegions)

	panels, err := a.dao.ListPanels(true)
	if err != nil {
		return nil, nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var best *Placement
	bestHeadroom, bestLoad := 0, 0

	for i := range panels {
		panel := &panels[i]
		if panel.Status != models.PanelStatusUp {
			continue
		}
		if panel.ID == excludePanelID {
			continue
		}
		if allowedRegions != nil && !allowedRegions[panel.Region] {
			continue
		}

		counts, err := a.dao.CountAccountsByInbound(panel.ID)
		if err != nil {
			return nil, nil, err
		}

		/* 面板级容量提示检查 */
		if panel.CapacityHint > 0 {
			total := 0
			for _, inb := range panel.Inbounds {
				total += counts[inb.ID] + a.reserved[inb.ID]
			}
			if total >= panel.CapacityHint {
				continue
			}
		}

		for j := range panel.Inbounds {
			inbound := &panel.Inbounds[j]
			if !inbound.Enabled {
				continue
			}
			if allowedProtocols != nil && !allowedProtocols[inbound.Protocol] {
				continue
			}

			load := counts[inbound.ID] + a.reserved[inbound.ID]
			headroom := inbound.Capacity - load
			if headroom <= 0 {
				continue
			}

			better := best == nil || headroom > bestHeadroom
			if !better && headroom == bestHeadroom {
				switch {
				case load != bestLoad:
					better = load < bestLoad
				case panel.ID != best.Panel.ID:
					better = panel.ID < best.Panel.ID
				default:
					better = inbound.ID < best.Inbound.ID
				}
			}
			if better {
				best = &Placement{Panel: panel, Inbound: inbound}
				bestHeadroom = headroom
				bestLoad = load
			}
		}
	}

	if best == nil {
		return nil, nil, errs.ErrNoCapacity
	}

	inboundID := best.Inbound.ID
	a.reserved[inboundID]++

	var once sync.Once
	release := func() {
		once.Do(func() {
			a.mu.Lock()
			a.reserved[inboundID]--
			if a.reserved[inboundID] <= 0 {
				delete(a.reserved, inboundID)
			}
			a.mu.Unlock()
		})
	}

	logger.Debug("分配完成",
		zap.String("panel", best.Panel.Name),
		zap.String("inbound", inboundID),
		zap.Int("headroom", bestHeadroom))
	return best, release, nil
}
