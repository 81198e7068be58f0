package service

import (
	"context"
	"sync"
	"time"

	"moonvpn/internal/config"
	"moonvpn/internal/db/dao"
	"moonvpn/internal/db/database"
	"moonvpn/internal/db/models"
	"moonvpn/internal/gateway"
	"moonvpn/internal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var reconcileFindings = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moonvpn",
	Subsystem: "reconcile",
	Name:      "findings_total",
	Help:      "对账发现计数",
}, []string{"panel", "kind"})

/*
ReconciliationSweeper 对账扫描器
功能：按周期逐面板比对本地台账与远程客户端列表：
  - 台账 active 而远程缺失 → 自动重建一次，失败则标记 drift 并告警，
    不做无限自动修复循环
  - 远程存在而台账无记录 → 标记孤儿等待人工审查，绝不自动删除
  - 拉取流量读数并单调合并进台账

单面板对账作为独立任务提交到工作池执行，面板间并行、
并发度由池宽度限定；扫描在每个面板边界检查停止信号。
*/
type ReconciliationSweeper struct {
	dao          *dao.DAO
	registry     *PanelRegistry
	orchestrator *Orchestrator
	bus          *EventBus
	pool         *WorkerPool
	redis        *database.RedisClient
	cfg          config.ReconcileConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
}

/*
NewReconciliationSweeper 创建对账扫描器
*/
func NewReconciliationSweeper(d *dao.DAO, registry *PanelRegistry, orch *Orchestrator,
	bus *EventBus, pool *WorkerPool, redis *database.RedisClient, cfg config.ReconcileConfig) *ReconciliationSweeper {
	return &ReconciliationSweeper{
		dao:          d,
		registry:     registry,
		orchestrator: orch,
		bus:          bus,
		pool:         pool,
		redis:        redis,
		cfg:          cfg,
		stopChan:     make(chan struct{}),
	}
}

/*
Start 启动对账循环
*/
func (s *ReconciliationSweeper) Start() {
	interval := time.Duration(s.cfg.Interval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background())
			case <-s.stopChan:
				return
			}
		}
	}()

	logger.Info("✓ 对账扫描器已启动", zap.Duration("interval", interval))
}

/*
Stop 停止对账循环
*/
func (s *ReconciliationSweeper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	logger.Info("对账扫描器已停止")
}

func (s *ReconciliationSweeper) stopping() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

/*
Sweep 执行一轮全面板对账
*/
func (s *ReconciliationSweeper) Sweep(ctx context.Context) {
	if s.redis.IsAvailable() {
		interval := time.Duration(s.cfg.Interval) * time.Second
		ok, err := s.redis.SetNX("lock:reconcile_sweep", time.Now().Unix(), interval)
		if err == nil && !ok {
			logger.Debug("对账扫描锁被其他实例持有，跳过本轮")
			return
		}
	}

	panels, err := s.dao.ListPanels(true)
	if err != nil {
		logger.Error("对账扫描面板加载失败", zap.Error(err))
		return
	}

	var tasks sync.WaitGroup
	for i := range panels {
		if s.stopping() {
			logger.Info("收到停止信号，对账扫描在面板边界退出")
			break
		}
		panel := &panels[i]
		if panel.Status == models.PanelStatusDown {
			/* 不可达面板的缺失不是漂移证据，跳过 */
			continue
		}
		tasks.Add(1)
		err := s.pool.Submit(func() {
			defer tasks.Done()
			s.SweepPanel(ctx, panel)
		})
		if err != nil {
			/* 池关闭说明进程在退出，放弃剩余面板 */
			tasks.Done()
			break
		}
	}
	tasks.Wait()
}

/*
SweepPanel 对账单个面板
*/
func (s *ReconciliationSweeper) SweepPanel(ctx context.Context, panel *models.Panel) {
	gw, done, err := s.registry.Acquire(ctx, panel.ID)
	if err != nil {
		logger.Warn("对账跳过：面板网关不可用", zap.String("panel", panel.Name), zap.Error(err))
		return
	}
	clients, err := gw.ListClients(ctx)
	done()
	if err != nil {
		/* 列表拉取失败只能跳过：没有远程视图就没有可信的差异 */
		logger.Warn("对账跳过：远程客户端列表拉取失败",
			zap.String("panel", panel.Name), zap.Error(err))
		return
	}

	accts, err := s.dao.ListAccountsByPanel(panel.ID)
	if err != nil {
		logger.Error("对账跳过：台账查询失败", zap.String("panel", panel.Name), zap.Error(err))
		return
	}

	remoteByTag := make(map[string]*gateway.RemoteClient, len(clients))
	for i := range clients {
		remoteByTag[clients[i].Tag] = &clients[i]
	}

	ledgerTags := make(map[string]bool, len(accts))
	missing, orphans := 0, 0

	for i := range accts {
		acct := &accts[i]
		ledgerTags[acct.RemoteTag] = true

		if _, ok := remoteByTag[acct.RemoteTag]; !ok {
			if acct.Status == models.AccountStatusActive {
				missing++
				reconcileFindings.WithLabelValues(panel.Name, "missing_remote").Inc()
				s.repairMissing(ctx, panel, acct)
			}
			continue
		}

		/* 流量单调合并 */
		gw, done, err := s.registry.Acquire(ctx, panel.ID)
		if err != nil {
			continue
		}
		stat, terr := gw.GetTraffic(ctx, acct.RemoteTag)
		done()
		if terr != nil || stat == nil {
			continue
		}
		if err := s.dao.MergeTraffic(acct.ID, stat.Used()); err != nil {
			logger.Warn("流量合并失败", zap.String("account", acct.ID), zap.Error(err))
		}
	}

	/* 远程有、台账无 → 孤儿，只标记绝不删除 */
	for tag := range remoteByTag {
		if ledgerTags[tag] {
			continue
		}
		detail := tag
		if acct, err := s.dao.GetAccountByRemoteTag(tag); err == nil && acct != nil {
			/* 标签在其他面板有台账行，多半是迁移残留 */
			detail = tag + " (ledger on panel " + acct.PanelID + ")"
		}
		orphans++
		reconcileFindings.WithLabelValues(panel.Name, "orphan").Inc()
		s.bus.Publish(Event{
			Type:    EventOrphanDetected,
			PanelID: panel.ID,
			Detail:  detail,
		})
		logger.Warn("发现孤儿客户端，等待人工审查",
			zap.String("panel", panel.Name), zap.String("tag", tag))
	}

	if missing > 0 || orphans > 0 {
		logger.Info("对账完成",
			zap.String("panel", panel.Name),
			zap.Int("missing_remote", missing),
			zap.Int("orphans", orphans))
	}
}

/*
repairMissing 修复远程缺失的活跃账号
功能：自动重建恰好一次，失败即标记 drift 并告警，下个周期
不再重试（drift 状态的账号不参与对账修复），避免修复风暴。
*/
func (s *ReconciliationSweeper) repairMissing(ctx context.Context, panel *models.Panel, acct *models.ClientAccount) {
	inbound, err := s.dao.GetInbound(acct.InboundID)
	if err != nil || inbound == nil {
		_ = s.orchestrator.MarkDrift(acct, "入站配置缺失，无法重建")
		return
	}

	gw, done, err := s.registry.Acquire(ctx, panel.ID)
	if err != nil {
		_ = s.orchestrator.MarkDrift(acct, "面板不可达，无法重建")
		return
	}
	remote, err := gw.CreateClient(ctx, gateway.ClientSpec{
		Tag:        acct.RemoteTag,
		InboundID:  inbound.RemoteID,
		Protocol:   inbound.Protocol,
		TotalBytes: acct.TrafficQuota,
		ExpiryTime: acct.ExpiresAt.UnixMilli(),
		Enable:     true,
		Params:     inbound.DefaultParams,
	})
	done()
	if err != nil {
		logger.Warn("远程客户端自动重建失败，标记漂移",
			zap.String("account", acct.ID), zap.Error(err))
		_ = s.orchestrator.MarkDrift(acct, "自动重建失败: "+err.Error())
		return
	}

	if err := s.orchestrator.commitWithRetry(acct, func(a *models.ClientAccount) {
		a.RemoteClientID = remote.ID
	}); err != nil {
		logger.Error("重建后台账回写失败", zap.String("account", acct.ID), zap.Error(err))
		return
	}
	logger.Info("✓ 远程客户端已自动重建",
		zap.String("account", acct.ID), zap.String("panel", panel.Name))
}
