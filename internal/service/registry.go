package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"moonvpn/internal/config"
	"moonvpn/internal/db/dao"
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
	"moonvpn/internal/gateway"
	"moonvpn/internal/pkg/logger"

	"go.uber.org/zap"
)

/*
GatewayFactory 网关构造函数
功能：注册表通过工厂创建面板网关，测试注入假网关用
*/
type GatewayFactory func(panel *models.Panel, cfg config.GatewayConfig) gateway.Gateway

func defaultFactory(panel *models.Panel, cfg config.GatewayConfig) gateway.Gateway {
	return gateway.NewClient(gateway.ClientOptions{
		PanelName:      panel.Name,
		Endpoint:       panel.Endpoint,
		Username:       panel.Username,
		Password:       panel.Password,
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		SessionTTL:     time.Duration(cfg.SessionCacheTTL) * time.Second,
		Retry: gateway.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   time.Duration(cfg.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.MaxDelayMS) * time.Millisecond,
			JitterFrac:  cfg.JitterFrac,
		},
		Breaker: gateway.NewBreaker(cfg.BreakerThreshold,
			time.Duration(cfg.BreakerCooldown)*time.Second),
	})
}

/*
panelEntry 注册表中的面板条目
*/
type panelEntry struct {
	gw       gateway.Gateway
	sem      chan struct{} /* 单面板并发上限信号量 */
	endpoint string
}

/*
PanelRegistry 面板注册表
功能：维护面板 ID → 网关实例的映射和每面板并发上限信号量，
周期性探测面板健康并写回数据库。健康状态在单个探测周期内
单调变化：up → degraded → down，down 在探测成功后恢复 up。
*/
type PanelRegistry struct {
	dao     *dao.DAO
	cfg     config.GatewayConfig
	factory GatewayFactory

	mu      sync.RWMutex
	entries map[string]*panelEntry

	stopChan chan struct{}
	wg       sync.WaitGroup
}

/*
NewPanelRegistry 创建面板注册表
*/
func NewPanelRegistry(d *dao.DAO, cfg config.GatewayConfig, factory GatewayFactory) *PanelRegistry {
	if factory == nil {
		factory = defaultFactory
	}
	return &PanelRegistry{
		dao:      d,
		cfg:      cfg,
		factory:  factory,
		entries:  make(map[string]*panelEntry),
		stopChan: make(chan struct{}),
	}
}

/*
Start 启动健康探测循环
*/
func (r *PanelRegistry) Start() {
	interval := time.Duration(r.cfg.ProbeInterval) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.probeAll()
		for {
			select {
			case <-ticker.C:
				r.probeAll()
			case <-r.stopChan:
				return
			}
		}
	}()

	logger.Info("✓ 面板注册表已启动",
		zap.Duration("probe_interval", interval),
		zap.Int("panel_concurrency", r.cfg.PanelConcurrency))
}

/*
Stop 停止探测循环
*/
func (r *PanelRegistry) Stop() {
	close(r.stopChan)
	r.wg.Wait()
	logger.Info("面板注册表已停止")
}

/*
entry 获取或创建面板条目
功能：端点变更（管理员修改面板配置）时重建网关实例
*/
func (r *PanelRegistry) entry(panel *models.Panel) *panelEntry {
	r.mu.RLock()
	e, ok := r.entries[panel.ID]
	r.mu.RUnlock()
	if ok && e.endpoint == panel.Endpoint {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[panel.ID]; ok && e.endpoint == panel.Endpoint {
		return e
	}

	concurrency := r.cfg.PanelConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	e = &panelEntry{
		gw:       r.factory(panel, r.cfg),
		sem:      make(chan struct{}, concurrency),
		endpoint: panel.Endpoint,
	}
	r.entries[panel.ID] = e
	return e
}

/*
Gateway 获取面板网关
*/
func (r *PanelRegistry) Gateway(panelID string) (gateway.Gateway, error) {
	panel, err := r.dao.GetPanel(panelID)
	if err != nil {
		return nil, err
	}
	if panel == nil {
		return nil, errs.ErrPanelNotFound
	}
	return r.entry(panel).gw, nil
}

/*
Acquire 获取面板并发许可
功能：阻塞直到拿到信号量或上下文取消，返回网关和释放函数。
所有远程调用都必须经过许可，防止压垮单个面板。
*/
func (r *PanelRegistry) Acquire(ctx context.Context, panelID string) (gateway.Gateway, func(), error) {
	panel, err := r.dao.GetPanel(panelID)
	if err != nil {
		return nil, nil, err
	}
	if panel == nil {
		return nil, nil, errs.ErrPanelNotFound
	}

	e := r.entry(panel)
	select {
	case e.sem <- struct{}{}:
		return e.gw, func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

/*
probeAll 探测所有启用面板并写回健康状态
*/
func (r *PanelRegistry) probeAll() {
	panels, err := r.dao.ListPanels(true)
	if err != nil {
		logger.Error("面板列表加载失败", zap.Error(err))
		return
	}

	for i := range panels {
		panel := &panels[i]
		r.probeOne(panel)
	}
}

func (r *PanelRegistry) probeOne(panel *models.Panel) {
	e := r.entry(panel)
	timeout := time.Duration(r.cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()

	err := e.gw.Probe(ctx)
	next := nextStatus(panel.Status, err)
	if next == panel.Status {
		/* 状态未变也刷新探测时间 */
		if uerr := r.dao.UpdatePanelStatus(panel.ID, next); uerr != nil {
			logger.Error("面板状态写回失败", zap.String("panel", panel.Name), zap.Error(uerr))
		}
		return
	}

	if err := r.dao.UpdatePanelStatus(panel.ID, next); err != nil {
		logger.Error("面板状态写回失败", zap.String("panel", panel.Name), zap.Error(err))
		return
	}
	logger.Info("面板健康状态变更",
		zap.String("panel", panel.Name),
		zap.String("from", string(panel.Status)),
		zap.String("to", string(next)))
}

/*
nextStatus 计算下一个健康状态
功能：单个探测周期内单调降级（up → degraded → down），
探测成功直接恢复 up。业务拒绝（永久错误）说明面板活着，
同样视为探测通过。
*/
func nextStatus(current models.PanelStatus, probeErr error) models.PanelStatus {
	timedOut := errors.Is(probeErr, context.DeadlineExceeded) || errors.Is(probeErr, context.Canceled)
	if probeErr == nil || (!errs.IsTransient(probeErr) && !timedOut) {
		return models.PanelStatusUp
	}

	switch current {
	case models.PanelStatusUp:
		return models.PanelStatusDegraded
	default:
		return models.PanelStatusDown
	}
}

/*
HealthSummary 面板健康摘要
*/
func (r *PanelRegistry) HealthSummary() (string, error) {
	panels, err := r.dao.ListPanels(false)
	if err != nil {
		return "", err
	}
	up, total := 0, len(panels)
	for _, p := range panels {
		if p.Status == models.PanelStatusUp {
			up++
		}
	}
	return fmt.Sprintf("%d/%d up", up, total), nil
}
