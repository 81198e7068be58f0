package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"moonvpn/internal/config"
	"moonvpn/internal/db/dao"
	"moonvpn/internal/db/database"
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
	"moonvpn/internal/pkg/logger"

	"go.uber.org/zap"
)

/*
RenewalScheduler 续费调度器
功能：周期性扫描 active 账号，到期进入 lookahead 窗口或流量用尽的：
套餐开自动续费且余额充足 → 走编排器续费；否则暂停并发事件通知。
暂停超过宽限期的账号转 expired 并排队删除远程客户端。
单账号处理作为独立任务提交到工作池执行，并发度由池宽度限定；
扫描在每个账号边界检查停止信号，停止请求不打断进行中的单账号操作。
*/
type RenewalScheduler struct {
	dao          *dao.DAO
	orchestrator *Orchestrator
	pool         *WorkerPool
	redis        *database.RedisClient
	cfg          config.RenewalConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
}

/*
NewRenewalScheduler 创建续费调度器
*/
func NewRenewalScheduler(d *dao.DAO, orch *Orchestrator, pool *WorkerPool, redis *database.RedisClient, cfg config.RenewalConfig) *RenewalScheduler {
	return &RenewalScheduler{
		dao:          d,
		orchestrator: orch,
		pool:         pool,
		redis:        redis,
		cfg:          cfg,
		stopChan:     make(chan struct{}),
	}
}

/*
Start 启动调度循环
*/
func (s *RenewalScheduler) Start() {
	interval := time.Duration(s.cfg.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
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

	logger.Info("✓ 续费调度器已启动",
		zap.Duration("interval", interval),
		zap.Int("lookahead_hours", s.cfg.Lookahead),
		zap.String("suspend_mode", s.cfg.SuspendMode))
}

/*
Stop 停止调度循环
*/
func (s *RenewalScheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	logger.Info("续费调度器已停止")
}

func (s *RenewalScheduler) stopping() bool {
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}

/*
Sweep 执行一轮扫描
功能：Redis 可用时先抢分布式锁，多实例部署下每轮只有一个
实例执行扫描；抢锁失败直接跳过本轮。
*/
func (s *RenewalScheduler) Sweep(ctx context.Context) {
	if s.redis.IsAvailable() {
		interval := time.Duration(s.cfg.Interval) * time.Second
		ok, err := s.redis.SetNX("lock:renewal_sweep", time.Now().Unix(), interval)
		if err == nil && !ok {
			logger.Debug("续费扫描锁被其他实例持有，跳过本轮")
			return
		}
	}

	deadline := time.Now().Add(time.Duration(s.cfg.Lookahead) * time.Hour)
	accts, err := s.dao.ListRenewable(deadline)
	if err != nil {
		logger.Error("续费扫描查询失败", zap.Error(err))
		return
	}

	var renewed, suspended, expired int64
	var tasks sync.WaitGroup
	for i := range accts {
		if s.stopping() {
			logger.Info("收到停止信号，续费扫描在账号边界退出")
			break
		}

		acct := &accts[i]
		tasks.Add(1)
		err := s.pool.Submit(func() {
			defer tasks.Done()
			s.sweepAccount(ctx, acct, &renewed, &suspended)
		})
		if err != nil {
			/* 池关闭说明进程在退出，放弃剩余账号 */
			tasks.Done()
			break
		}
	}
	tasks.Wait()

	/* 宽限期耗尽的暂停账号转 expired 并排队远程删除 */
	cutoff := time.Now().Add(-time.Duration(s.cfg.GracePeriod) * time.Hour)
	stale, err := s.dao.ListSuspendedBefore(cutoff)
	if err != nil {
		logger.Error("宽限期扫描查询失败", zap.Error(err))
	} else {
		for i := range stale {
			if s.stopping() {
				break
			}
			acct := &stale[i]
			tasks.Add(1)
			err := s.pool.Submit(func() {
				defer tasks.Done()
				if err := s.orchestrator.Expire(ctx, acct); err != nil {
					logger.Warn("过期处理失败",
						zap.String("account", acct.ID), zap.Error(err))
					return
				}
				atomic.AddInt64(&expired, 1)
			})
			if err != nil {
				tasks.Done()
				break
			}
		}
		tasks.Wait()
	}

	if renewed+suspended+expired > 0 {
		logger.Info("续费扫描完成",
			zap.Int64("renewed", renewed),
			zap.Int64("suspended", suspended),
			zap.Int64("expired", expired))
	}
}

/*
sweepAccount 处理单个到期账号
功能：自动续费优先；续费失败（余额不足或远程不可用）落入暂停分支
*/
func (s *RenewalScheduler) sweepAccount(ctx context.Context, acct *models.ClientAccount, renewed, suspended *int64) {
	if acct.Plan.AutoRenew {
		order, err := s.orchestrator.Renew(ctx, RenewRequest{
			AccountID:      acct.ID,
			IdempotencyKey: renewKey(acct.ID, acct.ExpiresAt),
		})
		if err == nil && order != nil && order.Status == models.OrderStatusCompleted {
			atomic.AddInt64(renewed, 1)
			return
		}
		if err != nil && !errors.Is(err, errs.ErrInsufficientFunds) {
			logger.Warn("自动续费失败",
				zap.String("account", acct.ID), zap.Error(err))
		}
	}

	if err := s.orchestrator.Suspend(ctx, acct, s.cfg.SuspendMode); err != nil {
		logger.Error("账号暂停失败", zap.String("account", acct.ID), zap.Error(err))
		return
	}
	atomic.AddInt64(suspended, 1)
}

/*
renewKey 派生自动续费幂等键
功能：以账号 ID 和当前到期时间派生，同一到期周期内的重复扫描
命中同一订单，不会重复扣费
*/
func renewKey(accountID string, expiresAt time.Time) string {
	return "auto-renew-" + accountID + "-" + expiresAt.UTC().Format("20060102150405")
}
