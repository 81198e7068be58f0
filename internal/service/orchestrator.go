package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"moonvpn/internal/config"
	"moonvpn/internal/db/dao"
	"moonvpn/internal/db/database"
	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"
	"moonvpn/internal/gateway"
	"moonvpn/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "moonvpn",
	Subsystem: "provision",
	Name:      "operations_total",
	Help:      "开通操作计数",
}, []string{"type", "outcome"})

/* 步骤名称，持久化到订单步骤日志 */
const (
	stepReserveFunds = "ReserveFunds"
	stepAllocate     = "Allocate"
	stepRemoteCreate = "RemoteCreate"
	stepRemoteUpdate = "RemoteUpdate"
	stepRemoteDelete = "RemoteDelete"
	stepLedgerCommit = "LedgerCommit"
	stepCommitFunds  = "CommitFunds"
	stepReleaseOld   = "ReleaseOld"
	stepReleaseFunds = "ReleaseFunds"
)

/*
Orchestrator 开通编排器
功能：驱动 create/renew/transfer/delete 多步骤工作流，协调钱包、
分配器、面板网关和账号台账。每个步骤执行前先落 started 意向
（write-ahead），部分失败按补偿策略回退。同一幂等键的重放
返回原始订单而不重新执行。同一账号上的操作串行化。
*/
type Orchestrator struct {
	dao       *dao.DAO
	registry  *PanelRegistry
	allocator *Allocator
	bus       *EventBus
	redis     *database.RedisClient

	locks     *accountLocks
	opTimeout time.Duration
}

/*
NewOrchestrator 创建编排器
*/
func NewOrchestrator(d *dao.DAO, registry *PanelRegistry, allocator *Allocator,
	bus *EventBus, redis *database.RedisClient, cfg config.ProvisionConfig) *Orchestrator {
	timeout := time.Duration(cfg.OperationTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{
		dao:       d,
		registry:  registry,
		allocator: allocator,
		bus:       bus,
		redis:     redis,
		locks:     newAccountLocks(),
		opTimeout: timeout,
	}
}

/* ==================== 幂等重放 ==================== */

/*
replay 检查幂等键是否已有订单
功能：Redis 可用时先查缓存的订单 ID，未命中回落数据库。
命中即返回原订单，调用方直接向外返回原始结果。
*/
func (o *Orchestrator) replay(key string) (*models.Order, error) {
	if o.redis.IsAvailable() {
		if orderID, err := o.redis.Get("idem:" + key); err == nil && orderID != "" {
			if order, err := o.dao.GetOrder(orderID); err == nil && order != nil {
				return order, nil
			}
		}
	}
	return o.dao.GetOrderByIdempotencyKey(key)
}

func (o *Orchestrator) cacheIdempotency(key, orderID string) {
	if o.redis.IsAvailable() {
		if err := o.redis.Set("idem:"+key, orderID, 24*time.Hour); err != nil {
			logger.Debug("幂等键缓存写入失败", zap.Error(err))
		}
	}
}

/* ==================== 步骤执行 ==================== */

/*
step 执行单个编排步骤
功能：执行前写 started 意向，结束后写 ok/failed 结果。
步骤日志只追加，崩溃后可从最后记录的步骤恢复或补偿。
*/
func (o *Orchestrator) step(orderID, name string, fn func() error) error {
	if err := o.dao.AppendStep(orderID, name, models.StepOutcomeStarted, ""); err != nil {
		return err
	}
	if err := fn(); err != nil {
		_ = o.dao.AppendStep(orderID, name, models.StepOutcomeFailed, err.Error())
		return err
	}
	return o.dao.AppendStep(orderID, name, models.StepOutcomeOK, "")
}

/*
fail 标记订单失败并释放冻结
*/
func (o *Orchestrator) fail(order *models.Order, cause error) {
	_ = o.dao.SetOrderError(order.ID, cause.Error())
	_ = o.dao.AdvanceOrder(order.ID, "", models.OrderStatusFailed)

	if order.HoldID != "" {
		if err := o.dao.ReleaseHold(order.HoldID); err != nil {
			logger.Error("冻结释放失败，需要人工处理",
				zap.String("order", order.ID),
				zap.String("hold", order.HoldID),
				zap.Error(err))
		} else {
			_ = o.dao.AdvanceOrder(order.ID, "", models.OrderStatusRefunded)
		}
	}

	operationsTotal.WithLabelValues(string(order.Type), "failed").Inc()
	o.bus.Publish(Event{
		Type:    EventOrderFailed,
		OrderID: order.ID,
		UserID:  order.UserID,
		Detail:  errs.Code(cause),
	})
}

/*
commitWithRetry 带重试的台账 CAS 提交
功能：乐观锁冲突时重读账号行后重新套用变更再提交。
远程操作已经成功时走该路径，绝不反向删除远程客户端。
*/
func (o *Orchestrator) commitWithRetry(acct *models.ClientAccount, apply func(*models.ClientAccount)) error {
	for attempt := 0; attempt < 3; attempt++ {
		apply(acct)
		err := o.dao.UpdateAccountCAS(acct)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrConcurrentModification) {
			return err
		}
		fresh, rerr := o.dao.GetAccount(acct.ID)
		if rerr != nil {
			return rerr
		}
		if fresh == nil {
			return errs.ErrAccountNotFound
		}
		*acct = *fresh
	}
	return errs.ErrConcurrentModification
}

/* ==================== Create ==================== */

/*
CreateRequest 开通请求
*/
type CreateRequest struct {
	UserID         string
	PlanID         string
	IdempotencyKey string
}

/*
Create 开通新账号
步骤：ReserveFunds → Allocate → RemoteCreate → LedgerCommit → CommitFunds
补偿：RemoteCreate 及之前失败 → 释放冻结、台账行置 deleted；
LedgerCommit 失败 → 重试提交（幂等），不反向删除远程客户端。
*/
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	if existing, err := o.replay(req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Debug("幂等重放", zap.String("key", req.IdempotencyKey), zap.String("order", existing.ID))
		return existing, nil
	}

	plan, err := o.dao.GetPlan(req.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.Enabled {
		return nil, errs.ErrPlanNotFound
	}

	/* 同一 (user, plan) 至多一个未终结账号，入口先拒掉明显的重复开通 */
	if existing, err := o.dao.GetActiveAccountByUserPlan(req.UserID, req.PlanID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: account %s", errs.ErrAccountExists, existing.ID)
	}

	order := &models.Order{
		UserID:         req.UserID,
		PlanID:         req.PlanID,
		Type:           models.OrderTypeCreate,
		Status:         models.OrderStatusCreated,
		Amount:         plan.Price,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := o.dao.CreateOrder(order); err != nil {
		/* 唯一索引冲突说明并发请求抢先创建了同键订单，按重放处理 */
		if existing, rerr := o.dao.GetOrderByIdempotencyKey(req.IdempotencyKey); rerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	o.cacheIdempotency(req.IdempotencyKey, order.ID)

	ctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	defer cancel()

	if err := o.runCreate(ctx, order, plan); err != nil {
		o.fail(order, err)
		return o.dao.GetOrder(order.ID)
	}

	operationsTotal.WithLabelValues(string(models.OrderTypeCreate), "completed").Inc()
	return o.dao.GetOrder(order.ID)
}

func (o *Orchestrator) runCreate(ctx context.Context, order *models.Order, plan *models.Plan) error {
	/* 入口检查到台账行落库之间存在并发窗口：两笔不同幂等键的请求
	   可能都通过了检查。按 (user, plan) 串行化后复查，后到者失败 */
	unlockPair := o.locks.Lock("user-plan:" + order.UserID + ":" + plan.ID)
	defer unlockPair()

	if existing, err := o.dao.GetActiveAccountByUserPlan(order.UserID, plan.ID); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("%w: account %s", errs.ErrAccountExists, existing.ID)
	}

	/* ReserveFunds */
	var hold *models.WalletHold
	err := o.step(order.ID, stepReserveFunds, func() error {
		var err error
		hold, err = o.dao.ReserveFunds(order.UserID, order.ID, plan.Price)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientFunds) {
			o.bus.Publish(Event{Type: EventInsufficientFunds, UserID: order.UserID, OrderID: order.ID})
		}
		return err
	}
	order.HoldID = hold.ID
	_ = o.dao.SetOrderHold(order.ID, hold.ID)
	_ = o.dao.AdvanceOrder(order.ID, stepReserveFunds, models.OrderStatusPaid)

	/* Allocate */
	var placement *Placement
	var release func()
	err = o.step(order.ID, stepAllocate, func() error {
		var err error
		placement, release, err = o.allocator.Allocate(plan, "")
		return err
	})
	if err != nil {
		return err
	}
	defer release()

	/* 台账行先以 pending 落库，远程确认后才转 active */
	acct := &models.ClientAccount{
		UserID:       order.UserID,
		PlanID:       plan.ID,
		PanelID:      placement.Panel.ID,
		InboundID:    placement.Inbound.ID,
		RemoteTag:    "mv-" + uuid.NewString()[:18],
		Status:       models.AccountStatusPending,
		ExpiresAt:    time.Now().Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		TrafficQuota: plan.TrafficQuota,
	}
	if err := o.dao.CreateAccount(acct); err != nil {
		return err
	}
	_ = o.dao.SetOrderAccount(order.ID, acct.ID)
	order.AccountID = acct.ID
	_ = o.dao.AdvanceOrder(order.ID, stepRemoteCreate, models.OrderStatusProvisioning)

	unlock := o.locks.Lock(acct.ID)
	defer unlock()

	/* RemoteCreate */
	var remote *gateway.RemoteClient
	err = o.step(order.ID, stepRemoteCreate, func() error {
		gw, done, err := o.registry.Acquire(ctx, placement.Panel.ID)
		if err != nil {
			return err
		}
		defer done()

		remote, err = gw.CreateClient(ctx, gateway.ClientSpec{
			Tag:        acct.RemoteTag,
			InboundID:  placement.Inbound.RemoteID,
			Protocol:   placement.Inbound.Protocol,
			TotalBytes: plan.TrafficQuota,
			ExpiryTime: acct.ExpiresAt.UnixMilli(),
			Enable:     true,
			Params:     placement.Inbound.DefaultParams,
		})
		return err
	})
	if err != nil {
		/* 远程未生效，台账行回收 */
		_ = o.commitWithRetry(acct, func(a *models.ClientAccount) {
			a.Status = models.AccountStatusDeleted
		})
		if errs.IsTransient(err) {
			return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
		}
		return err
	}

	/* LedgerCommit：远程已生效，提交只能重试不能回滚 */
	err = o.step(order.ID, stepLedgerCommit, func() error {
		return o.commitWithRetry(acct, func(a *models.ClientAccount) {
			a.Status = models.AccountStatusActive
			a.RemoteClientID = remote.ID
		})
	})
	if err != nil {
		return err
	}

	/* CommitFunds */
	err = o.step(order.ID, stepCommitFunds, func() error {
		return o.dao.CommitHold(hold.ID, fmt.Sprintf("开通套餐 %s", plan.Name))
	})
	if err != nil {
		return err
	}

	_ = o.dao.AdvanceOrder(order.ID, stepCommitFunds, models.OrderStatusCompleted)
	o.bus.Publish(Event{
		Type:      EventAccountActivated,
		AccountID: acct.ID,
		UserID:    order.UserID,
		OrderID:   order.ID,
		PanelID:   placement.Panel.ID,
	})
	logger.Info("✓ 账号开通完成",
		zap.String("account", acct.ID),
		zap.String("panel", placement.Panel.Name))
	return nil
}

/* ==================== Renew ==================== */

/*
RenewRequest 续费请求
*/
type RenewRequest struct {
	AccountID      string
	IdempotencyKey string
}

/*
Renew 续费账号
步骤：ReserveFunds → RemoteUpdate(expiry/quota) → LedgerCommit → CommitFunds
续费延长有效期并清零已用流量，暂停中的账号续费后恢复 active。
*/
func (o *Orchestrator) Renew(ctx context.Context, req RenewRequest) (*models.Order, error) {
	if existing, err := o.replay(req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	acct, err := o.dao.GetAccount(req.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Status == models.AccountStatusDeleted {
		return nil, errs.ErrAccountNotFound
	}

	plan, err := o.dao.GetPlan(acct.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errs.ErrPlanNotFound
	}

	order := &models.Order{
		UserID:         acct.UserID,
		PlanID:         plan.ID,
		AccountID:      acct.ID,
		Type:           models.OrderTypeRenew,
		Status:         models.OrderStatusCreated,
		Amount:         plan.Price,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := o.dao.CreateOrder(order); err != nil {
		if existing, rerr := o.dao.GetOrderByIdempotencyKey(req.IdempotencyKey); rerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	o.cacheIdempotency(req.IdempotencyKey, order.ID)

	ctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	defer cancel()

	unlock := o.locks.Lock(acct.ID)
	defer unlock()

	if err := o.runRenew(ctx, order, acct, plan); err != nil {
		o.fail(order, err)
		return o.dao.GetOrder(order.ID)
	}

	operationsTotal.WithLabelValues(string(models.OrderTypeRenew), "completed").Inc()
	return o.dao.GetOrder(order.ID)
}

func (o *Orchestrator) runRenew(ctx context.Context, order *models.Order, acct *models.ClientAccount, plan *models.Plan) error {
	var hold *models.WalletHold
	err := o.step(order.ID, stepReserveFunds, func() error {
		var err error
		hold, err = o.dao.ReserveFunds(order.UserID, order.ID, plan.Price)
		return err
	})
	if err != nil {
		if errors.Is(err, errs.ErrInsufficientFunds) {
			o.bus.Publish(Event{Type: EventInsufficientFunds, UserID: order.UserID, OrderID: order.ID, AccountID: acct.ID})
		}
		return err
	}
	order.HoldID = hold.ID
	_ = o.dao.SetOrderHold(order.ID, hold.ID)
	_ = o.dao.AdvanceOrder(order.ID, stepReserveFunds, models.OrderStatusPaid)

	/* 未到期从当前到期时间顺延，已到期从现在起算 */
	base := acct.ExpiresAt
	if base.Before(time.Now()) {
		base = time.Now()
	}
	newExpiry := base.Add(time.Duration(plan.DurationDays) * 24 * time.Hour)

	_ = o.dao.AdvanceOrder(order.ID, stepRemoteUpdate, models.OrderStatusProvisioning)
	err = o.step(order.ID, stepRemoteUpdate, func() error {
		gw, done, err := o.registry.Acquire(ctx, acct.PanelID)
		if err != nil {
			return err
		}
		defer done()

		inbound, err := o.dao.GetInbound(acct.InboundID)
		if err != nil {
			return err
		}
		remoteInbound := 0
		if inbound != nil {
			remoteInbound = inbound.RemoteID
		}

		return gw.UpdateClient(ctx, gateway.ClientSpec{
			Tag:        acct.RemoteTag,
			RemoteID:   acct.RemoteClientID,
			InboundID:  remoteInbound,
			TotalBytes: plan.TrafficQuota,
			ExpiryTime: newExpiry.UnixMilli(),
			Enable:     true,
		})
	})
	if err != nil {
		if errs.IsTransient(err) {
			return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
		}
		return err
	}

	err = o.step(order.ID, stepLedgerCommit, func() error {
		return o.commitWithRetry(acct, func(a *models.ClientAccount) {
			a.Status = models.AccountStatusActive
			a.ExpiresAt = newExpiry
			a.TrafficQuota = plan.TrafficQuota
			a.TrafficUsed = 0
			a.SuspendedAt = time.Time{}
		})
	})
	if err != nil {
		return err
	}

	err = o.step(order.ID, stepCommitFunds, func() error {
		return o.dao.CommitHold(hold.ID, fmt.Sprintf("续费套餐 %s", plan.Name))
	})
	if err != nil {
		return err
	}

	_ = o.dao.AdvanceOrder(order.ID, stepCommitFunds, models.OrderStatusCompleted)
	o.bus.Publish(Event{
		Type:      EventAccountRenewed,
		AccountID: acct.ID,
		UserID:    order.UserID,
		OrderID:   order.ID,
	})
	return nil
}

/* ==================== Transfer ==================== */

/*
TransferRequest 迁移请求（管理员操作）
*/
type TransferRequest struct {
	AccountID      string
	IdempotencyKey string
}

/*
Transfer 迁移账号到其他面板
步骤：Allocate(new) → RemoteCreate(new) → RemoteDelete(old) → LedgerCommit → ReleaseOld
迁移不收费。RemoteDelete(old) 失败时补偿删除新客户端，客户保留
原面板访问，不会出现两边都不可用。
*/
func (o *Orchestrator) Transfer(ctx context.Context, req TransferRequest) (*models.Order, error) {
	if existing, err := o.replay(req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	acct, err := o.dao.GetAccount(req.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil || acct.Status == models.AccountStatusDeleted {
		return nil, errs.ErrAccountNotFound
	}

	plan, err := o.dao.GetPlan(acct.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, errs.ErrPlanNotFound
	}

	order := &models.Order{
		UserID:         acct.UserID,
		PlanID:         plan.ID,
		AccountID:      acct.ID,
		Type:           models.OrderTypeTransfer,
		Status:         models.OrderStatusCreated,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := o.dao.CreateOrder(order); err != nil {
		if existing, rerr := o.dao.GetOrderByIdempotencyKey(req.IdempotencyKey); rerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	o.cacheIdempotency(req.IdempotencyKey, order.ID)

	ctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	defer cancel()

	unlock := o.locks.Lock(acct.ID)
	defer unlock()

	if err := o.runTransfer(ctx, order, acct, plan); err != nil {
		o.fail(order, err)
		return o.dao.GetOrder(order.ID)
	}

	operationsTotal.WithLabelValues(string(models.OrderTypeTransfer), "completed").Inc()
	return o.dao.GetOrder(order.ID)
}

func (o *Orchestrator) runTransfer(ctx context.Context, order *models.Order, acct *models.ClientAccount, plan *models.Plan) error {
	oldPanelID := acct.PanelID
	oldInboundID := acct.InboundID

	var placement *Placement
	var release func()
	err := o.step(order.ID, stepAllocate, func() error {
		var err error
		placement, release, err = o.allocator.Allocate(plan, oldPanelID)
		return err
	})
	if err != nil {
		return err
	}
	defer release()

	_ = o.dao.AdvanceOrder(order.ID, stepRemoteCreate, models.OrderStatusProvisioning)

	var remote *gateway.RemoteClient
	err = o.step(order.ID, stepRemoteCreate, func() error {
		gw, done, err := o.registry.Acquire(ctx, placement.Panel.ID)
		if err != nil {
			return err
		}
		defer done()

		remote, err = gw.CreateClient(ctx, gateway.ClientSpec{
			Tag:        acct.RemoteTag,
			InboundID:  placement.Inbound.RemoteID,
			Protocol:   placement.Inbound.Protocol,
			TotalBytes: acct.TrafficQuota,
			ExpiryTime: acct.ExpiresAt.UnixMilli(),
			Enable:     acct.Status == models.AccountStatusActive,
			Params:     placement.Inbound.DefaultParams,
		})
		return err
	})
	if err != nil {
		if errs.IsTransient(err) {
			return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
		}
		return err
	}

	err = o.step(order.ID, stepRemoteDelete, func() error {
		oldInbound, err := o.dao.GetInbound(oldInboundID)
		if err != nil {
			return err
		}
		remoteInbound := 0
		if oldInbound != nil {
			remoteInbound = oldInbound.RemoteID
		}

		gw, done, err := o.registry.Acquire(ctx, oldPanelID)
		if err != nil {
			return err
		}
		defer done()
		return gw.DeleteClient(ctx, remoteInbound, acct.RemoteTag)
	})
	if err != nil {
		/* 旧客户端删不掉：回收新客户端，客户继续用原面板 */
		o.compensateTransfer(placement, acct.RemoteTag)
		if errs.IsTransient(err) {
			return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
		}
		return err
	}

	err = o.step(order.ID, stepLedgerCommit, func() error {
		return o.commitWithRetry(acct, func(a *models.ClientAccount) {
			a.PanelID = placement.Panel.ID
			a.InboundID = placement.Inbound.ID
			a.RemoteClientID = remote.ID
		})
	})
	if err != nil {
		return err
	}

	/* ReleaseOld：建议性预留由 defer release() 统一释放，这里只落步骤记录 */
	_ = o.dao.AppendStep(order.ID, stepReleaseOld, models.StepOutcomeOK, "")

	_ = o.dao.AdvanceOrder(order.ID, stepReleaseOld, models.OrderStatusCompleted)
	o.bus.Publish(Event{
		Type:      EventAccountTransferred,
		AccountID: acct.ID,
		UserID:    acct.UserID,
		OrderID:   order.ID,
		PanelID:   placement.Panel.ID,
	})
	return nil
}

/*
compensateTransfer 迁移补偿：尽力删除刚创建的新客户端
*/
func (o *Orchestrator) compensateTransfer(placement *Placement, tag string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	gw, done, err := o.registry.Acquire(ctx, placement.Panel.ID)
	if err != nil {
		logger.Error("迁移补偿失败：无法获取新面板网关",
			zap.String("panel", placement.Panel.Name), zap.Error(err))
		return
	}
	defer done()

	if err := gw.DeleteClient(ctx, placement.Inbound.RemoteID, tag); err != nil {
		logger.Error("迁移补偿失败：新客户端删除失败，对账扫描会将其标记为孤儿",
			zap.String("panel", placement.Panel.Name),
			zap.String("tag", tag),
			zap.Error(err))
	}
}

/* ==================== Delete ==================== */

/*
DeleteRequest 删除请求
*/
type DeleteRequest struct {
	AccountID      string
	IdempotencyKey string
}

/*
Delete 删除账号
步骤：RemoteDelete → LedgerCommit(status=deleted) → ReleaseFunds(如有未决冻结)
远程不存在视为删除成功；台账行仅在远程删除确认后落 deleted。
*/
func (o *Orchestrator) Delete(ctx context.Context, req DeleteRequest) (*models.Order, error) {
	if existing, err := o.replay(req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	acct, err := o.dao.GetAccount(req.AccountID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, errs.ErrAccountNotFound
	}

	order := &models.Order{
		UserID:         acct.UserID,
		PlanID:         acct.PlanID,
		AccountID:      acct.ID,
		Type:           models.OrderTypeDelete,
		Status:         models.OrderStatusCreated,
		IdempotencyKey: req.IdempotencyKey,
	}
	if err := o.dao.CreateOrder(order); err != nil {
		if existing, rerr := o.dao.GetOrderByIdempotencyKey(req.IdempotencyKey); rerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	o.cacheIdempotency(req.IdempotencyKey, order.ID)

	ctx, cancel := context.WithTimeout(ctx, o.opTimeout)
	defer cancel()

	unlock := o.locks.Lock(acct.ID)
	defer unlock()

	if err := o.runDelete(ctx, order, acct); err != nil {
		o.fail(order, err)
		return o.dao.GetOrder(order.ID)
	}

	operationsTotal.WithLabelValues(string(models.OrderTypeDelete), "completed").Inc()
	return o.dao.GetOrder(order.ID)
}

func (o *Orchestrator) runDelete(ctx context.Context, order *models.Order, acct *models.ClientAccount) error {
	_ = o.dao.AdvanceOrder(order.ID, stepRemoteDelete, models.OrderStatusProvisioning)

	err := o.step(order.ID, stepRemoteDelete, func() error {
		/* 从未到达远程的账号无需远程删除 */
		if acct.RemoteClientID == "" && acct.Status == models.AccountStatusPending {
			return nil
		}

		inbound, err := o.dao.GetInbound(acct.InboundID)
		if err != nil {
			return err
		}
		remoteInbound := 0
		if inbound != nil {
			remoteInbound = inbound.RemoteID
		}

		gw, done, err := o.registry.Acquire(ctx, acct.PanelID)
		if err != nil {
			return err
		}
		defer done()
		return gw.DeleteClient(ctx, remoteInbound, acct.RemoteTag)
	})
	if err != nil {
		if errs.IsTransient(err) {
			return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
		}
		return err
	}

	err = o.step(order.ID, stepLedgerCommit, func() error {
		return o.commitWithRetry(acct, func(a *models.ClientAccount) {
			a.Status = models.AccountStatusDeleted
		})
	})
	if err != nil {
		return err
	}

	/* ReleaseFunds：删除订单自身不冻结资金，这里清理的是该账号
	   历史订单遗留的未决冻结（如进程在 fail 补偿前崩溃） */
	err = o.step(order.ID, stepReleaseFunds, func() error {
		holds, err := o.dao.ListOpenHoldsForAccount(acct.ID)
		if err != nil {
			return err
		}
		for i := range holds {
			if err := o.dao.ReleaseHold(holds[i].ID); err != nil {
				return err
			}
			logger.Warn("删除账号时释放遗留冻结",
				zap.String("account", acct.ID),
				zap.String("hold", holds[i].ID))
		}
		return nil
	})
	if err != nil {
		return err
	}

	_ = o.dao.AdvanceOrder(order.ID, stepReleaseFunds, models.OrderStatusCompleted)
	return nil
}

/* ==================== Suspend / Expire（续费调度器使用） ==================== */

/*
Suspend 暂停账号
功能：suspend_mode=remote_disable 时在远程面板禁用客户端，
local_flag 时仅标记本地状态。远程禁用失败不阻塞本地暂停，
对账扫描会在下个周期修正远程侧。
*/
func (o *Orchestrator) Suspend(ctx context.Context, acct *models.ClientAccount, mode string) error {
	unlock := o.locks.Lock(acct.ID)
	defer unlock()

	if mode == "remote_disable" {
		inbound, err := o.dao.GetInbound(acct.InboundID)
		if err != nil {
			return err
		}
		remoteInbound := 0
		if inbound != nil {
			remoteInbound = inbound.RemoteID
		}

		gw, done, err := o.registry.Acquire(ctx, acct.PanelID)
		if err == nil {
			uerr := gw.UpdateClient(ctx, gateway.ClientSpec{
				Tag:        acct.RemoteTag,
				RemoteID:   acct.RemoteClientID,
				InboundID:  remoteInbound,
				TotalBytes: acct.TrafficQuota,
				ExpiryTime: acct.ExpiresAt.UnixMilli(),
				Enable:     false,
			})
			done()
			if uerr != nil {
				logger.Warn("远程禁用失败，仅本地标记暂停",
					zap.String("account", acct.ID), zap.Error(uerr))
			}
		} else {
			logger.Warn("面板不可达，仅本地标记暂停",
				zap.String("account", acct.ID), zap.Error(err))
		}
	}

	err := o.commitWithRetry(acct, func(a *models.ClientAccount) {
		a.Status = models.AccountStatusSuspended
		a.SuspendedAt = time.Now()
	})
	if err != nil {
		return err
	}

	o.bus.Publish(Event{
		Type:      EventAccountSuspended,
		AccountID: acct.ID,
		UserID:    acct.UserID,
	})
	return nil
}

/*
Expire 过期处理
功能：宽限期耗尽的暂停账号转 expired 并排队删除远程客户端。
删除走标准 Delete 工作流，以账号 ID 派生幂等键保证只排队一次。
*/
func (o *Orchestrator) Expire(ctx context.Context, acct *models.ClientAccount) error {
	err := o.commitWithRetry(acct, func(a *models.ClientAccount) {
		a.Status = models.AccountStatusExpired
	})
	if err != nil {
		return err
	}

	o.bus.Publish(Event{
		Type:      EventAccountExpired,
		AccountID: acct.ID,
		UserID:    acct.UserID,
	})

	_, err = o.Delete(ctx, DeleteRequest{
		AccountID:      acct.ID,
		IdempotencyKey: "expire-" + acct.ID,
	})
	return err
}

/*
MarkDrift 标记账号漂移
功能：对账扫描自动修复失败后调用，等待人工处理
*/
func (o *Orchestrator) MarkDrift(acct *models.ClientAccount, detail string) error {
	err := o.commitWithRetry(acct, func(a *models.ClientAccount) {
		a.Status = models.AccountStatusDrift
	})
	if err != nil {
		return err
	}

	o.bus.Publish(Event{
		Type:      EventDriftDetected,
		AccountID: acct.ID,
		UserID:    acct.UserID,
		PanelID:   acct.PanelID,
		Detail:    detail,
	})
	return nil
}
