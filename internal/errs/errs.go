/*
Package errs 业务错误分类体系

提供开通引擎的统一错误类型，供编排器向外部协作方（机器人/仪表盘）
返回可判别的结果。所有层级不跨边界抛出 panic：
  - 瞬时网络错误由 gateway 层的重试策略吸收，重试耗尽后升级为 ErrRemoteUnavailable
  - 业务规则错误（余额不足、无可用容量）原样向上传递
  - 并发冲突（乐观锁版本不一致）返回 ErrConcurrentModification，由调用方重读后重试
*/
package errs

import (
	"errors"
	"fmt"
)

var (
	/* ErrRemoteUnavailable 面板熔断开启或重试耗尽，操作失败且不扣费 */
	ErrRemoteUnavailable = errors.New("remote panel unavailable")

	/* ErrInsufficientFunds 钱包余额不足以冻结所需金额，立即返回不重试 */
	ErrInsufficientFunds = errors.New("insufficient funds")

	/* ErrNoCapacity 没有符合条件的 (面板, 入站) 可分配，由调用方决定稍后重试或告警 */
	ErrNoCapacity = errors.New("no eligible inbound capacity")

	/* ErrConcurrentModification 账号行乐观锁冲突，调用方应重读后重新提交 */
	ErrConcurrentModification = errors.New("concurrent modification")

	/* ErrAccountNotFound 本地台账中不存在该账号 */
	ErrAccountNotFound = errors.New("account not found")

	/* ErrAccountExists 同一 (user, plan) 已存在未终结的账号，不允许重复开通 */
	ErrAccountExists = errors.New("active account already exists for user and plan")

	/* ErrPanelNotFound 注册表中不存在该面板 */
	ErrPanelNotFound = errors.New("panel not found")

	/* ErrPlanNotFound 套餐不存在或已禁用 */
	ErrPlanNotFound = errors.New("plan not found")

	/* ErrPlanImmutable 套餐已被订单引用，不允许修改或删除 */
	ErrPlanImmutable = errors.New("plan referenced by orders and immutable")

	/* ErrOperationTimeout 编排器整体操作超时，已触发补偿 */
	ErrOperationTimeout = errors.New("operation timeout")
)

/*
RemoteError 远程面板调用错误
功能：携带瞬时/永久分类和 HTTP 状态码，供重试策略判断是否可重试。
Transient=true 的错误（超时、5xx、连接重置）会被重试策略自动重试；
Transient=false 的错误（认证拒绝、4xx 参数校验）立即失败。
*/
type RemoteError struct {
	Op         string /* 出错的远程操作：login / create_client / probe 等 */
	StatusCode int    /* HTTP 状态码，网络层错误时为 0 */
	Transient  bool   /* 是否瞬时错误（可重试） */
	Err        error  /* 底层错误 */
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote %s failed: status=%d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

/*
NewTransient 构造瞬时远程错误（会被重试）
*/
func NewTransient(op string, status int, err error) *RemoteError {
	return &RemoteError{Op: op, StatusCode: status, Transient: true, Err: err}
}

/*
NewPermanent 构造永久远程错误（立即失败，不重试）
*/
func NewPermanent(op string, status int, err error) *RemoteError {
	return &RemoteError{Op: op, StatusCode: status, Transient: false, Err: err}
}

/*
IsTransient 判断错误是否为瞬时远程错误
*/
func IsTransient(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Transient
	}
	return false
}

/*
Code 将业务错误映射为对外 API 的稳定错误码
功能：外部协作方根据错误码而非错误文本做分支处理
*/
func Code(err error) string {
	switch {
	case errors.Is(err, ErrRemoteUnavailable):
		return "REMOTE_UNAVAILABLE"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrNoCapacity):
		return "NO_CAPACITY"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrAccountExists):
		return "ACCOUNT_EXISTS"
	case errors.Is(err, ErrPanelNotFound):
		return "PANEL_NOT_FOUND"
	case errors.Is(err, ErrPlanNotFound):
		return "PLAN_NOT_FOUND"
	case errors.Is(err, ErrPlanImmutable):
		return "PLAN_IMMUTABLE"
	case errors.Is(err, ErrOperationTimeout):
		return "OPERATION_TIMEOUT"
	default:
		return "INTERNAL"
	}
}
