package models

/*
OrderType 订单操作类型枚举
*/
type OrderType string

const (
	OrderTypeCreate   OrderType = "create"
	OrderTypeRenew    OrderType = "renew"
	OrderTypeTransfer OrderType = "transfer"
	OrderTypeDelete   OrderType = "delete"
)

/*
OrderStatus 订单状态枚举
功能：定义开通/续费订单的状态

状态流转严格向前，唯一例外是 failed → refunded：

	created → paid → provisioning → completed
	                             ↘ failed → refunded
*/
type OrderStatus string

const (
	OrderStatusCreated      OrderStatus = "created"      /* 订单行已写入 */
	OrderStatusPaid         OrderStatus = "paid"         /* 钱包冻结成功 */
	OrderStatusProvisioning OrderStatus = "provisioning" /* 远程操作进行中 */
	OrderStatusCompleted    OrderStatus = "completed"    /* 冻结金额已转为交易，操作成功 */
	OrderStatusFailed       OrderStatus = "failed"       /* 操作失败，冻结已释放 */
	OrderStatusRefunded     OrderStatus = "refunded"     /* 失败订单完成退款处理 */
)

/*
Order 订单模型
功能：一次开通/续费/迁移/删除操作的记录。IdempotencyKey 唯一，
相同键的重放直接返回原始结果而不重新执行步骤。
Step 为持久化的步骤指针，崩溃后可从最后记录的步骤恢复或补偿。
*/
type Order struct {
	BaseModel
	UserID    string      `gorm:"type:varchar(36);index;not null" json:"user_id"`
	PlanID    string      `gorm:"type:varchar(36);index" json:"plan_id"`
	AccountID string      `gorm:"type:varchar(36);index" json:"account_id"` /* 关联的客户账号，create 操作完成后回填 */
	Type      OrderType   `gorm:"type:varchar(16);not null" json:"type"`
	Status    OrderStatus `gorm:"type:varchar(16);default:'created';not null;index" json:"status"`
	Amount    float64     `gorm:"type:decimal(12,2);default:0;not null" json:"amount"`

	IdempotencyKey string `gorm:"type:varchar(64);uniqueIndex;not null" json:"idempotency_key"`

	Step      string `gorm:"type:varchar(32)" json:"step"`       /* 当前/最后执行的步骤名 */
	HoldID    string `gorm:"type:varchar(36)" json:"hold_id"`    /* 本次操作关联的钱包冻结 */
	LastError string `gorm:"type:varchar(512)" json:"last_error"`
}

func (Order) TableName() string {
	return "orders"
}

/*
StepOutcome 步骤执行结果枚举
*/
type StepOutcome string

const (
	StepOutcomeStarted StepOutcome = "started" /* 步骤开始前先落意向（write-ahead） */
	StepOutcomeOK      StepOutcome = "ok"
	StepOutcomeFailed  StepOutcome = "failed"
)

/*
OrderStep 订单步骤日志
功能：只追加的步骤执行日志。每个步骤在执行前先写 started 意向，
结束后写 ok/failed 结果，保证崩溃后可以从最后记录的步骤重放或补偿。
所有失败步骤都被记录，用于审计和幂等重放，不静默吞错。
*/
type OrderStep struct {
	BaseModel
	OrderID string      `gorm:"type:varchar(36);index;not null" json:"order_id"`
	Step    string      `gorm:"type:varchar(32);not null" json:"step"`
	Outcome StepOutcome `gorm:"type:varchar(16);not null" json:"outcome"`
	Detail  string      `gorm:"type:varchar(512)" json:"detail"`

	/* 关联 */
	Order Order `gorm:"foreignKey:OrderID" json:"-"`
}

func (OrderStep) TableName() string {
	return "order_steps"
}
