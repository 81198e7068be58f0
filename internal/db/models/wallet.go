package models

/*
Wallet 用户钱包
功能：余额为派生缓存，任何路径不允许在未追加交易记录的情况下
修改余额；不变量 balance == sum(transactions) 由 DAO 层在同一
数据库事务内维护。可用余额 = Balance - 未决冻结之和。
*/
type Wallet struct {
	BaseModel
	UserID  string  `gorm:"type:varchar(36);uniqueIndex;not null" json:"user_id"`
	Balance float64 `gorm:"type:decimal(12,2);default:0;not null" json:"balance"`

	/* 关联 */
	Holds        []WalletHold  `gorm:"foreignKey:WalletID" json:"holds,omitempty"`
	Transactions []Transaction `gorm:"foreignKey:WalletID" json:"transactions,omitempty"`
}

func (Wallet) TableName() string {
	return "wallets"
}

/*
HoldStatus 冻结状态枚举
功能：冻结的终态是 committed 或 released，二者互斥
*/
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"      /* 已冻结：金额从可用余额中扣留 */
	HoldStatusCommitted HoldStatus = "committed" /* 已提交：冻结转为已入账交易 */
	HoldStatusReleased  HoldStatus = "released"  /* 已释放：冻结取消，不产生交易 */
)

/*
WalletHold 钱包冻结
功能：对余额的临时预留。创建时校验冻结金额不超过可用余额
（原子 check-and-reserve），提交或释放后不再占用可用余额。
*/
type WalletHold struct {
	BaseModel
	WalletID string     `gorm:"type:varchar(36);index;not null" json:"wallet_id"`
	UserID   string     `gorm:"type:varchar(36);index;not null" json:"user_id"`
	OrderID  string     `gorm:"type:varchar(36);index" json:"order_id"`
	Amount   float64    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status   HoldStatus `gorm:"type:varchar(16);default:'held';not null;index" json:"status"`

	/* 关联 */
	Wallet Wallet `gorm:"foreignKey:WalletID" json:"-"`
}

func (WalletHold) TableName() string {
	return "wallet_holds"
}

/*
Transaction 交易记录
功能：只追加的钱包流水。金额带符号（充值为正、扣费为负），
Balance 为该笔交易入账后的余额快照。任何时刻
sum(amount) == wallet.Balance 成立。
*/
type Transaction struct {
	BaseModel
	WalletID    string  `gorm:"type:varchar(36);index;not null" json:"wallet_id"`
	UserID      string  `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Amount      float64 `gorm:"type:decimal(12,2);not null" json:"amount"`
	Balance     float64 `gorm:"type:decimal(12,2);not null" json:"balance"`
	Reference   string  `gorm:"type:varchar(36);index" json:"reference"` /* 关联订单/冻结 ID */
	Description string  `gorm:"type:varchar(256)" json:"description"`
}

func (Transaction) TableName() string {
	return "transactions"
}
