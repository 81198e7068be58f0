package dao

import (
	"fmt"

	"moonvpn/internal/db/models"
	"moonvpn/internal/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/* ==================== 钱包管理 ==================== */

/*
GetWalletByUserID 根据用户ID获取钱包
*/
func (d *DAO) GetWalletByUserID(userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := d.DB.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

/*
GetOrCreateWallet 获取或创建用户钱包
*/
func (d *DAO) GetOrCreateWallet(userID string) (*models.Wallet, error) {
	wallet, err := d.GetWalletByUserID(userID)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	wallet = &models.Wallet{
		UserID:  userID,
		Balance: 0,
	}
	if err := d.DB.Create(wallet).Error; err != nil {
		return nil, err
	}
	return wallet, nil
}

/*
AvailableBalance 计算可用余额
功能：可用余额 = 余额 - 未决冻结之和。必须在持有钱包行锁的
事务内调用才能保证原子性，否则仅为快照值。
*/
func (d *DAO) AvailableBalance(wallet *models.Wallet) (float64, error) {
	var held float64
	err := d.DB.Model(&models.WalletHold{}).
		Where("wallet_id = ? AND status = ?", wallet.ID, models.HoldStatusHeld).
		Select("COALESCE(SUM(amount), 0)").Scan(&held).Error
	if err != nil {
		return 0, err
	}
	return wallet.Balance - held, nil
}

/*
ReserveFunds 原子冻结资金（check-and-reserve）
功能：在单个数据库事务内锁定钱包行、校验可用余额并创建冻结。
冻结金额超过可用余额时返回 ErrInsufficientFunds，不重试。
并发的两笔冻结因行锁串行执行，余额恰好够一笔时恰有一笔成功。
*/
func (d *DAO) ReserveFunds(userID, orderID string, amount float64) (*models.WalletHold, error) {
	if amount < 0 {
		return nil, fmt.Errorf("冻结金额不能为负: %f", amount)
	}

	var hold *models.WalletHold
	err := d.Transaction(func(tx *DAO) error {
		var wallet models.Wallet
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errs.ErrInsufficientFunds
			}
			return err
		}

		available, err := tx.AvailableBalance(&wallet)
		if err != nil {
			return err
		}
		if amount > available {
			return errs.ErrInsufficientFunds
		}

		hold = &models.WalletHold{
			WalletID: wallet.ID,
			UserID:   userID,
			OrderID:  orderID,
			Amount:   amount,
			Status:   models.HoldStatusHeld,
		}
		return tx.DB.Create(hold).Error
	})
	if err != nil {
		return nil, err
	}
	return hold, nil
}

/*
CommitHold 提交冻结
功能：将冻结金额转为一笔已入账交易（负数），同一事务内更新余额缓存，
保证 balance == sum(transactions) 始终成立。幂等：已提交的冻结
重复提交直接返回成功，供编排器在 LedgerCommit 失败后安全重试。
*/
func (d *DAO) CommitHold(holdID, description string) error {
	return d.Transaction(func(tx *DAO) error {
		var hold models.WalletHold
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&hold, "id = ?", holdID).Error; err != nil {
			return err
		}

		switch hold.Status {
		case models.HoldStatusCommitted:
			/* 幂等重放 */
			return nil
		case models.HoldStatusReleased:
			return fmt.Errorf("冻结 %s 已释放，不能提交", holdID)
		}

		var wallet models.Wallet
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&wallet, "id = ?", hold.WalletID).Error; err != nil {
			return err
		}

		newBalance := wallet.Balance - hold.Amount
		txn := &models.Transaction{
			WalletID:    wallet.ID,
			UserID:      hold.UserID,
			Amount:      -hold.Amount,
			Balance:     newBalance,
			Reference:   hold.OrderID,
			Description: description,
		}
		if err := tx.DB.Create(txn).Error; err != nil {
			return err
		}
		if err := tx.DB.Model(&models.Wallet{}).Where("id = ?", wallet.ID).
			Update("balance", newBalance).Error; err != nil {
			return err
		}
		return tx.DB.Model(&models.WalletHold{}).Where("id = ?", hold.ID).
			Update("status", models.HoldStatusCommitted).Error
	})
}

/*
ReleaseHold 释放冻结
功能：取消冻结，不产生交易记录。幂等：已释放的冻结重复释放
返回成功；已提交的冻结不允许释放（终态互斥）。
*/
func (d *DAO) ReleaseHold(holdID string) error {
	return d.Transaction(func(tx *DAO) error {
		var hold models.WalletHold
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&hold, "id = ?", holdID).Error; err != nil {
			return err
		}

		switch hold.Status {
		case models.HoldStatusReleased:
			return nil
		case models.HoldStatusCommitted:
			return fmt.Errorf("冻结 %s 已提交，不能释放", holdID)
		}

		return tx.DB.Model(&models.WalletHold{}).Where("id = ?", hold.ID).
			Update("status", models.HoldStatusReleased).Error
	})
}

/*
ListOpenHoldsForAccount 列出账号关联订单上未决的冻结
功能：删除账号时兜底清理历史订单遗留的冻结（如进程在补偿前崩溃）
*/
func (d *DAO) ListOpenHoldsForAccount(accountID string) ([]models.WalletHold, error) {
	var holds []models.WalletHold
	err := d.DB.
		Joins("JOIN orders ON orders.id = wallet_holds.order_id").
		Where("orders.account_id = ? AND wallet_holds.status = ?", accountID, models.HoldStatusHeld).
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

/*
Recharge 充值入账
功能：追加一笔正数交易并同步余额缓存，管理员手动充值或
支付回调入账使用。
*/
func (d *DAO) Recharge(userID string, amount float64, reference, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("充值金额必须为正: %f", amount)
	}

	var txn *models.Transaction
	err := d.Transaction(func(tx *DAO) error {
		wallet, err := tx.GetOrCreateWallet(userID)
		if err != nil {
			return err
		}
		if err := tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(wallet, "id = ?", wallet.ID).Error; err != nil {
			return err
		}

		newBalance := wallet.Balance + amount
		txn = &models.Transaction{
			WalletID:    wallet.ID,
			UserID:      userID,
			Amount:      amount,
			Balance:     newBalance,
			Reference:   reference,
			Description: description,
		}
		if err := tx.DB.Create(txn).Error; err != nil {
			return err
		}
		return tx.DB.Model(&models.Wallet{}).Where("id = ?", wallet.ID).
			Update("balance", newBalance).Error
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

/*
GetHold 根据 ID 获取冻结
*/
func (d *DAO) GetHold(holdID string) (*models.WalletHold, error) {
	var hold models.WalletHold
	if err := d.DB.First(&hold, "id = ?", holdID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

/*
ListTransactions 获取用户的交易记录
*/
func (d *DAO) ListTransactions(userID string, limit, offset int) ([]models.Transaction, int64, error) {
	limit, offset = SanitizePagination(limit, offset, 200)

	var txs []models.Transaction
	var total int64

	q := d.DB.Model(&models.Transaction{}).Where("user_id = ?", userID)
	q.Count(&total)

	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

/*
SumTransactions 计算用户交易总和
功能：对账校验用，任何时刻应等于钱包余额缓存
*/
func (d *DAO) SumTransactions(userID string) (float64, error) {
	var sum float64
	err := d.DB.Model(&models.Transaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error
	return sum, err
}
