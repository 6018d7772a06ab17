package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/constants"
	"msg-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 余额缓存有效期
const balanceCacheTTL = 5 * time.Minute

// ledgerRepo 账本数据访问
type ledgerRepo struct {
	data *Data
	log  *log.Helper
}

// NewLedgerRepo 创建账本 repo（返回 biz.LedgerRepo 接口）
func NewLedgerRepo(data *Data, logger log.Logger) biz.LedgerRepo {
	return &ledgerRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// Transact 在事务中执行 fn；整个事务受锁等待超时约束，超时即回滚
func (r *ledgerRepo) Transact(ctx context.Context, fn func(tx biz.LedgerTx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.data.lockWait)
	defer cancel()

	lt := &ledgerTx{touched: make(map[string]struct{})}
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lt.db = tx
		return fn(lt)
	})
	if err != nil {
		return err
	}

	// 提交后删除余额缓存，由读路径回源回填；并发提交的 SET 可能乱序，DEL 不会留下旧值
	for clientID := range lt.touched {
		r.invalidateBalance(clientID)
	}
	return nil
}

// GetWallet 获取钱包，不存在返回 nil
func (r *ledgerRepo) GetWallet(ctx context.Context, clientID string) (*biz.Wallet, error) {
	var m model.Wallet
	if err := r.data.db.WithContext(ctx).Where("client_id = ?", clientID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query wallet: %w", err)
	}
	return &biz.Wallet{ClientID: m.ClientID, Balance: m.Balance, UpdatedAt: m.UpdatedAt}, nil
}

// GetBalance 获取余额（先查缓存，未命中查库并回填）
func (r *ledgerRepo) GetBalance(ctx context.Context, clientID string) (decimal.Decimal, error) {
	if r.data.rdb != nil {
		val, err := r.data.rdb.Get(ctx, balanceKey(clientID)).Result()
		if err == nil {
			if balance, err := decimal.NewFromString(val); err == nil {
				return balance, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			r.log.Warnf("read balance cache failed: client_id=%s, error=%v", clientID, err)
		}
	}

	wallet, err := r.GetWallet(ctx, clientID)
	if err != nil {
		return decimal.Zero, err
	}
	if wallet == nil {
		// 钱包不存在视为余额 0，不写缓存
		return decimal.Zero, nil
	}
	r.cacheBalance(clientID, wallet.Balance)
	return wallet.Balance, nil
}

// SumAvailableCredits 未过期批次剩余合计
func (r *ledgerRepo) SumAvailableCredits(ctx context.Context, clientID string, now time.Time) (int64, error) {
	var sum int64
	err := r.data.db.WithContext(ctx).Model(&model.PlanCreditTranche{}).
		Select("COALESCE(SUM(remaining), 0)").
		Where("client_id = ? AND remaining > 0 AND expires_at > ?", clientID, now.UTC()).
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("sum available credits: %w", err)
	}
	return sum, nil
}

// ListActiveTranches 未过期且有剩余的批次，按过期时间升序
func (r *ledgerRepo) ListActiveTranches(ctx context.Context, clientID string, now time.Time) ([]*biz.CreditTranche, error) {
	var rows []model.PlanCreditTranche
	err := r.data.db.WithContext(ctx).
		Where("client_id = ? AND remaining > 0 AND expires_at > ?", clientID, now.UTC()).
		Order("expires_at ASC").Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list tranches: %w", err)
	}
	return toBizTranches(rows), nil
}

// ListTransactions 分页查询流水
func (r *ledgerRepo) ListTransactions(ctx context.Context, clientID string, page, pageSize int) ([]*biz.LedgerTransaction, int64, error) {
	db := r.data.db.WithContext(ctx).Model(&model.LedgerTransaction{}).Where("client_id = ?", clientID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	var rows []model.LedgerTransaction
	if err := db.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	list := make([]*biz.LedgerTransaction, 0, len(rows))
	for i := range rows {
		list = append(list, toBizTransaction(&rows[i]))
	}
	return list, total, nil
}

// GetMessageCharge 获取消息扣费记录（不加锁），不存在返回 nil
func (r *ledgerRepo) GetMessageCharge(ctx context.Context, messageRef string) (*biz.MessageCharge, error) {
	var m model.MessageCharge
	if err := r.data.db.WithContext(ctx).Where("message_ref = ?", messageRef).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query message charge: %w", err)
	}
	return toBizCharge(&m), nil
}

// cacheBalance 写余额缓存（设置超时避免阻塞），失败不影响主流程
func (r *ledgerRepo) cacheBalance(clientID string, balance decimal.Decimal) {
	if r.data.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := r.data.rdb.Set(ctx, balanceKey(clientID), balance.StringFixed(constants.LedgerScale), balanceCacheTTL).Err(); err != nil {
		r.log.Warnf("failed to update balance cache: client_id=%s, error=%v", clientID, err)
	}
}

// invalidateBalance 删除余额缓存，失败只记录日志（缓存最多滞后一个 TTL）
func (r *ledgerRepo) invalidateBalance(clientID string) {
	if r.data.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := r.data.rdb.Del(ctx, balanceKey(clientID)).Err(); err != nil {
		r.log.Warnf("failed to invalidate balance cache: client_id=%s, error=%v", clientID, err)
	}
}

func balanceKey(clientID string) string {
	return constants.RedisKeyBalance + clientID
}

// ledgerTx biz.LedgerTx 的 gorm 实现
type ledgerTx struct {
	db      *gorm.DB
	touched map[string]struct{} // 本事务改过余额的客户，提交后删缓存
}

func (t *ledgerTx) forUpdate() *gorm.DB {
	return t.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// LockWallet 先 insert ignore 保证行存在，再 SELECT ... FOR UPDATE
// 先锁不存在的行会拿到间隙锁，两个首次写入的事务随后插入时互相死锁
func (t *ledgerTx) LockWallet(clientID string) (*biz.Wallet, error) {
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Wallet{ClientID: clientID, Balance: decimal.Zero}).Error; err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	var m model.Wallet
	if err := t.forUpdate().Where("client_id = ?", clientID).First(&m).Error; err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return &biz.Wallet{ClientID: m.ClientID, Balance: m.Balance, UpdatedAt: m.UpdatedAt}, nil
}

func (t *ledgerTx) LockTranches(clientID string, now time.Time, withRemainingOnly bool) ([]*biz.CreditTranche, error) {
	q := t.forUpdate().Where("client_id = ? AND expires_at > ?", clientID, now.UTC())
	if withRemainingOnly {
		q = q.Where("remaining > 0")
	}
	var rows []model.PlanCreditTranche
	if err := q.Order("expires_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lock tranches: %w", err)
	}
	return toBizTranches(rows), nil
}

func (t *ledgerTx) LockMessageCharge(messageRef string) (*biz.MessageCharge, error) {
	var m model.MessageCharge
	if err := t.forUpdate().Where("message_ref = ?", messageRef).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock message charge: %w", err)
	}
	return toBizCharge(&m), nil
}

func (t *ledgerTx) LockPendingTopUp(invoiceID string) (*biz.PendingTopUp, error) {
	var m model.PendingTopUp
	if err := t.forUpdate().Where("invoice_id = ?", invoiceID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock pending topup: %w", err)
	}
	return toBizPendingTopUp(&m), nil
}

func (t *ledgerTx) SetWalletBalance(clientID string, balance decimal.Decimal) error {
	res := t.db.Model(&model.Wallet{}).Where("client_id = ?", clientID).Update("balance", balance)
	if res.Error != nil {
		return fmt.Errorf("update wallet balance: %w", res.Error)
	}
	t.touched[clientID] = struct{}{}
	return nil
}

func (t *ledgerTx) ApplyAllocations(allocations []biz.CreditAllocation) error {
	for _, a := range allocations {
		if a.Remaining < 0 {
			return fmt.Errorf("tranche %s would go negative", a.TrancheID)
		}
		if err := t.db.Model(&model.PlanCreditTranche{}).
			Where("id = ?", a.TrancheID).
			Update("remaining", a.Remaining).Error; err != nil {
			return fmt.Errorf("update tranche %s: %w", a.TrancheID, err)
		}
	}
	return nil
}

func (t *ledgerTx) CreateTranche(tranche *biz.CreditTranche) error {
	if tranche.ID == "" {
		tranche.ID = uuid.New().String()
	}
	m := model.PlanCreditTranche{
		ID:        tranche.ID,
		ClientID:  tranche.ClientID,
		PlanRef:   tranche.PlanRef,
		Total:     tranche.Total,
		Remaining: tranche.Remaining,
		ExpiresAt: tranche.ExpiresAt.UTC(),
		CreatedAt: tranche.CreatedAt.UTC(),
	}
	if err := t.db.Create(&m).Error; err != nil {
		return fmt.Errorf("create tranche: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendTransaction(txn *biz.LedgerTransaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	m := model.LedgerTransaction{
		ID:            txn.ID,
		ClientID:      txn.ClientID,
		Type:          txn.Type,
		Unit:          txn.Unit,
		Amount:        txn.Amount,
		BalanceAfter:  txn.BalanceAfter,
		Description:   txn.Description,
		ReferenceType: txn.ReferenceType,
		ReferenceID:   txn.ReferenceID,
		CreatedAt:     txn.CreatedAt.UTC(),
	}
	if err := t.db.Create(&m).Error; err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func (t *ledgerTx) SaveMessageCharge(charge *biz.MessageCharge) error {
	m := model.MessageCharge{
		MessageRef: charge.MessageRef,
		ClientID:   charge.ClientID,
		Amount:     charge.Amount,
		Unit:       charge.Unit,
		ChargedAt:  charge.ChargedAt.UTC(),
		RefundedAt: charge.RefundedAt,
	}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "amount", "unit", "charged_at", "refunded_at", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("save message charge: %w", err)
	}
	return nil
}

func (t *ledgerTx) CompletePendingTopUp(id string, completedAt time.Time) error {
	at := completedAt.UTC()
	if err := t.db.Model(&model.PendingTopUp{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       constants.TopUpStatusCompleted,
		"completed_at": &at,
	}).Error; err != nil {
		return fmt.Errorf("complete pending topup: %w", err)
	}
	return nil
}

func toBizTranches(rows []model.PlanCreditTranche) []*biz.CreditTranche {
	list := make([]*biz.CreditTranche, 0, len(rows))
	for _, m := range rows {
		list = append(list, &biz.CreditTranche{
			ID:        m.ID,
			ClientID:  m.ClientID,
			PlanRef:   m.PlanRef,
			Total:     m.Total,
			Remaining: m.Remaining,
			ExpiresAt: m.ExpiresAt.UTC(),
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return list
}

func toBizTransaction(m *model.LedgerTransaction) *biz.LedgerTransaction {
	return &biz.LedgerTransaction{
		ID:            m.ID,
		ClientID:      m.ClientID,
		Type:          m.Type,
		Unit:          m.Unit,
		Amount:        m.Amount,
		BalanceAfter:  m.BalanceAfter,
		Description:   m.Description,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		CreatedAt:     m.CreatedAt.UTC(),
	}
}

func toBizCharge(m *model.MessageCharge) *biz.MessageCharge {
	return &biz.MessageCharge{
		MessageRef: m.MessageRef,
		ClientID:   m.ClientID,
		Amount:     m.Amount,
		Unit:       m.Unit,
		ChargedAt:  m.ChargedAt.UTC(),
		RefundedAt: m.RefundedAt,
	}
}

func toBizPendingTopUp(m *model.PendingTopUp) *biz.PendingTopUp {
	return &biz.PendingTopUp{
		ID:          m.ID,
		ClientID:    m.ClientID,
		InvoiceID:   m.InvoiceID,
		Amount:      m.Amount,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt.UTC(),
		CompletedAt: m.CompletedAt,
	}
}
