package biz

import (
	"context"
	"fmt"
	"time"

	"msg-billing/internal/constants"
	billingErrors "msg-billing/internal/errors"
	"msg-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// RoundMoney 按账本精度取整（四舍五入）
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(constants.LedgerScale)
}

// Wallet 钱包领域对象
type Wallet struct {
	ClientID  string
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// LedgerTransaction 账本流水领域对象（只追加）
type LedgerTransaction struct {
	ID            string
	ClientID      string
	Type          string // topup / deduction / credit_deduction / refund / credit_add
	Unit          string // currency / credit
	Amount        decimal.Decimal
	BalanceAfter  decimal.NullDecimal // 仅金额流水有值
	Description   string
	ReferenceType string
	ReferenceID   string
	CreatedAt     time.Time
}

// MessageCharge 消息扣费记录
type MessageCharge struct {
	MessageRef string
	ClientID   string
	Amount     decimal.Decimal // 扣费时写入，退款时清零
	Unit       string
	ChargedAt  time.Time
	RefundedAt *time.Time
}

// Charged 是否仍有未退回的扣费
func (c *MessageCharge) Charged() bool {
	return c != nil && !c.Amount.IsZero()
}

// DebitResult 扣费结果
type DebitResult struct {
	ClientID         string
	MessageRef       string
	Unit             string
	ChargedAmount    decimal.Decimal
	BalanceAfter     decimal.NullDecimal // 金额模式
	CreditsRemaining int64               // 套餐模式：扣费后剩余可用额度
	TransactionID    string
}

// RefundResult 退款结果
type RefundResult struct {
	Refunded      bool
	MessageRef    string
	ClientID      string
	Unit          string
	Amount        decimal.Decimal
	BalanceAfter  decimal.NullDecimal
	TransactionID string
}

// Account 客户账户概览
type Account struct {
	Settings         *BillingSettings
	Balance          decimal.Decimal
	CreditsAvailable int64
	Tranches         []*CreditTranche
}

// LedgerTx 账本事务（只在 LedgerRepo.Transact 的回调内有效）
// 加锁顺序：钱包或额度批次 -> 消息扣费记录
type LedgerTx interface {
	// LockWallet 锁定钱包行，不存在时先创建（余额 0）
	LockWallet(clientID string) (*Wallet, error)
	// LockTranches 锁定客户未过期的额度批次，按过期时间、ID 升序
	// withRemainingOnly 为 true 时只返回 remaining > 0 的批次
	LockTranches(clientID string, now time.Time, withRemainingOnly bool) ([]*CreditTranche, error)
	// LockMessageCharge 锁定消息扣费记录，不存在返回 nil
	LockMessageCharge(messageRef string) (*MessageCharge, error)
	// LockPendingTopUp 锁定待结算充值，不存在返回 nil
	LockPendingTopUp(invoiceID string) (*PendingTopUp, error)

	SetWalletBalance(clientID string, balance decimal.Decimal) error
	ApplyAllocations(allocations []CreditAllocation) error
	CreateTranche(tranche *CreditTranche) error
	AppendTransaction(txn *LedgerTransaction) error
	SaveMessageCharge(charge *MessageCharge) error
	CompletePendingTopUp(id string, completedAt time.Time) error
}

// LedgerRepo 账本数据层接口（定义在 biz 层）
type LedgerRepo interface {
	// Transact 在一个数据库事务中执行 fn，fn 返回错误时整体回滚
	Transact(ctx context.Context, fn func(tx LedgerTx) error) error

	GetWallet(ctx context.Context, clientID string) (*Wallet, error)
	// GetBalance 读取余额（优先缓存），钱包不存在返回 0
	GetBalance(ctx context.Context, clientID string) (decimal.Decimal, error)
	SumAvailableCredits(ctx context.Context, clientID string, now time.Time) (int64, error)
	ListActiveTranches(ctx context.Context, clientID string, now time.Time) ([]*CreditTranche, error)
	ListTransactions(ctx context.Context, clientID string, page, pageSize int) ([]*LedgerTransaction, int64, error)
	GetMessageCharge(ctx context.Context, messageRef string) (*MessageCharge, error)
}

// LedgerUseCase 账本业务逻辑
type LedgerUseCase struct {
	repo     LedgerRepo
	settings *SettingsUseCase
	events   EventPublisher
	conf     *BillingConfig
	log      *log.Helper
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

// NewLedgerUseCase 创建账本 UseCase
func NewLedgerUseCase(repo LedgerRepo, settings *SettingsUseCase, events EventPublisher, conf *BillingConfig, logger log.Logger) *LedgerUseCase {
	return &LedgerUseCase{
		repo:     repo,
		settings: settings,
		events:   events,
		conf:     conf,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Debit 扣费（消息被网关接受后调用，每条消息一次）
// 金额模式锁钱包行，套餐模式锁全部可用批次；读-校验-写在同一个锁内完成
func (uc *LedgerUseCase) Debit(ctx context.Context, clientID, messageRef string, amount decimal.Decimal) (*DebitResult, error) {
	if clientID == "" {
		return nil, billingErrors.ErrInvalidClientID
	}
	if messageRef == "" {
		return nil, billingErrors.ErrMessageRefRequired
	}
	if !amount.IsPositive() {
		return nil, billingErrors.ErrInvalidAmount
	}

	settings, err := uc.settings.Get(ctx, clientID)
	if err != nil {
		return nil, uc.wrapSystem("Debit", clientID, messageRef, err)
	}
	unit := settings.Unit()
	if unit == constants.UnitCredit && !amount.IsInteger() {
		return nil, billingErrors.ErrInvalidCredits
	}
	if unit == constants.UnitCurrency {
		// 取整后为 0 的金额无法落库也无法退款
		if amount = RoundMoney(amount); !amount.IsPositive() {
			return nil, billingErrors.ErrInvalidAmount
		}
	}

	start := time.Now()
	now := uc.now()
	var result *DebitResult
	var txn *LedgerTransaction
	err = uc.repo.Transact(ctx, func(tx LedgerTx) error {
		var err error
		if unit == constants.UnitCredit {
			result, txn, err = uc.debitCredits(tx, clientID, messageRef, amount.IntPart(), now)
		} else {
			result, txn, err = uc.debitWallet(tx, clientID, messageRef, amount, now)
		}
		return err
	})
	if uc.metrics != nil {
		uc.metrics.DebitDuration.WithLabelValues(unit).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if billingErrors.IsBusiness(err) {
			uc.log.Infof("Debit rejected: client_id=%s, message_ref=%s, amount=%s, reason=%v", clientID, messageRef, amount, err)
			label := constants.ResultFailed
			if billingErrors.IsInsufficientFunds(err) {
				label = constants.ResultInsufficient
			}
			uc.observeDebit(unit, label, decimal.Zero)
			return nil, err
		}
		uc.observeDebit(unit, constants.ResultFailed, decimal.Zero)
		return nil, uc.wrapSystem("Debit", clientID, messageRef, err)
	}

	uc.observeDebit(unit, constants.ResultSuccess, amount)
	if result.BalanceAfter.Valid {
		uc.checkLowBalance(clientID, result.BalanceAfter.Decimal.Add(amount), result.BalanceAfter.Decimal)
	}
	uc.publish(ctx, txn)
	return result, nil
}

func (uc *LedgerUseCase) debitWallet(tx LedgerTx, clientID, messageRef string, amount decimal.Decimal, now time.Time) (*DebitResult, *LedgerTransaction, error) {
	wallet, err := tx.LockWallet(clientID)
	if err != nil {
		return nil, nil, err
	}
	if err := uc.ensureNotCharged(tx, messageRef); err != nil {
		return nil, nil, err
	}
	if wallet.Balance.LessThan(amount) {
		return nil, nil, billingErrors.ErrInsufficientBalance
	}

	balanceAfter := wallet.Balance.Sub(amount)
	if err := tx.SetWalletBalance(clientID, balanceAfter); err != nil {
		return nil, nil, err
	}
	txn := &LedgerTransaction{
		ClientID:      clientID,
		Type:          constants.TransactionTypeDeduction,
		Unit:          constants.UnitCurrency,
		Amount:        amount.Neg(),
		BalanceAfter:  decimal.NewNullDecimal(balanceAfter),
		Description:   "Message charge",
		ReferenceType: constants.ReferenceTypeMessage,
		ReferenceID:   messageRef,
		CreatedAt:     now,
	}
	if err := tx.AppendTransaction(txn); err != nil {
		return nil, nil, err
	}
	if err := tx.SaveMessageCharge(&MessageCharge{
		MessageRef: messageRef,
		ClientID:   clientID,
		Amount:     amount,
		Unit:       constants.UnitCurrency,
		ChargedAt:  now,
	}); err != nil {
		return nil, nil, err
	}

	return &DebitResult{
		ClientID:      clientID,
		MessageRef:    messageRef,
		Unit:          constants.UnitCurrency,
		ChargedAmount: amount,
		BalanceAfter:  txn.BalanceAfter,
		TransactionID: txn.ID,
	}, txn, nil
}

func (uc *LedgerUseCase) debitCredits(tx LedgerTx, clientID, messageRef string, credits int64, now time.Time) (*DebitResult, *LedgerTransaction, error) {
	tranches, err := tx.LockTranches(clientID, now, true)
	if err != nil {
		return nil, nil, err
	}
	if err := uc.ensureNotCharged(tx, messageRef); err != nil {
		return nil, nil, err
	}

	// 额度不足时不做任何写入
	allocations, ok := AllocateDebit(tranches, credits, now)
	if !ok {
		return nil, nil, billingErrors.ErrInsufficientCredits
	}
	if err := tx.ApplyAllocations(allocations); err != nil {
		return nil, nil, err
	}

	var available int64
	for _, t := range tranches {
		if t.Active(now) {
			available += t.Remaining
		}
	}

	amount := decimal.NewFromInt(credits)
	txn := &LedgerTransaction{
		ClientID:      clientID,
		Type:          constants.TransactionTypeCreditDeduction,
		Unit:          constants.UnitCredit,
		Amount:        amount.Neg(),
		Description:   fmt.Sprintf("Message charge (%d credits)", credits),
		ReferenceType: constants.ReferenceTypeMessage,
		ReferenceID:   messageRef,
		CreatedAt:     now,
	}
	if err := tx.AppendTransaction(txn); err != nil {
		return nil, nil, err
	}
	if err := tx.SaveMessageCharge(&MessageCharge{
		MessageRef: messageRef,
		ClientID:   clientID,
		Amount:     amount,
		Unit:       constants.UnitCredit,
		ChargedAt:  now,
	}); err != nil {
		return nil, nil, err
	}

	return &DebitResult{
		ClientID:         clientID,
		MessageRef:       messageRef,
		Unit:             constants.UnitCredit,
		ChargedAmount:    amount,
		CreditsRemaining: available - credits,
		TransactionID:    txn.ID,
	}, txn, nil
}

// ensureNotCharged 同一条消息只能有一笔未退回的扣费
func (uc *LedgerUseCase) ensureNotCharged(tx LedgerTx, messageRef string) error {
	charge, err := tx.LockMessageCharge(messageRef)
	if err != nil {
		return err
	}
	if charge.Charged() {
		return billingErrors.ErrMessageAlreadyCharged
	}
	return nil
}

// Refund 退款（消息最终失败时调用）
// 扣费记录已为 0（已退或从未扣费）时为 no-op，返回 Refunded=false
func (uc *LedgerUseCase) Refund(ctx context.Context, messageRef string) (*RefundResult, error) {
	if messageRef == "" {
		return nil, billingErrors.ErrMessageRefRequired
	}

	// 先无锁读取扣费记录，确定客户和单位后再按顺序加锁
	peek, err := uc.repo.GetMessageCharge(ctx, messageRef)
	if err != nil {
		return nil, uc.wrapSystem("Refund", "", messageRef, err)
	}
	if !peek.Charged() {
		uc.observeRefund(constants.UnitCurrency, constants.ResultNoop, decimal.Zero)
		return &RefundResult{MessageRef: messageRef}, nil
	}

	clientID, unit := peek.ClientID, peek.Unit
	now := uc.now()
	result := &RefundResult{MessageRef: messageRef, ClientID: clientID, Unit: unit}
	var txn *LedgerTransaction
	err = uc.repo.Transact(ctx, func(tx LedgerTx) error {
		var wallet *Wallet
		var tranches []*CreditTranche
		var err error
		if unit == constants.UnitCredit {
			tranches, err = tx.LockTranches(clientID, now, false)
		} else {
			wallet, err = tx.LockWallet(clientID)
		}
		if err != nil {
			return err
		}

		charge, err := tx.LockMessageCharge(messageRef)
		if err != nil {
			return err
		}
		if !charge.Charged() {
			return nil
		}
		if charge.ClientID != clientID || charge.Unit != unit {
			return fmt.Errorf("message charge %s changed owner during refund", messageRef)
		}

		if unit == constants.UnitCredit {
			txn, err = uc.refundCredits(tx, charge, tranches, now)
		} else {
			txn, err = uc.refundWallet(tx, charge, wallet, now)
		}
		if err != nil {
			return err
		}

		result.Refunded = true
		result.Amount = charge.Amount
		result.BalanceAfter = txn.BalanceAfter
		result.TransactionID = txn.ID

		charge.Amount = decimal.Zero
		charge.RefundedAt = &now
		return tx.SaveMessageCharge(charge)
	})
	if err != nil {
		uc.observeRefund(unit, constants.ResultFailed, decimal.Zero)
		return nil, uc.wrapSystem("Refund", clientID, messageRef, err)
	}

	if !result.Refunded {
		uc.observeRefund(unit, constants.ResultNoop, decimal.Zero)
		return result, nil
	}
	uc.observeRefund(unit, constants.ResultSuccess, result.Amount)
	uc.log.Infof("Refunded: client_id=%s, message_ref=%s, unit=%s, amount=%s", clientID, messageRef, unit, result.Amount)
	uc.publish(ctx, txn)
	return result, nil
}

func (uc *LedgerUseCase) refundWallet(tx LedgerTx, charge *MessageCharge, wallet *Wallet, now time.Time) (*LedgerTransaction, error) {
	balanceAfter := wallet.Balance.Add(charge.Amount)
	if err := tx.SetWalletBalance(charge.ClientID, balanceAfter); err != nil {
		return nil, err
	}
	txn := &LedgerTransaction{
		ClientID:      charge.ClientID,
		Type:          constants.TransactionTypeRefund,
		Unit:          constants.UnitCurrency,
		Amount:        charge.Amount,
		BalanceAfter:  decimal.NewNullDecimal(balanceAfter),
		Description:   "Message refund",
		ReferenceType: constants.ReferenceTypeMessage,
		ReferenceID:   charge.MessageRef,
		CreatedAt:     now,
	}
	return txn, tx.AppendTransaction(txn)
}

// refundCredits 额度退回到最早过期的未过期批次，放不下的部分新建批次
func (uc *LedgerUseCase) refundCredits(tx LedgerTx, charge *MessageCharge, tranches []*CreditTranche, now time.Time) (*LedgerTransaction, error) {
	credits := charge.Amount.IntPart()
	allocations, overflow := AllocateRefund(tranches, credits, now)
	if err := tx.ApplyAllocations(allocations); err != nil {
		return nil, err
	}
	if overflow > 0 {
		if err := tx.CreateTranche(&CreditTranche{
			ClientID:  charge.ClientID,
			PlanRef:   "refund:" + charge.MessageRef,
			Total:     overflow,
			Remaining: overflow,
			ExpiresAt: OverflowExpiry(tranches, now, uc.conf.RefundCreditTTL),
			CreatedAt: now,
		}); err != nil {
			return nil, err
		}
	}
	txn := &LedgerTransaction{
		ClientID:      charge.ClientID,
		Type:          constants.TransactionTypeRefund,
		Unit:          constants.UnitCredit,
		Amount:        decimal.NewFromInt(credits),
		Description:   fmt.Sprintf("Message refund (%d credits)", credits),
		ReferenceType: constants.ReferenceTypeMessage,
		ReferenceID:   charge.MessageRef,
		CreatedAt:     now,
	}
	return txn, tx.AppendTransaction(txn)
}

// TopUp 钱包充值（始终按金额计，与计费模式无关），返回充值后余额
func (uc *LedgerUseCase) TopUp(ctx context.Context, clientID string, amount decimal.Decimal, description, invoiceRef string) (decimal.Decimal, error) {
	if clientID == "" {
		return decimal.Zero, billingErrors.ErrInvalidClientID
	}
	if amount = RoundMoney(amount); !amount.IsPositive() {
		return decimal.Zero, billingErrors.ErrInvalidAmount
	}

	now := uc.now()
	var txn *LedgerTransaction
	err := uc.repo.Transact(ctx, func(tx LedgerTx) error {
		var err error
		txn, err = uc.topUpTx(tx, clientID, amount, description, invoiceRef, now)
		return err
	})
	if err != nil {
		uc.observeTopUp(constants.ResultFailed, decimal.Zero)
		return decimal.Zero, uc.wrapSystem("TopUp", clientID, invoiceRef, err)
	}

	uc.observeTopUp(constants.ResultSuccess, amount)
	uc.log.Infof("Topped up: client_id=%s, amount=%s, balance_after=%s, invoice=%s", clientID, amount, txn.BalanceAfter.Decimal, invoiceRef)
	uc.publish(ctx, txn)
	return txn.BalanceAfter.Decimal, nil
}

// topUpTx 在已有事务中充值（结算时与待结算记录同一事务）
func (uc *LedgerUseCase) topUpTx(tx LedgerTx, clientID string, amount decimal.Decimal, description, invoiceRef string, now time.Time) (*LedgerTransaction, error) {
	wallet, err := tx.LockWallet(clientID)
	if err != nil {
		return nil, err
	}
	balanceAfter := wallet.Balance.Add(amount)
	if err := tx.SetWalletBalance(clientID, balanceAfter); err != nil {
		return nil, err
	}
	if description == "" {
		description = "Wallet top-up"
	}
	txn := &LedgerTransaction{
		ClientID:     clientID,
		Type:         constants.TransactionTypeTopUp,
		Unit:         constants.UnitCurrency,
		Amount:       amount,
		BalanceAfter: decimal.NewNullDecimal(balanceAfter),
		Description:  description,
		CreatedAt:    now,
	}
	if invoiceRef != "" {
		txn.ReferenceType = constants.ReferenceTypeInvoice
		txn.ReferenceID = invoiceRef
	}
	return txn, tx.AppendTransaction(txn)
}

// AddCredits 发放套餐额度，每次发放独立成批次，不与已有批次合并
func (uc *LedgerUseCase) AddCredits(ctx context.Context, clientID string, credits int64, expiresAt time.Time, planRef string) (string, error) {
	if clientID == "" {
		return "", billingErrors.ErrInvalidClientID
	}
	now := uc.now()
	if credits <= 0 || !expiresAt.After(now) {
		return "", billingErrors.ErrInvalidAmount
	}

	tranche := &CreditTranche{
		ClientID:  clientID,
		PlanRef:   planRef,
		Total:     credits,
		Remaining: credits,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}
	var txn *LedgerTransaction
	err := uc.repo.Transact(ctx, func(tx LedgerTx) error {
		if err := tx.CreateTranche(tranche); err != nil {
			return err
		}
		txn = &LedgerTransaction{
			ClientID:      clientID,
			Type:          constants.TransactionTypeCreditAdd,
			Unit:          constants.UnitCredit,
			Amount:        decimal.NewFromInt(credits),
			Description:   fmt.Sprintf("Plan credits granted (%d)", credits),
			ReferenceType: constants.ReferenceTypePlanCredit,
			ReferenceID:   tranche.ID,
			CreatedAt:     now,
		}
		return tx.AppendTransaction(txn)
	})
	if err != nil {
		return "", uc.wrapSystem("AddCredits", clientID, planRef, err)
	}

	if uc.metrics != nil {
		uc.metrics.CreditsAdded.Add(float64(credits))
	}
	uc.log.Infof("Credits added: client_id=%s, tranche_id=%s, credits=%d, expires_at=%s", clientID, tranche.ID, credits, tranche.ExpiresAt.Format(time.RFC3339))
	uc.publish(ctx, txn)
	return tranche.ID, nil
}

// GetAccount 账户概览：余额、可用额度、计费设置
func (uc *LedgerUseCase) GetAccount(ctx context.Context, clientID string) (*Account, error) {
	settings, err := uc.settings.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	account := &Account{Settings: settings, Balance: decimal.Zero}

	wallet, err := uc.repo.GetWallet(ctx, clientID)
	if err != nil {
		return nil, uc.wrapSystem("GetAccount", clientID, "", err)
	}
	if wallet != nil {
		account.Balance = wallet.Balance
	}

	tranches, err := uc.repo.ListActiveTranches(ctx, clientID, uc.now())
	if err != nil {
		return nil, uc.wrapSystem("GetAccount", clientID, "", err)
	}
	account.Tranches = tranches
	for _, t := range tranches {
		account.CreditsAvailable += t.Remaining
	}
	return account, nil
}

// ListTransactions 分页查询流水（按时间倒序）
func (uc *LedgerUseCase) ListTransactions(ctx context.Context, clientID string, page, pageSize int) ([]*LedgerTransaction, int64, error) {
	if clientID == "" {
		return nil, 0, billingErrors.ErrInvalidClientID
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	list, total, err := uc.repo.ListTransactions(ctx, clientID, page, pageSize)
	if err != nil {
		return nil, 0, uc.wrapSystem("ListTransactions", clientID, "", err)
	}
	return list, total, nil
}

// wrapSystem 记录系统错误并对外统一返回 ErrLedgerUnavailable；业务错误原样返回
func (uc *LedgerUseCase) wrapSystem(op, clientID, ref string, err error) error {
	if billingErrors.IsBusiness(err) {
		return err
	}
	uc.log.Errorf("%s failed: client_id=%s, ref=%s, error=%v", op, clientID, ref, err)
	return billingErrors.ErrLedgerUnavailable.WithCause(err)
}

// publish 提交后发送账本事件，失败只记录日志
func (uc *LedgerUseCase) publish(ctx context.Context, txn *LedgerTransaction) {
	if uc.events == nil || txn == nil {
		return
	}
	result := constants.ResultSuccess
	if err := uc.events.PublishLedgerEvent(ctx, newLedgerEvent(txn)); err != nil {
		result = constants.ResultFailed
		uc.log.Warnf("Publish ledger event failed: client_id=%s, type=%s, ref=%s, error=%v", txn.ClientID, txn.Type, txn.ReferenceID, err)
	}
	if uc.metrics != nil {
		uc.metrics.EventPublishTotal.WithLabelValues(result).Inc()
	}
}

// checkLowBalance 只在本次扣费使余额跌破阈值时计数，已低于阈值的后续扣费只记日志
func (uc *LedgerUseCase) checkLowBalance(clientID string, before, after decimal.Decimal) {
	threshold := uc.conf.LowBalanceThreshold
	if !after.LessThan(threshold) {
		return
	}
	uc.log.Warnf("Low balance: client_id=%s, balance=%s, threshold=%s", clientID, after, threshold)
	if uc.metrics != nil && !before.LessThan(threshold) {
		uc.metrics.LowBalanceTotal.Inc()
	}
}

func (uc *LedgerUseCase) observeDebit(unit, result string, amount decimal.Decimal) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.DebitTotal.WithLabelValues(unit, result).Inc()
	if amount.IsPositive() {
		uc.metrics.DebitAmount.WithLabelValues(unit).Add(amount.InexactFloat64())
	}
}

func (uc *LedgerUseCase) observeRefund(unit, result string, amount decimal.Decimal) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RefundTotal.WithLabelValues(unit, result).Inc()
	if amount.IsPositive() {
		uc.metrics.RefundAmount.WithLabelValues(unit).Add(amount.InexactFloat64())
	}
}

func (uc *LedgerUseCase) observeTopUp(result string, amount decimal.Decimal) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.TopUpTotal.WithLabelValues(result).Inc()
	if amount.IsPositive() {
		uc.metrics.TopUpAmount.Add(amount.InexactFloat64())
	}
}
