package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"msg-billing/internal/constants"
	billingErrors "msg-billing/internal/errors"
	"msg-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// PendingTopUp 待结算充值（账单支付后入账）
type PendingTopUp struct {
	ID          string
	ClientID    string
	InvoiceID   string
	Amount      decimal.Decimal
	Status      string // pending / completed
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TopUpRepo 待结算充值数据层接口（定义在 biz 层）
type TopUpRepo interface {
	// CreatePendingTopUp 登记待结算充值；invoice_id 已存在时返回已有记录
	CreatePendingTopUp(ctx context.Context, topUp *PendingTopUp) (*PendingTopUp, error)
	GetPendingTopUp(ctx context.Context, invoiceID string) (*PendingTopUp, error)
}

// SettlementUseCase 结算回调：账单支付、消息最终状态
type SettlementUseCase struct {
	ledger  *LedgerUseCase
	repo    LedgerRepo
	topUps  TopUpRepo
	log     *log.Helper
	metrics *metrics.BillingMetrics
	now     func() time.Time
}

// NewSettlementUseCase 创建结算 UseCase
func NewSettlementUseCase(ledger *LedgerUseCase, repo LedgerRepo, topUps TopUpRepo, logger log.Logger) *SettlementUseCase {
	return &SettlementUseCase{
		ledger:  ledger,
		repo:    repo,
		topUps:  topUps,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreatePendingTopUp 登记账单对应的待结算充值（按 invoice_id 幂等）
func (uc *SettlementUseCase) CreatePendingTopUp(ctx context.Context, clientID, invoiceID string, amount decimal.Decimal) (*PendingTopUp, error) {
	if clientID == "" {
		return nil, billingErrors.ErrInvalidClientID
	}
	if invoiceID == "" {
		return nil, errors.BadRequest("INVOICE_ID_REQUIRED", "invoice id is required")
	}
	if amount = RoundMoney(amount); !amount.IsPositive() {
		return nil, billingErrors.ErrInvalidAmount
	}

	stored, err := uc.topUps.CreatePendingTopUp(ctx, &PendingTopUp{
		ClientID:  clientID,
		InvoiceID: invoiceID,
		Amount:    amount,
		Status:    constants.TopUpStatusPending,
		CreatedAt: uc.now(),
	})
	if err != nil {
		return nil, uc.ledger.wrapSystem("CreatePendingTopUp", clientID, invoiceID, err)
	}
	if stored.ClientID != clientID || !stored.Amount.Equal(amount) {
		return nil, billingErrors.ErrPendingTopUpConflict
	}
	return stored, nil
}

// GetPendingTopUp 查询账单对应的充值记录
func (uc *SettlementUseCase) GetPendingTopUp(ctx context.Context, invoiceID string) (*PendingTopUp, error) {
	p, err := uc.topUps.GetPendingTopUp(ctx, invoiceID)
	if err != nil {
		return nil, uc.ledger.wrapSystem("GetPendingTopUp", "", invoiceID, err)
	}
	if p == nil {
		return nil, errors.NotFound("PENDING_TOPUP_NOT_FOUND", "pending top-up not found")
	}
	return p, nil
}

// ReconcileInvoice 账单已支付：待结算充值入账并标记完成
// 记录不存在或已完成时为 no-op（以记录自身状态为准），返回 false
func (uc *SettlementUseCase) ReconcileInvoice(ctx context.Context, invoiceID string) (bool, error) {
	if invoiceID == "" {
		return false, errors.BadRequest("INVOICE_ID_REQUIRED", "invoice id is required")
	}

	now := uc.now()
	var txn *LedgerTransaction
	var pending *PendingTopUp
	err := uc.repo.Transact(ctx, func(tx LedgerTx) error {
		var err error
		pending, err = tx.LockPendingTopUp(invoiceID)
		if err != nil {
			return err
		}
		if pending == nil || pending.Status != constants.TopUpStatusPending {
			return nil
		}
		txn, err = uc.ledger.topUpTx(tx, pending.ClientID, pending.Amount, fmt.Sprintf("Invoice %s paid", invoiceID), invoiceID, now)
		if err != nil {
			return err
		}
		return tx.CompletePendingTopUp(pending.ID, now)
	})
	if err != nil {
		uc.observe(constants.ResultFailed)
		return false, uc.ledger.wrapSystem("ReconcileInvoice", "", invoiceID, err)
	}

	if txn == nil {
		uc.observe(constants.ResultNoop)
		uc.log.Infof("ReconcileInvoice no-op: invoice_id=%s", invoiceID)
		return false, nil
	}

	uc.observe(constants.ResultSuccess)
	uc.ledger.observeTopUp(constants.ResultSuccess, pending.Amount)
	uc.log.Infof("Invoice reconciled: invoice_id=%s, client_id=%s, amount=%s, balance_after=%s",
		invoiceID, pending.ClientID, pending.Amount, txn.BalanceAfter.Decimal)
	uc.ledger.publish(ctx, txn)
	return true, nil
}

// OnMessageFailed 消息最终失败：退款
func (uc *SettlementUseCase) OnMessageFailed(ctx context.Context, messageRef string) (bool, error) {
	result, err := uc.ledger.Refund(ctx, messageRef)
	if err != nil {
		return false, err
	}
	return result.Refunded, nil
}

// OnMessageDelivered 消息已送达：不产生资金变动（扣费发生在网关接受时）
func (uc *SettlementUseCase) OnMessageDelivered(ctx context.Context, messageRef string) error {
	uc.log.Debugf("Message delivered, no settlement: message_ref=%s", messageRef)
	return nil
}

// OnMessageStatus 按消息状态分发到对应回调
func (uc *SettlementUseCase) OnMessageStatus(ctx context.Context, event *MessageStatusEvent) (bool, error) {
	if event == nil || event.MessageRef == "" {
		return false, billingErrors.ErrMessageRefRequired
	}
	switch strings.ToLower(strings.TrimSpace(event.Status)) {
	case constants.MessageStatusDelivered:
		return false, uc.OnMessageDelivered(ctx, event.MessageRef)
	case constants.MessageStatusFailed, constants.MessageStatusUndelivered,
		constants.MessageStatusRejected, constants.MessageStatusExpired:
		return uc.OnMessageFailed(ctx, event.MessageRef)
	default:
		// 非最终状态（queued / sent 等）忽略
		uc.log.Debugf("Ignoring non-terminal message status: message_ref=%s, status=%s", event.MessageRef, event.Status)
		return false, nil
	}
}

func (uc *SettlementUseCase) observe(result string) {
	if uc.metrics != nil {
		uc.metrics.ReconcileTotal.WithLabelValues(result).Inc()
	}
}
