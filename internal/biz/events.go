package biz

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEvent 账本变动事件（提交后发送）
type LedgerEvent struct {
	EventID       string           `json:"event_id"`
	ClientID      string           `json:"client_id"`
	Type          string           `json:"type"` // topup / deduction / credit_deduction / refund / credit_add
	Unit          string           `json:"unit"`
	Amount        decimal.Decimal  `json:"amount"`
	BalanceAfter  *decimal.Decimal `json:"balance_after,omitempty"`
	ReferenceType string           `json:"reference_type,omitempty"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// MessageStatusEvent 消息状态回调事件
type MessageStatusEvent struct {
	MessageRef string    `json:"message_ref"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InvoicePaidEvent 账单已支付事件
type InvoicePaidEvent struct {
	InvoiceID string    `json:"invoice_id"`
	PaidAt    time.Time `json:"paid_at"`
}

// EventPublisher 账本事件发布接口（定义在 biz 层，由 data 层实现）
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error
}

func newLedgerEvent(txn *LedgerTransaction) *LedgerEvent {
	e := &LedgerEvent{
		EventID:       txn.ID,
		ClientID:      txn.ClientID,
		Type:          txn.Type,
		Unit:          txn.Unit,
		Amount:        txn.Amount,
		ReferenceType: txn.ReferenceType,
		ReferenceID:   txn.ReferenceID,
		OccurredAt:    txn.CreatedAt,
	}
	if txn.BalanceAfter.Valid {
		b := txn.BalanceAfter.Decimal
		e.BalanceAfter = &b
	}
	return e
}
