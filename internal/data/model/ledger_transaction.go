package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransaction 账本流水表（只追加，每次变动一行）
type LedgerTransaction struct {
	ID            string              `gorm:"primaryKey;type:varchar(36)"`
	ClientID      string              `gorm:"type:varchar(64);not null;index:idx_txn_client_created,priority:1"`
	Type          string              `gorm:"type:varchar(32);not null"` // topup/deduction/credit_deduction/refund/credit_add
	Unit          string              `gorm:"type:varchar(16);not null"` // currency/credit
	Amount        decimal.Decimal     `gorm:"type:decimal(18,4);not null"`
	BalanceAfter  decimal.NullDecimal `gorm:"type:decimal(18,4)"`
	Description   string              `gorm:"type:varchar(255);not null;default:''"`
	ReferenceType string              `gorm:"type:varchar(32);not null;default:'';index:idx_txn_reference,priority:1"`
	ReferenceID   string              `gorm:"type:varchar(64);not null;default:'';index:idx_txn_reference,priority:2"`
	CreatedAt     time.Time           `gorm:"index:idx_txn_client_created,priority:2"`
}

// TableName 指定表名
func (LedgerTransaction) TableName() string {
	return "ledger_transaction"
}

// MessageCharge 消息扣费记录表（扣费写入金额，退款清零）
type MessageCharge struct {
	MessageRef string          `gorm:"primaryKey;type:varchar(64)"`
	ClientID   string          `gorm:"type:varchar(64);not null;index"`
	Amount     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Unit       string          `gorm:"type:varchar(16);not null"`
	ChargedAt  time.Time
	RefundedAt *time.Time
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (MessageCharge) TableName() string {
	return "message_charge"
}
