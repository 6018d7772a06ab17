package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientBillingSettings 客户计费设置表（管理端维护，账本只读）
type ClientBillingSettings struct {
	ClientID    string    `gorm:"primaryKey;type:varchar(64)"`
	BillingMode string    `gorm:"type:varchar(16);not null"`
	Currency    string    `gorm:"type:varchar(8);not null;default:'USD'"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ClientBillingSettings) TableName() string {
	return "client_billing_settings"
}

// PendingTopUp 待结算充值表
type PendingTopUp struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)"`
	ClientID    string          `gorm:"type:varchar(64);not null;index"`
	InvoiceID   string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Status      string          `gorm:"type:varchar(16);not null;default:'pending'"` // pending/completed
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// TableName 指定表名
func (PendingTopUp) TableName() string {
	return "pending_topup"
}
