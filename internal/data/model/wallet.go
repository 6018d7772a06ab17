package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet 钱包表（每个客户一行，首次计费时创建，不删除）
type Wallet struct {
	ClientID  string          `gorm:"primaryKey;type:varchar(64)"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Wallet) TableName() string {
	return "wallet"
}

// PlanCreditTranche 套餐额度批次表（0 <= remaining <= total）
type PlanCreditTranche struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	ClientID  string    `gorm:"type:varchar(64);not null;index:idx_tranche_client_expiry,priority:1"`
	PlanRef   string    `gorm:"type:varchar(128);not null;default:''"`
	Total     int64     `gorm:"not null"`
	Remaining int64     `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index:idx_tranche_client_expiry,priority:2"`
	CreatedAt time.Time
}

// TableName 指定表名
func (PlanCreditTranche) TableName() string {
	return "plan_credit_tranche"
}
