package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientRate 客户专属费率表
type ClientRate struct {
	ClientID  string          `gorm:"primaryKey;type:varchar(64)"`
	Channel   string          `gorm:"primaryKey;type:varchar(16)"`
	Rate      decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ClientRate) TableName() string {
	return "client_rate"
}

// GatewayRate 网关+国家费率表
type GatewayRate struct {
	GatewayID    string              `gorm:"primaryKey;type:varchar(64)"`
	CountryCode  string              `gorm:"primaryKey;type:varchar(8)"`
	SMSRate      decimal.NullDecimal `gorm:"column:sms_rate;type:decimal(18,6)"`
	WhatsAppRate decimal.NullDecimal `gorm:"column:whatsapp_rate;type:decimal(18,6)"`
	UpdatedAt    time.Time           `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (GatewayRate) TableName() string {
	return "gateway_rate"
}

// PlatformMarketOverride 国家 -> 市场覆盖表
type PlatformMarketOverride struct {
	CountryCode string    `gorm:"primaryKey;type:varchar(8)"`
	Market      string    `gorm:"type:varchar(64);not null"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PlatformMarketOverride) TableName() string {
	return "platform_market_override"
}

// PlatformRate 平台基础费率表（按生效日期保留历史）
type PlatformRate struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	Market        string          `gorm:"type:varchar(64);not null;uniqueIndex:uk_platform_rate,priority:1"`
	Category      string          `gorm:"type:varchar(32);not null;uniqueIndex:uk_platform_rate,priority:2"`
	EffectiveDate time.Time       `gorm:"not null;uniqueIndex:uk_platform_rate,priority:3"`
	Rate          decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	Currency      string          `gorm:"type:varchar(8);not null;default:'USD'"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PlatformRate) TableName() string {
	return "platform_rate"
}

// PlatformVolumeTier 平台阶梯量价表
type PlatformVolumeTier struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement"`
	Market          string          `gorm:"type:varchar(64);not null;uniqueIndex:uk_volume_tier,priority:1"`
	Category        string          `gorm:"type:varchar(32);not null;uniqueIndex:uk_volume_tier,priority:2"`
	VolumeFrom      int64           `gorm:"not null;uniqueIndex:uk_volume_tier,priority:3"`
	VolumeTo        *int64          // NULL 表示无上限
	Rate            decimal.Decimal `gorm:"type:decimal(18,6);not null"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (PlatformVolumeTier) TableName() string {
	return "platform_volume_tier"
}
