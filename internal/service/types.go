package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// GetAccountRequest 账户查询请求
type GetAccountRequest struct {
	ClientID string `json:"client_id"`
}

// CreditTranche 额度批次
type CreditTranche struct {
	ID        string    `json:"id"`
	PlanRef   string    `json:"plan_ref,omitempty"`
	Total     int64     `json:"total"`
	Remaining int64     `json:"remaining"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetAccountReply 账户查询响应
type GetAccountReply struct {
	ClientID         string           `json:"client_id"`
	Mode             string           `json:"mode"`
	Currency         string           `json:"currency"`
	Balance          decimal.Decimal  `json:"balance"`
	CreditsAvailable int64            `json:"credits_available"`
	Tranches         []*CreditTranche `json:"tranches"`
}

// ListTransactionsRequest 流水查询请求
type ListTransactionsRequest struct {
	ClientID string `json:"client_id"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// Transaction 流水
type Transaction struct {
	ID            string           `json:"id"`
	Type          string           `json:"type"`
	Unit          string           `json:"unit"`
	Amount        decimal.Decimal  `json:"amount"`
	BalanceAfter  *decimal.Decimal `json:"balance_after,omitempty"`
	Description   string           `json:"description"`
	ReferenceType string           `json:"reference_type,omitempty"`
	ReferenceID   string           `json:"reference_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ListTransactionsReply 流水查询响应
type ListTransactionsReply struct {
	Transactions []*Transaction `json:"transactions"`
	Total        int64          `json:"total"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
}

// QuoteRequest 报价请求
type QuoteRequest struct {
	ClientID    string `json:"client_id"`
	Segments    int    `json:"segments"`
	Channel     string `json:"channel"`
	GatewayID   string `json:"gateway_id,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// QuoteReply 报价响应
type QuoteReply struct {
	ClientID   string          `json:"client_id"`
	Channel    string          `json:"channel"`
	Mode       string          `json:"mode"`
	Unit       string          `json:"unit"`
	Segments   int             `json:"segments"`
	UnitRate   decimal.Decimal `json:"unit_rate"`
	RateSource string          `json:"rate_source,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// BalanceCheckRequest 余额预检请求；cost 为空时按消息参数报价
type BalanceCheckRequest struct {
	ClientID    string           `json:"client_id"`
	Cost        *decimal.Decimal `json:"cost,omitempty"`
	Segments    int              `json:"segments"`
	Channel     string           `json:"channel"`
	GatewayID   string           `json:"gateway_id,omitempty"`
	CountryCode string           `json:"country_code,omitempty"`
}

// BalanceCheckReply 余额预检响应
type BalanceCheckReply struct {
	Allowed bool        `json:"allowed"`
	Quote   *QuoteReply `json:"quote,omitempty"`
}

// ChargeRequest 扣费请求；amount 为空时按消息参数计算
type ChargeRequest struct {
	ClientID    string           `json:"client_id"`
	MessageRef  string           `json:"message_ref"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Segments    int              `json:"segments"`
	Channel     string           `json:"channel"`
	GatewayID   string           `json:"gateway_id,omitempty"`
	CountryCode string           `json:"country_code,omitempty"`
}

// ChargeReply 扣费响应
type ChargeReply struct {
	Success          bool             `json:"success"`
	MessageRef       string           `json:"message_ref"`
	Unit             string           `json:"unit"`
	ChargedAmount    decimal.Decimal  `json:"charged_amount"`
	BalanceAfter     *decimal.Decimal `json:"balance_after,omitempty"`
	CreditsRemaining *int64           `json:"credits_remaining,omitempty"`
	TransactionID    string           `json:"transaction_id"`
}

// RefundRequest 退款请求
type RefundRequest struct {
	MessageRef string `json:"message_ref"`
}

// RefundReply 退款响应
type RefundReply struct {
	Refunded     bool             `json:"refunded"`
	MessageRef   string           `json:"message_ref"`
	Unit         string           `json:"unit,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	BalanceAfter *decimal.Decimal `json:"balance_after,omitempty"`
}

// AddCreditsRequest 发放额度请求
type AddCreditsRequest struct {
	ClientID  string    `json:"client_id"`
	Credits   int64     `json:"credits"`
	ExpiresAt time.Time `json:"expires_at"`
	PlanRef   string    `json:"plan_ref,omitempty"`
}

// AddCreditsReply 发放额度响应
type AddCreditsReply struct {
	TrancheID string `json:"tranche_id"`
}

// CreateTopUpRequest 登记待结算充值请求
type CreateTopUpRequest struct {
	ClientID  string          `json:"client_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// GetTopUpRequest 待结算充值查询请求
type GetTopUpRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// TopUpReply 待结算充值
type TopUpReply struct {
	ID          string          `json:"id"`
	ClientID    string          `json:"client_id"`
	InvoiceID   string          `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// PlatformCostRequest 平台成本查询请求
type PlatformCostRequest struct {
	CountryCode string `json:"country_code"`
	Category    string `json:"category"`
}

// PlatformCostReply 平台成本查询响应
type PlatformCostReply struct {
	CountryCode   string          `json:"country_code"`
	Market        string          `json:"market"`
	Category      string          `json:"category"`
	Rate          decimal.Decimal `json:"rate"`
	Currency      string          `json:"currency"`
	EffectiveDate time.Time       `json:"effective_date"`
}

// VolumeTiersRequest 阶梯查询请求
type VolumeTiersRequest struct {
	Market   string `json:"market"`
	Category string `json:"category"`
	Volume   *int64 `json:"volume,omitempty"`
}

// VolumeTier 阶梯
type VolumeTier struct {
	VolumeFrom      int64           `json:"volume_from"`
	VolumeTo        *int64          `json:"volume_to,omitempty"`
	Rate            decimal.Decimal `json:"rate"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// VolumeTiersReply 阶梯查询响应；请求带 volume 时返回命中阶梯
type VolumeTiersReply struct {
	Tiers   []*VolumeTier `json:"tiers"`
	Matched *VolumeTier   `json:"matched,omitempty"`
}

// InvoicePaidRequest 账单已支付回调
type InvoicePaidRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// InvoicePaidReply 账单已支付回调响应
type InvoicePaidReply struct {
	Reconciled bool `json:"reconciled"`
}

// MessageStatusRequest 消息状态回调
type MessageStatusRequest struct {
	MessageRef string `json:"message_ref"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// MessageStatusReply 消息状态回调响应
type MessageStatusReply struct {
	Refunded bool `json:"refunded"`
}

// DirectTopUpRequest 直接充值（管理端）
type DirectTopUpRequest struct {
	ClientID    string          `json:"client_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	InvoiceRef  string          `json:"invoice_ref,omitempty"`
}

// DirectTopUpReply 直接充值响应
type DirectTopUpReply struct {
	Balance decimal.Decimal `json:"balance"`
}

// SaveSettingsRequest 保存计费设置（管理端）
type SaveSettingsRequest struct {
	ClientID string `json:"client_id"`
	Mode     string `json:"mode"`
	Currency string `json:"currency,omitempty"`
}

// SaveSettingsReply 保存计费设置响应
type SaveSettingsReply struct {
	ClientID string `json:"client_id"`
	Mode     string `json:"mode"`
	Currency string `json:"currency"`
}
