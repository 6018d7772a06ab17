package errors

import (
	"strconv"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// Message Billing 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，Message Billing 固定为 20
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   01: 钱包模块
//   02: 套餐额度模块
//   03: 充值/结算模块
//   04: 扣费模块
//   05: 费率模块
//   07: 通用数据访问

// 钱包模块错误码 (200100-200199)
const (
	// ErrCodeInsufficientBalance 余额不足
	ErrCodeInsufficientBalance = 200101
	// ErrCodeInvalidAmount 金额非法（<=0）
	ErrCodeInvalidAmount = 200102
)

// 套餐额度模块错误码 (200200-200299)
const (
	// ErrCodeInsufficientCredits 额度不足
	ErrCodeInsufficientCredits = 200201
	// ErrCodeInvalidCredits 额度非整数
	ErrCodeInvalidCredits = 200202
)

// 充值/结算模块错误码 (200300-200399)
const (
	// ErrCodePendingTopUpConflict 同一账单已登记不同的充值
	ErrCodePendingTopUpConflict = 200301
)

// 扣费模块错误码 (200400-200499)
const (
	// ErrCodeMessageAlreadyCharged 消息已扣费
	ErrCodeMessageAlreadyCharged = 200401
	// ErrCodeMessageRefRequired 缺少消息引用
	ErrCodeMessageRefRequired = 200402
)

// 费率模块错误码 (200500-200599)
const (
	// ErrCodeUnknownChannel 未知渠道
	ErrCodeUnknownChannel = 200501
	// ErrCodeRateNotConfigured 渠道未配置默认费率
	ErrCodeRateNotConfigured = 200502
	// ErrCodePlatformCostUnknown 平台成本未知
	ErrCodePlatformCostUnknown = 200503
)

// 通用数据访问错误码 (200700-200799)
const (
	// ErrCodeLedgerUnavailable 账本暂不可用
	ErrCodeLedgerUnavailable = 200701
	// ErrCodeInvalidClientID 无效的客户ID
	ErrCodeInvalidClientID = 200702
)

// Reason 常量（kratos errors 的 reason 字段）
const (
	ReasonInsufficientBalance   = "INSUFFICIENT_BALANCE"
	ReasonInsufficientCredits   = "INSUFFICIENT_CREDITS"
	ReasonInvalidAmount         = "INVALID_AMOUNT"
	ReasonPendingTopUpConflict  = "PENDING_TOPUP_CONFLICT"
	ReasonMessageAlreadyCharged = "MESSAGE_ALREADY_CHARGED"
	ReasonMessageRefRequired    = "MESSAGE_REF_REQUIRED"
	ReasonUnknownChannel        = "UNKNOWN_CHANNEL"
	ReasonRateNotConfigured     = "RATE_NOT_CONFIGURED"
	ReasonPlatformCostUnknown   = "PLATFORM_COST_UNKNOWN"
	ReasonLedgerUnavailable     = "LEDGER_UNAVAILABLE"
	ReasonInvalidClientID       = "INVALID_CLIENT_ID"
)

// 业务错误（预期内，直接返回给调用方）
var (
	ErrInsufficientBalance   = newError(402, ErrCodeInsufficientBalance, ReasonInsufficientBalance, "insufficient balance")
	ErrInsufficientCredits   = newError(402, ErrCodeInsufficientCredits, ReasonInsufficientCredits, "insufficient credits")
	ErrInvalidAmount         = newError(400, ErrCodeInvalidAmount, ReasonInvalidAmount, "amount must be greater than zero")
	ErrInvalidCredits        = newError(400, ErrCodeInvalidCredits, ReasonInvalidAmount, "credits must be a whole number")
	ErrPendingTopUpConflict  = newError(409, ErrCodePendingTopUpConflict, ReasonPendingTopUpConflict, "invoice already has a different pending top-up")
	ErrMessageAlreadyCharged = newError(409, ErrCodeMessageAlreadyCharged, ReasonMessageAlreadyCharged, "message already charged")
	ErrMessageRefRequired    = newError(400, ErrCodeMessageRefRequired, ReasonMessageRefRequired, "message reference is required")
	ErrUnknownChannel        = newError(400, ErrCodeUnknownChannel, ReasonUnknownChannel, "unknown channel")
	ErrRateNotConfigured     = newError(500, ErrCodeRateNotConfigured, ReasonRateNotConfigured, "no rate configured for channel")
	ErrPlatformCostUnknown   = newError(422, ErrCodePlatformCostUnknown, ReasonPlatformCostUnknown, "platform cost unknown, manual pricing required")
	ErrInvalidClientID       = newError(400, ErrCodeInvalidClientID, ReasonInvalidClientID, "client id is required")
)

// 系统错误（非预期，已记录日志，对外统一返回）
var (
	ErrLedgerUnavailable = newError(500, ErrCodeLedgerUnavailable, ReasonLedgerUnavailable, "ledger temporarily unavailable")
)

func newError(httpCode, bizCode int, reason, message string) *kerrors.Error {
	return kerrors.New(httpCode, reason, message).WithMetadata(map[string]string{
		"code": strconv.Itoa(bizCode),
	})
}

// IsInsufficientFunds 余额或额度不足
func IsInsufficientFunds(err error) bool {
	switch kerrors.Reason(err) {
	case ReasonInsufficientBalance, ReasonInsufficientCredits:
		return true
	}
	return false
}

// IsBusiness 是否为预期内的业务错误（不应按系统错误记录）
func IsBusiness(err error) bool {
	if err == nil {
		return false
	}
	code := kerrors.Code(err)
	return code >= 400 && code < 500
}
