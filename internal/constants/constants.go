package constants

// 时间格式常量
const (
	// TimeFormatMonth 月份格式 (YYYY-MM)
	TimeFormatMonth = "2006-01"
	// TimeFormatDate 日期格式 (YYYY-MM-DD)
	TimeFormatDate = "2006-01-02"
)

// LedgerScale 账本金额精度（钱包、流水、扣费记录的小数位）
const LedgerScale int32 = 4

// Redis Key 前缀常量
const (
	// RedisKeyBalance 钱包余额缓存 key 前缀
	RedisKeyBalance = "msgbilling:balance:"
	// RedisKeyJobLock 定时任务锁 key 前缀
	RedisKeyJobLock = "msgbilling:job:lock:"
)

// 计费模式常量
const (
	// BillingModePerMessage 按条计费
	BillingModePerMessage = "per_message"
	// BillingModePerSegment 按分段计费
	BillingModePerSegment = "per_segment"
	// BillingModeWallet 钱包计费（按分段扣钱包余额）
	BillingModeWallet = "wallet"
	// BillingModePlan 套餐额度计费
	BillingModePlan = "plan"
)

// 渠道常量
const (
	// ChannelSMS 短信
	ChannelSMS = "sms"
	// ChannelWhatsApp WhatsApp
	ChannelWhatsApp = "whatsapp"
)

// 流水类型常量
const (
	// TransactionTypeTopUp 充值
	TransactionTypeTopUp = "topup"
	// TransactionTypeDeduction 余额扣费
	TransactionTypeDeduction = "deduction"
	// TransactionTypeCreditDeduction 额度扣减
	TransactionTypeCreditDeduction = "credit_deduction"
	// TransactionTypeRefund 退款
	TransactionTypeRefund = "refund"
	// TransactionTypeCreditAdd 额度发放
	TransactionTypeCreditAdd = "credit_add"
)

// 计量单位常量
const (
	// UnitCurrency 货币
	UnitCurrency = "currency"
	// UnitCredit 套餐额度
	UnitCredit = "credit"
)

// 关联对象类型常量
const (
	// ReferenceTypeMessage 消息
	ReferenceTypeMessage = "message"
	// ReferenceTypeInvoice 账单
	ReferenceTypeInvoice = "invoice"
	// ReferenceTypePlanCredit 套餐额度
	ReferenceTypePlanCredit = "plan_credit"
)

// 待充值记录状态常量
const (
	// TopUpStatusPending 待处理
	TopUpStatusPending = "pending"
	// TopUpStatusCompleted 已完成
	TopUpStatusCompleted = "completed"
)

// 消息状态常量（来自发送管道）
const (
	// MessageStatusDelivered 已送达
	MessageStatusDelivered = "delivered"
	// MessageStatusFailed 发送失败
	MessageStatusFailed = "failed"
	// MessageStatusUndelivered 无法送达
	MessageStatusUndelivered = "undelivered"
	// MessageStatusRejected 被拒绝
	MessageStatusRejected = "rejected"
	// MessageStatusExpired 已过期
	MessageStatusExpired = "expired"
)

// WhatsApp 平台计费常量
const (
	// PlatformMarketOther 兜底市场
	PlatformMarketOther = "Other"
	// PlatformCategoryMarketing 营销类
	PlatformCategoryMarketing = "marketing"
	// PlatformCategoryUtility 工具类
	PlatformCategoryUtility = "utility"
	// PlatformCategoryAuthentication 验证类
	PlatformCategoryAuthentication = "authentication"
	// PlatformCategoryService 服务类
	PlatformCategoryService = "service"
)

// 余额检查结果常量（用于指标）
const (
	// GateResultAllowed 允许
	GateResultAllowed = "allowed"
	// GateResultDenied 拒绝
	GateResultDenied = "denied"
	// GateResultError 错误
	GateResultError = "error"
)

// 操作结果常量（用于指标）
const (
	// ResultSuccess 成功
	ResultSuccess = "success"
	// ResultInsufficient 余额/额度不足
	ResultInsufficient = "insufficient"
	// ResultFailed 失败
	ResultFailed = "failed"
	// ResultNoop 无操作
	ResultNoop = "noop"
)
