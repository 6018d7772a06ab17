package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics 计费服务指标
type BillingMetrics struct {
	// 余额预检相关指标
	GateCheckTotal    *prometheus.CounterVec   // 余额预检总数（按模式、结果）
	GateCheckDuration *prometheus.HistogramVec // 余额预检耗时

	// 扣费相关指标
	DebitTotal    *prometheus.CounterVec   // 扣费总数（按单位、结果）
	DebitDuration *prometheus.HistogramVec // 扣费耗时（含锁等待）
	DebitAmount   *prometheus.CounterVec   // 扣费金额（按单位）

	// 退款相关指标
	RefundTotal  *prometheus.CounterVec // 退款总数（按单位、结果）
	RefundAmount *prometheus.CounterVec // 退款金额（按单位）

	// 充值/发放相关指标
	TopUpTotal      *prometheus.CounterVec // 充值总数（按结果）
	TopUpAmount     prometheus.Counter     // 充值金额
	CreditsAdded    prometheus.Counter     // 发放额度
	ReconcileTotal  *prometheus.CounterVec // 账单结算总数（按结果）
	LowBalanceTotal prometheus.Counter     // 扣费使钱包余额跌破阈值的次数

	// 费率相关指标
	RateResolveTotal    *prometheus.CounterVec // 费率解析总数（按来源）
	PlatformCostMissing *prometheus.CounterVec // 平台成本缺失次数（按类别）

	// 事件相关指标
	EventPublishTotal *prometheus.CounterVec // 账本事件发送（按结果）
	EventConsumeTotal *prometheus.CounterVec // 结算事件消费（按 topic、结果）

	// 对账相关指标
	AuditDriftClients prometheus.Gauge // 最近一次对账发现不一致的客户数
	ExpiringCredits   prometheus.Gauge // 即将过期的剩余额度
}

// NewBillingMetrics 创建计费服务指标
func NewBillingMetrics() *BillingMetrics {
	return &BillingMetrics{
		GateCheckTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_gate_check_total",
				Help: "Total number of balance gate checks",
			},
			[]string{"mode", "result"}, // result: allowed/denied/error
		),
		GateCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgbilling_gate_check_duration_seconds",
				Help:    "Duration of balance gate checks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		DebitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_debit_total",
				Help: "Total number of ledger debits",
			},
			[]string{"unit", "result"}, // result: success/insufficient/failed
		),
		DebitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgbilling_debit_duration_seconds",
				Help:    "Duration of ledger debits including lock wait",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"unit"},
		),
		DebitAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_debit_amount_total",
				Help: "Total amount debited",
			},
			[]string{"unit"},
		),

		RefundTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_refund_total",
				Help: "Total number of refunds",
			},
			[]string{"unit", "result"}, // result: success/noop/failed
		),
		RefundAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_refund_amount_total",
				Help: "Total amount refunded",
			},
			[]string{"unit"},
		),

		TopUpTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_topup_total",
				Help: "Total number of wallet top-ups",
			},
			[]string{"result"},
		),
		TopUpAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "msgbilling_topup_amount_total",
				Help: "Total amount topped up",
			},
		),
		CreditsAdded: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "msgbilling_credits_added_total",
				Help: "Total plan credits granted",
			},
		),
		ReconcileTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_invoice_reconcile_total",
				Help: "Total number of invoice reconciliations",
			},
			[]string{"result"}, // result: success/noop/failed
		),
		LowBalanceTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "msgbilling_low_balance_total",
				Help: "Number of debits that took a wallet below the low balance threshold",
			},
		),

		RateResolveTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_rate_resolve_total",
				Help: "Total number of rate resolutions by source",
			},
			[]string{"channel", "source"}, // source: client/gateway/default
		),
		PlatformCostMissing: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_platform_cost_missing_total",
				Help: "Platform cost lookups that resolved to nothing",
			},
			[]string{"category"},
		),

		EventPublishTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_event_publish_total",
				Help: "Ledger events published",
			},
			[]string{"result"},
		),
		EventConsumeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgbilling_event_consume_total",
				Help: "Settlement events consumed",
			},
			[]string{"topic", "result"},
		),

		AuditDriftClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "msgbilling_audit_drift_clients",
				Help: "Clients whose stored balance differs from the sum of their transactions",
			},
		),
		ExpiringCredits: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "msgbilling_expiring_credits",
				Help: "Remaining plan credits expiring within the report window",
			},
		),
	}
}

// 全局指标实例
var (
	defaultMetrics *BillingMetrics
	initOnce       sync.Once
)

// InitMetrics 初始化全局指标（promauto 只能注册一次）
func InitMetrics() {
	initOnce.Do(func() {
		defaultMetrics = NewBillingMetrics()
	})
}

// GetMetrics 获取全局指标实例
func GetMetrics() *BillingMetrics {
	InitMetrics()
	return defaultMetrics
}
