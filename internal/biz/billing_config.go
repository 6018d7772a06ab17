package biz

import (
	"strings"
	"time"

	"msg-billing/internal/conf"
	"msg-billing/internal/constants"

	"github.com/shopspring/decimal"
)

// BillingConfig 计费配置
type BillingConfig struct {
	DefaultMode         string                     // 未配置计费设置时的默认模式
	DefaultCurrency     string                     // 默认币种
	DefaultRates        map[string]decimal.Decimal // 渠道默认单价
	LowBalanceThreshold decimal.Decimal            // 余额低阈值
	RefundCreditTTL     time.Duration              // 退回额度无可用批次时新批次的有效期
	ExpiryReportAhead   time.Duration              // 即将过期额度的统计窗口
	JobLockExpiry       time.Duration              // 定时任务锁过期时间
}

// NewBillingConfig 从配置创建 BillingConfig
func NewBillingConfig(c *conf.Bootstrap) *BillingConfig {
	config := &BillingConfig{
		DefaultMode:         constants.BillingModePerMessage,
		DefaultCurrency:     "USD",
		DefaultRates:        make(map[string]decimal.Decimal),
		LowBalanceThreshold: decimal.NewFromInt(5), // 默认值
		RefundCreditTTL:     30 * 24 * time.Hour,
		ExpiryReportAhead:   72 * time.Hour,
		JobLockExpiry:       10 * time.Minute,
	}
	if c == nil {
		return config
	}
	if c.Billing != nil {
		if IsValidBillingMode(c.Billing.DefaultMode) {
			config.DefaultMode = c.Billing.DefaultMode
		}
		if c.Billing.DefaultCurrency != "" {
			config.DefaultCurrency = strings.ToUpper(c.Billing.DefaultCurrency)
		}
		for k, v := range c.Billing.DefaultRates {
			config.DefaultRates[strings.ToLower(k)] = v
		}
		if c.Billing.LowBalanceThreshold.IsPositive() {
			config.LowBalanceThreshold = c.Billing.LowBalanceThreshold
		}
		if ttl := c.Billing.RefundCreditTtl.AsDuration(); ttl > 0 {
			config.RefundCreditTTL = ttl
		}
	}
	if c.Cron != nil {
		if ahead := c.Cron.ExpiryReportAhead.AsDuration(); ahead > 0 {
			config.ExpiryReportAhead = ahead
		}
		if expiry := c.Cron.JobLockExpiry.AsDuration(); expiry > 0 {
			config.JobLockExpiry = expiry
		}
	}
	return config
}
