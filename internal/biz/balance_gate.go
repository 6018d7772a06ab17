package biz

import (
	"context"
	"time"

	"msg-billing/internal/constants"
	billingErrors "msg-billing/internal/errors"
	"msg-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// BalanceGateUseCase 发送前余额预检
// 只读，不加锁，结果仅供参考；真正的校验在 Debit 的锁内
type BalanceGateUseCase struct {
	repo     LedgerRepo
	settings *SettingsUseCase
	cost     *CostUseCase
	log      *log.Helper
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

// NewBalanceGateUseCase 创建余额预检 UseCase
func NewBalanceGateUseCase(repo LedgerRepo, settings *SettingsUseCase, cost *CostUseCase, logger log.Logger) *BalanceGateUseCase {
	return &BalanceGateUseCase{
		repo:     repo,
		settings: settings,
		cost:     cost,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HasBalance 余额是否足以支付 cost
// 金额模式：余额（优先缓存）>= cost；套餐模式：未过期批次剩余合计 >= 1
func (uc *BalanceGateUseCase) HasBalance(ctx context.Context, clientID string, cost decimal.Decimal) (bool, error) {
	if cost.IsNegative() {
		return false, billingErrors.ErrInvalidAmount
	}
	settings, err := uc.settings.Get(ctx, clientID)
	if err != nil {
		return false, err
	}

	start := time.Now()
	ok, err := uc.check(ctx, settings, cost)
	if uc.metrics != nil {
		uc.metrics.GateCheckDuration.WithLabelValues(settings.Mode).Observe(time.Since(start).Seconds())
	}

	result := constants.GateResultAllowed
	switch {
	case err != nil:
		result = constants.GateResultError
		uc.log.Errorf("HasBalance failed: client_id=%s, mode=%s, error=%v", clientID, settings.Mode, err)
	case !ok:
		result = constants.GateResultDenied
	}
	if uc.metrics != nil {
		uc.metrics.GateCheckTotal.WithLabelValues(settings.Mode, result).Inc()
	}
	if err != nil {
		return false, billingErrors.ErrLedgerUnavailable.WithCause(err)
	}
	return ok, nil
}

func (uc *BalanceGateUseCase) check(ctx context.Context, settings *BillingSettings, cost decimal.Decimal) (bool, error) {
	if settings.Mode == constants.BillingModePlan {
		// 粗粒度过滤：有 1 个额度即放行，多额度扣费由 Debit 精确校验
		available, err := uc.repo.SumAvailableCredits(ctx, settings.ClientID, uc.now())
		if err != nil {
			return false, err
		}
		return available >= 1, nil
	}
	balance, err := uc.repo.GetBalance(ctx, settings.ClientID)
	if err != nil {
		return false, err
	}
	return balance.GreaterThanOrEqual(cost), nil
}

// HasBalanceFor 先计算消息费用再预检，返回报价供调用方展示
func (uc *BalanceGateUseCase) HasBalanceFor(ctx context.Context, clientID string, segments int, channel, gatewayID, countryCode string) (bool, *Quote, error) {
	quote, err := uc.cost.Quote(ctx, clientID, segments, channel, gatewayID, countryCode)
	if err != nil {
		return false, nil, err
	}
	ok, err := uc.HasBalance(ctx, clientID, quote.Amount)
	if err != nil {
		return false, quote, err
	}
	return ok, quote, nil
}
