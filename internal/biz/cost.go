package biz

import (
	"context"

	"msg-billing/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// Quote 报价结果
type Quote struct {
	ClientID   string
	Channel    string
	Mode       string
	Unit       string // currency / credit
	Segments   int
	UnitRate   decimal.Decimal
	RateSource string
	Amount     decimal.Decimal
	Currency   string
}

// CostUseCase 费用计算
type CostUseCase struct {
	rates    *RateUseCase
	settings *SettingsUseCase
	log      *log.Helper
}

// NewCostUseCase 创建费用计算 UseCase
func NewCostUseCase(rates *RateUseCase, settings *SettingsUseCase, logger log.Logger) *CostUseCase {
	return &CostUseCase{
		rates:    rates,
		settings: settings,
		log:      log.NewHelper(logger),
	}
}

// CalculateCost 计算单条消息的扣费金额
// per_message: 单价；per_segment / wallet: 单价 × 分段数；plan: 分段数（额度）
func (uc *CostUseCase) CalculateCost(ctx context.Context, clientID string, segments int, channel, gatewayID, countryCode string) (decimal.Decimal, error) {
	q, err := uc.Quote(ctx, clientID, segments, channel, gatewayID, countryCode)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Amount, nil
}

// Quote 计算报价并返回明细
func (uc *CostUseCase) Quote(ctx context.Context, clientID string, segments int, channel, gatewayID, countryCode string) (*Quote, error) {
	if segments <= 0 {
		segments = 1
	}

	settings, err := uc.settings.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		ClientID: clientID,
		Channel:  channel,
		Mode:     settings.Mode,
		Unit:     settings.Unit(),
		Segments: segments,
		Currency: settings.Currency,
	}

	// 套餐模式的计量单位就是分段数，不需要费率
	if settings.Mode == constants.BillingModePlan {
		q.Amount = decimal.NewFromInt(int64(segments))
		q.UnitRate = decimal.NewFromInt(1)
		return q, nil
	}

	resolved, err := uc.rates.resolveRate(ctx, clientID, channel, gatewayID, countryCode)
	if err != nil {
		return nil, err
	}
	q.Channel = resolved.Channel
	q.UnitRate = resolved.Rate
	q.RateSource = resolved.Source

	// 费率精度高于账本，报价按账本精度取整，保证报价即实际扣费金额
	switch settings.Mode {
	case constants.BillingModePerMessage:
		q.Amount = RoundMoney(resolved.Rate)
	default: // per_segment / wallet
		q.Amount = RoundMoney(resolved.Rate.Mul(decimal.NewFromInt(int64(segments))))
	}
	return q, nil
}
