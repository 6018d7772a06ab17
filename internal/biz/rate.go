package biz

import (
	"context"
	"sort"
	"strings"
	"time"

	"msg-billing/internal/constants"
	billingErrors "msg-billing/internal/errors"
	"msg-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// 费率来源（用于指标与报价）
const (
	RateSourceClient  = "client"
	RateSourceGateway = "gateway"
	RateSourceDefault = "default"
)

// ClientRate 客户专属费率
type ClientRate struct {
	ClientID string
	Channel  string
	Rate     decimal.Decimal
}

// GatewayRate 网关+国家费率，按渠道取对应列
type GatewayRate struct {
	GatewayID    string
	CountryCode  string
	SMSRate      decimal.NullDecimal
	WhatsAppRate decimal.NullDecimal
}

// ForChannel 取渠道对应的费率列，未设置或为 0 视为不存在
func (g *GatewayRate) ForChannel(channel string) (decimal.Decimal, bool) {
	var col decimal.NullDecimal
	switch channel {
	case constants.ChannelSMS:
		col = g.SMSRate
	case constants.ChannelWhatsApp:
		col = g.WhatsAppRate
	}
	if !col.Valid || !col.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	return col.Decimal, true
}

// PlatformRate 平台（WhatsApp Business Platform）基础成本
type PlatformRate struct {
	Market        string
	Category      string
	Rate          decimal.Decimal
	Currency      string
	EffectiveDate time.Time
}

// PlatformCost 平台成本解析结果
type PlatformCost struct {
	CountryCode   string
	Market        string // 实际命中费率的市场（可能是 Other）
	Category      string
	Rate          decimal.Decimal
	Currency      string
	EffectiveDate time.Time
}

// VolumeTier 阶梯量价
type VolumeTier struct {
	Market          string
	Category        string
	VolumeFrom      int64
	VolumeTo        *int64 // nil 表示无上限
	Rate            decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Contains 月累计量是否落在该阶梯
func (t *VolumeTier) Contains(volume int64) bool {
	if volume < t.VolumeFrom {
		return false
	}
	return t.VolumeTo == nil || volume <= *t.VolumeTo
}

// TierForVolume 调用方工具：从按 volume_from 升序的阶梯中找出月累计量所在阶梯
func TierForVolume(tiers []*VolumeTier, volume int64) *VolumeTier {
	var hit *VolumeTier
	for _, t := range tiers {
		if t.Contains(volume) {
			hit = t
		}
	}
	return hit
}

// RateRepo 费率数据层接口（定义在 biz 层）
type RateRepo interface {
	GetClientRate(ctx context.Context, clientID, channel string) (*ClientRate, error)
	GetGatewayRate(ctx context.Context, gatewayID, countryCode string) (*GatewayRate, error)
	GetMarketOverride(ctx context.Context, countryCode string) (string, error)
	GetLatestPlatformRate(ctx context.Context, market, category string, asOf time.Time) (*PlatformRate, error)
	ListVolumeTiers(ctx context.Context, market, category string) ([]*VolumeTier, error)

	UpsertClientRate(ctx context.Context, rate *ClientRate) error
	UpsertGatewayRate(ctx context.Context, rate *GatewayRate) error
	UpsertMarketOverride(ctx context.Context, countryCode, market string) error
	UpsertPlatformRate(ctx context.Context, rate *PlatformRate) error
	UpsertVolumeTier(ctx context.Context, tier *VolumeTier) error
}

// RateUseCase 费率解析
type RateUseCase struct {
	repo    RateRepo
	markets *MarketTable
	conf    *BillingConfig
	log     *log.Helper
	metrics *metrics.BillingMetrics
	now     func() time.Time
}

// NewRateUseCase 创建费率 UseCase
func NewRateUseCase(repo RateRepo, markets *MarketTable, conf *BillingConfig, logger log.Logger) *RateUseCase {
	return &RateUseCase{
		repo:    repo,
		markets: markets,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
		now:     time.Now,
	}
}

// NormalizeChannel 规范化渠道名称
func NormalizeChannel(channel string) (string, error) {
	switch c := strings.ToLower(strings.TrimSpace(channel)); c {
	case constants.ChannelSMS, constants.ChannelWhatsApp:
		return c, nil
	}
	return "", billingErrors.ErrUnknownChannel
}

// ResolveRate 解析单价，命中即返回，不做混合：
// 1. 客户专属费率 2. 网关+国家费率 3. 系统默认费率
// gatewayID / countryCode 为空表示未指定
func (uc *RateUseCase) ResolveRate(ctx context.Context, clientID, channel, gatewayID, countryCode string) (decimal.Decimal, error) {
	r, err := uc.resolveRate(ctx, clientID, channel, gatewayID, countryCode)
	if err != nil {
		return decimal.Zero, err
	}
	return r.Rate, nil
}

// resolvedRate 解析结果，Channel 为规范化后的渠道
type resolvedRate struct {
	Rate    decimal.Decimal
	Source  string
	Channel string
}

func (uc *RateUseCase) resolveRate(ctx context.Context, clientID, channel, gatewayID, countryCode string) (*resolvedRate, error) {
	channel, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}

	// 1. 客户专属费率
	if clientID != "" {
		cr, err := uc.repo.GetClientRate(ctx, clientID, channel)
		if err != nil {
			return nil, err
		}
		if cr != nil {
			uc.observe(channel, RateSourceClient)
			return &resolvedRate{Rate: cr.Rate, Source: RateSourceClient, Channel: channel}, nil
		}
	}

	// 2. 网关+国家费率
	if gatewayID != "" && countryCode != "" {
		gr, err := uc.repo.GetGatewayRate(ctx, gatewayID, normalizeCountry(countryCode))
		if err != nil {
			return nil, err
		}
		if gr != nil {
			if rate, ok := gr.ForChannel(channel); ok {
				uc.observe(channel, RateSourceGateway)
				return &resolvedRate{Rate: rate, Source: RateSourceGateway, Channel: channel}, nil
			}
		}
	}

	// 3. 系统默认费率
	rate, ok := uc.conf.DefaultRates[channel]
	if !ok {
		uc.log.Errorf("No default rate configured: channel=%s", channel)
		return nil, billingErrors.ErrRateNotConfigured
	}
	uc.observe(channel, RateSourceDefault)
	return &resolvedRate{Rate: rate, Source: RateSourceDefault, Channel: channel}, nil
}

func (uc *RateUseCase) observe(channel, source string) {
	if uc.metrics != nil {
		uc.metrics.RateResolveTotal.WithLabelValues(channel, source).Inc()
	}
}

// MarketFor 国家 -> 市场：数据库覆盖 -> 静态表 -> Other
func (uc *RateUseCase) MarketFor(ctx context.Context, countryCode string) (string, error) {
	cc := normalizeCountry(countryCode)
	if cc == "" {
		return constants.PlatformMarketOther, nil
	}
	override, err := uc.repo.GetMarketOverride(ctx, cc)
	if err != nil {
		return "", err
	}
	if override != "" {
		return override, nil
	}
	if market, ok := uc.markets.Lookup(cc); ok {
		return market, nil
	}
	return constants.PlatformMarketOther, nil
}

// ResolvePlatformCost 解析平台透传成本
// 取 effective_date <= now 的最新费率；市场无该类别费率时回退 Other；都没有返回 nil
// 调用方必须把 nil 当作"成本未知"处理（拦截或转人工定价），不能当作 0
func (uc *RateUseCase) ResolvePlatformCost(ctx context.Context, countryCode, category string) (*PlatformCost, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	market, err := uc.MarketFor(ctx, countryCode)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	candidates := []string{market}
	if market != constants.PlatformMarketOther {
		candidates = append(candidates, constants.PlatformMarketOther)
	}
	for _, m := range candidates {
		pr, err := uc.repo.GetLatestPlatformRate(ctx, m, category, now)
		if err != nil {
			return nil, err
		}
		if pr != nil {
			return &PlatformCost{
				CountryCode:   normalizeCountry(countryCode),
				Market:        pr.Market,
				Category:      pr.Category,
				Rate:          pr.Rate,
				Currency:      pr.Currency,
				EffectiveDate: pr.EffectiveDate,
			}, nil
		}
	}

	uc.log.Warnf("Platform cost unresolved: country=%s, market=%s, category=%s", countryCode, market, category)
	if uc.metrics != nil {
		uc.metrics.PlatformCostMissing.WithLabelValues(category).Inc()
	}
	return nil, nil
}

// RequirePlatformCost 与 ResolvePlatformCost 相同，但未解析到时返回 ErrPlatformCostUnknown
func (uc *RateUseCase) RequirePlatformCost(ctx context.Context, countryCode, category string) (*PlatformCost, error) {
	cost, err := uc.ResolvePlatformCost(ctx, countryCode, category)
	if err != nil {
		return nil, err
	}
	if cost == nil {
		return nil, billingErrors.ErrPlatformCostUnknown
	}
	return cost, nil
}

// VolumeTiers 返回 market+category 的阶梯（volume_from 升序），阶梯选择由调用方负责
func (uc *RateUseCase) VolumeTiers(ctx context.Context, market, category string) ([]*VolumeTier, error) {
	tiers, err := uc.repo.ListVolumeTiers(ctx, market, strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].VolumeFrom < tiers[j].VolumeFrom
	})
	return tiers, nil
}
