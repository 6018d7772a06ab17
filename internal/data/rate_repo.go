package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type rateRepo struct {
	data *Data
	log  *log.Helper
}

// NewRateRepo 创建费率 repo
func NewRateRepo(data *Data, logger log.Logger) biz.RateRepo {
	return &rateRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetClientRate 客户专属费率，不存在返回 nil
func (r *rateRepo) GetClientRate(ctx context.Context, clientID, channel string) (*biz.ClientRate, error) {
	var m model.ClientRate
	if err := r.data.db.WithContext(ctx).Where("client_id = ? AND channel = ?", clientID, channel).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query client rate: %w", err)
	}
	return &biz.ClientRate{ClientID: m.ClientID, Channel: m.Channel, Rate: m.Rate}, nil
}

// GetGatewayRate 网关+国家费率，不存在返回 nil
func (r *rateRepo) GetGatewayRate(ctx context.Context, gatewayID, countryCode string) (*biz.GatewayRate, error) {
	var m model.GatewayRate
	if err := r.data.db.WithContext(ctx).Where("gateway_id = ? AND country_code = ?", gatewayID, countryCode).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query gateway rate: %w", err)
	}
	return &biz.GatewayRate{
		GatewayID:    m.GatewayID,
		CountryCode:  m.CountryCode,
		SMSRate:      m.SMSRate,
		WhatsAppRate: m.WhatsAppRate,
	}, nil
}

// GetMarketOverride 国家的市场覆盖，不存在返回空串
func (r *rateRepo) GetMarketOverride(ctx context.Context, countryCode string) (string, error) {
	var m model.PlatformMarketOverride
	if err := r.data.db.WithContext(ctx).Where("country_code = ?", countryCode).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("query market override: %w", err)
	}
	return m.Market, nil
}

// GetLatestPlatformRate effective_date <= asOf 的最新费率，不存在返回 nil
func (r *rateRepo) GetLatestPlatformRate(ctx context.Context, market, category string, asOf time.Time) (*biz.PlatformRate, error) {
	var m model.PlatformRate
	err := r.data.db.WithContext(ctx).
		Where("market = ? AND category = ? AND effective_date <= ?", market, category, asOf.UTC()).
		Order("effective_date DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query platform rate: %w", err)
	}
	return &biz.PlatformRate{
		Market:        m.Market,
		Category:      m.Category,
		Rate:          m.Rate,
		Currency:      m.Currency,
		EffectiveDate: m.EffectiveDate.UTC(),
	}, nil
}

// ListVolumeTiers market+category 的全部阶梯
func (r *rateRepo) ListVolumeTiers(ctx context.Context, market, category string) ([]*biz.VolumeTier, error) {
	var rows []model.PlatformVolumeTier
	if err := r.data.db.WithContext(ctx).
		Where("market = ? AND category = ?", market, category).
		Order("volume_from ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list volume tiers: %w", err)
	}
	tiers := make([]*biz.VolumeTier, 0, len(rows))
	for _, m := range rows {
		tiers = append(tiers, &biz.VolumeTier{
			Market:          m.Market,
			Category:        m.Category,
			VolumeFrom:      m.VolumeFrom,
			VolumeTo:        m.VolumeTo,
			Rate:            m.Rate,
			DiscountPercent: m.DiscountPercent,
		})
	}
	return tiers, nil
}

// UpsertClientRate 按 (client_id, channel) 覆盖
func (r *rateRepo) UpsertClientRate(ctx context.Context, rate *biz.ClientRate) error {
	m := model.ClientRate{ClientID: rate.ClientID, Channel: rate.Channel, Rate: rate.Rate}
	return r.upsert(ctx, &m, []string{"client_id", "channel"}, []string{"rate", "updated_at"})
}

// UpsertGatewayRate 按 (gateway_id, country_code) 覆盖
func (r *rateRepo) UpsertGatewayRate(ctx context.Context, rate *biz.GatewayRate) error {
	m := model.GatewayRate{
		GatewayID:    rate.GatewayID,
		CountryCode:  strings.ToUpper(rate.CountryCode),
		SMSRate:      rate.SMSRate,
		WhatsAppRate: rate.WhatsAppRate,
	}
	return r.upsert(ctx, &m, []string{"gateway_id", "country_code"}, []string{"sms_rate", "whatsapp_rate", "updated_at"})
}

// UpsertMarketOverride 按 country_code 覆盖
func (r *rateRepo) UpsertMarketOverride(ctx context.Context, countryCode, market string) error {
	m := model.PlatformMarketOverride{CountryCode: strings.ToUpper(countryCode), Market: market}
	return r.upsert(ctx, &m, []string{"country_code"}, []string{"market", "updated_at"})
}

// UpsertPlatformRate 按 (market, category, effective_date) 覆盖，不同生效日期保留为历史
func (r *rateRepo) UpsertPlatformRate(ctx context.Context, rate *biz.PlatformRate) error {
	m := model.PlatformRate{
		Market:        rate.Market,
		Category:      rate.Category,
		EffectiveDate: rate.EffectiveDate.UTC(),
		Rate:          rate.Rate,
		Currency:      rate.Currency,
	}
	return r.upsert(ctx, &m, []string{"market", "category", "effective_date"}, []string{"rate", "currency", "updated_at"})
}

// UpsertVolumeTier 按 (market, category, volume_from) 覆盖
func (r *rateRepo) UpsertVolumeTier(ctx context.Context, tier *biz.VolumeTier) error {
	m := model.PlatformVolumeTier{
		Market:          tier.Market,
		Category:        tier.Category,
		VolumeFrom:      tier.VolumeFrom,
		VolumeTo:        tier.VolumeTo,
		Rate:            tier.Rate,
		DiscountPercent: tier.DiscountPercent,
	}
	return r.upsert(ctx, &m, []string{"market", "category", "volume_from"}, []string{"volume_to", "rate", "discount_percent", "updated_at"})
}

func (r *rateRepo) upsert(ctx context.Context, value interface{}, keys, updates []string) error {
	columns := make([]clause.Column, 0, len(keys))
	for _, k := range keys {
		columns = append(columns, clause.Column{Name: k})
	}
	err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(value).Error
	if err != nil {
		return fmt.Errorf("upsert %T: %w", value, err)
	}
	return nil
}
