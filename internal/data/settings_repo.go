package data

import (
	"context"
	"errors"
	"fmt"

	"msg-billing/internal/biz"
	"msg-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type settingsRepo struct {
	data *Data
	log  *log.Helper
}

// NewSettingsRepo 创建计费设置 repo
func NewSettingsRepo(data *Data, logger log.Logger) biz.SettingsRepo {
	return &settingsRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetBillingSettings 获取计费设置，不存在返回 nil（业务层使用默认设置）
func (r *settingsRepo) GetBillingSettings(ctx context.Context, clientID string) (*biz.BillingSettings, error) {
	var m model.ClientBillingSettings
	if err := r.data.db.WithContext(ctx).Where("client_id = ?", clientID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query billing settings: %w", err)
	}
	return &biz.BillingSettings{
		ClientID:  m.ClientID,
		Mode:      m.BillingMode,
		Currency:  m.Currency,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

// SaveBillingSettings 保存计费设置
func (r *settingsRepo) SaveBillingSettings(ctx context.Context, s *biz.BillingSettings) error {
	m := model.ClientBillingSettings{
		ClientID:    s.ClientID,
		BillingMode: s.Mode,
		Currency:    s.Currency,
	}
	err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"billing_mode", "currency", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("save billing settings: %w", err)
	}
	return nil
}
