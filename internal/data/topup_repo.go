package data

import (
	"context"
	"errors"
	"fmt"

	"msg-billing/internal/biz"
	"msg-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type topUpRepo struct {
	data *Data
	log  *log.Helper
}

// NewTopUpRepo 创建待结算充值 repo
func NewTopUpRepo(data *Data, logger log.Logger) biz.TopUpRepo {
	return &topUpRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreatePendingTopUp 按 invoice_id 幂等登记，已存在时返回已有记录
func (r *topUpRepo) CreatePendingTopUp(ctx context.Context, p *biz.PendingTopUp) (*biz.PendingTopUp, error) {
	m := model.PendingTopUp{
		ID:        uuid.New().String(),
		ClientID:  p.ClientID,
		InvoiceID: p.InvoiceID,
		Amount:    p.Amount,
		Status:    p.Status,
		CreatedAt: p.CreatedAt.UTC(),
	}
	if err := r.data.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return nil, fmt.Errorf("create pending topup: %w", err)
	}
	stored, err := r.GetPendingTopUp(ctx, p.InvoiceID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("pending topup %s vanished after insert", p.InvoiceID)
	}
	return stored, nil
}

// GetPendingTopUp 按 invoice_id 查询，不存在返回 nil
func (r *topUpRepo) GetPendingTopUp(ctx context.Context, invoiceID string) (*biz.PendingTopUp, error) {
	var m model.PendingTopUp
	if err := r.data.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query pending topup: %w", err)
	}
	return toBizPendingTopUp(&m), nil
}
