package service

import (
	"context"

	"msg-billing/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// BillingInternalService 面向支付/发送回调和管理端的内部服务
type BillingInternalService struct {
	ledger     *biz.LedgerUseCase
	settlement *biz.SettlementUseCase
	settings   *biz.SettingsUseCase
	log        *log.Helper
}

// NewBillingInternalService 创建 BillingInternalService
func NewBillingInternalService(ledger *biz.LedgerUseCase, settlement *biz.SettlementUseCase, settings *biz.SettingsUseCase, logger log.Logger) *BillingInternalService {
	return &BillingInternalService{
		ledger:     ledger,
		settlement: settlement,
		settings:   settings,
		log:        log.NewHelper(logger),
	}
}

// InvoicePaid 账单已支付（支付回调），重复调用无副作用
func (s *BillingInternalService) InvoicePaid(ctx context.Context, req *InvoicePaidRequest) (*InvoicePaidReply, error) {
	ok, err := s.settlement.ReconcileInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	return &InvoicePaidReply{Reconciled: ok}, nil
}

// MessageStatus 消息状态回调
func (s *BillingInternalService) MessageStatus(ctx context.Context, req *MessageStatusRequest) (*MessageStatusReply, error) {
	refunded, err := s.settlement.OnMessageStatus(ctx, &biz.MessageStatusEvent{
		MessageRef: req.MessageRef,
		Status:     req.Status,
		Reason:     req.Reason,
	})
	if err != nil {
		return nil, err
	}
	return &MessageStatusReply{Refunded: refunded}, nil
}

// TopUp 直接充值（管理端手工入账）
func (s *BillingInternalService) TopUp(ctx context.Context, req *DirectTopUpRequest) (*DirectTopUpReply, error) {
	balance, err := s.ledger.TopUp(ctx, req.ClientID, req.Amount, req.Description, req.InvoiceRef)
	if err != nil {
		return nil, err
	}
	return &DirectTopUpReply{Balance: balance}, nil
}

// SaveSettings 保存客户计费设置
func (s *BillingInternalService) SaveSettings(ctx context.Context, req *SaveSettingsRequest) (*SaveSettingsReply, error) {
	settings := &biz.BillingSettings{
		ClientID: req.ClientID,
		Mode:     req.Mode,
		Currency: req.Currency,
	}
	if err := s.settings.Save(ctx, settings); err != nil {
		return nil, err
	}
	return &SaveSettingsReply{
		ClientID: settings.ClientID,
		Mode:     settings.Mode,
		Currency: settings.Currency,
	}, nil
}
