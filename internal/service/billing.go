package service

import (
	"context"

	"msg-billing/internal/biz"
	"msg-billing/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// BillingService 面向发送管道/前端的计费服务
type BillingService struct {
	ledger     *biz.LedgerUseCase
	cost       *biz.CostUseCase
	gate       *biz.BalanceGateUseCase
	settlement *biz.SettlementUseCase
	rates      *biz.RateUseCase
	log        *log.Helper
}

// NewBillingService 创建 BillingService
func NewBillingService(
	ledger *biz.LedgerUseCase,
	cost *biz.CostUseCase,
	gate *biz.BalanceGateUseCase,
	settlement *biz.SettlementUseCase,
	rates *biz.RateUseCase,
	logger log.Logger,
) *BillingService {
	return &BillingService{
		ledger:     ledger,
		cost:       cost,
		gate:       gate,
		settlement: settlement,
		rates:      rates,
		log:        log.NewHelper(logger),
	}
}

// GetAccount 获取账户信息
func (s *BillingService) GetAccount(ctx context.Context, req *GetAccountRequest) (*GetAccountReply, error) {
	account, err := s.ledger.GetAccount(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	reply := &GetAccountReply{
		ClientID:         req.ClientID,
		Mode:             account.Settings.Mode,
		Currency:         account.Settings.Currency,
		Balance:          account.Balance,
		CreditsAvailable: account.CreditsAvailable,
		Tranches:         make([]*CreditTranche, 0, len(account.Tranches)),
	}
	for _, t := range account.Tranches {
		reply.Tranches = append(reply.Tranches, &CreditTranche{
			ID:        t.ID,
			PlanRef:   t.PlanRef,
			Total:     t.Total,
			Remaining: t.Remaining,
			ExpiresAt: t.ExpiresAt,
		})
	}
	return reply, nil
}

// ListTransactions 获取账本流水
func (s *BillingService) ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsReply, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	list, total, err := s.ledger.ListTransactions(ctx, req.ClientID, page, pageSize)
	if err != nil {
		return nil, err
	}

	reply := &ListTransactionsReply{
		Transactions: make([]*Transaction, 0, len(list)),
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	}
	for _, t := range list {
		reply.Transactions = append(reply.Transactions, &Transaction{
			ID:            t.ID,
			Type:          t.Type,
			Unit:          t.Unit,
			Amount:        t.Amount,
			BalanceAfter:  nullable(t.BalanceAfter),
			Description:   t.Description,
			ReferenceType: t.ReferenceType,
			ReferenceID:   t.ReferenceID,
			CreatedAt:     t.CreatedAt,
		})
	}
	return reply, nil
}

// Quote 报价
func (s *BillingService) Quote(ctx context.Context, req *QuoteRequest) (*QuoteReply, error) {
	q, err := s.cost.Quote(ctx, req.ClientID, req.Segments, req.Channel, req.GatewayID, req.CountryCode)
	if err != nil {
		return nil, err
	}
	return toQuoteReply(q), nil
}

// CheckBalance 发送前余额预检（仅供参考，扣费时会再次校验）
func (s *BillingService) CheckBalance(ctx context.Context, req *BalanceCheckRequest) (*BalanceCheckReply, error) {
	if req.Cost != nil {
		ok, err := s.gate.HasBalance(ctx, req.ClientID, *req.Cost)
		if err != nil {
			return nil, err
		}
		return &BalanceCheckReply{Allowed: ok}, nil
	}

	ok, q, err := s.gate.HasBalanceFor(ctx, req.ClientID, req.Segments, req.Channel, req.GatewayID, req.CountryCode)
	if err != nil {
		return nil, err
	}
	return &BalanceCheckReply{Allowed: ok, Quote: toQuoteReply(q)}, nil
}

// Charge 扣费（网关接受消息后调用）
func (s *BillingService) Charge(ctx context.Context, req *ChargeRequest) (*ChargeReply, error) {
	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		cost, err := s.cost.CalculateCost(ctx, req.ClientID, req.Segments, req.Channel, req.GatewayID, req.CountryCode)
		if err != nil {
			return nil, err
		}
		amount = cost
	}

	result, err := s.ledger.Debit(ctx, req.ClientID, req.MessageRef, amount)
	if err != nil {
		return nil, err
	}

	reply := &ChargeReply{
		Success:       true,
		MessageRef:    result.MessageRef,
		Unit:          result.Unit,
		ChargedAmount: result.ChargedAmount,
		BalanceAfter:  nullable(result.BalanceAfter),
		TransactionID: result.TransactionID,
	}
	if result.Unit == constants.UnitCredit {
		remaining := result.CreditsRemaining
		reply.CreditsRemaining = &remaining
	}
	return reply, nil
}

// Refund 退款
func (s *BillingService) Refund(ctx context.Context, req *RefundRequest) (*RefundReply, error) {
	result, err := s.ledger.Refund(ctx, req.MessageRef)
	if err != nil {
		return nil, err
	}
	return &RefundReply{
		Refunded:     result.Refunded,
		MessageRef:   req.MessageRef,
		Unit:         result.Unit,
		Amount:       result.Amount,
		BalanceAfter: nullable(result.BalanceAfter),
	}, nil
}

// AddCredits 发放套餐额度
func (s *BillingService) AddCredits(ctx context.Context, req *AddCreditsRequest) (*AddCreditsReply, error) {
	id, err := s.ledger.AddCredits(ctx, req.ClientID, req.Credits, req.ExpiresAt, req.PlanRef)
	if err != nil {
		return nil, err
	}
	return &AddCreditsReply{TrancheID: id}, nil
}

// CreateTopUp 登记待结算充值（开票时调用）
func (s *BillingService) CreateTopUp(ctx context.Context, req *CreateTopUpRequest) (*TopUpReply, error) {
	p, err := s.settlement.CreatePendingTopUp(ctx, req.ClientID, req.InvoiceID, req.Amount)
	if err != nil {
		return nil, err
	}
	return toTopUpReply(p), nil
}

// GetTopUp 查询待结算充值
func (s *BillingService) GetTopUp(ctx context.Context, req *GetTopUpRequest) (*TopUpReply, error) {
	p, err := s.settlement.GetPendingTopUp(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	return toTopUpReply(p), nil
}

// GetPlatformCost 查询平台透传成本，无法解析时返回 PLATFORM_COST_UNKNOWN
func (s *BillingService) GetPlatformCost(ctx context.Context, req *PlatformCostRequest) (*PlatformCostReply, error) {
	cost, err := s.rates.RequirePlatformCost(ctx, req.CountryCode, req.Category)
	if err != nil {
		return nil, err
	}
	return &PlatformCostReply{
		CountryCode:   cost.CountryCode,
		Market:        cost.Market,
		Category:      cost.Category,
		Rate:          cost.Rate,
		Currency:      cost.Currency,
		EffectiveDate: cost.EffectiveDate,
	}, nil
}

// ListVolumeTiers 查询阶梯量价
func (s *BillingService) ListVolumeTiers(ctx context.Context, req *VolumeTiersRequest) (*VolumeTiersReply, error) {
	tiers, err := s.rates.VolumeTiers(ctx, req.Market, req.Category)
	if err != nil {
		return nil, err
	}
	reply := &VolumeTiersReply{Tiers: make([]*VolumeTier, 0, len(tiers))}
	for _, t := range tiers {
		reply.Tiers = append(reply.Tiers, toVolumeTier(t))
	}
	if req.Volume != nil {
		if hit := biz.TierForVolume(tiers, *req.Volume); hit != nil {
			reply.Matched = toVolumeTier(hit)
		}
	}
	return reply, nil
}

func toQuoteReply(q *biz.Quote) *QuoteReply {
	if q == nil {
		return nil
	}
	return &QuoteReply{
		ClientID:   q.ClientID,
		Channel:    q.Channel,
		Mode:       q.Mode,
		Unit:       q.Unit,
		Segments:   q.Segments,
		UnitRate:   q.UnitRate,
		RateSource: q.RateSource,
		Amount:     q.Amount,
		Currency:   q.Currency,
	}
}

func toTopUpReply(p *biz.PendingTopUp) *TopUpReply {
	return &TopUpReply{
		ID:          p.ID,
		ClientID:    p.ClientID,
		InvoiceID:   p.InvoiceID,
		Amount:      p.Amount,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		CompletedAt: p.CompletedAt,
	}
}

func toVolumeTier(t *biz.VolumeTier) *VolumeTier {
	return &VolumeTier{
		VolumeFrom:      t.VolumeFrom,
		VolumeTo:        t.VolumeTo,
		Rate:            t.Rate,
		DiscountPercent: t.DiscountPercent,
	}
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
