package data

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/constants"
	"msg-billing/internal/data/model"
	billingErrors "msg-billing/internal/errors"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ConcurrentDebitNoDoubleSpend(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.ledger.TopUp(ctx, "c1", dec("5.00"), "", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, insufficient int
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ledger.Debit(ctx, "c1", fmt.Sprintf("m%02d", i), dec("0.30"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case billingErrors.IsInsufficientFunds(err):
				insufficient++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, ok)
	assert.Equal(t, 4, insufficient)

	wallet, err := s.ledgerRepo.GetWallet(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(dec("0.20")), "balance %s", wallet.Balance)

	var deductions int64
	require.NoError(t, s.data.db.Model(&model.LedgerTransaction{}).
		Where("client_id = ? AND type = ?", "c1", constants.TransactionTypeDeduction).
		Count(&deductions).Error)
	assert.EqualValues(t, 16, deductions)
}

func TestLedger_DuplicateDebitRejected(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.ledger.TopUp(ctx, "c1", dec("1"), "", "")
	require.NoError(t, err)

	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("0.10"))
	require.NoError(t, err)
	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("0.10"))
	assert.Equal(t, billingErrors.ReasonMessageAlreadyCharged, errors.Reason(err))

	balance, err := s.ledgerRepo.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.90")))
}

func TestLedger_RefundIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.ledger.TopUp(ctx, "c1", dec("1.00"), "", "")
	require.NoError(t, err)
	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("0.35"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.ledger.Refund(ctx, "m1")
			if assert.NoError(t, err) {
				results[i] = res.Refunded
			}
		}(i)
	}
	wg.Wait()

	var refunded int
	for _, r := range results {
		if r {
			refunded++
		}
	}
	assert.Equal(t, 1, refunded)

	wallet, err := s.ledgerRepo.GetWallet(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(dec("1.00")))

	charge, err := s.ledgerRepo.GetMessageCharge(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, charge.Amount.IsZero())
	assert.NotNil(t, charge.RefundedAt)
}

func TestLedger_PlanCredits(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	require.NoError(t, s.settings.Save(ctx, &biz.BillingSettings{ClientID: "c1", Mode: constants.BillingModePlan}))

	now := time.Now().UTC()
	late, err := s.ledger.AddCredits(ctx, "c1", 10, now.Add(30*24*time.Hour), "plan-a")
	require.NoError(t, err)
	early, err := s.ledger.AddCredits(ctx, "c1", 2, now.Add(24*time.Hour), "plan-b")
	require.NoError(t, err)

	res, err := s.ledger.Debit(ctx, "c1", "m1", dec("3"))
	require.NoError(t, err)
	assert.Equal(t, constants.UnitCredit, res.Unit)

	remaining := func(id string) int64 {
		var m model.PlanCreditTranche
		require.NoError(t, s.data.db.Where("id = ?", id).First(&m).Error)
		return m.Remaining
	}
	assert.EqualValues(t, 0, remaining(early))
	assert.EqualValues(t, 9, remaining(late))

	// 额度不足时任何批次都不变
	_, err = s.ledger.Debit(ctx, "c1", "m2", dec("10"))
	assert.Equal(t, billingErrors.ReasonInsufficientCredits, errors.Reason(err))
	assert.EqualValues(t, 9, remaining(late))

	_, err = s.ledger.Refund(ctx, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, remaining(early))
	assert.EqualValues(t, 10, remaining(late))

	account, err := s.ledger.GetAccount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, constants.BillingModePlan, account.Settings.Mode)
	assert.EqualValues(t, 12, account.CreditsAvailable)
	assert.Len(t, account.Tranches, 2)
}

func TestLedger_PlanExhaustion(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	require.NoError(t, s.settings.Save(ctx, &biz.BillingSettings{ClientID: "c1", Mode: constants.BillingModePlan}))
	_, err := s.ledger.AddCredits(ctx, "c1", 2, time.Now().Add(time.Hour), "")
	require.NoError(t, err)

	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("3"))
	assert.Equal(t, billingErrors.ReasonInsufficientCredits, errors.Reason(err))

	available, err := s.ledgerRepo.SumAvailableCredits(ctx, "c1", time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 2, available)

	ok, err := s.gate.HasBalance(ctx, "c1", dec("1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_BalanceCache(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	key := constants.RedisKeyBalance + "c1"

	// 提交后删除缓存，读路径回源并回填
	_, err := s.ledger.TopUp(ctx, "c1", dec("5"), "", "")
	require.NoError(t, err)
	assert.False(t, s.redis.Exists(key))
	balance, err := s.ledgerRepo.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("5")))
	cached, err := s.redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "5.0000", cached)

	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("0.25"))
	require.NoError(t, err)
	assert.False(t, s.redis.Exists(key))
	balance, err = s.ledgerRepo.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("4.75")))
	cached, _ = s.redis.Get(key)
	assert.Equal(t, "4.7500", cached)

	// 读路径优先缓存
	require.NoError(t, s.redis.Set(key, "1.0000"))
	balance, err = s.ledgerRepo.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("1")))

	// 没有钱包不写缓存
	balance, err = s.ledgerRepo.GetBalance(ctx, "nobody")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	assert.False(t, s.redis.Exists(constants.RedisKeyBalance+"nobody"))
}

func TestLedger_StaleCacheClearedByLaterCommit(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	key := constants.RedisKeyBalance + "c1"

	_, err := s.ledger.TopUp(ctx, "c1", dec("1"), "", "")
	require.NoError(t, err)
	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("0.90"))
	require.NoError(t, err)

	// 先提交的扣费晚于后提交的充值写缓存：旧余额落在 redis 里
	require.NoError(t, s.redis.Set(key, "0.1000"))
	_, err = s.ledger.TopUp(ctx, "c1", dec("10"), "", "")
	require.NoError(t, err)

	ok, err := s.gate.HasBalance(ctx, "c1", dec("5"))
	require.NoError(t, err)
	assert.True(t, ok)
	cached, err := s.redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "10.1000", cached)
}

func TestLedger_CacheUnavailableFallsBackToDB(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	_, err := s.ledger.TopUp(ctx, "c1", dec("2"), "", "")
	require.NoError(t, err)

	s.redis.Close()
	balance, err := s.ledgerRepo.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("2")))

	_, err = s.ledger.Debit(ctx, "c1", "m1", dec("0.5"))
	require.NoError(t, err)
}

func TestLedger_ListTransactions(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	for i := 0; i < 3; i++ {
		_, err := s.ledger.TopUp(ctx, "c1", dec("1"), "", fmt.Sprintf("inv-%d", i))
		require.NoError(t, err)
	}
	_, err := s.ledger.TopUp(ctx, "c2", dec("1"), "", "")
	require.NoError(t, err)

	list, total, err := s.ledger.ListTransactions(ctx, "c1", 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "inv-2", list[0].ReferenceID)
	assert.True(t, list[0].BalanceAfter.Decimal.Equal(dec("3")))

	list, _, err = s.ledger.ListTransactions(ctx, "c1", 2, 2)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "inv-0", list[0].ReferenceID)
}

func TestSettlement_ReconcileInvoice(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	_, err := s.settlement.CreatePendingTopUp(ctx, "c1", "500", dec("20"))
	require.NoError(t, err)

	done, err := s.settlement.ReconcileInvoice(ctx, "500")
	require.NoError(t, err)
	assert.True(t, done)

	done, err = s.settlement.ReconcileInvoice(ctx, "500")
	require.NoError(t, err)
	assert.False(t, done)

	wallet, err := s.ledgerRepo.GetWallet(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(dec("20")))

	p, err := s.settlement.GetPendingTopUp(ctx, "500")
	require.NoError(t, err)
	assert.Equal(t, constants.TopUpStatusCompleted, p.Status)
	assert.NotNil(t, p.CompletedAt)

	var topups int64
	require.NoError(t, s.data.db.Model(&model.LedgerTransaction{}).
		Where("reference_type = ? AND reference_id = ?", constants.ReferenceTypeInvoice, "500").
		Count(&topups).Error)
	assert.EqualValues(t, 1, topups)

	// 同一账单重复登记返回已有记录
	again, err := s.settlement.CreatePendingTopUp(ctx, "c1", "500", dec("20"))
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, constants.TopUpStatusCompleted, again.Status)
}

func TestAudit_ReconstructsLedger(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	require.NoError(t, s.settings.Save(ctx, &biz.BillingSettings{ClientID: "plan", Mode: constants.BillingModePlan}))

	_, err := s.ledger.TopUp(ctx, "c1", dec("5.00"), "", "")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = s.ledger.Debit(ctx, "c1", fmt.Sprintf("m%d", i), dec("0.0375"))
		require.NoError(t, err)
	}
	_, err = s.ledger.Refund(ctx, "m1")
	require.NoError(t, err)

	_, err = s.ledger.AddCredits(ctx, "plan", 10, time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	_, err = s.ledger.Debit(ctx, "plan", "p1", dec("4"))
	require.NoError(t, err)

	drifts, err := s.audit.VerifyLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	require.NoError(t, s.data.db.Model(&model.Wallet{}).Where("client_id = ?", "c1").
		Update("balance", dec("9.99")).Error)
	drifts, err = s.audit.VerifyLedger(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, "c1", drifts[0].ClientID)
	assert.True(t, drifts[0].CurrencySum.Equal(dec("4.925")), "sum %s", drifts[0].CurrencySum)
}

func TestAudit_ExpiringCredits(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	now := time.Now().UTC()
	_, err := s.ledger.AddCredits(ctx, "c1", 10, now.Add(time.Hour), "")
	require.NoError(t, err)
	_, err = s.ledger.AddCredits(ctx, "c2", 5, now.Add(10*24*time.Hour), "")
	require.NoError(t, err)

	report, err := s.audit.ReportExpiringCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Tranches)
	assert.EqualValues(t, 10, report.Credits)

	require.NoError(t, s.audit.RunExpiryReport(ctx))
}
