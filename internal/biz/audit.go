package biz

import (
	"context"
	stderrors "errors"
	"time"

	"msg-billing/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// ErrJobLocked 其他实例正在执行同一任务
var ErrJobLocked = stderrors.New("job is locked by another instance")

// LedgerSnapshot 单个客户的账本汇总
type LedgerSnapshot struct {
	ClientID        string
	WalletBalance   decimal.Decimal // 钱包当前余额
	CurrencySum     decimal.Decimal // 金额流水合计
	CreditRemaining int64           // 全部批次剩余合计（含已过期）
	CreditSum       int64           // 额度流水合计
}

// LedgerDrift 账本不一致
type LedgerDrift struct {
	ClientID        string
	WalletBalance   decimal.Decimal
	CurrencySum     decimal.Decimal
	CreditRemaining int64
	CreditSum       int64
}

// ExpiryReport 即将过期额度统计
type ExpiryReport struct {
	From     time.Time
	To       time.Time
	Tranches int
	Clients  int
	Credits  int64
}

// AuditRepo 对账数据层接口（定义在 biz 层）
type AuditRepo interface {
	ListLedgerSnapshots(ctx context.Context) ([]*LedgerSnapshot, error)
	ListExpiringTranches(ctx context.Context, from, to time.Time) ([]*CreditTranche, error)
}

// JobLocker 定时任务分布式锁
type JobLocker interface {
	// Acquire 获取锁，已被占用时返回 ErrJobLocked
	Acquire(ctx context.Context, name string, expiry time.Duration) (release func(), err error)
}

// AuditUseCase 账本对账
type AuditUseCase struct {
	repo    AuditRepo
	locker  JobLocker
	conf    *BillingConfig
	log     *log.Helper
	metrics *metrics.BillingMetrics
	now     func() time.Time
}

// NewAuditUseCase 创建对账 UseCase
func NewAuditUseCase(repo AuditRepo, locker JobLocker, conf *BillingConfig, logger log.Logger) *AuditUseCase {
	return &AuditUseCase{
		repo:    repo,
		locker:  locker,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// VerifyLedger 校验：金额流水合计 == 钱包余额，额度流水合计 == 批次剩余合计
func (uc *AuditUseCase) VerifyLedger(ctx context.Context) ([]*LedgerDrift, error) {
	snapshots, err := uc.repo.ListLedgerSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []*LedgerDrift
	for _, s := range snapshots {
		if s.WalletBalance.Equal(s.CurrencySum) && s.CreditRemaining == s.CreditSum {
			continue
		}
		drifts = append(drifts, &LedgerDrift{
			ClientID:        s.ClientID,
			WalletBalance:   s.WalletBalance,
			CurrencySum:     s.CurrencySum,
			CreditRemaining: s.CreditRemaining,
			CreditSum:       s.CreditSum,
		})
		uc.log.Errorf("Ledger drift: client_id=%s, wallet=%s, currency_sum=%s, credit_remaining=%d, credit_sum=%d",
			s.ClientID, s.WalletBalance, s.CurrencySum, s.CreditRemaining, s.CreditSum)
	}
	if uc.metrics != nil {
		uc.metrics.AuditDriftClients.Set(float64(len(drifts)))
	}
	uc.log.Infof("Ledger audit finished: clients=%d, drifts=%d", len(snapshots), len(drifts))
	return drifts, nil
}

// ReportExpiringCredits 统计窗口内即将过期的剩余额度
func (uc *AuditUseCase) ReportExpiringCredits(ctx context.Context) (*ExpiryReport, error) {
	from := uc.now()
	to := from.Add(uc.conf.ExpiryReportAhead)
	tranches, err := uc.repo.ListExpiringTranches(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &ExpiryReport{From: from, To: to, Tranches: len(tranches)}
	clients := make(map[string]struct{})
	for _, t := range tranches {
		report.Credits += t.Remaining
		clients[t.ClientID] = struct{}{}
	}
	report.Clients = len(clients)
	if uc.metrics != nil {
		uc.metrics.ExpiringCredits.Set(float64(report.Credits))
	}
	uc.log.Infof("Expiring credits: window=%s~%s, tranches=%d, clients=%d, credits=%d",
		from.Format(time.RFC3339), to.Format(time.RFC3339), report.Tranches, report.Clients, report.Credits)
	return report, nil
}

// RunLedgerAudit 定时任务入口（多实例只有一个执行）
func (uc *AuditUseCase) RunLedgerAudit(ctx context.Context) error {
	return uc.runLocked(ctx, "ledger_audit", func(ctx context.Context) error {
		_, err := uc.VerifyLedger(ctx)
		return err
	})
}

// RunExpiryReport 定时任务入口（多实例只有一个执行）
func (uc *AuditUseCase) RunExpiryReport(ctx context.Context) error {
	return uc.runLocked(ctx, "credit_expiry_report", func(ctx context.Context) error {
		_, err := uc.ReportExpiringCredits(ctx)
		return err
	})
}

func (uc *AuditUseCase) runLocked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	release, err := uc.locker.Acquire(ctx, name, uc.conf.JobLockExpiry)
	if err != nil {
		if stderrors.Is(err, ErrJobLocked) {
			uc.log.Infof("Job skipped, lock held elsewhere: job=%s", name)
			return nil
		}
		return err
	}
	defer release()
	return fn(ctx)
}
