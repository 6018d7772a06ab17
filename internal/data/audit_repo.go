package data

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/constants"
	"msg-billing/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type auditRepo struct {
	data *Data
	log  *log.Helper
}

// NewAuditRepo 创建对账 repo
func NewAuditRepo(data *Data, logger log.Logger) biz.AuditRepo {
	return &auditRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// ListLedgerSnapshots 汇总每个客户的余额、批次剩余和流水合计
// 三次读取在同一个只读事务里完成，共享一致性快照，期间提交的扣费不会被误判为不一致
// 金额在 Go 里用 decimal 累加，避免不同数据库 SUM 的精度差异
func (r *auditRepo) ListLedgerSnapshots(ctx context.Context) ([]*biz.LedgerSnapshot, error) {
	var list []*biz.LedgerSnapshot
	err := r.data.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		list, err = readLedgerSnapshots(tx)
		return err
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func readLedgerSnapshots(db *gorm.DB) ([]*biz.LedgerSnapshot, error) {
	snapshots := make(map[string]*biz.LedgerSnapshot)
	get := func(clientID string) *biz.LedgerSnapshot {
		s, ok := snapshots[clientID]
		if !ok {
			s = &biz.LedgerSnapshot{ClientID: clientID, WalletBalance: decimal.Zero, CurrencySum: decimal.Zero}
			snapshots[clientID] = s
		}
		return s
	}

	var wallets []model.Wallet
	if err := db.Find(&wallets).Error; err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	for _, w := range wallets {
		get(w.ClientID).WalletBalance = w.Balance
	}

	var remaining []struct {
		ClientID string
		Total    int64
	}
	if err := db.Model(&model.PlanCreditTranche{}).
		Select("client_id, COALESCE(SUM(remaining), 0) AS total").
		Group("client_id").
		Scan(&remaining).Error; err != nil {
		return nil, fmt.Errorf("sum tranches: %w", err)
	}
	for _, row := range remaining {
		get(row.ClientID).CreditRemaining = row.Total
	}

	var batch []model.LedgerTransaction
	err := db.Select("id", "client_id", "unit", "amount").
		FindInBatches(&batch, 1000, func(tx *gorm.DB, _ int) error {
			for _, t := range batch {
				s := get(t.ClientID)
				if t.Unit == constants.UnitCredit {
					s.CreditSum += t.Amount.IntPart()
				} else {
					s.CurrencySum = s.CurrencySum.Add(t.Amount)
				}
			}
			return nil
		}).Error
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}

	list := make([]*biz.LedgerSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ClientID < list[j].ClientID })
	return list, nil
}

// ListExpiringTranches (from, to] 内过期且仍有剩余的批次
func (r *auditRepo) ListExpiringTranches(ctx context.Context, from, to time.Time) ([]*biz.CreditTranche, error) {
	var rows []model.PlanCreditTranche
	if err := r.data.db.WithContext(ctx).
		Where("remaining > 0 AND expires_at > ? AND expires_at <= ?", from.UTC(), to.UTC()).
		Order("expires_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list expiring tranches: %w", err)
	}
	return toBizTranches(rows), nil
}
