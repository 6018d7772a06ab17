package data

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/conf"
	"msg-billing/internal/constants"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testLogger = log.NewStdLogger(io.Discard)
	dbSeq      int64
)

// newTestData sqlite 内存库 + miniredis
func newTestData(t *testing.T) (*Data, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&dbSeq, 1))
	// sqlite 不支持行锁，单连接保证事务串行
	db := openTestDB(t, dsn, 1)
	return NewDataWith(db, rdb, testLogger), mr
}

// newWALTestData 文件库 + WAL，多连接：读事务持有快照时其他连接仍可提交写入
func newWALTestData(t *testing.T) *Data {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	return NewDataWith(openTestDB(t, dsn, 4), nil, testLogger)
}

func openTestDB(t *testing.T, dsn string, maxConns int) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(maxConns)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db))
	return db
}

// stack 基于真实 repo 组装的 UseCase
type stack struct {
	data       *Data
	redis      *miniredis.Miniredis
	ledgerRepo biz.LedgerRepo
	rateRepo   biz.RateRepo
	settings   *biz.SettingsUseCase
	cost       *biz.CostUseCase
	ledger     *biz.LedgerUseCase
	settlement *biz.SettlementUseCase
	audit      *biz.AuditUseCase
	gate       *biz.BalanceGateUseCase
}

func newStack(t *testing.T) *stack {
	t.Helper()
	d, mr := newTestData(t)
	s := newStackWith(t, d)
	s.redis = mr
	return s
}

func newStackWith(t *testing.T, d *Data) *stack {
	t.Helper()
	bc := &conf.Bootstrap{}
	cfg := biz.NewBillingConfig(bc)
	cfg.DefaultRates[constants.ChannelSMS] = decimal.RequireFromString("0.05")

	events, cleanup, err := NewEventPublisher(bc, testLogger)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	markets, err := biz.NewMarketTable()
	require.NoError(t, err)

	ledgerRepo := NewLedgerRepo(d, testLogger)
	rateRepo := NewRateRepo(d, testLogger)
	settings := biz.NewSettingsUseCase(NewSettingsRepo(d, testLogger), cfg, testLogger)
	rates := biz.NewRateUseCase(rateRepo, markets, cfg, testLogger)
	cost := biz.NewCostUseCase(rates, settings, testLogger)
	ledger := biz.NewLedgerUseCase(ledgerRepo, settings, events, cfg, testLogger)

	return &stack{
		data:       d,
		ledgerRepo: ledgerRepo,
		rateRepo:   rateRepo,
		settings:   settings,
		cost:       cost,
		ledger:     ledger,
		settlement: biz.NewSettlementUseCase(ledger, ledgerRepo, NewTopUpRepo(d, testLogger), testLogger),
		audit:      biz.NewAuditUseCase(NewAuditRepo(d, testLogger), NewJobLocker(d, testLogger), cfg, testLogger),
		gate:       biz.NewBalanceGateUseCase(ledgerRepo, settings, cost, testLogger),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
