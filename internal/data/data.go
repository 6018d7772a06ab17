package data

import (
	"context"
	"fmt"
	"time"

	"msg-billing/internal/conf"
	"msg-billing/internal/data/model"

	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewDB,
	NewRedis,
	NewData,
	NewLedgerRepo,
	NewSettingsRepo,
	NewRateRepo,
	NewTopUpRepo,
	NewAuditRepo,
	NewJobLocker,
	NewEventPublisher,
)

// 默认锁等待超时
const defaultLockWait = 5 * time.Second

// Data 数据层结构体
type Data struct {
	db       *gorm.DB
	rdb      *redis.Client
	rs       *redsync.Redsync
	lockWait time.Duration
	log      *log.Helper
}

// NewDB 创建数据库连接（mysql，或本地/测试用的 sqlite）
func NewDB(c *conf.Bootstrap) (*gorm.DB, error) {
	if c.Data == nil || c.Data.Database == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	dbc := c.Data.Database

	var dialector gorm.Dialector
	switch dbc.Driver {
	case "", "mysql":
		dialector = mysql.Open(dbc.Source)
	case "sqlite":
		dialector = sqlite.Open(dbc.Source)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dbc.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dbc.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dbc.MaxOpenConns)
	}
	if dbc.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dbc.MaxIdleConns)
	}
	if d := dbc.ConnMaxLifetime.AsDuration(); d > 0 {
		sqlDB.SetConnMaxLifetime(d)
	}

	if dbc.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate 自动建表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Wallet{},
		&model.PlanCreditTranche{},
		&model.LedgerTransaction{},
		&model.MessageCharge{},
		&model.ClientBillingSettings{},
		&model.PendingTopUp{},
		&model.ClientRate{},
		&model.GatewayRate{},
		&model.PlatformMarketOverride{},
		&model.PlatformRate{},
		&model.PlatformVolumeTier{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// NewRedis 创建 Redis 连接
func NewRedis(c *conf.Bootstrap) (*redis.Client, error) {
	if c.Data == nil || c.Data.Redis == nil {
		return nil, fmt.Errorf("redis config is nil")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Data.Redis.Addr,
		Password:     c.Data.Redis.Password,
		DB:           c.Data.Redis.Db,
		ReadTimeout:  c.Data.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Data.Redis.WriteTimeout.AsDuration(),
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewData 创建数据层实例
func NewData(c *conf.Bootstrap, logger log.Logger, db *gorm.DB, rdb *redis.Client) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	cleanup := func() {
		helper.Info("closing the data resources")
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
		if err := rdb.Close(); err != nil {
			helper.Errorf("failed to close redis: %v", err)
		}
	}

	lockWait := defaultLockWait
	if c.Billing != nil {
		if d := c.Billing.LockWaitTimeout.AsDuration(); d > 0 {
			lockWait = d
		}
	}

	return &Data{
		db:       db,
		rdb:      rdb,
		rs:       redsync.New(goredis.NewPool(rdb)),
		lockWait: lockWait,
		log:      helper,
	}, cleanup, nil
}

// NewDataWith 用已有连接构造数据层（测试和命令行工具使用，rdb 可为 nil）
func NewDataWith(db *gorm.DB, rdb *redis.Client, logger log.Logger) *Data {
	d := &Data{
		db:       db,
		rdb:      rdb,
		lockWait: defaultLockWait,
		log:      log.NewHelper(logger),
	}
	if rdb != nil {
		d.rs = redsync.New(goredis.NewPool(rdb))
	}
	return d
}
