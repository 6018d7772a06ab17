package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"msg-billing/internal/conf"
	"msg-billing/internal/metrics"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

// 默认调度（秒级 cron 表达式）
const (
	defaultAuditSpec        = "0 30 2 * * *" // 每天 02:30
	defaultExpiryReportSpec = "0 0 * * * *"  // 每小时整点
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	// 初始化日志 (使用 go-pkg/logger)
	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/msg-billing-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	// 添加基本字段
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "msg-billing-cron",
	)

	logHelper := log.NewHelper(loggerInstance)
	metrics.InitMetrics()

	// 初始化应用
	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	auditSpec, expirySpec := defaultAuditSpec, defaultExpiryReportSpec
	if bc.Cron != nil {
		if bc.Cron.AuditSpec != "" {
			auditSpec = bc.Cron.AuditSpec
		}
		if bc.Cron.ExpiryReportSpec != "" {
			expirySpec = bc.Cron.ExpiryReportSpec
		}
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 账本对账：流水合计 vs 钱包余额 / 批次剩余
	_, err = cronScheduler.AddFunc(auditSpec, func() {
		logHelper.Info("[CRON] Starting ledger audit...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := app.audit.RunLedgerAudit(ctx); err != nil {
			logHelper.Errorf("[CRON] Ledger audit failed: %v", err)
			return
		}
		logHelper.Info("[CRON] Finished ledger audit")
	})
	if err != nil {
		logHelper.Errorf("Failed to add ledger audit job: %v", err)
	}

	// 即将过期额度统计
	_, err = cronScheduler.AddFunc(expirySpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if err := app.audit.RunExpiryReport(ctx); err != nil {
			logHelper.Errorf("[CRON] Credit expiry report failed: %v", err)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add credit expiry report job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Infof("  - Ledger audit: %s", auditSpec)
	logHelper.Infof("  - Credit expiry report: %s", expirySpec)
	logHelper.Info("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}
