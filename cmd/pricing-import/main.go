package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"msg-billing/internal/biz"
	"msg-billing/internal/conf"
	"msg-billing/internal/constants"
	"msg-billing/internal/data"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
)

var (
	flagconf      string
	flagRates     string
	flagTiers     string
	flagEffective string
	flagCurrency  string
	flagMarket    string
	flagCategory  string
	flagDryRun    bool
)

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
	flag.StringVar(&flagRates, "rates", "", "platform rate CSV (market, category, price[, effective date][, currency])")
	flag.StringVar(&flagTiers, "tiers", "", "volume tier CSV (volume from, volume to, rate, discount)")
	flag.StringVar(&flagEffective, "effective", "", "effective date (YYYY-MM-DD) when the rate CSV has no date column")
	flag.StringVar(&flagCurrency, "currency", "USD", "currency when the rate CSV has no currency column")
	flag.StringVar(&flagMarket, "market", "", "market when the tier CSV has no market column")
	flag.StringVar(&flagCategory, "category", "", "category when the tier CSV has no category column")
	flag.BoolVar(&flagDryRun, "dry-run", false, "parse and validate without writing")
}

func main() {
	flag.Parse()
	if flagRates == "" && flagTiers == "" {
		fmt.Fprintln(os.Stderr, "nothing to import: pass -rates and/or -tiers")
		flag.Usage()
		os.Exit(2)
	}

	// 初始化日志 (使用 go-pkg/logger)
	loggerInstance := logger.NewLogger(&logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/msg-billing-pricing-import.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	})
	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "msg-billing-pricing-import",
	)
	logHelper := log.NewHelper(loggerInstance)

	if err := run(loggerInstance); err != nil {
		logHelper.Errorf("pricing import failed: %v", err)
		os.Exit(1)
	}
}

func run(l log.Logger) error {
	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		return err
	}
	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		return err
	}

	db, err := data.NewDB(&bc)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	uc := biz.NewPricingImportUseCase(data.NewRateRepo(data.NewDataWith(db, nil, l), l), l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if flagRates != "" {
		opts := biz.PlatformRateImport{Currency: flagCurrency, DryRun: flagDryRun}
		if flagEffective != "" {
			opts.EffectiveDate, err = time.Parse(constants.TimeFormatDate, flagEffective)
			if err != nil {
				return fmt.Errorf("parse -effective: %w", err)
			}
		}
		f, err := os.Open(flagRates)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := uc.ImportPlatformRates(ctx, f, opts); err != nil {
			return fmt.Errorf("%s: %w", flagRates, err)
		}
	}

	if flagTiers != "" {
		f, err := os.Open(flagTiers)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := uc.ImportVolumeTiers(ctx, f, biz.VolumeTierImport{
			Market:   flagMarket,
			Category: flagCategory,
			DryRun:   flagDryRun,
		}); err != nil {
			return fmt.Errorf("%s: %w", flagTiers, err)
		}
	}
	return nil
}
