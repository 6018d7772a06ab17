package biz

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"msg-billing/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

// PlatformRateImport 平台费率导入参数
type PlatformRateImport struct {
	EffectiveDate time.Time // 文件中没有生效日期列时使用
	Currency      string    // 文件中没有币种列时使用
	DryRun        bool
}

// VolumeTierImport 阶梯量价导入参数
type VolumeTierImport struct {
	Market   string // 文件中没有市场列时使用
	Category string // 文件中没有类别列时使用
	DryRun   bool
}

// ImportReport 导入结果
type ImportReport struct {
	Rows     int
	Imported int
	Skipped  int
}

// 表头关键字（按词前缀匹配，不区分大小写和位置）
var (
	marketKeywords    = []string{"market", "country", "region"}
	categoryKeywords  = []string{"category", "type"}
	priceKeywords     = []string{"price", "rate", "cost"}
	currencyKeywords  = []string{"currency"}
	effectiveKeywords = []string{"effective", "date"}
	fromKeywords      = []string{"from", "start", "min", "lower"}
	toKeywords        = []string{"to", "end", "max", "upper", "until"}
	discountKeywords  = []string{"discount"}

	platformCategories = []string{
		constants.PlatformCategoryMarketing,
		constants.PlatformCategoryUtility,
		constants.PlatformCategoryAuthentication,
		constants.PlatformCategoryService,
	}
)

// PricingImportUseCase 平台费率 / 阶梯量价批量导入
type PricingImportUseCase struct {
	repo RateRepo
	log  *log.Helper
}

// NewPricingImportUseCase 创建导入 UseCase
func NewPricingImportUseCase(repo RateRepo, logger log.Logger) *PricingImportUseCase {
	return &PricingImportUseCase{
		repo: repo,
		log:  log.NewHelper(logger),
	}
}

// ImportPlatformRates 导入平台基础费率
// 支持两种格式：长表（市场, 类别, 价格[, 生效日期][, 币种]）和宽表（市场, 每个类别一列价格）
func (uc *PricingImportUseCase) ImportPlatformRates(ctx context.Context, r io.Reader, opts PlatformRateImport) (*ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := matchColumns(header, map[string][]string{
		"market":    marketKeywords,
		"category":  categoryKeywords,
		"price":     priceKeywords,
		"currency":  currencyKeywords,
		"effective": effectiveKeywords,
	})
	market, ok := cols["market"]
	if !ok {
		return nil, fmt.Errorf("header: no market column in %v", header)
	}

	// 没有类别列时按宽表处理
	wide := map[string]int{}
	if _, hasCategory := cols["category"]; !hasCategory {
		for i, h := range header {
			if i == market {
				continue
			}
			for _, c := range platformCategories {
				if hasKeyword(h, c) {
					wide[c] = i
				}
			}
		}
		if len(wide) == 0 {
			return nil, fmt.Errorf("header: no category column and no per-category price columns in %v", header)
		}
	} else if _, hasPrice := cols["price"]; !hasPrice {
		return nil, fmt.Errorf("header: no price column in %v", header)
	}
	if _, hasDate := cols["effective"]; !hasDate && opts.EffectiveDate.IsZero() {
		return nil, fmt.Errorf("no effective date column and no effective date given")
	}

	report := &ImportReport{}
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, fmt.Errorf("line %d: %w", lineNum, err)
		}
		report.Rows++

		name := cell(row, market)
		if name == "" {
			report.Skipped++
			continue
		}
		effective := opts.EffectiveDate
		if i, ok := cols["effective"]; ok && cell(row, i) != "" {
			effective, err = parseDate(cell(row, i))
			if err != nil {
				return report, fmt.Errorf("line %d effective date: %w", lineNum, err)
			}
		}
		currency := strings.ToUpper(opts.Currency)
		if i, ok := cols["currency"]; ok && cell(row, i) != "" {
			currency = strings.ToUpper(cell(row, i))
		}
		if currency == "" {
			currency = "USD"
		}

		prices := map[string]string{}
		if len(wide) > 0 {
			for c, i := range wide {
				prices[c] = cell(row, i)
			}
		} else {
			prices[strings.ToLower(cell(row, cols["category"]))] = cell(row, cols["price"])
		}

		for category, raw := range prices {
			if category == "" || isBlankPrice(raw) {
				report.Skipped++
				continue
			}
			price, err := parseNumber(raw)
			if err != nil {
				return report, fmt.Errorf("line %d price %q: %w", lineNum, raw, err)
			}
			if opts.DryRun {
				report.Imported++
				continue
			}
			if err := uc.repo.UpsertPlatformRate(ctx, &PlatformRate{
				Market:        name,
				Category:      category,
				Rate:          price,
				Currency:      currency,
				EffectiveDate: effective.UTC(),
			}); err != nil {
				return report, fmt.Errorf("line %d upsert: %w", lineNum, err)
			}
			report.Imported++
		}
	}

	uc.log.Infof("Platform rates imported: rows=%d, imported=%d, skipped=%d, dry_run=%v", report.Rows, report.Imported, report.Skipped, opts.DryRun)
	return report, nil
}

// ImportVolumeTiers 导入阶梯量价（起始量, 截止量, 单价, 折扣）
// 截止量为空、"+"、"∞" 或 "unlimited" 表示无上限
func (uc *PricingImportUseCase) ImportVolumeTiers(ctx context.Context, r io.Reader, opts VolumeTierImport) (*ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := matchColumns(header, map[string][]string{
		"discount": discountKeywords,
		"from":     fromKeywords,
		"to":       toKeywords,
		"price":    priceKeywords,
		"market":   marketKeywords,
		"category": categoryKeywords,
	})
	for _, required := range []string{"from", "price"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("header: no %s column in %v", required, header)
		}
	}

	report := &ImportReport{}
	lineNum := 1
	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, fmt.Errorf("line %d: %w", lineNum, err)
		}
		report.Rows++

		fromRaw := cell(row, cols["from"])
		if fromRaw == "" || isBlankPrice(cell(row, cols["price"])) {
			report.Skipped++
			continue
		}

		tier := &VolumeTier{Market: opts.Market, Category: strings.ToLower(opts.Category)}
		if i, ok := cols["market"]; ok && cell(row, i) != "" {
			tier.Market = cell(row, i)
		}
		if i, ok := cols["category"]; ok && cell(row, i) != "" {
			tier.Category = strings.ToLower(cell(row, i))
		}
		if tier.Market == "" || tier.Category == "" {
			return report, fmt.Errorf("line %d: market and category are required", lineNum)
		}

		from, err := parseNumber(fromRaw)
		if err != nil {
			return report, fmt.Errorf("line %d volume from: %w", lineNum, err)
		}
		tier.VolumeFrom = from.IntPart()

		if i, ok := cols["to"]; ok && !isUnbounded(cell(row, i)) {
			to, err := parseNumber(cell(row, i))
			if err != nil {
				return report, fmt.Errorf("line %d volume to: %w", lineNum, err)
			}
			v := to.IntPart()
			if v < tier.VolumeFrom {
				return report, fmt.Errorf("line %d: volume to %d is below volume from %d", lineNum, v, tier.VolumeFrom)
			}
			tier.VolumeTo = &v
		}

		if tier.Rate, err = parseNumber(cell(row, cols["price"])); err != nil {
			return report, fmt.Errorf("line %d rate: %w", lineNum, err)
		}
		tier.DiscountPercent = decimal.Zero
		if i, ok := cols["discount"]; ok && cell(row, i) != "" {
			if tier.DiscountPercent, err = parseNumber(cell(row, i)); err != nil {
				return report, fmt.Errorf("line %d discount: %w", lineNum, err)
			}
		}

		if !opts.DryRun {
			if err := uc.repo.UpsertVolumeTier(ctx, tier); err != nil {
				return report, fmt.Errorf("line %d upsert: %w", lineNum, err)
			}
		}
		report.Imported++
	}

	uc.log.Infof("Volume tiers imported: rows=%d, imported=%d, skipped=%d, dry_run=%v", report.Rows, report.Imported, report.Skipped, opts.DryRun)
	return report, nil
}

// matchColumns 按关键字匹配表头，每列只分配给一个字段，按 fields 中先出现的关键字优先
func matchColumns(header []string, fields map[string][]string) map[string]int {
	order := []string{"discount", "market", "category", "currency", "effective", "from", "to", "price"}
	used := map[int]bool{}
	cols := map[string]int{}
	for _, field := range order {
		keywords, ok := fields[field]
		if !ok {
			continue
		}
		for i, h := range header {
			if used[i] {
				continue
			}
			if hasAnyKeyword(h, keywords) {
				cols[field] = i
				used[i] = true
				break
			}
		}
	}
	return cols
}

func headerTokens(h string) []string {
	return strings.FieldsFunc(strings.ToLower(h), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasKeyword(h, keyword string) bool {
	for _, t := range headerTokens(h) {
		if strings.HasPrefix(t, keyword) {
			return true
		}
	}
	return false
}

func hasAnyKeyword(h string, keywords []string) bool {
	for _, k := range keywords {
		// "to" 这种短词只做完整匹配，避免误中 "total" 之类
		if len(k) <= 2 {
			for _, t := range headerTokens(h) {
				if t == k {
					return true
				}
			}
			continue
		}
		if hasKeyword(h, k) {
			return true
		}
	}
	return false
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankPrice(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "-", "n/a", "na":
		return true
	}
	return false
}

func isUnbounded(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "+", "∞", "unlimited", "max":
		return true
	}
	return false
}

// parseNumber 解析带千分位、币种符号或百分号的数字
func parseNumber(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsDigit(r), r == '.', r == '-':
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("not a number: %q", s)
	}
	return decimal.NewFromString(cleaned)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{constants.TimeFormatDate, time.RFC3339, "2006/01/02", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
