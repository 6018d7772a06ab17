package biz

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed markets.yaml
var embeddedMarkets []byte

// MarketTable 国家 -> 平台计费市场 的静态映射
type MarketTable struct {
	byCountry map[string]string
}

type marketFile struct {
	Markets map[string][]string `yaml:"markets"`
}

// NewMarketTable 加载内置的市场映射表
func NewMarketTable() (*MarketTable, error) {
	return ParseMarketTable(embeddedMarkets)
}

// ParseMarketTable 解析 YAML 格式的市场映射表
func ParseMarketTable(raw []byte) (*MarketTable, error) {
	var f marketFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse market table: %w", err)
	}
	t := &MarketTable{byCountry: make(map[string]string)}
	for market, countries := range f.Markets {
		for _, cc := range countries {
			cc = normalizeCountry(cc)
			if prev, ok := t.byCountry[cc]; ok && prev != market {
				return nil, fmt.Errorf("country %s mapped to both %q and %q", cc, prev, market)
			}
			t.byCountry[cc] = market
		}
	}
	return t, nil
}

// Lookup 按国家代码查询市场
func (t *MarketTable) Lookup(countryCode string) (string, bool) {
	if t == nil {
		return "", false
	}
	market, ok := t.byCountry[normalizeCountry(countryCode)]
	return market, ok
}

func normalizeCountry(cc string) string {
	return strings.ToUpper(strings.TrimSpace(cc))
}
