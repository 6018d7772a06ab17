package biz

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportPlatformRates_LongFormat(t *testing.T) {
	rates := newMemRates()
	uc := NewPricingImportUseCase(rates, testLogger)

	csv := `Market,Category,Price (USD),Effective Date
Brazil,Marketing,"$0.0625",2025-01-01
Brazil,Utility,0.0080,2025-01-01
India,Marketing,n/a,2025-01-01
,Marketing,0.1,2025-01-01
`
	report, err := uc.ImportPlatformRates(context.Background(), strings.NewReader(csv), PlatformRateImport{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Rows)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 2, report.Skipped)

	pr, err := rates.GetLatestPlatformRate(context.Background(), "Brazil", "marketing", testNow)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.True(t, pr.Rate.Equal(dec("0.0625")))
	assert.Equal(t, "USD", pr.Currency)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), pr.EffectiveDate)
}

func TestImportPlatformRates_WideFormat(t *testing.T) {
	rates := newMemRates()
	uc := NewPricingImportUseCase(rates, testLogger)

	csv := `Market,Marketing,Utility,Authentication,Service
Germany,0.1365,0.0550,0.0768,
Other,0.0604,0.0077,0.0077,-
`
	effective := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	report, err := uc.ImportPlatformRates(context.Background(), strings.NewReader(csv), PlatformRateImport{EffectiveDate: effective, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Rows)
	assert.Equal(t, 6, report.Imported)
	assert.Equal(t, 2, report.Skipped)

	pr, err := rates.GetLatestPlatformRate(context.Background(), "Germany", "authentication", effective)
	require.NoError(t, err)
	require.NotNil(t, pr)
	assert.True(t, pr.Rate.Equal(dec("0.0768")))
	assert.Equal(t, "USD", pr.Currency)
}

func TestImportPlatformRates_RequiresEffectiveDate(t *testing.T) {
	uc := NewPricingImportUseCase(newMemRates(), testLogger)
	_, err := uc.ImportPlatformRates(context.Background(), strings.NewReader("Market,Category,Price\nBrazil,marketing,0.1\n"), PlatformRateImport{})
	assert.Error(t, err)

	_, err = uc.ImportPlatformRates(context.Background(), strings.NewReader("Name,Price\nBrazil,0.1\n"), PlatformRateImport{EffectiveDate: testNow})
	assert.Error(t, err)
}

func TestImportPlatformRates_DryRun(t *testing.T) {
	rates := newMemRates()
	uc := NewPricingImportUseCase(rates, testLogger)

	report, err := uc.ImportPlatformRates(context.Background(),
		strings.NewReader("Market,Category,Rate\nBrazil,marketing,0.1\n"),
		PlatformRateImport{EffectiveDate: testNow, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Empty(t, rates.platformRates)
}

func TestImportVolumeTiers(t *testing.T) {
	rates := newMemRates()
	uc := NewPricingImportUseCase(rates, testLogger)

	csv := `Volume From,Volume To,Rate per message,Discount %
0,"10,000",0.0014,0%
10001,100000,0.0012,5%
100001,+,0.0010,10%
`
	report, err := uc.ImportVolumeTiers(context.Background(), strings.NewReader(csv), VolumeTierImport{Market: "India", Category: "Utility"})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Imported)

	tiers, err := rates.ListVolumeTiers(context.Background(), "India", "utility")
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	require.NotNil(t, tiers[0].VolumeTo)
	assert.EqualValues(t, 10000, *tiers[0].VolumeTo)
	assert.True(t, tiers[1].DiscountPercent.Equal(dec("5")))
	assert.Nil(t, tiers[2].VolumeTo)
	assert.True(t, tiers[2].Rate.Equal(dec("0.0010")))
}

func TestImportVolumeTiers_Errors(t *testing.T) {
	uc := NewPricingImportUseCase(newMemRates(), testLogger)

	_, err := uc.ImportVolumeTiers(context.Background(), strings.NewReader("From,To,Price\n0,10,0.1\n"), VolumeTierImport{})
	assert.Error(t, err, "market and category are required")

	_, err = uc.ImportVolumeTiers(context.Background(), strings.NewReader("From,To,Price\n100,10,0.1\n"), VolumeTierImport{Market: "India", Category: "utility"})
	assert.Error(t, err)

	_, err = uc.ImportVolumeTiers(context.Background(), strings.NewReader("To,Price\n10,0.1\n"), VolumeTierImport{Market: "India", Category: "utility"})
	assert.Error(t, err)
}

func TestParseNumber(t *testing.T) {
	for raw, want := range map[string]string{
		"$0.0625": "0.0625",
		"1,000":   "1000",
		"12.5%":   "12.5",
		" 3 ":     "3",
	} {
		got, err := parseNumber(raw)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(dec(want)), raw)
	}
	_, err := parseNumber("abc")
	assert.Error(t, err)
}
