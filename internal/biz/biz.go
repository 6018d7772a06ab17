package biz

import "github.com/google/wire"

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewBillingConfig,
	NewMarketTable,
	NewSettingsUseCase,
	NewRateUseCase,
	NewCostUseCase,
	NewLedgerUseCase,
	NewBalanceGateUseCase,
	NewSettlementUseCase,
	NewAuditUseCase,
	NewPricingImportUseCase,
)
