package biz

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"msg-billing/internal/conf"
	"msg-billing/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/shopspring/decimal"
)

var testLogger = log.NewStdLogger(io.Discard)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig() *BillingConfig {
	c := NewBillingConfig(&conf.Bootstrap{})
	c.DefaultRates[constants.ChannelSMS] = dec("0.05")
	c.DefaultRates[constants.ChannelWhatsApp] = dec("0.08")
	return c
}

// memState 内存账本状态，事务内操作副本，提交时整体替换
type memState struct {
	wallets  map[string]decimal.Decimal
	tranches map[string]*CreditTranche
	txns     []*LedgerTransaction
	charges  map[string]*MessageCharge
	topUps   map[string]*PendingTopUp
}

func (s *memState) clone() *memState {
	c := &memState{
		wallets:  make(map[string]decimal.Decimal, len(s.wallets)),
		tranches: make(map[string]*CreditTranche, len(s.tranches)),
		txns:     append([]*LedgerTransaction(nil), s.txns...),
		charges:  make(map[string]*MessageCharge, len(s.charges)),
		topUps:   make(map[string]*PendingTopUp, len(s.topUps)),
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.tranches {
		t := *v
		c.tranches[k] = &t
	}
	for k, v := range s.charges {
		ch := *v
		c.charges[k] = &ch
	}
	for k, v := range s.topUps {
		p := *v
		c.topUps[k] = &p
	}
	return c
}

// memLedger 同时实现 LedgerRepo、TopUpRepo、AuditRepo
type memLedger struct {
	mu    sync.Mutex
	state *memState
	seq   int
	// failNext 下一次 Transact 直接返回该错误
	failNext error
}

func newMemLedger() *memLedger {
	return &memLedger{state: (&memState{}).clone()}
}

func (m *memLedger) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%04d", prefix, m.seq)
}

func (m *memLedger) Transact(ctx context.Context, fn func(tx LedgerTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	tx := &memTx{m: m, s: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.s
	return nil
}

func (m *memLedger) GetWallet(ctx context.Context, clientID string) (*Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.wallets[clientID]
	if !ok {
		return nil, nil
	}
	return &Wallet{ClientID: clientID, Balance: b}, nil
}

func (m *memLedger) GetBalance(ctx context.Context, clientID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.wallets[clientID], nil
}

func (m *memLedger) SumAvailableCredits(ctx context.Context, clientID string, now time.Time) (int64, error) {
	tranches, err := m.ListActiveTranches(ctx, clientID, now)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, t := range tranches {
		sum += t.Remaining
	}
	return sum, nil
}

func (m *memLedger) ListActiveTranches(ctx context.Context, clientID string, now time.Time) ([]*CreditTranche, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tranchesFor(clientID, now, true), nil
}

func (m *memLedger) ListTransactions(ctx context.Context, clientID string, page, pageSize int) ([]*LedgerTransaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*LedgerTransaction
	for i := len(m.state.txns) - 1; i >= 0; i-- {
		if t := m.state.txns[i]; t.ClientID == clientID {
			c := *t
			all = append(all, &c)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, int64(len(all)), nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memLedger) GetMessageCharge(ctx context.Context, messageRef string) (*MessageCharge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.charges[messageRef]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memLedger) CreatePendingTopUp(ctx context.Context, topUp *PendingTopUp) (*PendingTopUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.state.topUps[topUp.InvoiceID]; ok {
		cp := *existing
		return &cp, nil
	}
	stored := *topUp
	stored.ID = m.nextID("topup")
	m.state.topUps[topUp.InvoiceID] = &stored
	cp := stored
	return &cp, nil
}

func (m *memLedger) GetPendingTopUp(ctx context.Context, invoiceID string) (*PendingTopUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.topUps[invoiceID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memLedger) ListLedgerSnapshots(ctx context.Context) ([]*LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byClient := map[string]*LedgerSnapshot{}
	get := func(id string) *LedgerSnapshot {
		s, ok := byClient[id]
		if !ok {
			s = &LedgerSnapshot{ClientID: id}
			byClient[id] = s
		}
		return s
	}
	for id, b := range m.state.wallets {
		get(id).WalletBalance = b
	}
	for _, t := range m.state.tranches {
		get(t.ClientID).CreditRemaining += t.Remaining
	}
	for _, txn := range m.state.txns {
		s := get(txn.ClientID)
		if txn.Unit == constants.UnitCredit {
			s.CreditSum += txn.Amount.IntPart()
		} else {
			s.CurrencySum = s.CurrencySum.Add(txn.Amount)
		}
	}
	out := make([]*LedgerSnapshot, 0, len(byClient))
	for _, s := range byClient {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (m *memLedger) ListExpiringTranches(ctx context.Context, from, to time.Time) ([]*CreditTranche, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*CreditTranche
	for _, t := range m.state.tranches {
		if t.Remaining > 0 && t.ExpiresAt.After(from) && !t.ExpiresAt.After(to) {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// setWallet 直接改写余额（模拟数据被外部篡改）
func (m *memLedger) setWallet(clientID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.wallets[clientID] = balance
}

func (m *memLedger) tranche(id string) *CreditTranche {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.state.tranches[id]
	if !ok {
		return nil
	}
	c := *t
	return &c
}

func (m *memLedger) allTranches(clientID string) []*CreditTranche {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.tranchesFor(clientID, time.Time{}, false)
}

func (m *memLedger) transactions() []*LedgerTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*LedgerTransaction(nil), m.state.txns...)
}

func (s *memState) tranchesFor(clientID string, now time.Time, withRemainingOnly bool) []*CreditTranche {
	var out []*CreditTranche
	for _, t := range s.tranches {
		if t.ClientID != clientID || !t.ExpiresAt.After(now) {
			continue
		}
		if withRemainingOnly && t.Remaining <= 0 {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sortByExpiry(out)
	return out
}

type memTx struct {
	m *memLedger
	s *memState
}

func (tx *memTx) LockWallet(clientID string) (*Wallet, error) {
	b, ok := tx.s.wallets[clientID]
	if !ok {
		b = decimal.Zero
		tx.s.wallets[clientID] = b
	}
	return &Wallet{ClientID: clientID, Balance: b}, nil
}

func (tx *memTx) LockTranches(clientID string, now time.Time, withRemainingOnly bool) ([]*CreditTranche, error) {
	return tx.s.tranchesFor(clientID, now, withRemainingOnly), nil
}

func (tx *memTx) LockMessageCharge(messageRef string) (*MessageCharge, error) {
	c, ok := tx.s.charges[messageRef]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (tx *memTx) LockPendingTopUp(invoiceID string) (*PendingTopUp, error) {
	p, ok := tx.s.topUps[invoiceID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (tx *memTx) SetWalletBalance(clientID string, balance decimal.Decimal) error {
	tx.s.wallets[clientID] = balance
	return nil
}

func (tx *memTx) ApplyAllocations(allocations []CreditAllocation) error {
	for _, a := range allocations {
		t, ok := tx.s.tranches[a.TrancheID]
		if !ok {
			return fmt.Errorf("tranche %s not found", a.TrancheID)
		}
		t.Remaining = a.Remaining
	}
	return nil
}

func (tx *memTx) CreateTranche(tranche *CreditTranche) error {
	if tranche.ID == "" {
		tranche.ID = tx.m.nextID("tranche")
	}
	c := *tranche
	tx.s.tranches[c.ID] = &c
	return nil
}

func (tx *memTx) AppendTransaction(txn *LedgerTransaction) error {
	if txn.ID == "" {
		txn.ID = tx.m.nextID("txn")
	}
	c := *txn
	tx.s.txns = append(tx.s.txns, &c)
	return nil
}

func (tx *memTx) SaveMessageCharge(charge *MessageCharge) error {
	c := *charge
	tx.s.charges[c.MessageRef] = &c
	return nil
}

func (tx *memTx) CompletePendingTopUp(id string, completedAt time.Time) error {
	for _, p := range tx.s.topUps {
		if p.ID == id {
			p.Status = constants.TopUpStatusCompleted
			at := completedAt
			p.CompletedAt = &at
			return nil
		}
	}
	return fmt.Errorf("pending top-up %s not found", id)
}

// memSettings 计费设置
type memSettings struct {
	mu       sync.Mutex
	settings map[string]*BillingSettings
	err      error
}

func newMemSettings() *memSettings {
	return &memSettings{settings: map[string]*BillingSettings{}}
}

func (m *memSettings) GetBillingSettings(ctx context.Context, clientID string) (*BillingSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.settings[clientID]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *memSettings) SaveBillingSettings(ctx context.Context, settings *BillingSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *settings
	m.settings[settings.ClientID] = &c
	return nil
}

func (m *memSettings) set(clientID, mode string) {
	m.settings[clientID] = &BillingSettings{ClientID: clientID, Mode: mode, Currency: "USD"}
}

// memRates 费率
type memRates struct {
	clientRates   map[string]decimal.Decimal // client|channel
	gatewayRates  map[string]*GatewayRate    // gateway|country
	overrides     map[string]string
	platformRates []*PlatformRate
	tiers         []*VolumeTier
}

func newMemRates() *memRates {
	return &memRates{
		clientRates:  map[string]decimal.Decimal{},
		gatewayRates: map[string]*GatewayRate{},
		overrides:    map[string]string{},
	}
}

func (m *memRates) GetClientRate(ctx context.Context, clientID, channel string) (*ClientRate, error) {
	r, ok := m.clientRates[clientID+"|"+channel]
	if !ok {
		return nil, nil
	}
	return &ClientRate{ClientID: clientID, Channel: channel, Rate: r}, nil
}

func (m *memRates) GetGatewayRate(ctx context.Context, gatewayID, countryCode string) (*GatewayRate, error) {
	return m.gatewayRates[gatewayID+"|"+countryCode], nil
}

func (m *memRates) GetMarketOverride(ctx context.Context, countryCode string) (string, error) {
	return m.overrides[countryCode], nil
}

func (m *memRates) GetLatestPlatformRate(ctx context.Context, market, category string, asOf time.Time) (*PlatformRate, error) {
	var hit *PlatformRate
	for _, r := range m.platformRates {
		if r.Market != market || r.Category != category || r.EffectiveDate.After(asOf) {
			continue
		}
		if hit == nil || r.EffectiveDate.After(hit.EffectiveDate) {
			hit = r
		}
	}
	return hit, nil
}

func (m *memRates) ListVolumeTiers(ctx context.Context, market, category string) ([]*VolumeTier, error) {
	var out []*VolumeTier
	for _, t := range m.tiers {
		if t.Market == market && t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memRates) UpsertClientRate(ctx context.Context, rate *ClientRate) error {
	m.clientRates[rate.ClientID+"|"+rate.Channel] = rate.Rate
	return nil
}

func (m *memRates) UpsertGatewayRate(ctx context.Context, rate *GatewayRate) error {
	m.gatewayRates[rate.GatewayID+"|"+strings.ToUpper(rate.CountryCode)] = rate
	return nil
}

func (m *memRates) UpsertMarketOverride(ctx context.Context, countryCode, market string) error {
	m.overrides[strings.ToUpper(countryCode)] = market
	return nil
}

func (m *memRates) UpsertPlatformRate(ctx context.Context, rate *PlatformRate) error {
	for i, r := range m.platformRates {
		if r.Market == rate.Market && r.Category == rate.Category && r.EffectiveDate.Equal(rate.EffectiveDate) {
			m.platformRates[i] = rate
			return nil
		}
	}
	m.platformRates = append(m.platformRates, rate)
	return nil
}

func (m *memRates) UpsertVolumeTier(ctx context.Context, tier *VolumeTier) error {
	for i, t := range m.tiers {
		if t.Market == tier.Market && t.Category == tier.Category && t.VolumeFrom == tier.VolumeFrom {
			m.tiers[i] = tier
			return nil
		}
	}
	m.tiers = append(m.tiers, tier)
	return nil
}

// recordingPublisher 记录发送的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(ctx context.Context, event *LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// stubLocker 任务锁
type stubLocker struct {
	locked   bool
	acquired []string
	released int
}

func (l *stubLocker) Acquire(ctx context.Context, name string, expiry time.Duration) (func(), error) {
	if l.locked {
		return nil, fmt.Errorf("%w: held", ErrJobLocked)
	}
	l.acquired = append(l.acquired, name)
	return func() { l.released++ }, nil
}

// fixture 组装一套基于内存实现的 UseCase
type fixture struct {
	ledgerRepo *memLedger
	settings   *memSettings
	rates      *memRates
	events     *recordingPublisher
	conf       *BillingConfig

	settingsUC   *SettingsUseCase
	rateUC       *RateUseCase
	costUC       *CostUseCase
	ledgerUC     *LedgerUseCase
	gateUC       *BalanceGateUseCase
	settlementUC *SettlementUseCase
}

func newFixture() *fixture {
	f := &fixture{
		ledgerRepo: newMemLedger(),
		settings:   newMemSettings(),
		rates:      newMemRates(),
		events:     &recordingPublisher{},
		conf:       testConfig(),
	}
	markets, err := NewMarketTable()
	if err != nil {
		panic(err)
	}
	clock := func() time.Time { return testNow }

	f.settingsUC = NewSettingsUseCase(f.settings, f.conf, testLogger)
	f.rateUC = NewRateUseCase(f.rates, markets, f.conf, testLogger)
	f.rateUC.now = clock
	f.costUC = NewCostUseCase(f.rateUC, f.settingsUC, testLogger)
	f.ledgerUC = NewLedgerUseCase(f.ledgerRepo, f.settingsUC, f.events, f.conf, testLogger)
	f.ledgerUC.now = clock
	f.gateUC = NewBalanceGateUseCase(f.ledgerRepo, f.settingsUC, f.costUC, testLogger)
	f.gateUC.now = clock
	f.settlementUC = NewSettlementUseCase(f.ledgerUC, f.ledgerRepo, f.ledgerRepo, testLogger)
	f.settlementUC.now = clock
	return f
}

func (f *fixture) fund(clientID string, amount string) {
	if _, err := f.ledgerUC.TopUp(context.Background(), clientID, dec(amount), "", ""); err != nil {
		panic(err)
	}
}

func (f *fixture) grant(clientID string, credits int64, expiresIn time.Duration) string {
	id, err := f.ledgerUC.AddCredits(context.Background(), clientID, credits, testNow.Add(expiresIn), "")
	if err != nil {
		panic(err)
	}
	return id
}
