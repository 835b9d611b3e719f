package promo

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"promoledger/core/events"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/bank"
)

type mockState struct {
	accounts  map[crypto.Address]*types.Account
	snapshots []map[crypto.Address]*types.Account
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[crypto.Address]*types.Account)}
}

func (m *mockState) GetAccount(addr crypto.Address) (*types.Account, error) {
	return m.accounts[addr].Clone(), nil
}

func (m *mockState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[addr] = account.Clone()
	return nil
}

func (m *mockState) DeleteAccount(addr crypto.Address) error {
	delete(m.accounts, addr)
	return nil
}

func (m *mockState) copyAccounts() map[crypto.Address]*types.Account {
	out := make(map[crypto.Address]*types.Account, len(m.accounts))
	for addr, acc := range m.accounts {
		out[addr] = acc.Clone()
	}
	return out
}

func (m *mockState) Snapshot() int {
	m.snapshots = append(m.snapshots, m.copyAccounts())
	return len(m.snapshots) - 1
}

func (m *mockState) RevertToSnapshot(id int) {
	m.accounts = m.snapshots[id]
	m.snapshots = m.snapshots[:id]
}

func (m *mockState) balance(addr crypto.Address) uint64 {
	if acc := m.accounts[addr]; acc != nil {
		return acc.Balance
	}
	return 0
}

func (m *mockState) fund(addr crypto.Address, amount uint64) {
	acc := m.accounts[addr]
	if acc == nil {
		acc = &types.Account{}
		m.accounts[addr] = acc
	}
	acc.Balance += amount
}

// byteRent charges one unit per byte of data.
type byteRent struct{}

func (byteRent) MinimumBalance(dataLen int) uint64 { return uint64(dataLen) }

type captureEmitter struct {
	events []*types.Event
}

func (c *captureEmitter) Emit(evt events.Event) {
	if payload, ok := evt.(events.Payload); ok {
		c.events = append(c.events, payload.Event())
	}
}

func (c *captureEmitter) ofType(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range c.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func newTestAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

var (
	adminAddr    = newTestAddress(0xA1)
	merchantAddr = newTestAddress(0xB2)
	treasuryAddr = newTestAddress(0xC3)
	userAddr     = newTestAddress(0xD4)
	buyerAddr    = newTestAddress(0xE5)
)

const (
	testNow        = int64(1_700_000_000)
	testExpiration = testNow + 3600
)

type harness struct {
	engine  *Engine
	state   *mockState
	emitter *captureEmitter
	now     int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{state: newMockState(), emitter: &captureEmitter{}, now: testNow}
	h.engine = NewEngine()
	h.engine.SetState(h.state)
	h.engine.SetEmitter(h.emitter)
	h.engine.SetRent(byteRent{})
	h.engine.SetTreasury(treasuryAddr)
	h.engine.SetNowFunc(func() int64 { return h.now })
	h.state.fund(adminAddr, 1_000)
	h.state.fund(merchantAddr, 1_000_000)
	h.state.fund(userAddr, 10_000)
	h.state.fund(buyerAddr, 10_000)
	return h
}

func (h *harness) initPolicy(t *testing.T, maxResaleBps, serviceFeeBps uint16) {
	t.Helper()
	if err := h.engine.InitializePolicy(adminAddr, maxResaleBps, serviceFeeBps); err != nil {
		t.Fatalf("initialize policy: %v", err)
	}
}

func scenarioParams() CampaignParams {
	return CampaignParams{
		CampaignID:          1,
		DiscountBps:         1000,
		ResaleBps:           5000,
		ExpirationTimestamp: testExpiration,
		TotalCoupons:        1,
		MintCost:            100,
		MaxDiscount:         5000,
		CategoryCode:        7,
		ProductCode:         42,
		Name:                "Spring sale",
		DepositAmount:       1000,
	}
}

func (h *harness) createCampaign(t *testing.T, params CampaignParams) crypto.Address {
	t.Helper()
	addr, _, err := h.engine.CreateCampaign(merchantAddr, params)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return addr
}

func (h *harness) mint(t *testing.T, campaignID, index uint64, recipient crypto.Address) crypto.Address {
	t.Helper()
	addr, _, err := h.engine.MintCoupon(merchantAddr, campaignID, index, recipient)
	if err != nil {
		t.Fatalf("mint coupon: %v", err)
	}
	return addr
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestInitializePolicy(t *testing.T) {
	h := newHarness(t)
	expectErr(t, h.engine.InitializePolicy(adminAddr, 10_001, 0), ErrInvalidBps)
	expectErr(t, h.engine.InitializePolicy(adminAddr, 0, 10_001), ErrInvalidBps)

	h.initPolicy(t, 5000, 200)
	policy, err := h.engine.Policy()
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if policy.Admin != adminAddr || policy.MaxResaleBps != 5000 || policy.ServiceFeeBps != 200 {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if got := h.state.balance(adminAddr); got != 1_000-PolicyAccountSize {
		t.Fatalf("admin must pay the storage deposit, balance %d", got)
	}
	expectErr(t, h.engine.InitializePolicy(userAddr, 1, 1), ErrAccountInUse)
	if len(h.emitter.ofType(EventTypePolicyInitialized)) != 1 {
		t.Fatalf("expected one initialized event")
	}
}

func writeLegacyPolicy(h *harness, admin crypto.Address, maxResaleBps uint16, size int) {
	data := make([]byte, size)
	copy(data, policyDiscriminator[:])
	if size >= DiscriminatorLength+crypto.AddressLength {
		copy(data[DiscriminatorLength:], admin[:])
	}
	if size >= LegacyPolicyAccountSize {
		data[40] = byte(maxResaleBps)
		data[41] = byte(maxResaleBps >> 8)
	}
	h.state.accounts[ConfigAddress()] = &types.Account{
		Owner:       ProgramID,
		Data:        data,
		RentDeposit: uint64(size),
	}
}

func TestUpgradePolicyMigratesLegacyLayout(t *testing.T) {
	h := newHarness(t)
	writeLegacyPolicy(h, adminAddr, 3000, LegacyPolicyAccountSize)

	if _, err := h.engine.Policy(); !errors.Is(err, ErrInvalidConfigAccount) {
		t.Fatalf("legacy layout must not decode, got %v", err)
	}
	expectErr(t, h.engine.UpgradePolicy(userAddr, 4000, 250), ErrNotAdmin)
	expectErr(t, h.engine.UpgradePolicy(adminAddr, 4000, 10_001), ErrInvalidBps)

	before := h.state.balance(adminAddr)
	if err := h.engine.UpgradePolicy(adminAddr, 4000, 250); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	policy, err := h.engine.Policy()
	if err != nil {
		t.Fatalf("policy after upgrade: %v", err)
	}
	if policy.Admin != adminAddr || policy.MaxResaleBps != 4000 || policy.ServiceFeeBps != 250 {
		t.Fatalf("unexpected policy %+v", policy)
	}
	record := h.state.accounts[ConfigAddress()]
	if len(record.Data) != PolicyAccountSize || record.RentDeposit != PolicyAccountSize {
		t.Fatalf("record not resized: len=%d deposit=%d", len(record.Data), record.RentDeposit)
	}
	if paid := before - h.state.balance(adminAddr); paid != PolicyAccountSize-LegacyPolicyAccountSize {
		t.Fatalf("admin must top up the deposit difference, paid %d", paid)
	}
	upgraded := h.emitter.ofType(EventTypePolicyUpgraded)
	if len(upgraded) != 1 || upgraded[0].Attributes["migrated"] != "true" {
		t.Fatalf("expected a migration event, got %+v", upgraded)
	}

	// A current-layout upgrade charges nothing.
	before = h.state.balance(adminAddr)
	if err := h.engine.UpgradePolicy(adminAddr, 100, 0); err != nil {
		t.Fatalf("second upgrade: %v", err)
	}
	if h.state.balance(adminAddr) != before {
		t.Fatalf("in-place upgrade must not charge the admin")
	}
}

func TestUpgradePolicyRejectsShortRecord(t *testing.T) {
	h := newHarness(t)
	expectErr(t, h.engine.UpgradePolicy(adminAddr, 1, 1), ErrInvalidConfigAccount)
	writeLegacyPolicy(h, adminAddr, 0, LegacyPolicyAccountSize-1)
	expectErr(t, h.engine.UpgradePolicy(adminAddr, 1, 1), ErrInvalidConfigAccount)
}

func TestCreateCampaignValidation(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)

	cases := []struct {
		name   string
		mutate func(p *CampaignParams)
		want   error
	}{
		{"discount bps", func(p *CampaignParams) { p.DiscountBps = 10_001 }, ErrInvalidBps},
		{"resale bps", func(p *CampaignParams) { p.ResaleBps = 10_001 }, ErrInvalidBps},
		{"total coupons", func(p *CampaignParams) { p.TotalCoupons = 0 }, ErrInvalidTotalCoupons},
		{"mint cost", func(p *CampaignParams) { p.MintCost = 0 }, ErrInvalidMintCost},
		{"max discount", func(p *CampaignParams) { p.MaxDiscount = 0 }, ErrInvalidMaxDiscount},
		{"deposit", func(p *CampaignParams) { p.DepositAmount = 0 }, ErrInvalidDepositAmount},
		{"resale above policy", func(p *CampaignParams) { p.ResaleBps = 5001 }, ErrInvalidResalePrice},
		{"target wallet", func(p *CampaignParams) { p.RequiresWallet = true }, ErrTargetWalletRequired},
		{"name", func(p *CampaignParams) { p.Name = string(bytes.Repeat([]byte("x"), MaxNameLength+1)) }, ErrNameTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := scenarioParams()
			tc.mutate(&params)
			before := h.state.copyAccounts()
			_, _, err := h.engine.CreateCampaign(merchantAddr, params)
			expectErr(t, err, tc.want)
			if len(before) != len(h.state.accounts) {
				t.Fatalf("rejected campaign must not create accounts")
			}
		})
	}
}

func TestCreateCampaignRequiresPolicy(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.engine.CreateCampaign(merchantAddr, scenarioParams())
	expectErr(t, err, ErrAccountNotFound)
}

func TestCreateCampaignFundsVault(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	params := scenarioParams()
	params.Name = string(bytes.Repeat([]byte("n"), MaxNameLength))
	params.TargetWallet = userAddr

	before := h.state.balance(merchantAddr)
	addr := h.createCampaign(t, params)
	if addr != CampaignAddress(merchantAddr, params.CampaignID) {
		t.Fatalf("campaign stored at unexpected address")
	}
	campaign, err := h.engine.Campaign(addr)
	if err != nil {
		t.Fatalf("load campaign: %v", err)
	}
	if campaign.ServiceFeeBps != 200 || campaign.Name != params.Name {
		t.Fatalf("unexpected campaign %+v", campaign)
	}
	if !campaign.TargetWallet.IsZero() {
		t.Fatalf("target wallet must be cleared for open campaigns")
	}
	if campaign.UsedCoupons != 0 || campaign.MintedCoupons != 0 || campaign.TotalDiscount != 0 {
		t.Fatalf("counters must start at zero: %+v", campaign)
	}
	vault, err := h.engine.Vault(addr)
	if err != nil {
		t.Fatalf("load vault: %v", err)
	}
	if vault.Balance != 1000 || vault.TotalDeposit != 1000 || vault.Merchant != merchantAddr {
		t.Fatalf("unexpected vault %+v", vault)
	}
	spent := before - h.state.balance(merchantAddr)
	if spent != 1000+CampaignAccountSize+VaultAccountSize {
		t.Fatalf("merchant must pay deposit plus storage, paid %d", spent)
	}
}

func TestCreateCampaignDuplicateFails(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	h.createCampaign(t, scenarioParams())
	balance := h.state.balance(merchantAddr)
	_, _, err := h.engine.CreateCampaign(merchantAddr, scenarioParams())
	expectErr(t, err, ErrAccountInUse)
	if h.state.balance(merchantAddr) != balance {
		t.Fatalf("duplicate campaign must not charge the merchant")
	}
	other := scenarioParams()
	other.CampaignID = 2
	h.createCampaign(t, other)
}

func TestCampaignServiceFeeIsSnapshotted(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	addr := h.createCampaign(t, scenarioParams())
	if err := h.engine.UpgradePolicy(adminAddr, 5000, 900); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	campaign, err := h.engine.Campaign(addr)
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	if campaign.ServiceFeeBps != 200 {
		t.Fatalf("policy change must not alter existing campaign, got %d", campaign.ServiceFeeBps)
	}
}

func TestRedeemScenario(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)
	if h.state.balance(treasuryAddr) != 100 {
		t.Fatalf("mint cost must reach the treasury")
	}

	userBefore := h.state.balance(userAddr)
	redemption, err := h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 100_000, 42)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redemption.Discount != 5000 || redemption.ServiceFee != 100 {
		t.Fatalf("unexpected redemption %+v", redemption)
	}
	vault, err := h.engine.Vault(campaignAddr)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	if vault.TotalServiceSpent != 100 || vault.TotalMintSpent != 100 || vault.Balance != 800 {
		t.Fatalf("unexpected vault %+v", vault)
	}
	campaign, err := h.engine.Campaign(campaignAddr)
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	if campaign.UsedCoupons != 1 || campaign.TotalPurchaseAmount != 100_000 || campaign.TotalDiscount != 5000 {
		t.Fatalf("unexpected campaign analytics %+v", campaign)
	}
	if campaign.LastRedeemTimestamp != testNow {
		t.Fatalf("unexpected last redeem timestamp %d", campaign.LastRedeemTimestamp)
	}
	if _, ok := h.state.accounts[couponAddr]; ok {
		t.Fatalf("redeemed coupon must be destroyed")
	}
	if refund := h.state.balance(userAddr) - userBefore; refund != CouponAccountSize {
		t.Fatalf("coupon deposit must be returned to the user, got %d", refund)
	}
	if h.state.balance(treasuryAddr) != 200 {
		t.Fatalf("treasury must hold mint cost plus fee, got %d", h.state.balance(treasuryAddr))
	}
	redeemed := h.emitter.ofType(EventTypeCouponRedeemed)
	if len(redeemed) != 1 {
		t.Fatalf("expected one redemption event")
	}
	attrs := redeemed[0].Attributes
	if attrs["discount"] != "5000" || attrs["serviceFee"] != "100" || attrs["productCode"] != "42" || attrs["categoryCode"] != "7" {
		t.Fatalf("unexpected redemption attributes %+v", attrs)
	}

	// Replaying the redemption fails because the coupon no longer exists.
	_, err = h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 100_000, 42)
	expectErr(t, err, ErrAccountNotFound)
}

func TestRedeemPreconditions(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	params := scenarioParams()
	params.TotalCoupons = 3
	campaignAddr := h.createCampaign(t, params)
	couponAddr := h.mint(t, 1, 0, userAddr)

	other := scenarioParams()
	other.CampaignID = 9
	otherAddr := h.createCampaign(t, other)

	_, err := h.engine.RedeemCoupon(userAddr, otherAddr, couponAddr, 100, 42)
	expectErr(t, err, ErrInvalidCouponCampaign)
	_, err = h.engine.RedeemCoupon(buyerAddr, campaignAddr, couponAddr, 100, 42)
	expectErr(t, err, ErrNotCouponOwner)
	_, err = h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 100, 41)
	expectErr(t, err, ErrInvalidProductForCoupon)

	if err := h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 100); err != nil {
		t.Fatalf("list: %v", err)
	}
	_, err = h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 100, 42)
	expectErr(t, err, ErrCouponListed)

	h.now = testExpiration + 1
	_, err = h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 100, 42)
	expectErr(t, err, ErrCampaignExpired)
}

func TestRedeemAtExpirationBoundary(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 0)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)
	h.now = testExpiration
	redemption, err := h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 1000, 42)
	if err != nil {
		t.Fatalf("redeem at expiration must succeed: %v", err)
	}
	if redemption.ServiceFee != 0 || redemption.Discount != 100 {
		t.Fatalf("unexpected redemption %+v", redemption)
	}
	vault, _ := h.engine.Vault(campaignAddr)
	if vault.TotalServiceSpent != 0 {
		t.Fatalf("zero fee must not touch the vault")
	}
}

// assertUnchanged fails if any account or the event log differs from the
// captured snapshot.
func (h *harness) assertUnchanged(t *testing.T, before map[crypto.Address]*types.Account, emitted int) {
	t.Helper()
	if len(h.emitter.events) != emitted {
		t.Fatalf("failed redemption must not emit events")
	}
	if len(before) != len(h.state.accounts) {
		t.Fatalf("failed redemption must not create or destroy accounts")
	}
	for addr, acc := range before {
		got := h.state.accounts[addr]
		if got == nil || got.Balance != acc.Balance || got.RentDeposit != acc.RentDeposit || !bytes.Equal(got.Data, acc.Data) {
			t.Fatalf("account %s changed after failed redemption", addr)
		}
	}
}

func TestRedeemOverflowLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	params := scenarioParams()
	params.TotalCoupons = 2
	// No discount, so only the purchase total can overflow.
	params.DiscountBps = 0
	campaignAddr := h.createCampaign(t, params)
	first := h.mint(t, 1, 0, userAddr)
	second := h.mint(t, 1, 1, userAddr)
	if _, err := h.engine.RedeemCoupon(userAddr, campaignAddr, first, math.MaxUint64, 42); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	campaign, err := h.engine.Campaign(campaignAddr)
	if err != nil || campaign.TotalPurchaseAmount != math.MaxUint64 {
		t.Fatalf("unexpected purchase total %+v %v", campaign, err)
	}
	before := h.state.copyAccounts()
	emitted := len(h.emitter.events)

	// The purchase total is saturated, so the second redemption must fail as a whole.
	_, err = h.engine.RedeemCoupon(userAddr, campaignAddr, second, 1, 42)
	expectErr(t, err, ErrOverflow)
	h.assertUnchanged(t, before, emitted)
}

func TestRedeemDiscountOverflowLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)
	before := h.state.copyAccounts()
	emitted := len(h.emitter.events)

	// purchase * discount_bps exceeds 64 bits.
	_, err := h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, math.MaxUint64, 42)
	expectErr(t, err, ErrOverflow)
	h.assertUnchanged(t, before, emitted)
	coupon, err := h.engine.Coupon(couponAddr)
	if err != nil || coupon.Used {
		t.Fatalf("coupon must survive the failed redemption: %+v %v", coupon, err)
	}
}

func TestRedeemInsufficientVaultBalance(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 10_000)
	params := scenarioParams()
	params.DepositAmount = 150
	campaignAddr := h.createCampaign(t, params)
	couponAddr := h.mint(t, 1, 0, userAddr)

	// 50 left in the vault, a 100 fee cannot be covered.
	_, err := h.engine.RedeemCoupon(userAddr, campaignAddr, couponAddr, 1000, 42)
	expectErr(t, err, ErrInsufficientVaultBalance)
	if _, ok := h.state.accounts[couponAddr]; !ok {
		t.Fatalf("coupon must survive a failed redemption")
	}
}

func TestMintCouponChecks(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	params := scenarioParams()
	params.TotalCoupons = 2
	params.DepositAmount = 150
	h.createCampaign(t, params)

	h.mint(t, 1, 0, userAddr)
	_, _, err := h.engine.MintCoupon(merchantAddr, 1, 0, userAddr)
	expectErr(t, err, ErrAccountInUse)
	_, _, err = h.engine.MintCoupon(merchantAddr, 1, 1, userAddr)
	expectErr(t, err, ErrInsufficientVaultBalance)
	_, _, err = h.engine.MintCoupon(userAddr, 1, 1, userAddr)
	expectErr(t, err, ErrAccountNotFound)

	targeted := scenarioParams()
	targeted.CampaignID = 2
	targeted.TotalCoupons = 1
	targeted.RequiresWallet = true
	targeted.TargetWallet = userAddr
	h.createCampaign(t, targeted)
	_, _, err = h.engine.MintCoupon(merchantAddr, 2, 0, buyerAddr)
	expectErr(t, err, ErrNotEligibleForCampaign)
	h.mint(t, 2, 0, userAddr)
	_, _, err = h.engine.MintCoupon(merchantAddr, 2, 1, userAddr)
	expectErr(t, err, ErrNoCouponsLeft)

	campaign, err := h.engine.Campaign(CampaignAddress(merchantAddr, 2))
	if err != nil {
		t.Fatalf("campaign: %v", err)
	}
	if campaign.MintedCoupons != campaign.TotalCoupons {
		t.Fatalf("unexpected minted count %d", campaign.MintedCoupons)
	}
}

func TestMintRequiresTreasury(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	h.createCampaign(t, scenarioParams())
	h.engine.SetTreasury(crypto.Address{})
	_, _, err := h.engine.MintCoupon(merchantAddr, 1, 0, userAddr)
	expectErr(t, err, errNilTreasury)
}

func TestVaultCustodyInvariant(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 2500)
	params := scenarioParams()
	params.TotalCoupons = 5
	params.DepositAmount = 10_000
	campaignAddr := h.createCampaign(t, params)
	for i := uint64(0); i < 5; i++ {
		coupon := h.mint(t, 1, i, userAddr)
		if _, err := h.engine.RedeemCoupon(userAddr, campaignAddr, coupon, 7_777*(i+1), 42); err != nil {
			t.Fatalf("redeem %d: %v", i, err)
		}
		vault, err := h.engine.Vault(campaignAddr)
		if err != nil {
			t.Fatalf("vault: %v", err)
		}
		if vault.Balance != vault.TotalDeposit-vault.TotalMintSpent-vault.TotalServiceSpent {
			t.Fatalf("custody invariant broken: %+v", vault)
		}
		campaign, _ := h.engine.Campaign(campaignAddr)
		if campaign.MintedCoupons > campaign.TotalCoupons || campaign.UsedCoupons > campaign.TotalCoupons {
			t.Fatalf("counters exceed total: %+v", campaign)
		}
	}
}

func TestListCouponPriceBounds(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)

	expectErr(t, h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 2600), ErrInvalidResalePrice)
	expectErr(t, h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 0), ErrInvalidResalePrice)
	expectErr(t, h.engine.ListCoupon(buyerAddr, campaignAddr, couponAddr, 2500), ErrNotCouponOwner)
	if err := h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 2500); err != nil {
		t.Fatalf("list at max price: %v", err)
	}
	expectErr(t, h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 2000), ErrCouponAlreadyListed)
	coupon, err := h.engine.Coupon(couponAddr)
	if err != nil {
		t.Fatalf("coupon: %v", err)
	}
	if !coupon.Listed || coupon.SalePrice != 2500 {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
}

func TestBuyCoupon(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)

	expectErr(t, h.engine.BuyCoupon(buyerAddr, campaignAddr, couponAddr, userAddr), ErrCouponNotListed)
	if err := h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 2000); err != nil {
		t.Fatalf("list: %v", err)
	}
	expectErr(t, h.engine.BuyCoupon(userAddr, campaignAddr, couponAddr, userAddr), ErrInvalidBuyer)
	expectErr(t, h.engine.BuyCoupon(buyerAddr, campaignAddr, couponAddr, merchantAddr), ErrNotCouponOwner)

	sellerBefore, buyerBefore := h.state.balance(userAddr), h.state.balance(buyerAddr)
	if err := h.engine.BuyCoupon(buyerAddr, campaignAddr, couponAddr, userAddr); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if h.state.balance(userAddr) != sellerBefore+2000 || h.state.balance(buyerAddr) != buyerBefore-2000 {
		t.Fatalf("sale price must move from buyer to seller")
	}
	coupon, err := h.engine.Coupon(couponAddr)
	if err != nil {
		t.Fatalf("coupon: %v", err)
	}
	if coupon.Owner != buyerAddr || coupon.Listed || coupon.SalePrice != 0 {
		t.Fatalf("unexpected coupon after sale %+v", coupon)
	}
	if len(h.emitter.ofType(EventTypeCouponSold)) != 1 {
		t.Fatalf("expected a sold event")
	}
}

func TestBuyCouponInsufficientFundsReverts(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)
	if err := h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 2500); err != nil {
		t.Fatalf("list: %v", err)
	}
	poor := newTestAddress(0x0F)
	h.state.fund(poor, 10)
	expectErr(t, h.engine.BuyCoupon(poor, campaignAddr, couponAddr, userAddr), bank.ErrInsufficientFunds)
	coupon, _ := h.engine.Coupon(couponAddr)
	if coupon.Owner != userAddr || !coupon.Listed {
		t.Fatalf("failed purchase must leave the listing intact")
	}
}

func TestTransferCouponClearsListing(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)
	if err := h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 1000); err != nil {
		t.Fatalf("list: %v", err)
	}
	expectErr(t, h.engine.TransferCoupon(buyerAddr, couponAddr, buyerAddr), ErrNotCouponOwner)
	if err := h.engine.TransferCoupon(userAddr, couponAddr, buyerAddr); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	coupon, _ := h.engine.Coupon(couponAddr)
	if coupon.Owner != buyerAddr || coupon.Listed || coupon.SalePrice != 0 {
		t.Fatalf("unexpected coupon %+v", coupon)
	}
}

func TestExpireCoupon(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	params := scenarioParams()
	params.TotalCoupons = 2
	campaignAddr := h.createCampaign(t, params)
	couponAddr := h.mint(t, 1, 0, userAddr)
	listedAddr := h.mint(t, 1, 1, userAddr)
	if err := h.engine.ListCoupon(userAddr, campaignAddr, listedAddr, 100); err != nil {
		t.Fatalf("list: %v", err)
	}

	expectErr(t, h.engine.ExpireCoupon(merchantAddr, campaignAddr, couponAddr), ErrCampaignNotExpired)
	h.now = testExpiration + 1
	expectErr(t, h.engine.ExpireCoupon(userAddr, campaignAddr, couponAddr), ErrNotMerchant)
	expectErr(t, h.engine.ExpireCoupon(merchantAddr, campaignAddr, listedAddr), ErrCouponListed)

	before := h.state.balance(merchantAddr)
	if err := h.engine.ExpireCoupon(merchantAddr, campaignAddr, couponAddr); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if h.state.balance(merchantAddr)-before != CouponAccountSize {
		t.Fatalf("coupon deposit must be returned to the merchant")
	}
	if _, ok := h.state.accounts[couponAddr]; ok {
		t.Fatalf("expired coupon must be destroyed")
	}
}

func TestCloseVault(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	h.mint(t, 1, 0, userAddr)

	_, err := h.engine.CloseVault(merchantAddr, campaignAddr)
	expectErr(t, err, ErrCampaignNotExpired)
	h.now = testExpiration + 1
	_, err = h.engine.CloseVault(userAddr, campaignAddr)
	expectErr(t, err, ErrNotMerchant)

	before := h.state.balance(merchantAddr)
	swept, err := h.engine.CloseVault(merchantAddr, campaignAddr)
	if err != nil {
		t.Fatalf("close vault: %v", err)
	}
	if swept != 900+VaultAccountSize || h.state.balance(merchantAddr)-before != swept {
		t.Fatalf("unexpected sweep %d", swept)
	}
	if _, err := h.engine.Campaign(campaignAddr); err != nil {
		t.Fatalf("campaign must persist after vault closure: %v", err)
	}
	if _, err := h.engine.Vault(campaignAddr); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("vault must be gone, got %v", err)
	}
	_, err = h.engine.CloseVault(merchantAddr, campaignAddr)
	expectErr(t, err, ErrAccountNotFound)
	if len(h.emitter.ofType(EventTypeVaultClosed)) != 1 {
		t.Fatalf("expected a vault closed event")
	}
}

func TestCheckTreasuryBalance(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	h.state.fund(treasuryAddr, 4321)

	_, err := h.engine.CheckTreasuryBalance(userAddr, treasuryAddr)
	expectErr(t, err, ErrNotAdmin)
	balance, err := h.engine.CheckTreasuryBalance(adminAddr, treasuryAddr)
	if err != nil {
		t.Fatalf("check balance: %v", err)
	}
	if balance != 4321 {
		t.Fatalf("unexpected balance %d", balance)
	}
	reports := h.emitter.ofType(EventTypeTreasuryBalance)
	if len(reports) != 1 || reports[0].Attributes["balance"] != "4321" || reports[0].Attributes["account"] != treasuryAddr.String() {
		t.Fatalf("unexpected reports %+v", reports)
	}
}

func TestRecordsRejectForeignData(t *testing.T) {
	h := newHarness(t)
	h.initPolicy(t, 5000, 200)
	campaignAddr := h.createCampaign(t, scenarioParams())
	couponAddr := h.mint(t, 1, 0, userAddr)

	// A coupon address handed in where a campaign is expected.
	_, err := h.engine.Campaign(couponAddr)
	expectErr(t, err, ErrInvalidAccountData)

	h.state.accounts[couponAddr].Owner = newTestAddress(0x77)
	err = h.engine.ListCoupon(userAddr, campaignAddr, couponAddr, 100)
	expectErr(t, err, ErrInvalidAccountOwner)
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code uint32
		name string
	}{
		{ErrInvalidCampaignState, 6000, "InvalidCampaignState"},
		{ErrInvalidBuyer, 6015, "InvalidBuyer"},
		{ErrOverflow, 6020, "Overflow"},
		{ErrCampaignExpired, 6027, "CampaignExpired"},
		{ErrAccountInUse, 3001, "AccountInUse"},
		{bank.ErrInsufficientFunds, 1, "InsufficientFunds"},
	}
	for _, tc := range cases {
		code, name, ok := ErrorCode(tc.err)
		if !ok || code != tc.code || name != tc.name {
			t.Fatalf("%v: got %d %s %v", tc.err, code, name, ok)
		}
	}
	if len(engineErrors) != len(engineErrorNames) {
		t.Fatalf("error names out of sync")
	}
	if _, _, ok := ErrorCode(errors.New("other")); ok {
		t.Fatalf("unknown error must not map")
	}
}
