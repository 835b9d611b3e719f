package promo

import (
	"fmt"
	"time"

	"promoledger/core/events"
	"promoledger/core/state"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/bank"
)

type engineState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	DeleteAccount(addr crypto.Address) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// RentSchedule prices the storage deposit of a record.
type RentSchedule interface {
	MinimumBalance(dataLen int) uint64
}

// Engine implements the campaign, vault and coupon state machine. Every
// operation is atomic: it runs inside a state snapshot that is reverted on
// the first failing check, and events are only emitted once all writes have
// been staged.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	treasury crypto.Address
	rent     RentSchedule
	nowFn    func() int64
}

// NewEngine creates a promo engine with a no-op emitter and the default rent
// schedule.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		rent:    state.DefaultRent(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st engineState) { e.state = st }

// SetTreasury configures the account that receives mint costs and service
// fees.
func (e *Engine) SetTreasury(addr crypto.Address) { e.treasury = addr }

// Treasury returns the configured fee account.
func (e *Engine) Treasury() crypto.Address { return e.treasury }

// SetRent overrides the storage deposit schedule. Nil restores the default.
func (e *Engine) SetRent(rent RentSchedule) {
	if rent == nil {
		e.rent = state.DefaultRent()
		return
	}
	e.rent = rent
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ensureTreasuryConfigured() error {
	if e.treasury.IsZero() {
		return errNilTreasury
	}
	return nil
}

// pending collects the events of one operation until it succeeds.
type pending struct {
	list []events.Event
}

func (p *pending) Emit(evt events.Event) { p.list = append(p.list, evt) }

func (p *pending) add(evt *types.Event) { p.list = append(p.list, promoEvent{evt: evt}) }

// txn is the unit of work handed to each operation.
type txn struct {
	engine *Engine
	bank   *bank.Bank
	events *pending
}

func (e *Engine) atomically(fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	snap := e.state.Snapshot()
	tx := &txn{engine: e, events: &pending{}}
	tx.bank = bank.New(e.state, tx.events)
	if err := fn(tx); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	for _, evt := range tx.events.list {
		e.emitter.Emit(evt)
	}
	return nil
}

// loadRecord returns the account at addr after checking it is a record owned
// by the module whose data starts with disc.
func (e *Engine) loadRecord(addr crypto.Address, disc [DiscriminatorLength]byte) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil || !acc.IsRecord() {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountOwner, addr)
	}
	if len(acc.Data) < DiscriminatorLength {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountData, addr)
	}
	var got [DiscriminatorLength]byte
	copy(got[:], acc.Data)
	if got != disc {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccountData, addr)
	}
	return acc, nil
}

func (e *Engine) loadPolicy() (*Policy, error) {
	acc, err := e.loadRecord(ConfigAddress(), policyDiscriminator)
	if err != nil {
		return nil, err
	}
	if len(acc.Data) != PolicyAccountSize {
		return nil, ErrInvalidConfigAccount
	}
	return decodePolicy(acc.Data)
}

func (e *Engine) loadCampaign(addr crypto.Address) (*Campaign, error) {
	acc, err := e.loadRecord(addr, campaignDiscriminator)
	if err != nil {
		return nil, err
	}
	return decodeCampaign(acc.Data)
}

func (e *Engine) loadCoupon(addr crypto.Address) (*Coupon, error) {
	acc, err := e.loadRecord(addr, couponDiscriminator)
	if err != nil {
		return nil, err
	}
	return decodeCoupon(acc.Data)
}

// loadVault resolves the vault of campaign, re-deriving its address and
// checking the stored bump. It also returns the custody balance.
func (e *Engine) loadVault(campaign crypto.Address) (crypto.Address, *Vault, uint64, error) {
	addr, bump := VaultAddress(campaign)
	acc, err := e.loadRecord(addr, vaultDiscriminator)
	if err != nil {
		return addr, nil, 0, err
	}
	vault, err := decodeVault(acc.Data)
	if err != nil {
		return addr, nil, 0, err
	}
	if vault.Bump != bump || vault.Campaign != campaign {
		return addr, nil, 0, ErrSeedsMismatch
	}
	return addr, vault, acc.Balance, nil
}

// ensureVacant fails when a record already lives at addr.
func (e *Engine) ensureVacant(addr crypto.Address) error {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.IsRecord() {
		return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}
	return nil
}

// create claims addr for the module, storing data and charging payer the
// storage deposit. Funds already sitting at addr stay as custody balance.
func (tx *txn) create(payer, addr crypto.Address, data []byte) error {
	st := tx.engine.state
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc.IsRecord() {
		return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}
	if acc == nil {
		acc = &types.Account{}
	}
	acc.Owner = ProgramID
	acc.Data = data
	if err := st.PutAccount(addr, acc); err != nil {
		return err
	}
	return tx.bank.FundRent(payer, addr, tx.engine.rent.MinimumBalance(len(data)))
}

// store replaces the data of an existing record, leaving its balances as they
// are.
func (tx *txn) store(addr crypto.Address, data []byte) error {
	st := tx.engine.state
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	if acc == nil || acc.Owner != ProgramID {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	acc.Data = data
	return st.PutAccount(addr, acc)
}
