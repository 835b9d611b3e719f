package bank

import (
	"errors"
	"fmt"

	"promoledger/core/events"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/common"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrSourceNotWallet   = errors.New("bank: source is a program-owned record")
	ErrNotCustodian      = errors.New("bank: source is not owned by the program")
	ErrAccountMissing    = errors.New("bank: account does not exist")
	ErrNilLedger         = errors.New("bank: ledger not configured")
)

// Ledger is the account store the bank moves funds through.
type Ledger interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
	DeleteAccount(addr crypto.Address) error
}

// Bank implements the fund movement primitives. Every method either applies
// both sides of a movement or neither; callers that chain several movements
// are expected to wrap them in a state snapshot.
type Bank struct {
	ledger  Ledger
	emitter events.Emitter
}

// New returns a bank over ledger. A nil emitter discards transfer events.
func New(ledger Ledger, emitter events.Emitter) *Bank {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Bank{ledger: ledger, emitter: emitter}
}

func (b *Bank) load(addr crypto.Address) (*types.Account, error) {
	if b == nil || b.ledger == nil {
		return nil, ErrNilLedger
	}
	acc, err := b.ledger.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{}
	}
	return acc, nil
}

// move debits from's Balance and credits to's Balance.
func (b *Bank) move(from crypto.Address, fromAcc *types.Account, to crypto.Address, amount uint64) error {
	if fromAcc.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, fromAcc.Balance, amount)
	}
	if from == to {
		return nil
	}
	toAcc, err := b.load(to)
	if err != nil {
		return err
	}
	credited, err := common.AddU64(toAcc.Balance, amount)
	if err != nil {
		return err
	}
	fromAcc.Balance -= amount
	toAcc.Balance = credited
	if err := b.ledger.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return b.ledger.PutAccount(to, toAcc)
}

// Transfer is the peer-authenticated movement. The caller has already
// authenticated from as the signer; from must be a wallet.
func (b *Bank) Transfer(from, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromAcc, err := b.load(from)
	if err != nil {
		return err
	}
	if fromAcc.IsRecord() {
		return ErrSourceNotWallet
	}
	if err := b.move(from, fromAcc, to, amount); err != nil {
		return err
	}
	b.emitter.Emit(events.Transfer{Channel: events.ChannelPeer, From: from, To: to, Amount: amount})
	return nil
}

// TransferCustody moves funds out of a record owned by program. No signature
// is involved; ownership of the source by the program is the authority.
func (b *Bank) TransferCustody(program, from, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromAcc, err := b.load(from)
	if err != nil {
		return err
	}
	if !fromAcc.IsRecord() || fromAcc.Owner != program {
		return ErrNotCustodian
	}
	if err := b.move(from, fromAcc, to, amount); err != nil {
		return err
	}
	b.emitter.Emit(events.Transfer{Channel: events.ChannelCustody, From: from, To: to, Amount: amount})
	return nil
}

// FundRent moves amount from the payer wallet into the storage deposit of the
// record at addr. The record must already be staged.
func (b *Bank) FundRent(payer, record crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	payerAcc, err := b.load(payer)
	if err != nil {
		return err
	}
	if payerAcc.IsRecord() {
		return ErrSourceNotWallet
	}
	if payerAcc.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, payerAcc.Balance, amount)
	}
	recordAcc, err := b.load(record)
	if err != nil {
		return err
	}
	deposit, err := common.AddU64(recordAcc.RentDeposit, amount)
	if err != nil {
		return err
	}
	payerAcc.Balance -= amount
	recordAcc.RentDeposit = deposit
	if err := b.ledger.PutAccount(payer, payerAcc); err != nil {
		return err
	}
	if err := b.ledger.PutAccount(record, recordAcc); err != nil {
		return err
	}
	b.emitter.Emit(events.Transfer{Channel: events.ChannelRent, From: payer, To: record, Amount: amount})
	return nil
}

// Close destroys the record at addr, sweeping its custody balance and storage
// deposit to recipient. It returns the total swept.
func (b *Bank) Close(program, addr, recipient crypto.Address) (uint64, error) {
	acc, err := b.load(addr)
	if err != nil {
		return 0, err
	}
	if !acc.IsRecord() {
		return 0, ErrAccountMissing
	}
	if acc.Owner != program {
		return 0, ErrNotCustodian
	}
	swept, err := common.AddU64(acc.Balance, acc.RentDeposit)
	if err != nil {
		return 0, err
	}
	if addr == recipient {
		return 0, fmt.Errorf("bank: cannot close %s into itself", addr)
	}
	recipientAcc, err := b.load(recipient)
	if err != nil {
		return 0, err
	}
	credited, err := common.AddU64(recipientAcc.Balance, swept)
	if err != nil {
		return 0, err
	}
	recipientAcc.Balance = credited
	if err := b.ledger.DeleteAccount(addr); err != nil {
		return 0, err
	}
	if err := b.ledger.PutAccount(recipient, recipientAcc); err != nil {
		return 0, err
	}
	if swept > 0 {
		b.emitter.Emit(events.Transfer{Channel: events.ChannelClose, From: addr, To: recipient, Amount: swept})
	}
	return swept, nil
}

// Balance returns the spendable or custody balance held at addr.
func (b *Bank) Balance(addr crypto.Address) (uint64, error) {
	acc, err := b.load(addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}
