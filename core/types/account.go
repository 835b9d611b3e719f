package types

import "promoledger/crypto"

// Account is the unit of ledger storage. Every address holds at most one
// account. Wallets carry only a spendable Balance; records created by a
// program carry the program as Owner, their serialized layout in Data and the
// storage deposit paid at creation in RentDeposit. For custody records
// (vaults) Balance holds the funds kept on behalf of the record's owner.
type Account struct {
	Balance     uint64         `json:"balance"`
	RentDeposit uint64         `json:"rentDeposit"`
	Owner       crypto.Address `json:"owner"`
	Data        []byte         `json:"data,omitempty"`
}

// IsWallet reports whether the account is externally controlled, i.e. it was
// never claimed by a program.
func (a *Account) IsWallet() bool {
	return a == nil || (a.Owner.IsZero() && len(a.Data) == 0)
}

// IsRecord reports whether the account is a program-owned record.
func (a *Account) IsRecord() bool {
	return a != nil && !a.Owner.IsZero()
}

// Clone returns a deep copy so callers can mutate it without touching cached
// state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Data != nil {
		clone.Data = append([]byte(nil), a.Data...)
	}
	return &clone
}
