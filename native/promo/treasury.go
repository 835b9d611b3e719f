package promo

import "promoledger/crypto"

// CheckTreasuryBalance reports the balance of target to the policy admin and
// emits it as an event. State is not modified.
func (e *Engine) CheckTreasuryBalance(admin, target crypto.Address) (uint64, error) {
	var balance uint64
	err := e.atomically(func(tx *txn) error {
		policy, err := e.loadPolicy()
		if err != nil {
			return err
		}
		if policy.Admin != admin {
			return ErrNotAdmin
		}
		if balance, err = tx.bank.Balance(target); err != nil {
			return err
		}
		tx.events.add(NewTreasuryBalanceEvent(target, balance))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}
