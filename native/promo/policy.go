package promo

import (
	"promoledger/crypto"
	"promoledger/native/common"
)

const legacyPolicyPrefix = DiscriminatorLength + crypto.AddressLength + 2

func validateBps(values ...uint16) error {
	for _, v := range values {
		if v > common.BpsDenominator {
			return ErrInvalidBps
		}
	}
	return nil
}

// InitializePolicy creates the policy singleton with admin as its owner. The
// admin pays the storage deposit.
func (e *Engine) InitializePolicy(admin crypto.Address, maxResaleBps, serviceFeeBps uint16) error {
	if err := validateBps(maxResaleBps, serviceFeeBps); err != nil {
		return err
	}
	return e.atomically(func(tx *txn) error {
		addr := ConfigAddress()
		policy := &Policy{Admin: admin, MaxResaleBps: maxResaleBps, ServiceFeeBps: serviceFeeBps}
		if err := tx.create(admin, addr, encodePolicy(policy)); err != nil {
			return err
		}
		tx.events.add(newPolicyEvent(EventTypePolicyInitialized, addr, policy))
		return nil
	})
}

// UpgradePolicy rewrites the policy with new bounds. The admin is read from
// the raw record prefix so records written with the legacy layout (without
// service_fee_bps) can be migrated in place; the record is resized and its
// storage deposit topped up by the admin when needed.
func (e *Engine) UpgradePolicy(admin crypto.Address, maxResaleBps, serviceFeeBps uint16) error {
	if err := validateBps(maxResaleBps, serviceFeeBps); err != nil {
		return err
	}
	return e.atomically(func(tx *txn) error {
		addr := ConfigAddress()
		acc, err := e.state.GetAccount(addr)
		if err != nil {
			return err
		}
		if acc == nil || acc.Owner != ProgramID {
			return ErrInvalidConfigAccount
		}
		data := acc.Data
		if len(data) < legacyPolicyPrefix {
			return ErrInvalidConfigAccount
		}
		stored := crypto.BytesToAddress(data[DiscriminatorLength : DiscriminatorLength+crypto.AddressLength])
		if stored != admin {
			return ErrNotAdmin
		}

		migrated := len(data) != PolicyAccountSize
		if migrated {
			required := e.rent.MinimumBalance(PolicyAccountSize)
			if acc.RentDeposit < required {
				diff, err := common.SubU64(required, acc.RentDeposit)
				if err != nil {
					return err
				}
				if err := tx.bank.FundRent(admin, addr, diff); err != nil {
					return err
				}
			}
			resized := make([]byte, PolicyAccountSize)
			copy(resized[:DiscriminatorLength], data[:DiscriminatorLength])
			data = resized
		} else {
			data = append([]byte(nil), data...)
		}
		for i := DiscriminatorLength; i < len(data); i++ {
			data[i] = 0
		}
		policy := &Policy{Admin: stored, MaxResaleBps: maxResaleBps, ServiceFeeBps: serviceFeeBps}
		encodePolicyBody(data[DiscriminatorLength:], policy)
		if err := tx.store(addr, data); err != nil {
			return err
		}
		evt := newPolicyEvent(EventTypePolicyUpgraded, addr, policy)
		if migrated {
			evt.Attributes["migrated"] = "true"
		}
		tx.events.add(evt)
		return nil
	})
}
