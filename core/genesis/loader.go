package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"promoledger/core/state"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/promo"
)

var genesisMarkerKey = []byte("genesis/applied")

// ErrGenesisMismatch is returned when the store was initialised from a
// different genesis timestamp.
var ErrGenesisMismatch = errors.New("genesis: store initialised from a different genesis")

// Apply writes the genesis allocations and policy into manager and commits
// them as one batch. A store that already carries the same genesis is left
// untouched, so Apply is safe to call on every start.
func Apply(spec *GenesisSpec, manager *state.Manager, engine *promo.Engine) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if manager == nil || engine == nil {
		return false, fmt.Errorf("genesis: state and engine must not be nil")
	}
	var applied uint64
	ok, err := manager.KVGet(genesisMarkerKey, &applied)
	if err != nil {
		return false, err
	}
	if ok {
		if applied != uint64(spec.GenesisTimestamp().Unix()) {
			return false, fmt.Errorf("%w: stored %d, spec %d", ErrGenesisMismatch, applied, spec.GenesisTimestamp().Unix())
		}
		return false, nil
	}

	// Allocations in address order keep the journal deterministic.
	balances := spec.Balances()
	addrs := make([]crypto.Address, 0, len(balances))
	for addr := range balances {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	for _, addr := range addrs {
		acc, err := manager.GetAccount(addr)
		if err != nil {
			manager.Discard()
			return false, err
		}
		if acc != nil {
			manager.Discard()
			return false, fmt.Errorf("genesis: account %s already exists", addr)
		}
		if err := manager.PutAccount(addr, &types.Account{Balance: balances[addr]}); err != nil {
			manager.Discard()
			return false, fmt.Errorf("genesis: fund %s: %w", addr, err)
		}
	}

	if spec.Policy != nil {
		engine.SetNowFunc(func() int64 { return spec.GenesisTimestamp().Unix() })
		defer engine.SetNowFunc(nil)
		if err := engine.InitializePolicy(spec.Policy.AdminAddress(), spec.Policy.MaxResaleBps, spec.Policy.ServiceFeeBps); err != nil {
			manager.Discard()
			return false, fmt.Errorf("genesis: initialise policy: %w", err)
		}
	}

	if err := manager.SetStateVersion(state.StateVersion); err != nil {
		manager.Discard()
		return false, err
	}
	if err := manager.KVPut(genesisMarkerKey, uint64(spec.GenesisTimestamp().Unix())); err != nil {
		manager.Discard()
		return false, err
	}
	if err := manager.Commit(); err != nil {
		manager.Discard()
		return false, fmt.Errorf("genesis: commit: %w", err)
	}
	return true, nil
}
