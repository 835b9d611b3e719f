package quotas

import (
	"fmt"

	nativecommon "promoledger/native/common"
)

// counterRecord is the persisted usage of one signer. Counters from an older
// epoch are stale and reset by CheckQuota.
type counterRecord struct {
	EpochID  uint64
	ReqCount uint32
	Spent    uint64
}

type StoreState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Store keeps per-signer quota counters in ledger state so they commit or
// roll back together with the instruction that consumed them.
type Store struct {
	state StoreState
}

func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("quota store not initialised")
	}
	return s.state, nil
}

// Load returns the stored counters for addr within module.
func (s *Store) Load(module string, addr []byte) (nativecommon.QuotaNow, bool, error) {
	state, err := s.withState()
	if err != nil {
		return nativecommon.QuotaNow{}, false, err
	}
	if len(addr) == 0 {
		return nativecommon.QuotaNow{}, false, fmt.Errorf("quota: address required")
	}
	var stored counterRecord
	ok, err := state.KVGet(counterKey(module, addr), &stored)
	if err != nil {
		return nativecommon.QuotaNow{}, false, fmt.Errorf("quota: load counters: %w", err)
	}
	if !ok {
		return nativecommon.QuotaNow{}, false, nil
	}
	return nativecommon.QuotaNow{EpochID: stored.EpochID, ReqCount: stored.ReqCount, Spent: stored.Spent}, true, nil
}

// Save stages counters for addr within module.
func (s *Store) Save(module string, addr []byte, counters nativecommon.QuotaNow) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	if len(addr) == 0 {
		return fmt.Errorf("quota: address required")
	}
	record := counterRecord{EpochID: counters.EpochID, ReqCount: counters.ReqCount, Spent: counters.Spent}
	if err := state.KVPut(counterKey(module, addr), record); err != nil {
		return fmt.Errorf("quota: persist counters: %w", err)
	}
	return nil
}

// Check evaluates one more request spending spend at unix time now against
// quota. The returned counters are what Save should persist once the request
// commits; nothing is written here.
func (s *Store) Check(module string, quota nativecommon.Quota, now int64, addr []byte, spend uint64) (nativecommon.QuotaNow, error) {
	prev, _, err := s.Load(module, addr)
	if err != nil {
		return nativecommon.QuotaNow{}, err
	}
	return nativecommon.CheckQuota(quota, quota.EpochFor(now), prev, 1, spend)
}
