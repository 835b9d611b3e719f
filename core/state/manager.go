package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/storage"
)

var (
	accountPrefix = []byte("account:")
	kvPrefix      = []byte("kv:")

	// ErrInvalidSnapshot is returned when reverting to a snapshot that was
	// never taken or has already been discarded.
	ErrInvalidSnapshot = errors.New("state: invalid snapshot id")
)

func accountKey(addr crypto.Address) []byte {
	buf := make([]byte, len(accountPrefix)+crypto.AddressLength)
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	buf := make([]byte, len(kvPrefix)+len(key))
	copy(buf, kvPrefix)
	copy(buf[len(kvPrefix):], key)
	return ethcrypto.Keccak256(buf)
}

// storedAccount is the RLP layout persisted for each account.
type storedAccount struct {
	Balance     uint64
	RentDeposit uint64
	Owner       crypto.Address
	Data        []byte
}

// dirtyValue is a pending write. A nil value marks a deletion.
type dirtyValue struct {
	value []byte
}

type journalEntry struct {
	key      string
	hadDirty bool
	prev     dirtyValue
}

// Manager is the journaled account store. Writes accumulate in memory and are
// only persisted by Commit, which applies them as one storage batch. Snapshot
// and RevertToSnapshot give callers nested all-or-nothing scopes on top of
// the pending writes.
type Manager struct {
	mu      sync.Mutex
	db      storage.Database
	dirty   map[string]dirtyValue
	journal []journalEntry
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]dirtyValue)}
}

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	if pending, ok := m.dirty[string(key)]; ok {
		if pending.value == nil {
			return nil, false, nil
		}
		return pending.value, true, nil
	}
	if m.db == nil {
		return nil, false, fmt.Errorf("state: database unavailable")
	}
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) write(key []byte, value []byte) {
	k := string(key)
	prev, had := m.dirty[k]
	m.journal = append(m.journal, journalEntry{key: k, hadDirty: had, prev: prev})
	m.dirty[k] = dirtyValue{value: value}
}

// GetAccount returns a copy of the account stored at addr, or nil when the
// address holds nothing.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	if m == nil {
		return nil, fmt.Errorf("state: manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok, err := m.read(accountKey(addr))
	if err != nil || !ok {
		return nil, err
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("state: decode account %s: %w", addr, err)
	}
	return &types.Account{
		Balance:     stored.Balance,
		RentDeposit: stored.RentDeposit,
		Owner:       stored.Owner,
		Data:        stored.Data,
	}, nil
}

// PutAccount stages the account. An empty wallet (no balance, owner or data)
// is removed instead of stored.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	if account.Balance == 0 && account.RentDeposit == 0 && account.IsWallet() {
		return m.DeleteAccount(addr)
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{
		Balance:     account.Balance,
		RentDeposit: account.RentDeposit,
		Owner:       account.Owner,
		Data:        account.Data,
	})
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.write(accountKey(addr), encoded)
	m.mu.Unlock()
	return nil
}

// DeleteAccount stages the removal of the account at addr.
func (m *Manager) DeleteAccount(addr crypto.Address) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	m.mu.Lock()
	m.write(accountKey(addr), nil)
	m.mu.Unlock()
	return nil
}

// Snapshot returns an identifier for the current pending state.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.journal)
}

// RevertToSnapshot undoes every write staged after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id > len(m.journal) {
		panic(fmt.Errorf("%w: %d (journal length %d)", ErrInvalidSnapshot, id, len(m.journal)))
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.hadDirty {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:id]
}

// Pending reports the number of keys with staged writes.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty)
}

// Commit persists every staged write as a single batch and clears the
// journal. On failure the staged writes are kept so the caller can decide to
// Discard them.
func (m *Manager) Commit() error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	batch := m.db.NewBatch()
	for key, pending := range m.dirty {
		if pending.value == nil {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), pending.value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]dirtyValue)
	m.journal = m.journal[:0]
	return nil
}

// Discard drops every staged write.
func (m *Manager) Discard() {
	m.mu.Lock()
	m.dirty = make(map[string]dirtyValue)
	m.journal = m.journal[:0]
	m.mu.Unlock()
}

// KVPut stores an RLP-encoded value under the provided key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.write(kvKey(key), encoded)
	m.mu.Unlock()
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	data, ok, err := m.read(kvKey(key))
	m.mu.Unlock()
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
