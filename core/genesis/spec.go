package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/holiman/uint256"

	"promoledger/crypto"
	"promoledger/native/common"
)

// GenesisSpec describes the initial ledger state: funded wallets and,
// optionally, a pre-initialised policy.
type GenesisSpec struct {
	GenesisTime string            `json:"genesisTime"`
	Alloc       map[string]string `json:"alloc"` // addr -> amount
	Policy      *PolicySpec       `json:"policy,omitempty"`

	genesisTimestamp time.Time
	balances         map[crypto.Address]uint64
}

// PolicySpec seeds the policy singleton. The admin pays the storage deposit
// from its allocation.
type PolicySpec struct {
	Admin         string `json:"admin"`
	MaxResaleBps  uint16 `json:"maxResaleBps"`
	ServiceFeeBps uint16 `json:"serviceFeeBps"`

	admin crypto.Address
}

// LoadGenesisSpec reads and validates the JSON genesis file at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes raw JSON, rejecting unknown fields.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// Balances returns the validated allocations keyed by address.
func (s *GenesisSpec) Balances() map[crypto.Address]uint64 {
	out := make(map[crypto.Address]uint64, len(s.balances))
	for addr, amount := range s.balances {
		out[addr] = amount
	}
	return out
}

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	s.balances = make(map[crypto.Address]uint64, len(s.Alloc))
	for rawAddr, rawAmount := range s.Alloc {
		addr, err := crypto.ParseAddress(rawAddr)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", rawAddr, err)
		}
		if _, dup := s.balances[addr]; dup {
			return fmt.Errorf("alloc %q: duplicate address", rawAddr)
		}
		amount, err := parseAmountString(rawAmount)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", rawAddr, err)
		}
		s.balances[addr] = amount
	}

	if s.Policy != nil {
		if err := s.Policy.validate(); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	return nil
}

func (p *PolicySpec) validate() error {
	addr, err := crypto.ParseAddress(p.Admin)
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if addr.IsZero() {
		return fmt.Errorf("admin must not be the zero address")
	}
	if p.MaxResaleBps > common.BpsDenominator || p.ServiceFeeBps > common.BpsDenominator {
		return fmt.Errorf("bps values must be <= %d", common.BpsDenominator)
	}
	p.admin = addr
	return nil
}

// AdminAddress returns the parsed policy admin.
func (p *PolicySpec) AdminAddress() crypto.Address { return p.admin }

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid genesisTime: %w", err)
	}
	return ts.UTC(), nil
}

func parseAmountString(value string) (uint64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount must be provided")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("amount %q exceeds the balance range", value)
	}
	return amount.Uint64(), nil
}
