package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"promoledger/crypto"
)

// InstructionKind defines the purpose of an instruction.
type InstructionKind byte

const (
	IxTransfer             InstructionKind = 0x01 // Native wallet-to-wallet transfer
	IxInitializePolicy     InstructionKind = 0x02
	IxUpgradePolicy        InstructionKind = 0x03
	IxCreateCampaign       InstructionKind = 0x04
	IxMintCoupon           InstructionKind = 0x05
	IxRedeemCoupon         InstructionKind = 0x06
	IxListCoupon           InstructionKind = 0x07
	IxBuyCoupon            InstructionKind = 0x08
	IxTransferCoupon       InstructionKind = 0x09
	IxCloseVault           InstructionKind = 0x0A
	IxExpireCoupon         InstructionKind = 0x0B
	IxCheckTreasuryBalance InstructionKind = 0x0C
)

var kindNames = map[InstructionKind]string{
	IxTransfer:             "transfer",
	IxInitializePolicy:     "initialize_policy",
	IxUpgradePolicy:        "upgrade_policy",
	IxCreateCampaign:       "create_campaign",
	IxMintCoupon:           "mint_coupon",
	IxRedeemCoupon:         "redeem_coupon",
	IxListCoupon:           "list_coupon",
	IxBuyCoupon:            "buy_coupon",
	IxTransferCoupon:       "transfer_coupon",
	IxCloseVault:           "close_vault",
	IxExpireCoupon:         "expire_coupon",
	IxCheckTreasuryBalance: "check_treasury_balance",
}

func (k InstructionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(k))
}

// Valid reports whether the kind is one the processor understands.
func (k InstructionKind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// MarshalText renders the kind by name.
func (k InstructionKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown instruction kind %d", byte(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *InstructionKind) UnmarshalText(text []byte) error {
	kind, err := ParseInstructionKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseInstructionKind resolves a kind from its name.
func ParseInstructionKind(name string) (InstructionKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for kind, candidate := range kindNames {
		if candidate == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown instruction kind %q", name)
}

var (
	ErrMissingSignature = errors.New("instruction: missing signature")
	ErrInvalidPayload   = errors.New("instruction: invalid payload")
	ErrInvalidSignature = errors.New("instruction: invalid signature")
)

// Instruction is a signed request to execute one ledger operation. The signer
// is never transmitted; it is recovered from the signature, which is how the
// ledger authenticates callers.
type Instruction struct {
	Kind      InstructionKind `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Salt      uint64          `json:"salt"` // Client-chosen; distinguishes otherwise identical submissions
	Signature hexutil.Bytes   `json:"signature"`

	signer *crypto.Address
}

// NewInstruction marshals payload into an unsigned instruction.
func NewInstruction(kind InstructionKind, payload interface{}, salt uint64) (*Instruction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown instruction kind %d", byte(kind))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &Instruction{Kind: kind, Payload: raw, Salt: salt}, nil
}

// Hash returns keccak256(rlp([kind, payload, salt])), the digest that is signed.
func (ix *Instruction) Hash() ([]byte, error) {
	body := struct {
		Kind    uint8
		Payload []byte
		Salt    uint64
	}{uint8(ix.Kind), []byte(ix.Payload), ix.Salt}
	encoded, err := rlp.EncodeToBytes(body)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(encoded), nil
}

// HashHex is Hash rendered as 0x-prefixed hex.
func (ix *Instruction) HashHex() (string, error) {
	hash, err := ix.Hash()
	if err != nil {
		return "", err
	}
	return hexutil.Encode(hash), nil
}

// Sign signs the instruction with key.
func (ix *Instruction) Sign(key *crypto.PrivateKey) error {
	hash, err := ix.Hash()
	if err != nil {
		return err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return err
	}
	ix.Signature = sig
	ix.signer = nil
	return nil
}

// Signer recovers the authenticated caller from the signature.
func (ix *Instruction) Signer() (crypto.Address, error) {
	if ix.signer != nil {
		return *ix.signer, nil
	}
	if len(ix.Signature) == 0 {
		return crypto.Address{}, ErrMissingSignature
	}
	hash, err := ix.Hash()
	if err != nil {
		return crypto.Address{}, err
	}
	addr, err := crypto.RecoverAddress(hash, ix.Signature)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	ix.signer = &addr
	return addr, nil
}

// DecodePayload unmarshals the payload into v, rejecting unknown fields.
func (ix *Instruction) DecodePayload(v interface{}) error {
	if len(ix.Payload) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	dec := json.NewDecoder(strings.NewReader(string(ix.Payload)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
