package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part used when rendering addresses.
const AddressPrefix = "promo"

// AddressLength is the width of every ledger identifier.
const AddressLength = 32

// Address is a 32-byte ledger identifier. Wallet addresses are the keccak256
// hash of the uncompressed secp256k1 public key; record addresses are derived
// from seeds. Addresses are compared by value only.
type Address [AddressLength]byte

// ZeroAddress is the all-zero identifier ("no wallet").
var ZeroAddress Address

// BytesToAddress copies b into an Address. It panics if b has the wrong length.
func BytesToAddress(b []byte) Address {
	if len(b) != AddressLength {
		panic(fmt.Sprintf("address must be %d bytes long, got %d", AddressLength, len(b)))
	}
	var addr Address
	copy(addr[:], b)
	return addr
}

// IsZero reports whether the address is the zero identifier.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressLength)
	copy(out, a[:])
	return out
}

// Hex returns the 0x-prefixed hexadecimal form.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText encodes the address in bech32 form.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText accepts either the bech32 or the 0x-hex form.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// ParseAddress decodes a bech32 ("promo1…") or 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		raw, err := hex.DecodeString(trimmed[2:])
		if err != nil {
			return Address{}, fmt.Errorf("invalid hex address: %w", err)
		}
		if len(raw) != AddressLength {
			return Address{}, fmt.Errorf("hex address must be %d bytes (got %d)", AddressLength, len(raw))
		}
		return BytesToAddress(raw), nil
	}
	prefix, decoded, err := bech32.Decode(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	if prefix != AddressPrefix {
		return Address{}, fmt.Errorf("unexpected address prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes (got %d)", AddressLength, len(conv))
	}
	return BytesToAddress(conv), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address returns the wallet address controlled by the key.
func (k *PrivateKey) Address() Address {
	return k.PubKey().Address()
}

func (k *PublicKey) Address() Address {
	return PubkeyToAddress(k.PublicKey)
}

// PubkeyToAddress hashes the uncompressed public key (without the 0x04 tag).
func PubkeyToAddress(pub *ecdsa.PublicKey) Address {
	raw := crypto.FromECDSAPub(pub)
	return BytesToAddress(crypto.Keccak256(raw[1:]))
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Sign produces a 65-byte [R || S || V] signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return crypto.Sign(digest, k.PrivateKey)
}

// RecoverAddress returns the wallet address that produced sig over digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(sig) != crypto.SignatureLength {
		return Address{}, fmt.Errorf("signature must be %d bytes (got %d)", crypto.SignatureLength, len(sig))
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, err
	}
	return PubkeyToAddress(pub), nil
}
