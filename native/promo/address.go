package promo

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"promoledger/crypto"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

// ProgramID identifies the promo module as the owner of its records.
var ProgramID = crypto.BytesToAddress(ethcrypto.Keccak256([]byte("promoledger/native/promo")))

var (
	seedConfig   = []byte("config")
	seedCampaign = []byte("campaign")
	seedVault    = []byte("vault")
	seedCoupon   = []byte("coupon")
)

// onCurve reports whether b is the x-coordinate of a secp256k1 point.
func onCurve(b []byte) bool {
	compressed := make([]byte, 0, 33)
	compressed = append(compressed, 0x02)
	compressed = append(compressed, b...)
	_, err := ethcrypto.DecompressPubkey(compressed)
	return err == nil
}

// CreateProgramAddress hashes seeds‖programID‖marker. Candidates that fall on
// the curve are rejected so a derived address never doubles as a public key.
func CreateProgramAddress(programID crypto.Address, seeds ...[]byte) (crypto.Address, error) {
	if len(seeds) > MaxSeeds {
		return crypto.Address{}, fmt.Errorf("%w: too many seeds", ErrInvalidSeeds)
	}
	parts := make([][]byte, 0, len(seeds)+2)
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return crypto.Address{}, fmt.Errorf("%w: seed longer than %d bytes", ErrInvalidSeeds, MaxSeedLength)
		}
		parts = append(parts, seed)
	}
	parts = append(parts, programID[:], []byte(pdaMarker))
	hash := ethcrypto.Keccak256(parts...)
	if onCurve(hash) {
		return crypto.Address{}, fmt.Errorf("%w: candidate on curve", ErrInvalidSeeds)
	}
	return crypto.BytesToAddress(hash), nil
}

// FindProgramAddress searches bumps from 255 downwards and returns the first
// viable address together with its bump.
func FindProgramAddress(programID crypto.Address, seeds ...[]byte) (crypto.Address, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(programID, withBump...)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return crypto.Address{}, 0, ErrInvalidSeeds
}

func mustFind(seeds ...[]byte) (crypto.Address, uint8) {
	addr, bump, err := FindProgramAddress(ProgramID, seeds...)
	if err != nil {
		// 256 consecutive on-curve candidates do not occur in practice.
		panic(err)
	}
	return addr, bump
}

func le64(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

// ConfigAddress is the address of the policy singleton.
func ConfigAddress() crypto.Address {
	addr, _ := mustFind(seedConfig)
	return addr
}

// CampaignAddress derives the campaign record of (merchant, campaignID).
func CampaignAddress(merchant crypto.Address, campaignID uint64) crypto.Address {
	addr, _ := mustFind(seedCampaign, merchant[:], le64(campaignID))
	return addr
}

// VaultAddress derives the vault of a campaign and its bump.
func VaultAddress(campaign crypto.Address) (crypto.Address, uint8) {
	return mustFind(seedVault, campaign[:])
}

// CouponAddress derives the coupon record for (campaign, couponIndex).
func CouponAddress(campaign crypto.Address, couponIndex uint64) crypto.Address {
	addr, _ := mustFind(seedCoupon, campaign[:], le64(couponIndex))
	return addr
}
