package state

import (
	"math"

	"github.com/holiman/uint256"
)

// AccountStorageOverhead is the number of bytes charged for every account on
// top of its data.
const AccountStorageOverhead = 128

// Rent describes the storage deposit a record must carry to stay exempt from
// rent collection.
type Rent struct {
	PerByteYear    uint64
	ExemptionYears uint64
}

// DefaultRent mirrors the deposit schedule used by the reference runtime.
func DefaultRent() Rent {
	return Rent{PerByteYear: 3480, ExemptionYears: 2}
}

// MinimumBalance returns the deposit required for an account holding dataLen
// bytes. The result saturates at the maximum balance.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	if dataLen < 0 {
		dataLen = 0
	}
	size := uint256.NewInt(uint64(dataLen) + AccountStorageOverhead)
	perByte := uint256.NewInt(r.PerByteYear)
	years := uint256.NewInt(r.ExemptionYears)
	total, overflow := new(uint256.Int).MulOverflow(size, perByte)
	if !overflow {
		total, overflow = new(uint256.Int).MulOverflow(total, years)
	}
	if overflow || !total.IsUint64() {
		return math.MaxUint64
	}
	return total.Uint64()
}
