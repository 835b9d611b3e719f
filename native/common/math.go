package common

import (
	"errors"
	"math"

	"github.com/holiman/uint256"
)

// BpsDenominator is the basis-point scale (100%).
const BpsDenominator = 10_000

// ErrOverflow reports a checked arithmetic failure. Values never wrap or
// saturate.
var ErrOverflow = errors.New("arithmetic overflow")

// AddU64 returns a+b or ErrOverflow.
func AddU64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// SubU64 returns a-b or ErrOverflow when b exceeds a.
func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// AddU32 returns a+b or ErrOverflow.
func AddU32(a, b uint32) (uint32, error) {
	if a > math.MaxUint32-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// MulDiv returns floor(a*b/denominator). The product is computed in 256 bits;
// ErrOverflow is returned when it does not fit in 64 bits or when the
// quotient does not.
func MulDiv(a, b, denominator uint64) (uint64, error) {
	if denominator == 0 {
		return 0, errors.New("division by zero")
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	if !product.IsUint64() {
		return 0, ErrOverflow
	}
	quotient := new(uint256.Int).Div(product, uint256.NewInt(denominator))
	return quotient.Uint64(), nil
}

// ApplyBps returns floor(amount*bps/10000) with a checked multiplication.
func ApplyBps(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}
