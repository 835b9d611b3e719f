package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckedArithmetic(t *testing.T) {
	if v, err := AddU64(2, 3); err != nil || v != 5 {
		t.Fatalf("add: %d %v", v, err)
	}
	if _, err := AddU64(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := SubU64(1, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if v, err := SubU64(10, 10); err != nil || v != 0 {
		t.Fatalf("sub: %d %v", v, err)
	}
	if _, err := AddU32(math.MaxUint32, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected u32 overflow, got %v", err)
	}
}

func TestApplyBps(t *testing.T) {
	cases := []struct {
		amount uint64
		bps    uint16
		want   uint64
	}{
		{100000, 1000, 10000},
		{5000, 200, 100},
		{5000, 5000, 2500},
		{99, 100, 0},
		{0, 10000, 0},
	}
	for _, tc := range cases {
		got, err := ApplyBps(tc.amount, tc.bps)
		if err != nil {
			t.Fatalf("apply %d@%d: %v", tc.amount, tc.bps, err)
		}
		if got != tc.want {
			t.Fatalf("apply %d@%d: want %d got %d", tc.amount, tc.bps, tc.want, got)
		}
	}
	// The product is checked even though the quotient would fit.
	if _, err := ApplyBps(math.MaxUint64, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
