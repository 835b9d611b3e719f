package promo

import (
	"errors"
	"testing"
)

func TestCampaignLayout(t *testing.T) {
	if CampaignAccountSize != 219 || VaultAccountSize != 97 || CouponAccountSize != 90 || PolicyAccountSize != 44 {
		t.Fatalf("unexpected record sizes %d %d %d %d", CampaignAccountSize, VaultAccountSize, CouponAccountSize, PolicyAccountSize)
	}
	campaign := &Campaign{
		Merchant:            merchantAddr,
		CampaignID:          77,
		DiscountBps:         1500,
		ServiceFeeBps:       300,
		ResaleBps:           8000,
		ExpirationTimestamp: -5,
		TotalCoupons:        10,
		UsedCoupons:         2,
		MintedCoupons:       4,
		MintCost:            11,
		MaxDiscount:         12,
		CategoryCode:        3,
		ProductCode:         4,
		Name:                "Winter",
		RequiresWallet:      true,
		TargetWallet:        userAddr,
		TotalPurchaseAmount: 99,
		TotalDiscount:       9,
		LastRedeemTimestamp: 1234,
	}
	data := encodeCampaign(campaign)
	if len(data) != CampaignAccountSize {
		t.Fatalf("unexpected encoded size %d", len(data))
	}
	decoded, err := decodeCampaign(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *decoded != *campaign {
		t.Fatalf("campaign mismatch:\n%+v\n%+v", decoded, campaign)
	}

	if _, err := decodeCoupon(data); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected discriminator mismatch, got %v", err)
	}
	if _, err := decodeCampaign(data[:CampaignAccountSize-1]); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected size mismatch, got %v", err)
	}
}

func TestDecodeRejectsCorruptFields(t *testing.T) {
	data := encodeCampaign(&Campaign{Name: "ok"})
	nameOffset := DiscriminatorLength + 32 + 8 + 2 + 2 + 2 + 8 + 4 + 4 + 4 + 8 + 8 + 2 + 2
	data[nameOffset] = MaxNameLength + 1
	if _, err := decodeCampaign(data); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected name length rejection, got %v", err)
	}

	coupon := encodeCoupon(&Coupon{CouponIndex: 1})
	coupon[DiscriminatorLength+32+8+32] = 2
	if _, err := decodeCoupon(coupon); !errors.Is(err, ErrInvalidAccountData) {
		t.Fatalf("expected bool rejection, got %v", err)
	}
}

func TestDerivedAddresses(t *testing.T) {
	campaign := CampaignAddress(merchantAddr, 1)
	if campaign != CampaignAddress(merchantAddr, 1) {
		t.Fatalf("derivation must be deterministic")
	}
	seen := map[string]bool{}
	for _, addr := range []interface{ String() string }{
		ConfigAddress(),
		campaign,
		CampaignAddress(merchantAddr, 2),
		CampaignAddress(userAddr, 1),
		CouponAddress(campaign, 0),
		CouponAddress(campaign, 1),
	} {
		if seen[addr.String()] {
			t.Fatalf("derived address collision %s", addr)
		}
		seen[addr.String()] = true
	}

	vault, bump := VaultAddress(campaign)
	recomputed, err := CreateProgramAddress(ProgramID, seedVault, campaign[:], []byte{bump})
	if err != nil {
		t.Fatalf("recompute vault: %v", err)
	}
	if recomputed != vault {
		t.Fatalf("bump does not reproduce the vault address")
	}
	if onCurve(vault[:]) {
		t.Fatalf("derived address must be off curve")
	}
}

func TestCreateProgramAddressLimits(t *testing.T) {
	long := make([]byte, MaxSeedLength+1)
	if _, err := CreateProgramAddress(ProgramID, long); !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("expected seed length rejection, got %v", err)
	}
	seeds := make([][]byte, MaxSeeds+1)
	if _, err := CreateProgramAddress(ProgramID, seeds...); !errors.Is(err, ErrInvalidSeeds) {
		t.Fatalf("expected seed count rejection, got %v", err)
	}
}
