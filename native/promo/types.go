package promo

import "promoledger/crypto"

const (
	// MaxNameLength bounds the campaign name in bytes.
	MaxNameLength = 64

	DiscriminatorLength = 8

	PolicyBodySize       = 32 + 2 + 2
	LegacyPolicyBodySize = 32 + 2
	CampaignBodySize     = 32 + 8 + 2 + 2 + 2 + 8 + 4 + 4 + 4 + 8 + 8 + 2 + 2 + 4 + MaxNameLength + 1 + 32 + 8 + 8 + 8
	VaultBodySize        = 32 + 32 + 1 + 8 + 8 + 8
	CouponBodySize       = 32 + 8 + 32 + 1 + 1 + 8

	PolicyAccountSize       = DiscriminatorLength + PolicyBodySize
	LegacyPolicyAccountSize = DiscriminatorLength + LegacyPolicyBodySize
	CampaignAccountSize     = DiscriminatorLength + CampaignBodySize
	VaultAccountSize        = DiscriminatorLength + VaultBodySize
	CouponAccountSize       = DiscriminatorLength + CouponBodySize
)

// Policy is the protocol-wide singleton.
type Policy struct {
	Admin         crypto.Address `json:"admin"`
	MaxResaleBps  uint16         `json:"maxResaleBps"`
	ServiceFeeBps uint16         `json:"serviceFeeBps"`
}

// Campaign holds a merchant's campaign configuration, counters and
// analytics. ServiceFeeBps is copied from the policy at creation and never
// changes afterwards.
type Campaign struct {
	Merchant            crypto.Address `json:"merchant"`
	CampaignID          uint64         `json:"campaignId"`
	DiscountBps         uint16         `json:"discountBps"`
	ServiceFeeBps       uint16         `json:"serviceFeeBps"`
	ResaleBps           uint16         `json:"resaleBps"`
	ExpirationTimestamp int64          `json:"expirationTimestamp"`
	TotalCoupons        uint32         `json:"totalCoupons"`
	UsedCoupons         uint32         `json:"usedCoupons"`
	MintedCoupons       uint32         `json:"mintedCoupons"`
	MintCost            uint64         `json:"mintCost"`
	MaxDiscount         uint64         `json:"maxDiscount"`
	CategoryCode        uint16         `json:"categoryCode"`
	ProductCode         uint16         `json:"productCode"`
	Name                string         `json:"name"`
	RequiresWallet      bool           `json:"requiresWallet"`
	TargetWallet        crypto.Address `json:"targetWallet"`
	TotalPurchaseAmount uint64         `json:"totalPurchaseAmount"`
	TotalDiscount       uint64         `json:"totalDiscount"`
	LastRedeemTimestamp int64          `json:"lastRedeemTimestamp"`
}

// Vault records the funding history of a campaign's custody account. The
// funds themselves are the account balance.
type Vault struct {
	Campaign          crypto.Address `json:"campaign"`
	Merchant          crypto.Address `json:"merchant"`
	Bump              uint8          `json:"bump"`
	TotalDeposit      uint64         `json:"totalDeposit"`
	TotalMintSpent    uint64         `json:"totalMintSpent"`
	TotalServiceSpent uint64         `json:"totalServiceSpent"`
}

// Coupon is a single entitlement.
type Coupon struct {
	Campaign    crypto.Address `json:"campaign"`
	CouponIndex uint64         `json:"couponIndex"`
	Owner       crypto.Address `json:"owner"`
	Used        bool           `json:"used"`
	Listed      bool           `json:"listed"`
	SalePrice   uint64         `json:"salePrice"`
}

// CampaignParams are the merchant-supplied inputs of CreateCampaign.
type CampaignParams struct {
	CampaignID          uint64
	DiscountBps         uint16
	ResaleBps           uint16
	ExpirationTimestamp int64
	TotalCoupons        uint32
	MintCost            uint64
	MaxDiscount         uint64
	CategoryCode        uint16
	ProductCode         uint16
	Name                string
	DepositAmount       uint64
	RequiresWallet      bool
	TargetWallet        crypto.Address
}

// Redemption summarises a successful RedeemCoupon call.
type Redemption struct {
	Merchant       crypto.Address `json:"merchant"`
	Campaign       crypto.Address `json:"campaign"`
	CampaignID     uint64         `json:"campaignId"`
	CategoryCode   uint16         `json:"categoryCode"`
	ProductCode    uint16         `json:"productCode"`
	CouponIndex    uint64         `json:"couponIndex"`
	PurchaseAmount uint64         `json:"purchaseAmount"`
	Discount       uint64         `json:"discount"`
	ServiceFee     uint64         `json:"serviceFee"`
	RedeemedAt     int64          `json:"redeemedAt"`
}
