package types

import "promoledger/crypto"

// TransferPayload moves native funds between two wallets.
type TransferPayload struct {
	To     crypto.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// PolicyPayload carries the bounds for initialize_policy and upgrade_policy.
type PolicyPayload struct {
	MaxResaleBps  uint16 `json:"maxResaleBps"`
	ServiceFeeBps uint16 `json:"serviceFeeBps"`
}

type CreateCampaignPayload struct {
	CampaignID          uint64         `json:"campaignId"`
	DiscountBps         uint16         `json:"discountBps"`
	ResaleBps           uint16         `json:"resaleBps"`
	ExpirationTimestamp int64          `json:"expirationTimestamp"`
	TotalCoupons        uint32         `json:"totalCoupons"`
	MintCost            uint64         `json:"mintCost"`
	MaxDiscount         uint64         `json:"maxDiscount"`
	CategoryCode        uint16         `json:"categoryCode"`
	ProductCode         uint16         `json:"productCode"`
	Name                string         `json:"name"`
	DepositAmount       uint64         `json:"depositAmount"`
	RequiresWallet      bool           `json:"requiresWallet"`
	TargetWallet        crypto.Address `json:"targetWallet"`
}

type MintCouponPayload struct {
	CampaignID  uint64         `json:"campaignId"`
	CouponIndex uint64         `json:"couponIndex"`
	Recipient   crypto.Address `json:"recipient"`
}

type RedeemCouponPayload struct {
	Campaign       crypto.Address `json:"campaign"`
	Coupon         crypto.Address `json:"coupon"`
	PurchaseAmount uint64         `json:"purchaseAmount"`
	ProductCode    uint16         `json:"productCode"`
}

type ListCouponPayload struct {
	Campaign crypto.Address `json:"campaign"`
	Coupon   crypto.Address `json:"coupon"`
	Price    uint64         `json:"price"`
}

type BuyCouponPayload struct {
	Campaign crypto.Address `json:"campaign"`
	Coupon   crypto.Address `json:"coupon"`
	Seller   crypto.Address `json:"seller"`
}

type TransferCouponPayload struct {
	Coupon   crypto.Address `json:"coupon"`
	NewOwner crypto.Address `json:"newOwner"`
}

type CloseVaultPayload struct {
	Campaign crypto.Address `json:"campaign"`
}

type ExpireCouponPayload struct {
	Campaign crypto.Address `json:"campaign"`
	Coupon   crypto.Address `json:"coupon"`
}

type CheckTreasuryBalancePayload struct {
	Target crypto.Address `json:"target"`
}
