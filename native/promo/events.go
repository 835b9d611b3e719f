package promo

import (
	"strconv"

	"promoledger/core/types"
	"promoledger/crypto"
)

const (
	EventTypePolicyInitialized = "promo.policy.initialized"
	EventTypePolicyUpgraded    = "promo.policy.upgraded"
	EventTypeCampaignCreated   = "promo.campaign.created"
	EventTypeCouponMinted      = "promo.coupon.minted"
	EventTypeCouponRedeemed    = "promo.coupon.redeemed"
	EventTypeCouponListed      = "promo.coupon.listed"
	EventTypeCouponSold        = "promo.coupon.sold"
	EventTypeCouponTransferred = "promo.coupon.transferred"
	EventTypeCouponExpired     = "promo.coupon.expired"
	EventTypeVaultClosed       = "promo.vault.closed"
	EventTypeTreasuryBalance   = "promo.treasury.balance"
)

type promoEvent struct {
	evt *types.Event
}

func (e promoEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e promoEvent) Event() *types.Event { return e.evt }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func i64(v int64) string { return strconv.FormatInt(v, 10) }

func u16(v uint16) string { return strconv.FormatUint(uint64(v), 10) }

func newPolicyEvent(eventType string, addr crypto.Address, p *Policy) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"config":        addr.String(),
			"admin":         p.Admin.String(),
			"maxResaleBps":  u16(p.MaxResaleBps),
			"serviceFeeBps": u16(p.ServiceFeeBps),
		},
	}
}

// NewCampaignCreatedEvent describes a freshly funded campaign.
func NewCampaignCreatedEvent(addr, vault crypto.Address, c *Campaign, deposit uint64) *types.Event {
	return &types.Event{
		Type: EventTypeCampaignCreated,
		Attributes: map[string]string{
			"campaign":            addr.String(),
			"vault":               vault.String(),
			"merchant":            c.Merchant.String(),
			"campaignId":          u64(c.CampaignID),
			"totalCoupons":        u64(uint64(c.TotalCoupons)),
			"serviceFeeBps":       u16(c.ServiceFeeBps),
			"expirationTimestamp": i64(c.ExpirationTimestamp),
			"deposit":             u64(deposit),
		},
	}
}

func newCouponEvent(eventType string, addr crypto.Address, c *Coupon) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"coupon":      addr.String(),
			"campaign":    c.Campaign.String(),
			"couponIndex": u64(c.CouponIndex),
			"owner":       c.Owner.String(),
		},
	}
}

// NewRedeemedEvent carries everything an analytics consumer needs to
// aggregate a redemption.
func NewRedeemedEvent(r *Redemption) *types.Event {
	return &types.Event{
		Type: EventTypeCouponRedeemed,
		Attributes: map[string]string{
			"merchant":       r.Merchant.String(),
			"campaign":       r.Campaign.String(),
			"campaignId":     u64(r.CampaignID),
			"categoryCode":   u16(r.CategoryCode),
			"productCode":    u16(r.ProductCode),
			"couponIndex":    u64(r.CouponIndex),
			"purchaseAmount": u64(r.PurchaseAmount),
			"discount":       u64(r.Discount),
			"serviceFee":     u64(r.ServiceFee),
			"redeemedAt":     i64(r.RedeemedAt),
		},
	}
}

// NewTreasuryBalanceEvent reports the balance of an inspected account.
func NewTreasuryBalanceEvent(account crypto.Address, balance uint64) *types.Event {
	return &types.Event{
		Type: EventTypeTreasuryBalance,
		Attributes: map[string]string{
			"account": account.String(),
			"balance": u64(balance),
		},
	}
}

func newVaultClosedEvent(campaign, vault, merchant crypto.Address, swept uint64) *types.Event {
	return &types.Event{
		Type: EventTypeVaultClosed,
		Attributes: map[string]string{
			"campaign": campaign.String(),
			"vault":    vault.String(),
			"merchant": merchant.String(),
			"swept":    u64(swept),
		},
	}
}
