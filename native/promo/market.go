package promo

import (
	"promoledger/crypto"
	"promoledger/native/common"
)

// validateResalePrice enforces 0 < price <= min(max_discount,
// max_discount*resale_bps/10000) against the campaign's current bounds.
func validateResalePrice(campaign *Campaign, price uint64) error {
	if price == 0 || price > campaign.MaxDiscount {
		return ErrInvalidResalePrice
	}
	maxAllowed, err := common.ApplyBps(campaign.MaxDiscount, campaign.ResaleBps)
	if err != nil {
		return err
	}
	if price > maxAllowed {
		return ErrInvalidResalePrice
	}
	return nil
}

func (e *Engine) loadPair(campaignAddr, couponAddr crypto.Address) (*Campaign, *Coupon, error) {
	campaign, err := e.loadCampaign(campaignAddr)
	if err != nil {
		return nil, nil, err
	}
	coupon, err := e.loadCoupon(couponAddr)
	if err != nil {
		return nil, nil, err
	}
	if coupon.Campaign != campaignAddr {
		return nil, nil, ErrInvalidCouponCampaign
	}
	return campaign, coupon, nil
}

// ListCoupon offers the owner's coupon for sale at price.
func (e *Engine) ListCoupon(owner, campaignAddr, couponAddr crypto.Address, price uint64) error {
	return e.atomically(func(tx *txn) error {
		campaign, coupon, err := e.loadPair(campaignAddr, couponAddr)
		if err != nil {
			return err
		}
		if coupon.Owner != owner {
			return ErrNotCouponOwner
		}
		if coupon.Used {
			return ErrCouponAlreadyUsed
		}
		if coupon.Listed {
			return ErrCouponAlreadyListed
		}
		if err := validateResalePrice(campaign, price); err != nil {
			return err
		}
		coupon.Listed = true
		coupon.SalePrice = price
		if err := tx.store(couponAddr, encodeCoupon(coupon)); err != nil {
			return err
		}
		evt := newCouponEvent(EventTypeCouponListed, couponAddr, coupon)
		evt.Attributes["price"] = u64(price)
		tx.events.add(evt)
		return nil
	})
}

// BuyCoupon pays the listing price from buyer to seller and hands the coupon
// over. The price is checked again against the campaign's current bounds.
func (e *Engine) BuyCoupon(buyer, campaignAddr, couponAddr, seller crypto.Address) error {
	return e.atomically(func(tx *txn) error {
		campaign, coupon, err := e.loadPair(campaignAddr, couponAddr)
		if err != nil {
			return err
		}
		if !coupon.Listed {
			return ErrCouponNotListed
		}
		if coupon.Owner != seller {
			return ErrNotCouponOwner
		}
		if buyer == seller {
			return ErrInvalidBuyer
		}
		price := coupon.SalePrice
		if err := validateResalePrice(campaign, price); err != nil {
			return err
		}
		if err := tx.bank.Transfer(buyer, seller, price); err != nil {
			return err
		}
		coupon.Owner = buyer
		coupon.Listed = false
		coupon.SalePrice = 0
		if err := tx.store(couponAddr, encodeCoupon(coupon)); err != nil {
			return err
		}
		evt := newCouponEvent(EventTypeCouponSold, couponAddr, coupon)
		evt.Attributes["seller"] = seller.String()
		evt.Attributes["price"] = u64(price)
		tx.events.add(evt)
		return nil
	})
}

// TransferCoupon gives the coupon to newOwner. Any listing is cancelled.
func (e *Engine) TransferCoupon(owner, couponAddr, newOwner crypto.Address) error {
	return e.atomically(func(tx *txn) error {
		coupon, err := e.loadCoupon(couponAddr)
		if err != nil {
			return err
		}
		if coupon.Owner != owner {
			return ErrNotCouponOwner
		}
		coupon.Owner = newOwner
		coupon.Listed = false
		coupon.SalePrice = 0
		if err := tx.store(couponAddr, encodeCoupon(coupon)); err != nil {
			return err
		}
		evt := newCouponEvent(EventTypeCouponTransferred, couponAddr, coupon)
		evt.Attributes["previousOwner"] = owner.String()
		tx.events.add(evt)
		return nil
	})
}
