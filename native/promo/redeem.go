package promo

import (
	"promoledger/crypto"
	"promoledger/native/common"
)

// RedeemCoupon consumes a coupon against a purchase. The discount is
// purchaseAmount*discount_bps/10000 capped at max_discount; the service fee
// on that discount moves from the vault to the treasury. The coupon record is
// destroyed and its storage deposit returned to user.
func (e *Engine) RedeemCoupon(user, campaignAddr, couponAddr crypto.Address, purchaseAmount uint64, productCode uint16) (*Redemption, error) {
	if err := e.ensureTreasuryConfigured(); err != nil {
		return nil, err
	}
	var redemption *Redemption
	err := e.atomically(func(tx *txn) error {
		campaign, err := e.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		coupon, err := e.loadCoupon(couponAddr)
		if err != nil {
			return err
		}
		if coupon.Campaign != campaignAddr {
			return ErrInvalidCouponCampaign
		}
		if coupon.Owner != user {
			return ErrNotCouponOwner
		}
		vaultAddr, vault, vaultBalance, err := e.loadVault(campaignAddr)
		if err != nil {
			return err
		}

		now := e.now()
		if now > campaign.ExpirationTimestamp {
			return ErrCampaignExpired
		}
		if productCode != campaign.ProductCode {
			return ErrInvalidProductForCoupon
		}
		if campaign.UsedCoupons >= campaign.TotalCoupons {
			return ErrNoCouponsLeft
		}
		if coupon.Used {
			return ErrCouponAlreadyUsed
		}
		if coupon.Listed {
			return ErrCouponListed
		}

		discount, err := common.ApplyBps(purchaseAmount, campaign.DiscountBps)
		if err != nil {
			return err
		}
		if discount > campaign.MaxDiscount {
			discount = campaign.MaxDiscount
		}
		fee, err := common.ApplyBps(discount, campaign.ServiceFeeBps)
		if err != nil {
			return err
		}
		if fee > 0 {
			if vaultBalance < fee {
				return ErrInsufficientVaultBalance
			}
			if err := tx.bank.TransferCustody(ProgramID, vaultAddr, e.treasury, fee); err != nil {
				return err
			}
			if vault.TotalServiceSpent, err = common.AddU64(vault.TotalServiceSpent, fee); err != nil {
				return err
			}
			if err := tx.store(vaultAddr, encodeVault(vault)); err != nil {
				return err
			}
		}

		// The coupon is burned rather than kept in its used state.
		if _, err := tx.bank.Close(ProgramID, couponAddr, user); err != nil {
			return err
		}

		if campaign.UsedCoupons, err = common.AddU32(campaign.UsedCoupons, 1); err != nil {
			return err
		}
		if campaign.TotalPurchaseAmount, err = common.AddU64(campaign.TotalPurchaseAmount, purchaseAmount); err != nil {
			return err
		}
		if campaign.TotalDiscount, err = common.AddU64(campaign.TotalDiscount, discount); err != nil {
			return err
		}
		campaign.LastRedeemTimestamp = now
		if err := tx.store(campaignAddr, encodeCampaign(campaign)); err != nil {
			return err
		}

		redemption = &Redemption{
			Merchant:       campaign.Merchant,
			Campaign:       campaignAddr,
			CampaignID:     campaign.CampaignID,
			CategoryCode:   campaign.CategoryCode,
			ProductCode:    campaign.ProductCode,
			CouponIndex:    coupon.CouponIndex,
			PurchaseAmount: purchaseAmount,
			Discount:       discount,
			ServiceFee:     fee,
			RedeemedAt:     now,
		}
		tx.events.add(NewRedeemedEvent(redemption))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}
