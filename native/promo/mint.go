package promo

import (
	"promoledger/crypto"
	"promoledger/native/common"
)

// MintCoupon issues coupon couponIndex of the merchant's campaign to
// recipient. The mint cost moves from the campaign vault to the treasury and
// the merchant pays the coupon's storage deposit.
func (e *Engine) MintCoupon(merchant crypto.Address, campaignID, couponIndex uint64, recipient crypto.Address) (crypto.Address, *Coupon, error) {
	if err := e.ensureTreasuryConfigured(); err != nil {
		return crypto.Address{}, nil, err
	}
	var (
		couponAddr crypto.Address
		coupon     *Coupon
	)
	err := e.atomically(func(tx *txn) error {
		campaignAddr := CampaignAddress(merchant, campaignID)
		campaign, err := e.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		vaultAddr, vault, vaultBalance, err := e.loadVault(campaignAddr)
		if err != nil {
			return err
		}
		couponAddr = CouponAddress(campaignAddr, couponIndex)
		if err := e.ensureVacant(couponAddr); err != nil {
			return err
		}

		if campaign.CampaignID != campaignID {
			return ErrInvalidCampaignID
		}
		if campaign.MintedCoupons >= campaign.TotalCoupons {
			return ErrNoCouponsLeft
		}
		if campaign.MintCost == 0 {
			return ErrInvalidMintCost
		}
		if campaign.RequiresWallet && recipient != campaign.TargetWallet {
			return ErrNotEligibleForCampaign
		}
		if vaultBalance < campaign.MintCost {
			return ErrInsufficientVaultBalance
		}
		if err := tx.bank.TransferCustody(ProgramID, vaultAddr, e.treasury, campaign.MintCost); err != nil {
			return err
		}
		if vault.TotalMintSpent, err = common.AddU64(vault.TotalMintSpent, campaign.MintCost); err != nil {
			return err
		}
		if err := tx.store(vaultAddr, encodeVault(vault)); err != nil {
			return err
		}

		coupon = &Coupon{Campaign: campaignAddr, CouponIndex: couponIndex, Owner: recipient}
		if err := tx.create(merchant, couponAddr, encodeCoupon(coupon)); err != nil {
			return err
		}
		if campaign.MintedCoupons, err = common.AddU32(campaign.MintedCoupons, 1); err != nil {
			return err
		}
		if err := tx.store(campaignAddr, encodeCampaign(campaign)); err != nil {
			return err
		}
		tx.events.add(newCouponEvent(EventTypeCouponMinted, couponAddr, coupon))
		return nil
	})
	if err != nil {
		return crypto.Address{}, nil, err
	}
	return couponAddr, coupon, nil
}
