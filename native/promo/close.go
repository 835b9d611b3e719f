package promo

import "promoledger/crypto"

// CloseVault destroys an expired campaign's vault and sweeps its custody
// balance and storage deposit to the merchant. The campaign record stays.
func (e *Engine) CloseVault(merchant, campaignAddr crypto.Address) (uint64, error) {
	var swept uint64
	err := e.atomically(func(tx *txn) error {
		campaign, err := e.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		if campaign.Merchant != merchant {
			return ErrNotMerchant
		}
		vaultAddr, _, _, err := e.loadVault(campaignAddr)
		if err != nil {
			return err
		}
		if e.now() <= campaign.ExpirationTimestamp {
			return ErrCampaignNotExpired
		}
		if swept, err = tx.bank.Close(ProgramID, vaultAddr, merchant); err != nil {
			return err
		}
		tx.events.add(newVaultClosedEvent(campaignAddr, vaultAddr, merchant, swept))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// ExpireCoupon destroys an unlisted coupon of an expired campaign, returning
// its storage deposit to the merchant.
func (e *Engine) ExpireCoupon(merchant, campaignAddr, couponAddr crypto.Address) error {
	return e.atomically(func(tx *txn) error {
		campaign, err := e.loadCampaign(campaignAddr)
		if err != nil {
			return err
		}
		if campaign.Merchant != merchant {
			return ErrNotMerchant
		}
		coupon, err := e.loadCoupon(couponAddr)
		if err != nil {
			return err
		}
		if coupon.Campaign != campaignAddr {
			return ErrInvalidCouponCampaign
		}
		if e.now() <= campaign.ExpirationTimestamp {
			return ErrCampaignNotExpired
		}
		if coupon.Listed {
			return ErrCouponListed
		}
		if _, err := tx.bank.Close(ProgramID, couponAddr, merchant); err != nil {
			return err
		}
		tx.events.add(newCouponEvent(EventTypeCouponExpired, couponAddr, coupon))
		return nil
	})
}
