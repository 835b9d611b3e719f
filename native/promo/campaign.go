package promo

import (
	"promoledger/crypto"
)

func (p CampaignParams) validate(policy *Policy) error {
	if err := validateBps(p.DiscountBps, p.ResaleBps); err != nil {
		return err
	}
	if p.TotalCoupons == 0 {
		return ErrInvalidTotalCoupons
	}
	if p.MintCost == 0 {
		return ErrInvalidMintCost
	}
	if p.MaxDiscount == 0 {
		return ErrInvalidMaxDiscount
	}
	if p.DepositAmount == 0 {
		return ErrInvalidDepositAmount
	}
	if p.ResaleBps > policy.MaxResaleBps {
		return ErrInvalidResalePrice
	}
	if p.RequiresWallet && p.TargetWallet.IsZero() {
		return ErrTargetWalletRequired
	}
	if len(p.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// CreateCampaign registers a campaign for merchant and funds its vault with
// DepositAmount. The (merchant, CampaignID) pair determines the campaign
// address, so creating the same pair twice fails with ErrAccountInUse.
func (e *Engine) CreateCampaign(merchant crypto.Address, params CampaignParams) (crypto.Address, *Campaign, error) {
	var (
		addr     crypto.Address
		campaign *Campaign
	)
	err := e.atomically(func(tx *txn) error {
		policy, err := e.loadPolicy()
		if err != nil {
			return err
		}
		if err := params.validate(policy); err != nil {
			return err
		}
		addr = CampaignAddress(merchant, params.CampaignID)
		vaultAddr, bump := VaultAddress(addr)
		if err := e.ensureVacant(addr); err != nil {
			return err
		}
		if err := e.ensureVacant(vaultAddr); err != nil {
			return err
		}

		campaign = &Campaign{
			Merchant:            merchant,
			CampaignID:          params.CampaignID,
			DiscountBps:         params.DiscountBps,
			ServiceFeeBps:       policy.ServiceFeeBps,
			ResaleBps:           params.ResaleBps,
			ExpirationTimestamp: params.ExpirationTimestamp,
			TotalCoupons:        params.TotalCoupons,
			MintCost:            params.MintCost,
			MaxDiscount:         params.MaxDiscount,
			CategoryCode:        params.CategoryCode,
			ProductCode:         params.ProductCode,
			Name:                params.Name,
			RequiresWallet:      params.RequiresWallet,
		}
		if params.RequiresWallet {
			campaign.TargetWallet = params.TargetWallet
		}
		vault := &Vault{
			Campaign:     addr,
			Merchant:     merchant,
			Bump:         bump,
			TotalDeposit: params.DepositAmount,
		}
		if err := tx.create(merchant, addr, encodeCampaign(campaign)); err != nil {
			return err
		}
		if err := tx.create(merchant, vaultAddr, encodeVault(vault)); err != nil {
			return err
		}
		if err := tx.bank.Transfer(merchant, vaultAddr, params.DepositAmount); err != nil {
			return err
		}
		tx.events.add(NewCampaignCreatedEvent(addr, vaultAddr, campaign, params.DepositAmount))
		return nil
	})
	if err != nil {
		return crypto.Address{}, nil, err
	}
	return addr, campaign, nil
}
