package promo

import "promoledger/crypto"

// VaultView is a vault together with its custody balance.
type VaultView struct {
	Vault
	Address crypto.Address `json:"address"`
	Balance uint64         `json:"balance"`
}

// Policy returns the current policy. A record still in the legacy layout
// reports ErrInvalidConfigAccount until it has been upgraded.
func (e *Engine) Policy() (*Policy, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadPolicy()
}

// Campaign returns the campaign stored at addr.
func (e *Engine) Campaign(addr crypto.Address) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadCampaign(addr)
}

// Vault returns the vault of the campaign stored at campaignAddr.
func (e *Engine) Vault(campaignAddr crypto.Address) (*VaultView, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addr, vault, balance, err := e.loadVault(campaignAddr)
	if err != nil {
		return nil, err
	}
	return &VaultView{Vault: *vault, Address: addr, Balance: balance}, nil
}

// Coupon returns the coupon stored at addr.
func (e *Engine) Coupon(addr crypto.Address) (*Coupon, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadCoupon(addr)
}
