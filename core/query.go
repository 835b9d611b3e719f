package core

import (
	"promoledger/crypto"
	"promoledger/native/promo"
)

// AccountView is the public shape of a ledger account.
type AccountView struct {
	Address     crypto.Address `json:"address"`
	Balance     uint64         `json:"balance"`
	RentDeposit uint64         `json:"rentDeposit"`
	Owner       crypto.Address `json:"owner"`
	DataLength  int            `json:"dataLength"`
}

// DerivedAddresses are the program-derived addresses of one campaign and,
// optionally, one of its coupons.
type DerivedAddresses struct {
	Config    crypto.Address `json:"config"`
	Campaign  crypto.Address `json:"campaign"`
	Vault     crypto.Address `json:"vault"`
	VaultBump uint8          `json:"vaultBump"`
	Coupon    crypto.Address `json:"coupon"`
}

// Account returns the account stored at addr. Missing accounts read as an
// empty wallet.
func (n *Node) Account(addr crypto.Address) (*AccountView, error) {
	view := &AccountView{Address: addr}
	err := n.processor.View(func() error {
		acc, err := n.state.GetAccount(addr)
		if err != nil || acc == nil {
			return err
		}
		view.Balance = acc.Balance
		view.RentDeposit = acc.RentDeposit
		view.Owner = acc.Owner
		view.DataLength = len(acc.Data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Policy returns the program policy.
func (n *Node) Policy() (*promo.Policy, error) {
	var out *promo.Policy
	err := n.processor.View(func() error {
		var err error
		out, err = n.engine.Policy()
		return err
	})
	return out, err
}

// Campaign returns the campaign stored at addr.
func (n *Node) Campaign(addr crypto.Address) (*promo.Campaign, error) {
	var out *promo.Campaign
	err := n.processor.View(func() error {
		var err error
		out, err = n.engine.Campaign(addr)
		return err
	})
	return out, err
}

// Vault returns the vault of the campaign stored at campaign.
func (n *Node) Vault(campaign crypto.Address) (*promo.VaultView, error) {
	var out *promo.VaultView
	err := n.processor.View(func() error {
		var err error
		out, err = n.engine.Vault(campaign)
		return err
	})
	return out, err
}

// Coupon returns the coupon stored at addr.
func (n *Node) Coupon(addr crypto.Address) (*promo.Coupon, error) {
	var out *promo.Coupon
	err := n.processor.View(func() error {
		var err error
		out, err = n.engine.Coupon(addr)
		return err
	})
	return out, err
}

// DeriveAddresses computes the record addresses for a merchant's campaign and
// the coupon at couponIndex. Nothing is read from state.
func DeriveAddresses(merchant crypto.Address, campaignID, couponIndex uint64) DerivedAddresses {
	campaign := promo.CampaignAddress(merchant, campaignID)
	vault, bump := promo.VaultAddress(campaign)
	return DerivedAddresses{
		Config:    promo.ConfigAddress(),
		Campaign:  campaign,
		Vault:     vault,
		VaultBump: bump,
		Coupon:    promo.CouponAddress(campaign, couponIndex),
	}
}
