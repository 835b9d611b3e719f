package promo

import (
	"encoding/binary"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"promoledger/crypto"
)

func discriminator(name string) [DiscriminatorLength]byte {
	var out [DiscriminatorLength]byte
	copy(out[:], ethcrypto.Keccak256([]byte("account:"+name)))
	return out
}

var (
	policyDiscriminator   = discriminator("Policy")
	campaignDiscriminator = discriminator("Campaign")
	vaultDiscriminator    = discriminator("Vault")
	couponDiscriminator   = discriminator("Coupon")
)

type layoutWriter struct {
	buf []byte
	off int
}

func newLayoutWriter(disc [DiscriminatorLength]byte, size int) *layoutWriter {
	w := &layoutWriter{buf: make([]byte, size)}
	copy(w.buf, disc[:])
	w.off = DiscriminatorLength
	return w
}

func (w *layoutWriter) address(a crypto.Address) {
	copy(w.buf[w.off:], a[:])
	w.off += crypto.AddressLength
}

func (w *layoutWriter) u8(v uint8) {
	w.buf[w.off] = v
	w.off++
}

func (w *layoutWriter) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *layoutWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.off:], v)
	w.off += 2
}

func (w *layoutWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.off:], v)
	w.off += 4
}

func (w *layoutWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.off:], v)
	w.off += 8
}

func (w *layoutWriter) i64(v int64) { w.u64(uint64(v)) }

// name writes a u32 length followed by a fixed MaxNameLength slot.
func (w *layoutWriter) name(s string) {
	w.u32(uint32(len(s)))
	copy(w.buf[w.off:w.off+MaxNameLength], s)
	w.off += MaxNameLength
}

type layoutReader struct {
	buf []byte
	off int
	err error
}

func newLayoutReader(data []byte, disc [DiscriminatorLength]byte, size int) (*layoutReader, error) {
	if len(data) < DiscriminatorLength {
		return nil, ErrInvalidAccountData
	}
	var got [DiscriminatorLength]byte
	copy(got[:], data)
	if got != disc {
		return nil, ErrInvalidAccountData
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: size %d, want %d", ErrInvalidAccountData, len(data), size)
	}
	return &layoutReader{buf: data, off: DiscriminatorLength}, nil
}

func (r *layoutReader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: truncated", ErrInvalidAccountData)
		return make([]byte, n)
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *layoutReader) address() crypto.Address {
	return crypto.BytesToAddress(r.take(crypto.AddressLength))
}

func (r *layoutReader) u8() uint8 { return r.take(1)[0] }

func (r *layoutReader) boolean() bool {
	v := r.u8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("%w: invalid bool %d", ErrInvalidAccountData, v)
	}
	return v == 1
}

func (r *layoutReader) u16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }

func (r *layoutReader) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }

func (r *layoutReader) u64() uint64 { return binary.LittleEndian.Uint64(r.take(8)) }

func (r *layoutReader) i64() int64 { return int64(r.u64()) }

func (r *layoutReader) name() string {
	length := r.u32()
	slot := r.take(MaxNameLength)
	if length > MaxNameLength {
		if r.err == nil {
			r.err = fmt.Errorf("%w: name length %d", ErrInvalidAccountData, length)
		}
		return ""
	}
	return string(slot[:length])
}

func encodePolicyBody(dst []byte, p *Policy) {
	copy(dst[0:32], p.Admin[:])
	binary.LittleEndian.PutUint16(dst[32:34], p.MaxResaleBps)
	binary.LittleEndian.PutUint16(dst[34:36], p.ServiceFeeBps)
}

func encodePolicy(p *Policy) []byte {
	buf := make([]byte, PolicyAccountSize)
	copy(buf, policyDiscriminator[:])
	encodePolicyBody(buf[DiscriminatorLength:], p)
	return buf
}

func decodePolicy(data []byte) (*Policy, error) {
	r, err := newLayoutReader(data, policyDiscriminator, PolicyAccountSize)
	if err != nil {
		return nil, err
	}
	p := &Policy{Admin: r.address(), MaxResaleBps: r.u16(), ServiceFeeBps: r.u16()}
	return p, r.err
}

func encodeCampaign(c *Campaign) []byte {
	w := newLayoutWriter(campaignDiscriminator, CampaignAccountSize)
	w.address(c.Merchant)
	w.u64(c.CampaignID)
	w.u16(c.DiscountBps)
	w.u16(c.ServiceFeeBps)
	w.u16(c.ResaleBps)
	w.i64(c.ExpirationTimestamp)
	w.u32(c.TotalCoupons)
	w.u32(c.UsedCoupons)
	w.u32(c.MintedCoupons)
	w.u64(c.MintCost)
	w.u64(c.MaxDiscount)
	w.u16(c.CategoryCode)
	w.u16(c.ProductCode)
	w.name(c.Name)
	w.boolean(c.RequiresWallet)
	w.address(c.TargetWallet)
	w.u64(c.TotalPurchaseAmount)
	w.u64(c.TotalDiscount)
	w.i64(c.LastRedeemTimestamp)
	return w.buf
}

func decodeCampaign(data []byte) (*Campaign, error) {
	r, err := newLayoutReader(data, campaignDiscriminator, CampaignAccountSize)
	if err != nil {
		return nil, err
	}
	c := &Campaign{}
	c.Merchant = r.address()
	c.CampaignID = r.u64()
	c.DiscountBps = r.u16()
	c.ServiceFeeBps = r.u16()
	c.ResaleBps = r.u16()
	c.ExpirationTimestamp = r.i64()
	c.TotalCoupons = r.u32()
	c.UsedCoupons = r.u32()
	c.MintedCoupons = r.u32()
	c.MintCost = r.u64()
	c.MaxDiscount = r.u64()
	c.CategoryCode = r.u16()
	c.ProductCode = r.u16()
	c.Name = r.name()
	c.RequiresWallet = r.boolean()
	c.TargetWallet = r.address()
	c.TotalPurchaseAmount = r.u64()
	c.TotalDiscount = r.u64()
	c.LastRedeemTimestamp = r.i64()
	return c, r.err
}

func encodeVault(v *Vault) []byte {
	w := newLayoutWriter(vaultDiscriminator, VaultAccountSize)
	w.address(v.Campaign)
	w.address(v.Merchant)
	w.u8(v.Bump)
	w.u64(v.TotalDeposit)
	w.u64(v.TotalMintSpent)
	w.u64(v.TotalServiceSpent)
	return w.buf
}

func decodeVault(data []byte) (*Vault, error) {
	r, err := newLayoutReader(data, vaultDiscriminator, VaultAccountSize)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		Campaign:          r.address(),
		Merchant:          r.address(),
		Bump:              r.u8(),
		TotalDeposit:      r.u64(),
		TotalMintSpent:    r.u64(),
		TotalServiceSpent: r.u64(),
	}
	return v, r.err
}

func encodeCoupon(c *Coupon) []byte {
	w := newLayoutWriter(couponDiscriminator, CouponAccountSize)
	w.address(c.Campaign)
	w.u64(c.CouponIndex)
	w.address(c.Owner)
	w.boolean(c.Used)
	w.boolean(c.Listed)
	w.u64(c.SalePrice)
	return w.buf
}

func decodeCoupon(data []byte) (*Coupon, error) {
	r, err := newLayoutReader(data, couponDiscriminator, CouponAccountSize)
	if err != nil {
		return nil, err
	}
	c := &Coupon{
		Campaign:    r.address(),
		CouponIndex: r.u64(),
		Owner:       r.address(),
		Used:        r.boolean(),
		Listed:      r.boolean(),
		SalePrice:   r.u64(),
	}
	return c, r.err
}
