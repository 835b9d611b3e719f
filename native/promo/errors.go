package promo

import (
	"errors"

	"promoledger/native/bank"
	"promoledger/native/common"
)

// Engine errors. The order of the first block is significant: ErrorCode
// assigns stable numeric codes starting at 6000 in declaration order.
var (
	ErrInvalidCampaignState     = errors.New("promo: invalid campaign state")
	ErrInvalidCouponState       = errors.New("promo: invalid coupon state")
	ErrCouponAlreadyUsed        = errors.New("promo: coupon already used")
	ErrInvalidCouponCampaign    = errors.New("promo: invalid coupon campaign reference")
	ErrNotCouponOwner           = errors.New("promo: signer is not the coupon owner")
	ErrInvalidCampaignID        = errors.New("promo: invalid campaign id")
	ErrInsufficientVaultBalance = errors.New("promo: insufficient vault balance")
	ErrNotMerchant              = errors.New("promo: signer is not the merchant")
	ErrCampaignNotExpired       = errors.New("promo: campaign is not expired yet")
	ErrNotAdmin                 = errors.New("promo: signer is not the admin")
	ErrInvalidConfigAccount     = errors.New("promo: invalid config account data")
	ErrCouponListed             = errors.New("promo: coupon is currently listed")
	ErrCouponAlreadyListed      = errors.New("promo: coupon is already listed")
	ErrCouponNotListed          = errors.New("promo: coupon is not listed")
	ErrInvalidResalePrice       = errors.New("promo: invalid resale price")
	ErrInvalidBuyer             = errors.New("promo: invalid buyer for this coupon")
	ErrTargetWalletRequired     = errors.New("promo: target wallet is required for this campaign type")
	ErrNotEligibleForCampaign   = errors.New("promo: user is not eligible for this campaign")
	ErrInvalidProductForCoupon  = errors.New("promo: invalid product for this coupon")
	ErrInvalidBps               = errors.New("promo: invalid bps value")
	ErrOverflow                 = common.ErrOverflow
	ErrInvalidTotalCoupons      = errors.New("promo: invalid total coupons value")
	ErrInvalidMintCost          = errors.New("promo: invalid mint cost")
	ErrInvalidMaxDiscount       = errors.New("promo: invalid max discount")
	ErrInvalidDepositAmount     = errors.New("promo: invalid deposit amount")
	ErrNameTooLong              = errors.New("promo: campaign name is too long")
	ErrNoCouponsLeft            = errors.New("promo: no coupons left for this campaign")
	ErrCampaignExpired          = errors.New("promo: campaign has already expired")
)

// Account-level errors raised while resolving records.
var (
	ErrAccountInUse        = errors.New("promo: account already in use")
	ErrAccountNotFound     = errors.New("promo: account not initialized")
	ErrInvalidAccountData  = errors.New("promo: account discriminator mismatch")
	ErrInvalidAccountOwner = errors.New("promo: account owned by a different program")
	ErrSeedsMismatch       = errors.New("promo: account does not match its derivation seeds")
	ErrInvalidSeeds        = errors.New("promo: no viable derivation bump")
)

var (
	errNilState    = errors.New("promo engine: state not configured")
	errNilTreasury = errors.New("promo engine: treasury not configured")
)

const engineErrorBase = 6000

var engineErrors = []error{
	ErrInvalidCampaignState,
	ErrInvalidCouponState,
	ErrCouponAlreadyUsed,
	ErrInvalidCouponCampaign,
	ErrNotCouponOwner,
	ErrInvalidCampaignID,
	ErrInsufficientVaultBalance,
	ErrNotMerchant,
	ErrCampaignNotExpired,
	ErrNotAdmin,
	ErrInvalidConfigAccount,
	ErrCouponListed,
	ErrCouponAlreadyListed,
	ErrCouponNotListed,
	ErrInvalidResalePrice,
	ErrInvalidBuyer,
	ErrTargetWalletRequired,
	ErrNotEligibleForCampaign,
	ErrInvalidProductForCoupon,
	ErrInvalidBps,
	ErrOverflow,
	ErrInvalidTotalCoupons,
	ErrInvalidMintCost,
	ErrInvalidMaxDiscount,
	ErrInvalidDepositAmount,
	ErrNameTooLong,
	ErrNoCouponsLeft,
	ErrCampaignExpired,
}

var engineErrorNames = []string{
	"InvalidCampaignState",
	"InvalidCouponState",
	"CouponAlreadyUsed",
	"InvalidCouponCampaign",
	"NotCouponOwner",
	"InvalidCampaignId",
	"InsufficientVaultBalance",
	"NotMerchant",
	"CampaignNotExpired",
	"NotAdmin",
	"InvalidConfigAccount",
	"CouponListed",
	"CouponAlreadyListed",
	"CouponNotListed",
	"InvalidResalePrice",
	"InvalidBuyer",
	"TargetWalletRequired",
	"NotEligibleForCampaign",
	"InvalidProductForCoupon",
	"InvalidBps",
	"Overflow",
	"InvalidTotalCoupons",
	"InvalidMintCost",
	"InvalidMaxDiscount",
	"InvalidDepositAmount",
	"NameTooLong",
	"NoCouponsLeft",
	"CampaignExpired",
}

type codedError struct {
	err  error
	code uint32
	name string
}

var accountErrors = []codedError{
	{bank.ErrInsufficientFunds, 1, "InsufficientFunds"},
	{ErrAccountInUse, 3001, "AccountInUse"},
	{ErrInvalidAccountData, 3002, "AccountDiscriminatorMismatch"},
	{ErrInvalidAccountOwner, 3007, "AccountOwnedByWrongProgram"},
	{ErrAccountNotFound, 3012, "AccountNotInitialized"},
	{ErrSeedsMismatch, 2006, "ConstraintSeeds"},
}

// ErrorCode maps err onto its stable numeric code and name. Unknown errors
// report ok=false.
func ErrorCode(err error) (code uint32, name string, ok bool) {
	if err == nil {
		return 0, "", false
	}
	for i, candidate := range engineErrors {
		if errors.Is(err, candidate) {
			return engineErrorBase + uint32(i), engineErrorNames[i], true
		}
	}
	for _, candidate := range accountErrors {
		if errors.Is(err, candidate.err) {
			return candidate.code, candidate.name, true
		}
	}
	return 0, "", false
}
