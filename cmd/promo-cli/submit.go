package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/rpc"
)

const (
	jwtSecretEnv = "PROMO_RPC_JWT_SECRET"
	rpcTokenEnv  = "PROMO_RPC_TOKEN"
	tokenTTL     = 5 * time.Minute
)

var cliNow = time.Now

// addressFlag parses a ledger address on Set.
type addressFlag struct {
	addr crypto.Address
	set  bool
}

func (a *addressFlag) String() string {
	if a == nil || !a.set {
		return ""
	}
	return a.addr.String()
}

func (a *addressFlag) Set(value string) error {
	addr, err := crypto.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return err
	}
	a.addr = addr
	a.set = true
	return nil
}

// payloadBuilder registers the kind-specific flags and returns a closure
// producing the payload once they are parsed.
type payloadBuilder func(fs *flag.FlagSet) func() (interface{}, error)

var payloadBuilders = map[types.InstructionKind]payloadBuilder{
	types.IxTransfer: func(fs *flag.FlagSet) func() (interface{}, error) {
		var to addressFlag
		fs.Var(&to, "to", "recipient address")
		amount := fs.Uint64("amount", 0, "amount to transfer")
		return func() (interface{}, error) {
			if !to.set {
				return nil, fmt.Errorf("--to is required")
			}
			return types.TransferPayload{To: to.addr, Amount: *amount}, nil
		}
	},
	types.IxInitializePolicy: policyBuilder,
	types.IxUpgradePolicy:    policyBuilder,
	types.IxCreateCampaign: func(fs *flag.FlagSet) func() (interface{}, error) {
		var target addressFlag
		id := fs.Uint64("campaign-id", 0, "merchant-scoped campaign id")
		discount := fs.Uint("discount-bps", 0, "discount in basis points")
		resale := fs.Uint("resale-bps", 0, "maximum resale markup in basis points")
		expiry := fs.String("expires", "", "expiry as +duration or unix seconds")
		total := fs.Uint("total-coupons", 0, "number of coupons the campaign may mint")
		mintCost := fs.Uint64("mint-cost", 0, "price a recipient pays per coupon")
		maxDiscount := fs.Uint64("max-discount", 0, "cap on a single discount")
		category := fs.Uint("category", 0, "category code")
		product := fs.Uint("product", 0, "product code")
		name := fs.String("name", "", "campaign name (at most 32 bytes)")
		deposit := fs.Uint64("deposit", 0, "amount escrowed into the vault")
		fs.Var(&target, "target-wallet", "restrict coupons to this wallet")
		return func() (interface{}, error) {
			expiresAt, err := parseExpiry(*expiry, cliNow())
			if err != nil {
				return nil, err
			}
			if *discount > 0xFFFF || *resale > 0xFFFF || *category > 0xFFFF || *product > 0xFFFF {
				return nil, fmt.Errorf("basis point and code flags must fit in 16 bits")
			}
			if *total > 0xFFFFFFFF {
				return nil, fmt.Errorf("--total-coupons out of range")
			}
			return types.CreateCampaignPayload{
				CampaignID:          *id,
				DiscountBps:         uint16(*discount),
				ResaleBps:           uint16(*resale),
				ExpirationTimestamp: expiresAt,
				TotalCoupons:        uint32(*total),
				MintCost:            *mintCost,
				MaxDiscount:         *maxDiscount,
				CategoryCode:        uint16(*category),
				ProductCode:         uint16(*product),
				Name:                *name,
				DepositAmount:       *deposit,
				RequiresWallet:      target.set,
				TargetWallet:        target.addr,
			}, nil
		}
	},
	types.IxMintCoupon: func(fs *flag.FlagSet) func() (interface{}, error) {
		var recipient addressFlag
		id := fs.Uint64("campaign-id", 0, "campaign id")
		index := fs.Uint64("index", 0, "coupon index")
		fs.Var(&recipient, "recipient", "coupon recipient")
		return func() (interface{}, error) {
			if !recipient.set {
				return nil, fmt.Errorf("--recipient is required")
			}
			return types.MintCouponPayload{CampaignID: *id, CouponIndex: *index, Recipient: recipient.addr}, nil
		}
	},
	types.IxRedeemCoupon: func(fs *flag.FlagSet) func() (interface{}, error) {
		var campaign, coupon addressFlag
		fs.Var(&campaign, "campaign", "campaign address")
		fs.Var(&coupon, "coupon", "coupon address")
		amount := fs.Uint64("purchase", 0, "purchase amount")
		product := fs.Uint("product", 0, "product code")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"campaign": &campaign, "coupon": &coupon}); err != nil {
				return nil, err
			}
			if *product > 0xFFFF {
				return nil, fmt.Errorf("--product out of range")
			}
			return types.RedeemCouponPayload{Campaign: campaign.addr, Coupon: coupon.addr, PurchaseAmount: *amount, ProductCode: uint16(*product)}, nil
		}
	},
	types.IxListCoupon: func(fs *flag.FlagSet) func() (interface{}, error) {
		var campaign, coupon addressFlag
		fs.Var(&campaign, "campaign", "campaign address")
		fs.Var(&coupon, "coupon", "coupon address")
		price := fs.Uint64("price", 0, "listing price")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"campaign": &campaign, "coupon": &coupon}); err != nil {
				return nil, err
			}
			return types.ListCouponPayload{Campaign: campaign.addr, Coupon: coupon.addr, Price: *price}, nil
		}
	},
	types.IxBuyCoupon: func(fs *flag.FlagSet) func() (interface{}, error) {
		var campaign, coupon, seller addressFlag
		fs.Var(&campaign, "campaign", "campaign address")
		fs.Var(&coupon, "coupon", "coupon address")
		fs.Var(&seller, "seller", "current coupon owner")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"campaign": &campaign, "coupon": &coupon, "seller": &seller}); err != nil {
				return nil, err
			}
			return types.BuyCouponPayload{Campaign: campaign.addr, Coupon: coupon.addr, Seller: seller.addr}, nil
		}
	},
	types.IxTransferCoupon: func(fs *flag.FlagSet) func() (interface{}, error) {
		var coupon, owner addressFlag
		fs.Var(&coupon, "coupon", "coupon address")
		fs.Var(&owner, "new-owner", "new coupon owner")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"coupon": &coupon, "new-owner": &owner}); err != nil {
				return nil, err
			}
			return types.TransferCouponPayload{Coupon: coupon.addr, NewOwner: owner.addr}, nil
		}
	},
	types.IxCloseVault: func(fs *flag.FlagSet) func() (interface{}, error) {
		var campaign addressFlag
		fs.Var(&campaign, "campaign", "campaign address")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"campaign": &campaign}); err != nil {
				return nil, err
			}
			return types.CloseVaultPayload{Campaign: campaign.addr}, nil
		}
	},
	types.IxExpireCoupon: func(fs *flag.FlagSet) func() (interface{}, error) {
		var campaign, coupon addressFlag
		fs.Var(&campaign, "campaign", "campaign address")
		fs.Var(&coupon, "coupon", "coupon address")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"campaign": &campaign, "coupon": &coupon}); err != nil {
				return nil, err
			}
			return types.ExpireCouponPayload{Campaign: campaign.addr, Coupon: coupon.addr}, nil
		}
	},
	types.IxCheckTreasuryBalance: func(fs *flag.FlagSet) func() (interface{}, error) {
		var target addressFlag
		fs.Var(&target, "target", "treasury address to inspect")
		return func() (interface{}, error) {
			if err := requireAddresses(map[string]*addressFlag{"target": &target}); err != nil {
				return nil, err
			}
			return types.CheckTreasuryBalancePayload{Target: target.addr}, nil
		}
	},
}

func policyBuilder(fs *flag.FlagSet) func() (interface{}, error) {
	maxResale := fs.Uint("max-resale-bps", 0, "maximum resale markup in basis points")
	fee := fs.Uint("service-fee-bps", 0, "service fee in basis points")
	return func() (interface{}, error) {
		if *maxResale > 0xFFFF || *fee > 0xFFFF {
			return nil, fmt.Errorf("basis point flags must fit in 16 bits")
		}
		return types.PolicyPayload{MaxResaleBps: uint16(*maxResale), ServiceFeeBps: uint16(*fee)}, nil
	}
}

func requireAddresses(flags map[string]*addressFlag) error {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !flags[name].set {
			return fmt.Errorf("--%s is required", name)
		}
	}
	return nil
}

func runSubmitCommand(client *rpcClient, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, submitUsage())
		return 1
	}
	kind, err := types.ParseInstructionKind(strings.ReplaceAll(args[0], "-", "_"))
	if err != nil {
		fmt.Fprintf(stderr, "Unknown instruction: %s\n", args[0])
		fmt.Fprintln(stderr, submitUsage())
		return 1
	}
	builder := payloadBuilders[kind]

	fs := flag.NewFlagSet("submit "+kind.String(), flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "path to the signer keystore")
	salt := fs.Uint64("salt", 0, "instruction salt (defaults to the current time in nanoseconds)")
	secret := fs.String("jwt-secret", os.Getenv(jwtSecretEnv), "shared secret used to mint a bearer token")
	issuer := fs.String("jwt-issuer", "promoledger", "issuer claim for minted tokens")
	token := fs.String("token", os.Getenv(rpcTokenEnv), "pre-issued bearer token (overrides --jwt-secret)")
	build := builder(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	payload, err := build()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if *salt == 0 {
		*salt = uint64(cliNow().UnixNano())
	}
	ix, err := types.NewInstruction(kind, payload, *salt)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := ix.Sign(key); err != nil {
		return printError(stderr, err.Error())
	}
	bearer := strings.TrimSpace(*token)
	if bearer == "" {
		if strings.TrimSpace(*secret) == "" {
			return printError(stderr, fmt.Sprintf("--jwt-secret, %s or --token is required", jwtSecretEnv))
		}
		bearer, err = rpc.IssueToken(*secret, *issuer, key.Address().String(), tokenTTL)
		if err != nil {
			return printError(stderr, err.Error())
		}
	}
	return client.invoke("promo_submitInstruction", ix, bearer, stdout, stderr)
}

// parseExpiry accepts "+72h" relative to now or absolute unix seconds.
func parseExpiry(value string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("--expires is required")
	}
	if strings.HasPrefix(trimmed, "+") {
		d, err := time.ParseDuration(trimmed[1:])
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("--expires must be a positive duration")
		}
		return now.Add(d).Unix(), nil
	}
	var ts int64
	if _, err := fmt.Sscanf(trimmed, "%d", &ts); err != nil || ts <= 0 {
		return 0, fmt.Errorf("--expires must be +duration or unix seconds")
	}
	return ts, nil
}

func submitUsage() string {
	return strings.TrimSpace(`Usage:
  promo-cli submit <instruction> --key FILE [flags]

Instructions:
  transfer               Move native funds to another wallet
  initialize-policy      Create the global policy (first caller becomes admin)
  upgrade-policy         Update policy bounds (admin only)
  create-campaign        Open a campaign and escrow its deposit
  mint-coupon            Mint a coupon to a recipient (merchant only)
  redeem-coupon          Redeem a coupon against a purchase
  list-coupon            List a coupon for resale
  buy-coupon             Buy a listed coupon
  transfer-coupon        Give an unlisted coupon to another wallet
  close-vault            Deactivate a campaign and refund its vault
  expire-coupon          Expire a coupon after its campaign ended
  check-treasury-balance Report the treasury balance as an event
`)
}
