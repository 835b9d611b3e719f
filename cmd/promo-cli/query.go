package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"promoledger/crypto"
)

var getMethods = map[string]string{
	"balance":  "promo_getBalance",
	"campaign": "promo_getCampaign",
	"vault":    "promo_getVault",
	"coupon":   "promo_getCoupon",
}

func runGetCommand(client *rpcClient, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, getUsage())
		return 1
	}
	switch args[0] {
	case "policy":
		return client.invoke("promo_getPolicy", nil, "", stdout, stderr)
	case "treasury":
		return client.invoke("promo_getTreasury", nil, "", stdout, stderr)
	case "receipt":
		if len(args) != 2 {
			return printError(stderr, "usage: promo-cli get receipt <hash>")
		}
		return client.invoke("promo_getReceipt", strings.TrimSpace(args[1]), "", stdout, stderr)
	}
	method, ok := getMethods[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown query: %s\n", args[0])
		fmt.Fprintln(stderr, getUsage())
		return 1
	}
	if len(args) != 2 {
		return printError(stderr, fmt.Sprintf("usage: promo-cli get %s <address>", args[0]))
	}
	addr, err := crypto.ParseAddress(strings.TrimSpace(args[1]))
	if err != nil {
		return printError(stderr, fmt.Sprintf("invalid address: %v", err))
	}
	return client.invoke(method, addr.String(), "", stdout, stderr)
}

func runEventsCommand(client *rpcClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(stderr)
	eventType := fs.String("type", "", "only return events of this type")
	after := fs.Int64("after", 0, "return events with an id greater than this")
	limit := fs.Int("limit", 100, "maximum number of events (1-1000)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *limit < 1 || *limit > 1000 {
		return printError(stderr, "--limit must be within [1,1000]")
	}
	if *after < 0 {
		return printError(stderr, "--after must be non-negative")
	}
	params := map[string]interface{}{
		"type":    strings.TrimSpace(*eventType),
		"afterId": *after,
		"limit":   *limit,
	}
	return client.invoke("promo_getEvents", params, "", stdout, stderr)
}

func runDeriveCommand(client *rpcClient, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var merchant addressFlag
	fs.Var(&merchant, "merchant", "merchant address")
	campaignID := fs.Uint64("campaign-id", 0, "campaign id")
	index := fs.Uint64("index", 0, "coupon index")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !merchant.set {
		return printError(stderr, "--merchant is required")
	}
	params := map[string]interface{}{
		"merchant":    merchant.addr.String(),
		"campaignId":  *campaignID,
		"couponIndex": *index,
	}
	return client.invoke("promo_deriveAddresses", params, "", stdout, stderr)
}

func getUsage() string {
	return strings.TrimSpace(`Usage:
  promo-cli get <query> [argument]

Queries:
  balance <address>   Account balance and rent deposit
  policy              Global policy
  campaign <address>  Campaign record
  vault <campaign>    Vault bound to a campaign
  coupon <address>    Coupon record
  receipt <hash>      Receipt of a processed instruction
  treasury            Configured treasury address
`)
}
