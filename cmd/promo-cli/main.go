package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	client := newRPCClient(defaultRPCEndpoint())
	args, err := applyGlobalFlags(args, client)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "submit":
		return runSubmitCommand(client, args[1:], stdout, stderr)
	case "get":
		return runGetCommand(client, args[1:], stdout, stderr)
	case "events":
		return runEventsCommand(client, args[1:], stdout, stderr)
	case "derive":
		return runDeriveCommand(client, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("PROMO_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8645"
}

// applyGlobalFlags strips --rpc and --output from anywhere in args.
func applyGlobalFlags(args []string, client *rpcClient) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var name, value string
		switch {
		case arg == "--rpc" || arg == "--output":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			name, value = arg, args[i+1]
			i++
		case strings.HasPrefix(arg, "--rpc="):
			name, value = "--rpc", strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--output="):
			name, value = "--output", strings.TrimPrefix(arg, "--output=")
		default:
			out = append(out, arg)
			continue
		}
		switch name {
		case "--rpc":
			client.endpoint = strings.TrimSpace(value)
		case "--output":
			format := strings.ToLower(strings.TrimSpace(value))
			if format != outputJSON && format != outputYAML {
				return nil, fmt.Errorf("--output must be json or yaml")
			}
			client.output = format
		}
	}
	return out, nil
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func usage() string {
	return strings.TrimSpace(`Usage:
  promo-cli [--rpc URL] [--output json|yaml] <command> [flags]

Commands:
  keygen   Generate a new encrypted keystore
  address  Print the address held by a keystore
  submit   Sign and submit an instruction (run "submit" for kinds)
  get      Query balance, policy, campaign, vault, coupon, receipt or treasury
  events   List recorded ledger events
  derive   Derive campaign, vault and coupon addresses
`)
}
