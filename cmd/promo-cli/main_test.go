package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"promoledger/core"
	"promoledger/core/state"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/rpc"
)

const cliSecret = "cli-secret"

type fixedPassphrase string

func (p fixedPassphrase) Get() (string, error)     { return string(p), nil }
func (p fixedPassphrase) Confirm() (string, error) { return string(p), nil }

func usePassphrase(t *testing.T, value string) {
	t.Helper()
	original := newPassphraseSource
	newPassphraseSource = func() passphraseSource { return fixedPassphrase(value) }
	t.Cleanup(func() { newPassphraseSource = original })
}

type cliFixture struct {
	endpoint string
	keyPath  string
	key      *crypto.PrivateKey
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	usePassphrase(t, "pw")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "merchant.keystore")
	require.NoError(t, crypto.SaveToKeystore(keyPath, key, "pw"))

	genesis := `{"genesisTime":"2023-11-01T00:00:00Z","alloc":{"` + key.Address().String() + `":"50000"}}`
	genesisPath := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, os.WriteFile(genesisPath, []byte(genesis), 0o600))

	treasury := crypto.BytesToAddress(bytes.Repeat([]byte{0x7A}, crypto.AddressLength))
	node, err := core.NewNode(core.Options{
		GenesisPath: genesisPath,
		Treasury:    treasury,
		Rent:        state.Rent{PerByteYear: 1, ExemptionYears: 1},
		Clock:       func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	server := rpc.NewServer(node, nil, rpc.ServerConfig{JWTSecret: cliSecret, JWTIssuer: "promoledger"})
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &cliFixture{endpoint: ts.URL, keyPath: keyPath, key: key}
}

func (f *cliFixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--rpc", f.endpoint}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 1, run(nil, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Usage:")

	stderr.Reset()
	require.Equal(t, 1, run([]string{"bogus"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Unknown command: bogus")

	stderr.Reset()
	require.Equal(t, 1, run([]string{"submit", "withdraw"}, &stdout, &stderr))
	require.Contains(t, stderr.String(), "Unknown instruction: withdraw")
}

func TestApplyGlobalFlags(t *testing.T) {
	client := newRPCClient("http://default")
	rest, err := applyGlobalFlags([]string{"get", "--rpc", "http://node:1", "policy", "--output=yaml"}, client)
	require.NoError(t, err)
	require.Equal(t, []string{"get", "policy"}, rest)
	require.Equal(t, "http://node:1", client.endpoint)
	require.Equal(t, outputYAML, client.output)

	_, err = applyGlobalFlags([]string{"--output", "xml"}, client)
	require.Error(t, err)
	_, err = applyGlobalFlags([]string{"--rpc"}, client)
	require.Error(t, err)
}

func TestParseExpiry(t *testing.T) {
	now := time.Unix(1_000, 0)
	got, err := parseExpiry("+1h", now)
	require.NoError(t, err)
	require.Equal(t, int64(4_600), got)

	got, err = parseExpiry("2000", now)
	require.NoError(t, err)
	require.Equal(t, int64(2_000), got)

	for _, bad := range []string{"", "+-1h", "soon", "-5"} {
		_, err := parseExpiry(bad, now)
		require.Error(t, err, bad)
	}
}

func TestSubmitValidatesFlagsBeforeSigning(t *testing.T) {
	usePassphrase(t, "unused")
	var stdout, stderr bytes.Buffer
	code := run([]string{"submit", "list-coupon", "--price", "5"}, &stdout, &stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "--campaign is required")

	stderr.Reset()
	code = run([]string{"submit", "transfer", "--to", "promo1xyz"}, &stdout, &stderr)
	require.Equal(t, 1, code)
}

func TestCreateCampaignAndQuery(t *testing.T) {
	f := newCLIFixture(t)
	t.Setenv(jwtSecretEnv, cliSecret)

	code, out, errOut := f.run(t, "submit", "initialize-policy", "--key", f.keyPath,
		"--max-resale-bps", "2000", "--service-fee-bps", "100", "--salt", "1")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, `"status": "success"`)

	code, out, errOut = f.run(t, "submit", "create-campaign", "--key", f.keyPath,
		"--campaign-id", "1", "--discount-bps", "1000", "--resale-bps", "500",
		"--expires", "1700100000", "--total-coupons", "5", "--mint-cost", "10",
		"--max-discount", "100", "--name", "Spring", "--deposit", "1000", "--salt", "2")
	require.Equal(t, 0, code, errOut)
	var receipt types.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Equal(t, types.ReceiptSuccess, receipt.Status)

	derived := core.DeriveAddresses(f.key.Address(), 1, 0)
	code, out, errOut = f.run(t, "get", "vault", derived.Campaign.String())
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, `"balance": 1000`)

	code, out, errOut = f.run(t, "--output", "yaml", "derive", "--merchant", f.key.Address().String(), "--campaign-id", "1")
	require.Equal(t, 0, code, errOut)
	var view map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	require.Equal(t, derived.Campaign.String(), view["campaign"])

	code, out, errOut = f.run(t, "get", "receipt", receipt.Hash)
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, receipt.Hash)

	code, out, errOut = f.run(t, "events", "--type", "promo.campaign.created")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, "promo.campaign.created")
}

func TestSubmitReportsLedgerErrors(t *testing.T) {
	f := newCLIFixture(t)

	code, _, errOut := f.run(t, "submit", "transfer", "--key", f.keyPath, "--to", f.key.Address().String(), "--amount", "1")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, jwtSecretEnv)

	other := crypto.BytesToAddress(bytes.Repeat([]byte{0x01}, crypto.AddressLength))
	code, out, errOut := f.run(t, "submit", "transfer", "--key", f.keyPath, "--jwt-secret", cliSecret,
		"--to", other.String(), "--amount", "999999", "--salt", "2")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, `"status": "failed"`)
	require.Contains(t, out, "InsufficientFunds")

	code, _, errOut = f.run(t, "get", "coupon", other.String())
	require.Equal(t, 1, code)
	require.True(t, strings.HasPrefix(errOut, "RPC error"), errOut)
}

func TestKeygenAndAddress(t *testing.T) {
	usePassphrase(t, "pw")
	path := filepath.Join(t.TempDir(), "new.keystore")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{"keygen", "--out", path}, &stdout, &stderr), stderr.String())
	require.Contains(t, stdout.String(), "Address: promo1")

	created := strings.TrimPrefix(strings.SplitN(stdout.String(), "\n", 2)[0], "Address: ")
	stdout.Reset()
	require.Equal(t, 0, run([]string{"address", "--key", path}, &stdout, &stderr), stderr.String())
	require.Equal(t, created, strings.TrimSpace(stdout.String()))
}
