package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"promoledger/cmd/internal/passphrase"
	"promoledger/crypto"
)

const keystorePassEnv = "PROMO_KEYSTORE_PASSPHRASE"

var newPassphraseSource = func() passphraseSource {
	return passphrase.NewSource(keystorePassEnv, "keystore")
}

type passphraseSource interface {
	Get() (string, error)
	Confirm() (string, error)
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "path of the keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return printError(stderr, "--out is required")
	}
	pass, err := newPassphraseSource().Confirm()
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stdout, "Address: %s\nKeystore: %s\n", key.Address(), *out)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyPath := fs.String("key", "", "path to the keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.Address())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("--key is required")
	}
	pass, err := newPassphraseSource().Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("unlock keystore: %w", err)
	}
	return key, nil
}
