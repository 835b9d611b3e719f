package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"promoledger/crypto"
)

// Environment variables that take precedence over the file.
const (
	EnvJWTSecret = "PROMO_RPC_JWT_SECRET"
	EnvDataDir   = "PROMO_DATA_DIR"
)

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	GenesisFile          string `toml:"GenesisFile"`
	OperatorKeystorePath string `toml:"OperatorKeystorePath"`
	Treasury             string `toml:"Treasury"`
	Environment          string `toml:"Environment"`
	AllowMigrate         bool   `toml:"AllowMigrate"`

	RPC       RPC       `toml:"rpc"`
	Rent      Rent      `toml:"rent"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
	Global    Global    `toml:"global"`
}

// Load loads the configuration from the given path, creating a default file
// (and operator keystore) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = defaults()
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.RPC.JWTSecret = secret
	}
	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		cfg.DataDir = dir
	}
}

func defaults() *Config {
	return &Config{
		RPCAddress:  "127.0.0.1:8645",
		DataDir:     "./promo-data",
		Environment: "local",
		RPC: RPC{
			JWTIssuer:           "promoledger",
			RequestsPerMinute:   600,
			Burst:               60,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Rent:    Rent{PerByteYear: 3480, ExemptionYears: 2},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 28},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// createDefault creates and saves a default configuration file. The operator
// key it generates doubles as the fee treasury.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := defaults()
	cfg.OperatorKeystorePath = keystorePath
	cfg.Treasury = key.Address().String()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
