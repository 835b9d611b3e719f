package config

import (
	"fmt"
	"net"
	"strings"

	"promoledger/crypto"
)

// ValidateConfig checks the runtime policy values.
func ValidateConfig(g Global) error {
	quotas := map[string]Quota{ModulePromo: g.Quotas.Promo, ModuleTransfer: g.Quotas.Transfer}
	for module, quota := range quotas {
		if quota.Runtime().Enabled() && quota.EpochSeconds == 0 {
			return fmt.Errorf("quotas.%s: EpochSeconds must be set when a limit is configured", module)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if _, _, err := net.SplitHostPort(strings.TrimSpace(c.RPCAddress)); err != nil {
		return fmt.Errorf("RPCAddress: %w", err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if _, err := c.TreasuryAddress(); err != nil {
		return err
	}
	if c.Rent.PerByteYear == 0 || c.Rent.ExemptionYears == 0 {
		return fmt.Errorf("rent: PerByteYear and ExemptionYears must be positive")
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.ReadTimeoutSeconds < 0 || c.RPC.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("rpc: timeouts must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return ValidateConfig(c.Global)
}

// TreasuryAddress parses the configured fee account.
func (c *Config) TreasuryAddress() (crypto.Address, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(c.Treasury))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("Treasury: %w", err)
	}
	if addr.IsZero() {
		return crypto.Address{}, fmt.Errorf("Treasury must not be the zero address")
	}
	return addr, nil
}
