package config

import "promoledger/native/common"

// Module names recognised by the pause and quota policies.
const (
	ModulePromo    = "promo"
	ModuleTransfer = "transfer"
)

// Pauses halts whole instruction families without a restart of clients.
type Pauses struct {
	Promo    bool
	Transfer bool
}

// Modules lists the paused module names.
func (p Pauses) Modules() []string {
	var out []string
	if p.Promo {
		out = append(out, ModulePromo)
	}
	if p.Transfer {
		out = append(out, ModuleTransfer)
	}
	return out
}

// Quota defines rate limits for module interactions on a per-signer basis.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxSpendPerEpoch    uint64 // in base units
	EpochSeconds        uint32 // e.g., 3600
}

// Runtime converts the configured quota to the form enforced by the ledger.
func (q Quota) Runtime() common.Quota {
	return common.Quota{
		MaxRequestsPerEpoch: q.MaxRequestsPerEpoch,
		MaxSpendPerEpoch:    q.MaxSpendPerEpoch,
		EpochSeconds:        q.EpochSeconds,
	}
}

// Quotas groups quotas for each module.
type Quotas struct {
	Promo    Quota
	Transfer Quota
}

// Global bundles the runtime policy values enforced by ValidateConfig.
type Global struct {
	Pauses Pauses
	Quotas Quotas
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	JWTSecret           string  `toml:"JWTSecret"`
	JWTIssuer           string  `toml:"JWTIssuer"`
	RequestsPerMinute   float64 `toml:"RequestsPerMinute"`
	Burst               int     `toml:"Burst"`
	ReadTimeoutSeconds  int     `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int     `toml:"WriteTimeoutSeconds"`
}

// Rent is the storage deposit schedule charged for every record.
type Rent struct {
	PerByteYear    uint64 `toml:"PerByteYear"`
	ExemptionYears uint64 `toml:"ExemptionYears"`
}

// Logging controls the structured log sink.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	SampleRatio float64 `toml:"SampleRatio"`
}
