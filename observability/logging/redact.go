package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys that may be logged verbatim. Anything else passed through MaskField is
// treated as a secret.
var plainKeys = map[string]struct{}{
	"address":   {},
	"component": {},
	"datadir":   {},
	"env":       {},
	"error":     {},
	"hash":      {},
	"kind":      {},
	"method":    {},
	"reason":    {},
	"service":   {},
	"signer":    {},
	"status":    {},
	"treasury":  {},
}

// IsAllowlisted reports whether key may be logged without masking.
func IsAllowlisted(key string) bool {
	_, ok := plainKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue hides non-empty values; empty ones stay empty so missing settings
// remain visible.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds an attribute whose value is masked unless key is allowlisted.
func MaskField(key, value string) slog.Attr {
	if IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
