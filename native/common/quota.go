package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaSpendExceeded    = errors.New("quota spend cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for a signer.
type QuotaNow struct {
	ReqCount uint32
	Spent    uint64
	EpochID  uint64
}

// Quota defines the limits enforced per signer within one epoch. Zero values
// disable the corresponding limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxSpendPerEpoch    uint64
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || q.MaxSpendPerEpoch > 0
}

// EpochFor maps a unix timestamp onto the quota epoch.
func (q Quota) EpochFor(now int64) uint64 {
	if now <= 0 {
		return 0
	}
	seconds := uint64(q.EpochSeconds)
	if seconds == 0 {
		seconds = 60
	}
	return uint64(now) / seconds
}

// CheckQuota verifies whether the additional request and spend fit within the
// configured quota. The returned QuotaNow reflects the updated counters when the
// quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addSpend uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addSpend > 0 {
		if next.Spent > math.MaxUint64-addSpend {
			return prev, ErrQuotaCounterOverflow
		}
		next.Spent += addSpend
	}
	if q.MaxSpendPerEpoch > 0 && next.Spent > q.MaxSpendPerEpoch {
		return prev, ErrQuotaSpendExceeded
	}

	return next, nil
}
