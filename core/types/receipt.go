package types

import "promoledger/crypto"

// ReceiptStatus reports the outcome of an applied instruction.
type ReceiptStatus string

const (
	ReceiptSuccess ReceiptStatus = "success"
	ReceiptFailed  ReceiptStatus = "failed"
)

// Receipt summarises one processed instruction. Events are only present for
// successful instructions; a failed instruction leaves no trace in state.
type Receipt struct {
	Hash      string          `json:"hash"`
	Kind      InstructionKind `json:"kind"`
	Signer    crypto.Address  `json:"signer"`
	Status    ReceiptStatus   `json:"status"`
	Error     string          `json:"error,omitempty"`
	ErrorCode uint32          `json:"errorCode,omitempty"`
	ErrorName string          `json:"errorName,omitempty"`
	Events    []Event         `json:"events"`
	AppliedAt int64           `json:"appliedAt"`
}

// Succeeded reports whether the instruction committed.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptSuccess
}
