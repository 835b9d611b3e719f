package events

import (
	"promoledger/core/types"
	"promoledger/crypto"
)

const (
	// TypeTransfer is emitted for native balance movements.
	TypeTransfer = "transfer.native"
)

// Transfer channels.
const (
	ChannelPeer    = "peer"
	ChannelCustody = "custody"
	ChannelRent    = "rent"
	ChannelClose   = "close"
)

type Transfer struct {
	Channel string
	From    crypto.Address
	To      crypto.Address
	Amount  uint64
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   e.From.String(),
		"to":     e.To.String(),
		"amount": formatAmount(e.Amount),
	}
	if e.Channel != "" {
		attrs["channel"] = e.Channel
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
