package events

import (
	"testing"

	"promoledger/crypto"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestRecorderBuffersUntilFlush(t *testing.T) {
	rec := NewRecorder()
	from := crypto.Address{0x01}
	to := crypto.Address{0x02}
	rec.Emit(Transfer{Channel: ChannelPeer, From: from, To: to, Amount: 42})
	rec.Emit(bareEvent{})
	if rec.Len() != 1 {
		t.Fatalf("expected one buffered event, got %d", rec.Len())
	}
	out := rec.Flush()
	if len(out) != 1 {
		t.Fatalf("expected one flushed event, got %d", len(out))
	}
	evt := out[0]
	if evt.Type != TypeTransfer {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["amount"] != "42" || evt.Attributes["channel"] != ChannelPeer {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
	if evt.Attributes["from"] != from.String() {
		t.Fatalf("unexpected from %s", evt.Attributes["from"])
	}
	if rec.Len() != 0 {
		t.Fatalf("flush must clear the buffer")
	}
}

func TestRecorderReset(t *testing.T) {
	rec := NewRecorder()
	rec.Emit(Transfer{Amount: 1})
	rec.Reset()
	if out := rec.Flush(); len(out) != 0 {
		t.Fatalf("expected no events after reset, got %d", len(out))
	}
}
