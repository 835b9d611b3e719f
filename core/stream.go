package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"promoledger/core/types"
)

const eventStreamHistoryLimit = 2048

// StreamEvent is one committed ledger event as delivered to subscribers.
type StreamEvent struct {
	Sequence    uint64      `json:"sequence"`
	Cursor      string      `json:"cursor"`
	ReceiptHash string      `json:"receiptHash"`
	Event       types.Event `json:"event"`
	AppliedAt   int64       `json:"appliedAt"`
}

func cloneStreamEvent(evt StreamEvent) StreamEvent {
	cloned := evt
	cloned.Event = evt.Event.Clone()
	return cloned
}

// EventStream fans committed events out to live subscribers and keeps a
// bounded history so reconnecting clients can resume from a cursor.
type EventStream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan StreamEvent
	history []StreamEvent
	limit   int
}

// NewEventStream returns an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{subs: make(map[uint64]chan StreamEvent), limit: eventStreamHistoryLimit}
}

// Publish appends the events of a successful receipt. Slow subscribers miss
// live events rather than stall the ledger; they can catch up from history.
func (s *EventStream) Publish(receipt *types.Receipt) {
	if s == nil || !receipt.Succeeded() || len(receipt.Events) == 0 {
		return
	}

	s.mu.Lock()
	batch := make([]StreamEvent, 0, len(receipt.Events))
	for _, evt := range receipt.Events {
		s.seq++
		entry := StreamEvent{
			Sequence:    s.seq,
			Cursor:      strconv.FormatUint(s.seq, 10),
			ReceiptHash: receipt.Hash,
			Event:       evt,
			AppliedAt:   receipt.AppliedAt,
		}
		entry = cloneStreamEvent(entry)
		batch = append(batch, entry)
		s.history = append(s.history, entry)
	}
	if len(s.history) > s.limit {
		excess := len(s.history) - s.limit
		trimmed := make([]StreamEvent, s.limit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	// Sends stay under the lock: cancel closes channels while holding it, and
	// the sends never block.
	for _, entry := range batch {
		for _, ch := range s.subs {
			select {
			case ch <- cloneStreamEvent(entry):
			default:
			}
		}
	}
	s.mu.Unlock()
}

// Subscribe registers a subscriber for events published after cursor. The
// returned backlog holds retained history past the cursor; cancel releases
// the subscription and closes the channel.
func (s *EventStream) Subscribe(ctx context.Context, cursor string) (<-chan StreamEvent, func(), []StreamEvent, error) {
	if s == nil {
		return nil, nil, nil, fmt.Errorf("event stream not initialised")
	}
	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		parsed, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid cursor %q", cursor)
		}
		since = parsed
	}
	updates := make(chan StreamEvent, 64)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = updates
	backlog := make([]StreamEvent, 0, len(s.history))
	for _, entry := range s.history {
		if entry.Sequence > since {
			backlog = append(backlog, cloneStreamEvent(entry))
		}
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}
