package events

import (
	"sync"

	"promoledger/core/types"
)

// Recorder buffers the events of one unit of work. Nothing is forwarded until
// Flush, so a reverted instruction can Reset the buffer and leave no trace.
type Recorder struct {
	mu      sync.Mutex
	pending []types.Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Emit implements Emitter. Events that cannot render a payload are dropped.
func (r *Recorder) Emit(evt Event) {
	payload, ok := evt.(Payload)
	if !ok {
		return
	}
	rendered := payload.Event()
	if rendered == nil {
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, rendered.Clone())
	r.mu.Unlock()
}

// Len reports the number of buffered events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Reset discards every buffered event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()
}

// Flush returns the buffered events and clears the buffer.
func (r *Recorder) Flush() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	if out == nil {
		out = []types.Event{}
	}
	return out
}
