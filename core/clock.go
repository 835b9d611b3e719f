package core

import (
	"sync"
	"time"

	"promoledger/core/state"
)

var clockKey = []byte("clock/last")

// Clock is the ledger's time source. It never runs backwards: the last
// committed timestamp is persisted with state and acts as a floor after a
// restart or a wall clock step.
type Clock struct {
	mu   sync.Mutex
	wall func() time.Time
	last int64
}

// NewClock returns a clock over wall. Nil uses time.Now.
func NewClock(wall func() time.Time) *Clock {
	if wall == nil {
		wall = time.Now
	}
	return &Clock{wall: wall}
}

// Load reads the persisted floor from state.
func (c *Clock) Load(m *state.Manager) error {
	var stored uint64
	ok, err := m.KVGet(clockKey, &stored)
	if err != nil {
		return err
	}
	if ok {
		c.Observe(int64(stored))
	}
	return nil
}

// Now returns the current ledger time in unix seconds.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.wall().Unix()
	if now < c.last {
		return c.last
	}
	return now
}

// Observe raises the floor to ts.
func (c *Clock) Observe(ts int64) {
	c.mu.Lock()
	if ts > c.last {
		c.last = ts
	}
	c.mu.Unlock()
}

// Last returns the current floor.
func (c *Clock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// stage raises the floor and writes it to the pending state batch.
func (c *Clock) stage(m *state.Manager, ts int64) error {
	c.Observe(ts)
	last := c.Last()
	if last < 0 {
		last = 0
	}
	return m.KVPut(clockKey, uint64(last))
}
