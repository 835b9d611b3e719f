package core

import (
	"testing"
	"time"

	"promoledger/core/state"
	"promoledger/storage"
)

func TestClockNeverRunsBackwards(t *testing.T) {
	wall := time.Unix(1000, 0)
	clock := NewClock(func() time.Time { return wall })
	if clock.Now() != 1000 {
		t.Fatalf("unexpected now %d", clock.Now())
	}
	clock.Observe(1500)
	if clock.Now() != 1500 {
		t.Fatalf("floor must win over an earlier wall clock")
	}
	wall = time.Unix(2000, 0)
	if clock.Now() != 2000 {
		t.Fatalf("wall clock past the floor must win")
	}
	clock.Observe(10)
	if clock.Last() != 1500 {
		t.Fatalf("Observe must never lower the floor")
	}
}

func TestClockFloorPersists(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	clock := NewClock(func() time.Time { return time.Unix(5, 0) })
	if err := clock.stage(manager, 900); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	restarted := NewClock(func() time.Time { return time.Unix(5, 0) })
	if err := restarted.Load(manager); err != nil {
		t.Fatalf("load: %v", err)
	}
	if restarted.Now() != 900 {
		t.Fatalf("unexpected restored clock %d", restarted.Now())
	}
}
