package service

import (
	"context"
	"testing"
	"time"
)

func TestDedupReportsRepeatWithinTTL(t *testing.T) {
	d := NewDedup(time.Minute)

	if d.IsDuplicate("sig-1") {
		t.Fatal("first sighting must be fresh")
	}
	if !d.IsDuplicate("sig-1") {
		t.Fatal("second sighting within the TTL must be a duplicate")
	}
	if d.IsDuplicate("sig-2") {
		t.Fatal("a different id must be fresh")
	}
}

func TestDedupExpiredIDIsFreshAgain(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)

	if d.IsDuplicate("sig-1") {
		t.Fatal("first sighting must be fresh")
	}
	time.Sleep(20 * time.Millisecond)
	if d.IsDuplicate("sig-1") {
		t.Fatal("a sighting after the TTL must be fresh again")
	}
}

func TestDedupCleanupPurgesExpiredIDs(t *testing.T) {
	d := NewDedup(10 * time.Millisecond)
	d.IsDuplicate("sig-old-1")
	d.IsDuplicate("sig-old-2")
	time.Sleep(20 * time.Millisecond)
	d.IsDuplicate("sig-fresh")

	d.Cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.seen) != 1 {
		t.Fatalf("seen holds %d entries after cleanup, want 1", len(d.seen))
	}
	if _, ok := d.seen["sig-fresh"]; !ok {
		t.Error("cleanup dropped an unexpired id")
	}
}

func TestDedupRunPurgesExpiredIDs(t *testing.T) {
	d := NewDedup(5 * time.Millisecond)
	d.IsDuplicate("sig-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		d.mu.Lock()
		remaining := len(d.seen)
		d.mu.Unlock()
		if remaining == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expired id was never purged by the cleanup loop")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
