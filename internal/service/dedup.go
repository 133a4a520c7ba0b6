package service

import (
	"context"
	"sync"
	"time"
)

// Dedup drops repeated webhook deliveries that share a signal id within a
// time-to-live window. The webhook caller delivers at least once; the order
// lifecycle deliberately does not deduplicate, so this layer must.
// Safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time // signal id -> last seen
	ttl  time.Duration
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats a signal as a duplicate when it was
// seen within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// IsDuplicate reports whether the signal id was seen within the TTL window.
// A previously unseen (or expired) id is recorded and reported as fresh.
func (d *Dedup) IsDuplicate(signalID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if lastSeen, ok := d.seen[signalID]; ok {
		if now.Sub(lastSeen) < d.ttl {
			return true
		}
	}

	d.seen[signalID] = now
	return false
}

// Run purges expired entries once per TTL period until the context is
// cancelled. Without it the seen map grows with every distinct signal id.
func (d *Dedup) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Cleanup()
		}
	}
}

// Cleanup drops expired entries. Call periodically to bound memory.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, id)
		}
	}
}
