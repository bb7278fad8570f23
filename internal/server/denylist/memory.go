package denylist

import (
	"context"
	"sync"
	"time"
)

// MemoryDenyList is an in-process DenyList for tests and single-node runs.
// Expired entries are dropped lazily on lookup and insert.
type MemoryDenyList struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemoryDenyList() *MemoryDenyList {
	return &MemoryDenyList{entries: make(map[string]time.Time)}
}

func (d *MemoryDenyList) Add(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweepLocked()
	d.entries[jti] = time.Now().Add(ttl)
	return nil
}

func (d *MemoryDenyList) Contains(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	deadline, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDenyList) sweepLocked() {
	now := time.Now()
	for jti, deadline := range d.entries {
		if now.After(deadline) {
			delete(d.entries, jti)
		}
	}
}
