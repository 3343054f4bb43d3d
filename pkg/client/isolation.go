package client

import (
	"sync"
	"time"

	"github.com/zhiyin2021/rocketmq-clients/pkg/route"
)

// IsolationRegistry tracks broker endpoints currently considered unhealthy.
// Membership is advisory: the partition selector prefers non-isolated
// targets but still dispatches to isolated ones when nothing else is left.
//
// Entries expire after the configured window, so a broker that failed once
// is probed again instead of degrading the producer permanently. Explicit
// Unisolate re-admits an endpoint early.
//
// All methods are safe for concurrent use; reads dominate (a snapshot is
// taken on every send).
type IsolationRegistry struct {
	mu      sync.Mutex
	entries map[string]time.Time // endpoints key -> expiry
	window  time.Duration
	clock   func() time.Time
}

// NewIsolationRegistry creates a registry whose entries expire after window.
// A non-positive window falls back to DefaultIsolationWindow.
func NewIsolationRegistry(window time.Duration) *IsolationRegistry {
	if window <= 0 {
		window = DefaultIsolationWindow
	}
	return &IsolationRegistry{
		entries: make(map[string]time.Time),
		window:  window,
		clock:   time.Now,
	}
}

// Isolate marks the endpoints unhealthy until the isolation window elapses.
// Re-isolating extends the window.
func (r *IsolationRegistry) Isolate(e route.Endpoints) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.Key()] = r.clock().Add(r.window)
}

// Unisolate re-admits the endpoints immediately.
func (r *IsolationRegistry) Unisolate(e route.Endpoints) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, e.Key())
}

// Snapshot returns a point-in-time copy of the isolated endpoint keys.
// Expired entries are dropped as a side effect.
func (r *IsolationRegistry) Snapshot() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	snapshot := make(map[string]struct{}, len(r.entries))
	for key, expiry := range r.entries {
		if now.After(expiry) {
			delete(r.entries, key)
			continue
		}
		snapshot[key] = struct{}{}
	}
	return snapshot
}

// Size returns the number of live entries.
func (r *IsolationRegistry) Size() int {
	return len(r.Snapshot())
}
