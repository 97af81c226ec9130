// Package presence tracks who is currently connected: authenticated
// members keyed by connection id and anonymous observers grouped by
// network origin. Counting is asymmetric on purpose — two member tabs of
// the same account count twice, while any number of anonymous tabs behind
// one origin count once. All counters live behind the tracker's mutex and
// are only mutated through Connect/Disconnect.
package presence

import "sync"

// Counts is the aggregate broadcast to every connection on each change.
type Counts struct {
	Anonymous int `json:"anonymous"`
	Member    int `json:"member"`
}

// Tracker owns the live connection classification state.
type Tracker struct {
	mu      sync.Mutex
	members map[string]struct{} // connection id -> member
	anon    map[string]string   // connection id -> origin
	origins map[string]int      // origin -> live anonymous connection count
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		members: make(map[string]struct{}),
		anon:    make(map[string]string),
		origins: make(map[string]int),
	}
}

// Connect classifies a new connection and returns the updated counts.
// member is true when the connection carried a valid credential; origin is
// the network-origin identifier used for anonymous grouping. Connecting an
// id that is already tracked is a no-op.
func (t *Tracker) Connect(connID string, member bool, origin string) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.members[connID]; ok {
		return t.countsLocked()
	}
	if _, ok := t.anon[connID]; ok {
		return t.countsLocked()
	}

	if member {
		t.members[connID] = struct{}{}
	} else {
		t.anon[connID] = origin
		t.origins[origin]++
	}
	return t.countsLocked()
}

// Disconnect removes a connection and returns the updated counts. It is
// idempotent: unknown ids leave the counts untouched, so every disconnect
// path (read error, heartbeat eviction, shutdown) can call it safely.
func (t *Tracker) Disconnect(connID string) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.members[connID]; ok {
		delete(t.members, connID)
		return t.countsLocked()
	}

	if origin, ok := t.anon[connID]; ok {
		delete(t.anon, connID)
		if n := t.origins[origin]; n <= 1 {
			delete(t.origins, origin)
		} else {
			t.origins[origin] = n - 1
		}
	}
	return t.countsLocked()
}

// Counts returns the current aggregate counts.
func (t *Tracker) Counts() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countsLocked()
}

func (t *Tracker) countsLocked() Counts {
	return Counts{
		Anonymous: len(t.origins),
		Member:    len(t.members),
	}
}
