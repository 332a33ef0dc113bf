package chat

import "sync"

// Registry is the in-memory presence table: which connections exist and which
// user each one belongs to. It is constructed once at process start and passed
// by reference to every component that needs presence answers.
//
// Invariant: a connection id appears in the inverse set for its user iff the
// forward map holds that connection id. Both maps are guarded by one mutex so
// the pair always mutates atomically; readers may observe either the before or
// the after state of a racing mutation, never a torn pair.
//
// Critical sections are short and never span store or transport calls.
type Registry struct {
	mu      sync.RWMutex
	forward map[string]int64              // connection id -> user id
	inverse map[int64]map[string]struct{} // user id -> connection ids
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		forward: make(map[string]int64),
		inverse: make(map[int64]map[string]struct{}),
	}
}

// Register adds the forward and inverse mappings for a connection. It is
// idempotent and safe under arbitrary concurrent calls.
func (r *Registry) Register(connID string, userID int64) {
	if r == nil || connID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.forward[connID]; ok {
		if prev == userID {
			return
		}
		// A connection never changes users; drop the stale pairing defensively.
		r.removeLocked(connID, prev)
	}

	r.forward[connID] = userID
	set := r.inverse[userID]
	if set == nil {
		set = make(map[string]struct{}, 1)
		r.inverse[userID] = set
		onlineUsersGauge.Inc()
	}
	set[connID] = struct{}{}
	connectionsGauge.Inc()
}

// Unregister removes a connection from both maps and returns the user it
// belonged to. wentOffline reports whether this removal took the user from one
// connection to zero; it is computed inside the critical section, so exactly
// one of two racing final disconnects observes the transition. Unknown
// connections (duplicate or racing disconnect delivery) are a no-op and report
// ok=false.
func (r *Registry) Unregister(connID string) (userID int64, wentOffline, ok bool) {
	if r == nil || connID == "" {
		return 0, false, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.forward[connID]
	if !ok {
		return 0, false, false
	}
	wentOffline = r.removeLocked(connID, userID)
	return userID, wentOffline, true
}

// removeLocked deletes the pairing and keeps the gauges in step. The inverse
// entry is removed entirely (not merely emptied) when the last connection goes
// away; it reports whether that happened.
func (r *Registry) removeLocked(connID string, userID int64) bool {
	delete(r.forward, connID)
	connectionsGauge.Dec()

	set := r.inverse[userID]
	if set == nil {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(r.inverse, userID)
	onlineUsersGauge.Dec()
	return true
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inverse[userID]) > 0
}

// ConnectionsOf returns a copy of the user's current connection ids.
func (r *Registry) ConnectionsOf(userID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.inverse[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// OnlineUserIDs returns a copy of the set of users with live connections.
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int64, 0, len(r.inverse))
	for id := range r.inverse {
		out = append(out, id)
	}
	return out
}

// OnlineCount returns the number of distinct online users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inverse)
}

// ConnectionCount returns the number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forward)
}
