// Package presence maintains the live mapping of principal ids to their
// active WebSocket connections. The registry is the single source of truth
// for who is online: the realtime gateway is its only writer, and the
// fan-out path only reads it. Entries are ephemeral and never persisted.
package presence

import (
	"sort"
	"sync"
)

// Conn is the minimal connection handle the registry tracks. The concrete
// type is ws.Connection in production and a fake in tests.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

// Registry maps a principal id to its current live connection. At most one
// entry exists per principal: a reconnect overwrites the previous handle
// (single-active-connection contract), so a user with two simultaneous
// sessions only receives live delivery on the most recent one.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewRegistry creates an empty Registry ready for use.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register records c as the live connection for principalID, unconditionally
// replacing any prior handle. It returns the replaced handle, or nil if the
// principal had no registered connection, so the caller can close the
// superseded session.
func (r *Registry) Register(principalID string, c Conn) Conn {
	r.mu.Lock()
	prev := r.conns[principalID]
	r.conns[principalID] = c
	r.mu.Unlock()
	return prev
}

// Unregister removes the entry for principalID. It is a no-op if no entry
// exists, which makes duplicate or late disconnect events harmless. Returns
// true if an entry was removed.
func (r *Registry) Unregister(principalID string) bool {
	r.mu.Lock()
	_, ok := r.conns[principalID]
	if ok {
		delete(r.conns, principalID)
	}
	r.mu.Unlock()
	return ok
}

// Release removes the entry for principalID only if c is still the registered
// handle. A disconnect event from a connection that was already overwritten
// by a reconnect must not evict the newer session; the gateway uses Release
// instead of Unregister on connection close for exactly that reason.
func (r *Registry) Release(principalID string, c Conn) bool {
	r.mu.Lock()
	cur, ok := r.conns[principalID]
	if ok && cur == c {
		delete(r.conns, principalID)
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()
	return false
}

// Lookup returns the live connection for principalID, or (nil, false) if the
// principal is offline. It never blocks beyond the read lock.
func (r *Registry) Lookup(principalID string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[principalID]
	r.mu.RUnlock()
	return c, ok
}

// Snapshot returns a sorted, consistent point-in-time view of all registered
// principal ids. The slice is a copy and safe to use without the lock.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Connections returns a consistent snapshot of all registered connection
// handles, used to broadcast the online roster.
func (r *Registry) Connections() []Conn {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	return conns
}

// Count returns the number of currently registered principals.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.conns)
	r.mu.RUnlock()
	return n
}
