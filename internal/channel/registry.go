package channel

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the process-wide set of authenticated connection records.
// A single mutex guards mutation and iteration; iteration snapshots the
// records so callbacks never run under the lock.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uint64]*Conn
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		conns:  make(map[uint64]*Conn),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// Insert adds a record. A duplicate identifier is a logic fault: it is
// logged, the stale record is terminated, and the new one takes its place.
func (r *Registry) Insert(c *Conn) {
	r.mu.Lock()
	prev, exists := r.conns[c.id]
	r.conns[c.id] = c
	r.mu.Unlock()

	if exists {
		r.logger.Error().Uint64("conn_id", c.id).Msg("duplicate connection id, overwriting")
		prev.terminate()
	}
}

// Remove deletes a record by identifier and reports whether it was
// present. Removing an absent record is a no-op; removal is total — no
// further sends go through the record.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	return ok
}

// ForEachLive applies fn to every open record, optionally filtered to a
// single owner identity. Closed records are skipped.
func (r *Registry) ForEachLive(owner *int64, fn func(*Conn)) {
	r.mu.RLock()
	snapshot := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		snapshot = append(snapshot, c)
	}
	r.mu.RUnlock()

	for _, c := range snapshot {
		if c.isClosed() {
			continue
		}
		if owner != nil && c.owner != *owner {
			continue
		}
		fn(c)
	}
}

// Len returns the number of registered records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every record with the given status, empties the
// registry, and returns the number of records closed. Used on graceful
// shutdown.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[uint64]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.close(code, reason)
	}
	return len(conns)
}
