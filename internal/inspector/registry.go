// Package inspector exposes a read-only HTTP+WebSocket view over a set of
// live peer.Channel connections. It observes; it never drives a channel's
// session state or piece selection, both of which remain the
// session-management layer's job.
package inspector

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prxssh/peerwire/internal/peer"
	"github.com/prxssh/peerwire/internal/stats"
	"github.com/samber/lo"
)

// entry pairs a live channel with the session id it was registered under
// and the address it was dialed/accepted on (peer.Channel itself has no
// notion of a listen/dial address).
type entry struct {
	id      uuid.UUID
	addr    string
	channel *peer.Channel
}

// Registry tracks the channels currently worth inspecting. Channels
// register themselves (or are registered by whatever owns them) on
// connect and unregister on disconnect; the registry holds no reference
// after Unregister.
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uuid.UUID]entry)}
}

// Register adds ch under a freshly minted session id, stable across the
// channel's lifetime even if the remote reconnects under the same
// address. Returns the id so the caller can Unregister later.
func (r *Registry) Register(addr string, ch *peer.Channel) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = entry{id: id, addr: addr, channel: ch}

	return id
}

// Unregister removes id from the registry. A no-op if id is unknown.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// Len reports how many channels are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) list() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.entries)
}

// Snapshot returns a ChannelSnapshot for every registered channel,
// tagged with its session id. A channel idle for idleThreshold or more is
// flagged via stats.ChannelSnapshot.Idle.
func (r *Registry) Snapshot(idleThreshold time.Duration) []SessionSnapshot {
	entries := r.list()

	return lo.Map(entries, func(e entry, _ int) SessionSnapshot {
		return SessionSnapshot{
			SessionID:       e.id,
			ChannelSnapshot: stats.FromChannel(e.channel, e.addr, idleThreshold),
		}
	})
}

// SessionSnapshot attaches a stable session id to a ChannelSnapshot, the
// id surviving reconnects under the same address (unlike the address
// alone, which the teacher's logger used as the sole correlation key).
type SessionSnapshot struct {
	SessionID uuid.UUID `json:"sessionId"`
	stats.ChannelSnapshot
}
