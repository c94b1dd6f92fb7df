package peer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prxssh/peerwire/internal/protocol"
)

// Stats holds per-channel counters. All counters are atomic and
// monotonically increasing for the lifetime of a channel, and ConnectedAt
// is set once when the channel is opened; rate
// calculation, if a caller wants it, is derived from repeated snapshots
// and lives above this package (rate metering is not this core's job).
type Stats struct {
	FramesSent        atomic.Uint64
	FramesReceived    atomic.Uint64
	KeepAlivesSent    atomic.Uint64
	KeepAlivesReceived atomic.Uint64
	BytesUploaded     atomic.Uint64
	BytesDownloaded   atomic.Uint64
	RequestsSent      atomic.Uint64
	RequestsReceived  atomic.Uint64

	ConnectedAt time.Time
}

// Snapshot is a point-in-time, copyable view of Stats.
type Snapshot struct {
	FramesSent         uint64
	FramesReceived     uint64
	KeepAlivesSent     uint64
	KeepAlivesReceived uint64
	BytesUploaded      uint64
	BytesDownloaded    uint64
	RequestsSent       uint64
	RequestsReceived   uint64
	ConnectedAt        time.Time
	ConnectedFor       time.Duration
}

func newStats() *Stats {
	return &Stats{ConnectedAt: time.Now()}
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		FramesSent:         s.FramesSent.Load(),
		FramesReceived:     s.FramesReceived.Load(),
		KeepAlivesSent:     s.KeepAlivesSent.Load(),
		KeepAlivesReceived: s.KeepAlivesReceived.Load(),
		BytesUploaded:      s.BytesUploaded.Load(),
		BytesDownloaded:    s.BytesDownloaded.Load(),
		RequestsSent:       s.RequestsSent.Load(),
		RequestsReceived:   s.RequestsReceived.Load(),
		ConnectedAt:        s.ConnectedAt,
		ConnectedFor:       time.Since(s.ConnectedAt),
	}
}

func (s *Stats) observeSent(m *protocol.Message) {
	s.FramesSent.Add(1)
	if protocol.IsKeepAlive(m) {
		s.KeepAlivesSent.Add(1)
		return
	}
	switch m.ID {
	case protocol.Piece:
		if b, ok := m.ParsePiece(); ok {
			s.BytesUploaded.Add(uint64(len(b.Data)))
		}
	case protocol.Request:
		s.RequestsSent.Add(1)
	}
}

func (s *Stats) observeReceived(m *protocol.Message) {
	s.FramesReceived.Add(1)
	if protocol.IsKeepAlive(m) {
		s.KeepAlivesReceived.Add(1)
		return
	}
	switch m.ID {
	case protocol.Piece:
		if b, ok := m.ParsePiece(); ok {
			s.BytesDownloaded.Add(uint64(len(b.Data)))
		}
	case protocol.Request:
		s.RequestsReceived.Add(1)
	}
}

// activityLogCapacity bounds the number of recent frames a channel
// remembers for diagnostics.
const activityLogCapacity = 64

// EventDirection distinguishes sent from received activity-log entries.
type EventDirection string

const (
	EventSent     EventDirection = "sent"
	EventReceived EventDirection = "received"
)

// Event is one entry in a channel's recent-activity ring buffer.
type Event struct {
	Timestamp time.Time
	Direction EventDirection
	MessageID protocol.MessageID
	Size      int
}

func sentEvent(m *protocol.Message) Event     { return newEvent(EventSent, m) }
func receivedEvent(m *protocol.Message) Event { return newEvent(EventReceived, m) }

func newEvent(dir EventDirection, m *protocol.Message) Event {
	if protocol.IsKeepAlive(m) {
		return Event{Timestamp: time.Now(), Direction: dir}
	}
	return Event{
		Timestamp: time.Now(),
		Direction: dir,
		MessageID: m.ID,
		Size:      len(m.Payload),
	}
}

// activityLog is a fixed-capacity ring buffer of recent Events, adapted
// from the teacher's message history buffer for read-only diagnostics
// (e.g. the inspector's recent-activity feed) rather than persistence.
type activityLog struct {
	mu       sync.RWMutex
	buf      []Event
	capacity int
	size     int
	writePos int
	readPos  int
}

func newActivityLog(capacity int) *activityLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &activityLog{buf: make([]Event, capacity), capacity: capacity}
}

func (l *activityLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.writePos] = e
	l.writePos = (l.writePos + 1) % l.capacity

	if l.size < l.capacity {
		l.size++
	} else {
		l.readPos = (l.readPos + 1) % l.capacity
	}
}

// recent returns up to n of the most recently added events, oldest
// first.
func (l *activityLog) recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.size == 0 {
		return nil
	}

	count := min(l.size, n)
	out := make([]Event, count)
	pos := (l.readPos + (l.size - count)) % l.capacity
	for i := 0; i < count; i++ {
		out[i] = l.buf[pos]
		pos = (pos + 1) % l.capacity
	}
	return out
}
