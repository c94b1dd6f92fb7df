// Package session implements the bilateral choke/interest state machine
// that governs whether a peer channel may upload or download data. It
// knows nothing about wire framing or sockets; it is driven entirely by
// the peer channel calling its eight transition methods as control
// messages are sent and received.
package session

import "sync/atomic"

// DefaultUnchokeSlots is the advisory count of peers a client may unchoke
// simultaneously. The choking algorithm that consumes this value lives
// above this package.
const DefaultUnchokeSlots = 4

// Flags is a read-only snapshot of one side's choke/interest bits.
type Flags struct {
	Choking    bool
	Interested bool
}

// Status is a read-only snapshot of both sides of a session, taken at one
// instant. It is a plain value: safe to copy, log and compare.
type Status struct {
	Client Flags
	Peer   Flags
}

// side holds one direction's two flags as independent atomics. Per
// spec, each side's flags are written by exactly one half of the owning
// channel (the writer half for Client, the reader half for Peer), so
// plain atomics are sufficient without a lock.
type side struct {
	choking    atomic.Bool
	interested atomic.Bool
}

func (s *side) flags() Flags {
	return Flags{Choking: s.choking.Load(), Interested: s.interested.Load()}
}

// Session is the 2x2 bilateral state matrix: (client choking peer, client
// interested in peer, peer choking client, peer interested in client).
// The zero value is not ready for use; construct with New, which installs
// BEP 3's initial state: both sides choking, neither interested.
type Session struct {
	client side
	peer   side
}

// New returns a Session at its initial state: client.choking=true,
// client.interested=false, peer.choking=true, peer.interested=false.
func New() *Session {
	s := &Session{}
	s.client.choking.Store(true)
	s.peer.choking.Store(true)
	return s
}

// Transitions induced by sending a control message. Each toggles exactly
// one boolean on the client side.
func (s *Session) SendChoke()         { s.client.choking.Store(true) }
func (s *Session) SendUnchoke()       { s.client.choking.Store(false) }
func (s *Session) SendInterested()    { s.client.interested.Store(true) }
func (s *Session) SendNotInterested() { s.client.interested.Store(false) }

// Transitions induced by receiving a control message. Each toggles
// exactly one boolean on the peer side.
func (s *Session) ReceiveChoke()         { s.peer.choking.Store(true) }
func (s *Session) ReceiveUnchoke()       { s.peer.choking.Store(false) }
func (s *Session) ReceiveInterested()    { s.peer.interested.Store(true) }
func (s *Session) ReceiveNotInterested() { s.peer.interested.Store(false) }

// AmChoking reports whether the client is currently choking the peer.
func (s *Session) AmChoking() bool { return s.client.choking.Load() }

// AmInterested reports whether the client is currently interested in the
// peer.
func (s *Session) AmInterested() bool { return s.client.interested.Load() }

// PeerChoking reports whether the peer is currently choking the client.
func (s *Session) PeerChoking() bool { return s.peer.choking.Load() }

// PeerInterested reports whether the peer is currently interested in the
// client.
func (s *Session) PeerInterested() bool { return s.peer.interested.Load() }

// Snapshot takes a consistent-enough read of both sides for logging or
// diagnostics. Because the two sides are written independently and
// concurrently, a Snapshot is not a linearization point across directions;
// it is exact for whichever single side a caller cares about.
func (s *Session) Snapshot() Status {
	return Status{Client: s.client.flags(), Peer: s.peer.flags()}
}

// CanUpload reports whether the client may serve data-bearing requests
// under the given snapshot: the peer wants data and the client is not
// choking it.
func CanUpload(s Status) bool { return s.Peer.Interested && !s.Client.Choking }

// CanDownload reports whether the client may request data under the given
// snapshot: the client wants data and the peer is not choking it.
func CanDownload(s Status) bool { return s.Client.Interested && !s.Peer.Choking }

// CanUpload is Session's direct-read convenience form of the CanUpload
// predicate.
func (s *Session) CanUpload() bool { return CanUpload(s.Snapshot()) }

// CanDownload is Session's direct-read convenience form of the
// CanDownload predicate.
func (s *Session) CanDownload() bool { return CanDownload(s.Snapshot()) }
