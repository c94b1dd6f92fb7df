// Package peer implements the Peer Channel facade: the owner of one
// bidirectional byte stream, one handshake-derived identity, and one
// session.Session. It turns a raw io.ReadWriteCloser into a typed duplex
// message stream, applying session transitions as control messages cross
// the wire in either direction.
package peer

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prxssh/peerwire/internal/protocol"
	"github.com/prxssh/peerwire/internal/session"
	"golang.org/x/sync/errgroup"
)

// Errors surfaced by Channel. They wrap the lower-level protocol errors
// where relevant so callers can still errors.Is against those, while
// adding the channel-level taxonomy spec.md names.
var (
	ErrOutOfOrderBitfield     = errors.New("peer: bitfield received outside its expected position")
	ErrChannelClosed          = errors.New("peer: channel is closed")
	ErrExtensionNotNegotiated = errors.New("peer: extension message used without negotiation")
)

// Identity is the handshake-derived identity of the remote end of a
// channel: its peer id and negotiated capability set.
type Identity struct {
	PeerID       [sha1.Size]byte
	Capabilities protocol.Capabilities
}

// Channel owns exactly one byte stream, one SessionStatus (via
// session.Session) and one remote identity, established once at Open and
// immutable thereafter. Send and Recv may be called concurrently from
// different goroutines (a writer and a reader); neither serializes behind
// the other, per spec.md §4.5's scheduling model.
type Channel struct {
	stream net.Conn
	local  Identity
	remote Identity

	negotiated protocol.NegotiatedSet

	session *session.Session
	stats   *Stats
	log     *activityLog

	seenFirstMessage atomic.Bool

	readMu  sync.Mutex
	writeMu sync.Mutex

	lastActivity atomic.Int64 // unix nanos

	closeOnce sync.Once
	closed    atomic.Bool
}

// Open performs the handshake exchange over stream and, on success,
// installs a fresh Session at its default state. verifyInfoHash should be
// true for outbound dials (we know the expected swarm) and false for
// inbound accepts (we learn the swarm from the remote).
func Open(stream net.Conn, local protocol.Handshake, verifyInfoHash bool) (remote protocol.Handshake, ch *Channel, err error) {
	remote, err = local.Exchange(stream, verifyInfoHash)
	if err != nil {
		_ = stream.Close()
		return protocol.Handshake{}, nil, err
	}

	c := &Channel{
		stream: stream,
		local: Identity{
			PeerID:       local.PeerID,
			Capabilities: local.Reserved,
		},
		remote: Identity{
			PeerID:       remote.PeerID,
			Capabilities: remote.Reserved,
		},
		negotiated: protocol.Negotiate(local.Reserved, remote.Reserved),
		session:    session.New(),
		stats:      newStats(),
		log:        newActivityLog(activityLogCapacity),
	}
	c.touch()

	return remote, c, nil
}

// Identity returns the remote peer's handshake-derived identity.
func (c *Channel) Identity() Identity { return c.remote }

// Negotiated returns the capability set both ends of this channel agreed
// on.
func (c *Channel) Negotiated() protocol.NegotiatedSet { return c.negotiated }

// Status returns a snapshot of the bilateral choke/interest state.
func (c *Channel) Status() session.Status { return c.session.Snapshot() }

// CanUpload reports whether the client may serve data-bearing requests.
func (c *Channel) CanUpload() bool { return c.session.CanUpload() }

// CanDownload reports whether the client may request data.
func (c *Channel) CanDownload() bool { return c.session.CanDownload() }

// Idle reports whether the channel has seen no traffic, in either
// direction, for at least d.
func (c *Channel) Idle(d time.Duration) bool {
	last := time.Unix(0, c.lastActivity.Load())
	return time.Since(last) >= d
}

// Send encodes and writes m, then applies the session transition induced
// by having sent it. A send of a Fast Extension message on a channel that
// did not negotiate BEP 6 is rejected without writing anything. Any I/O
// error is fatal: the channel is closed and ErrChannelClosed is returned
// to subsequent callers.
func (c *Channel) Send(m *protocol.Message) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	if m != nil && protocol.IsFastExtension(m.ID) && !c.negotiated.FastExtension() {
		return fmt.Errorf("%w: %s", ErrExtensionNotNegotiated, m.ID)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if wt := writeTimeout(); wt > 0 {
		deadline = time.Now().Add(wt)
	}
	_ = c.stream.SetWriteDeadline(deadline)
	defer c.stream.SetWriteDeadline(time.Time{})

	if err := protocol.WriteMessage(c.stream, m); err != nil {
		c.Close()
		return err
	}

	c.touch()
	c.stats.observeSent(m)
	c.log.add(sentEvent(m))
	c.applySent(m)
	return nil
}

// Recv reads and decodes one frame, applies the session transition it
// induces, and returns it. A nil *Message with a nil error denotes a
// keep-alive. Any decode or I/O error is fatal: the channel is closed.
func (c *Channel) Recv() (*protocol.Message, error) {
	if c.closed.Load() {
		return nil, ErrChannelClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	deadline := time.Time{}
	if rt := readTimeout(); rt > 0 {
		deadline = time.Now().Add(rt)
	}
	_ = c.stream.SetReadDeadline(deadline)
	defer c.stream.SetReadDeadline(time.Time{})

	accept := func(id protocol.MessageID) bool {
		return id == protocol.ExtendedBase && c.negotiated.ExtensionProtocol()
	}

	m, err := protocol.DecodeFrame(c.stream, protocol.MaxFrameSize, accept)
	if err != nil {
		c.Close()
		return nil, err
	}

	if !protocol.IsKeepAlive(m) && protocol.IsFastExtension(m.ID) && !c.negotiated.FastExtension() {
		c.Close()
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotNegotiated, m.ID)
	}

	first := !c.seenFirstMessage.Swap(true)
	if !protocol.IsKeepAlive(m) && m.ID == protocol.BitfieldMsg && !first {
		c.Close()
		return nil, ErrOutOfOrderBitfield
	}

	c.touch()
	c.stats.observeReceived(m)
	c.log.add(receivedEvent(m))
	c.applyReceived(m)
	return m, nil
}

// Run drives the channel until ctx is cancelled or either direction
// fails: one goroutine reads frames and hands each to onMessage, one
// goroutine drains outbox and writes each frame, and a keep-alive ticker
// sends a KeepAlive whenever the channel has been silent for
// keepAliveInterval. Mirrors the teacher's Peer.Run/readMessagesLoop/
// writeMessagesLoop split via errgroup, generalized to the Channel facade
// and freed of piece-selection callbacks (out of this core's scope).
func (c *Channel) Run(ctx context.Context, outbox <-chan *protocol.Message, keepAliveInterval time.Duration, onMessage func(*protocol.Message)) error {
	defer c.Close()

	g, gctx := errgroup.WithContext(ctx)

	// Recv blocks on the stream until a frame arrives (with no read deadline
	// unless SetTimeouts installed one); closing the channel is what
	// unblocks it once the caller cancels ctx.
	g.Go(func() error {
		<-gctx.Done()
		c.Close()
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			default:
			}

			m, err := c.Recv()
			if err != nil {
				return err
			}
			if onMessage != nil {
				onMessage(m)
			}
		}
	})

	g.Go(func() error {
		var ticker *time.Ticker
		var tickC <-chan time.Time
		if keepAliveInterval > 0 {
			ticker = time.NewTicker(keepAliveInterval)
			defer ticker.Stop()
			tickC = ticker.C
		}

		for {
			select {
			case <-gctx.Done():
				return nil
			case m, ok := <-outbox:
				if !ok {
					return nil
				}
				if err := c.Send(m); err != nil {
					return err
				}
			case <-tickC:
				if c.Idle(keepAliveInterval) {
					if err := c.Send(nil); err != nil {
						return err
					}
				}
			}
		}
	})

	return g.Wait()
}

// Stats returns a snapshot of this channel's frame/byte counters.
func (c *Channel) Stats() Snapshot { return c.stats.snapshot() }

// RecentActivity returns up to n of the most recently sent or received
// messages, oldest first.
func (c *Channel) RecentActivity(n int) []Event { return c.log.recent(n) }

// Close closes the underlying stream. Idempotent: only the first call
// closes the stream and later calls return nil. Send and Recv calls made
// after Close return ErrChannelClosed; a Send or Recv already blocked on the
// stream fails with the stream's own error.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.stream.Close()
	})
	return err
}

func (c *Channel) touch() { c.lastActivity.Store(time.Now().UnixNano()) }

func (c *Channel) applySent(m *protocol.Message) {
	if protocol.IsKeepAlive(m) {
		return
	}
	switch m.ID {
	case protocol.Choke:
		c.session.SendChoke()
	case protocol.Unchoke:
		c.session.SendUnchoke()
	case protocol.Interested:
		c.session.SendInterested()
	case protocol.NotInterested:
		c.session.SendNotInterested()
	}
}

func (c *Channel) applyReceived(m *protocol.Message) {
	if protocol.IsKeepAlive(m) {
		return
	}
	switch m.ID {
	case protocol.Choke:
		c.session.ReceiveChoke()
	case protocol.Unchoke:
		c.session.ReceiveUnchoke()
	case protocol.Interested:
		c.session.ReceiveInterested()
	case protocol.NotInterested:
		c.session.ReceiveNotInterested()
	}
}

// readTimeout/writeTimeout are indirections over config so tests can run
// without pulling in the global config singleton; they default to zero
// (no deadline) until overridden by SetTimeouts.
var (
	readTO, writeTO atomic.Int64
)

// SetTimeouts installs the read/write deadlines future Channel operations
// apply per frame. A zero duration disables the corresponding deadline.
// Intended to be called once at startup from the session-management layer
// using config.Load().
func SetTimeouts(read, write time.Duration) {
	readTO.Store(int64(read))
	writeTO.Store(int64(write))
}

func readTimeout() time.Duration  { return time.Duration(readTO.Load()) }
func writeTimeout() time.Duration { return time.Duration(writeTO.Load()) }

var _ io.Closer = (*Channel)(nil)
