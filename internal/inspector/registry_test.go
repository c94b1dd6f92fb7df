package inspector

import (
	"crypto/sha1"
	"net"
	"testing"

	"github.com/prxssh/peerwire/internal/peer"
	"github.com/prxssh/peerwire/internal/protocol"
)

func hash20(s string) [sha1.Size]byte {
	var a [sha1.Size]byte
	copy(a[:], []byte(s))
	return a
}

func openTestChannel(t *testing.T) *peer.Channel {
	t.Helper()

	info := hash20("info_hash_1234567890")

	// net.Pipe has no buffering and both ends of Open write their handshake
	// before reading, so the pair is connected over loopback TCP instead.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	a, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	b, err := ln.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	type result struct {
		ch  *peer.Channel
		err error
	}
	done := make(chan result, 1)
	go func() {
		hs := *protocol.NewHandshake(info, hash20("peer_a______________"), 0)
		_, ch, err := peer.Open(a, hs, true)
		done <- result{ch, err}
	}()

	hs := *protocol.NewHandshake(info, hash20("peer_b______________"), 0)
	_, _, err = peer.Open(b, hs, true)
	if err != nil {
		t.Fatalf("Open b: %v", err)
	}
	r := <-done
	if r.err != nil {
		t.Fatalf("Open a: %v", r.err)
	}
	return r.ch
}

func TestRegistry_RegisterSnapshotUnregister(t *testing.T) {
	reg := NewRegistry()
	ch := openTestChannel(t)
	defer ch.Close()

	id := reg.Register("127.0.0.1:6881", ch)
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}

	snaps := reg.Snapshot(0)
	if len(snaps) != 1 {
		t.Fatalf("Snapshot() returned %d entries, want 1", len(snaps))
	}
	if snaps[0].SessionID != id {
		t.Fatalf("SessionID = %v, want %v", snaps[0].SessionID, id)
	}
	if snaps[0].Addr != "127.0.0.1:6881" {
		t.Fatalf("Addr = %q, want 127.0.0.1:6881", snaps[0].Addr)
	}

	reg.Unregister(id)
	if reg.Len() != 0 {
		t.Fatalf("Len() after Unregister = %d, want 0", reg.Len())
	}
}

func TestRegistry_DistinctSessionIDsPerRegistration(t *testing.T) {
	reg := NewRegistry()
	ch1 := openTestChannel(t)
	defer ch1.Close()
	ch2 := openTestChannel(t)
	defer ch2.Close()

	id1 := reg.Register("127.0.0.1:1", ch1)
	id2 := reg.Register("127.0.0.1:2", ch2)

	if id1 == id2 {
		t.Fatalf("expected distinct session ids, got %v twice", id1)
	}
	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
}
