package config

import (
	"crypto/rand"
	"crypto/sha1"
	"sync/atomic"
	"time"
)

// Config holds the resource limits and policy values the peer-wire core
// needs but does not decide on its own: timeouts, buffer sizing, keep-alive
// cadence and the client's self-identification. Everything here is a knob
// for the session-management layer that drives the core; the core itself
// never reads a global config value, only what a caller passes in.
type Config struct {
	// ClientID is the 20-byte peer id this client presents during the
	// handshake.
	ClientID [sha1.Size]byte

	// ReadTimeout is the maximum time to wait for a frame from a peer
	// before considering the read stalled.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when writing a frame to a
	// peer before considering the write stalled.
	WriteTimeout time.Duration

	// DialTimeout is the maximum time to wait when establishing a new
	// connection to a peer.
	DialTimeout time.Duration

	// KeepAliveInterval is the cadence at which a keep-alive is emitted if
	// no other frame has been sent (BEP 3 recommends ~2 minutes).
	KeepAliveInterval time.Duration

	// PeerInactivityDuration is the silence threshold past which a peer is
	// considered dead.
	PeerInactivityDuration time.Duration

	// MaxFrameSize bounds a decoded frame's declared length, guarding
	// against memory exhaustion from a hostile sender.
	MaxFrameSize uint32

	// DefaultBlockSize is the conventional block size (16 KiB) used when
	// constructing REQUEST messages.
	DefaultBlockSize uint32

	// DefaultUnchokeSlots is the advisory number of peers a client may
	// unchoke simultaneously; consumed by the (out-of-scope) choking
	// algorithm.
	DefaultUnchokeSlots int

	// PeerOutboundQueueBacklog bounds the number of messages a peer
	// channel's outbox channel can buffer before Send blocks or drops.
	PeerOutboundQueueBacklog int

	// MetricsEnabled toggles the read-only inspector HTTP/WS endpoint.
	MetricsEnabled bool

	// MetricsBindAddr is the HTTP address the inspector listens on (e.g.
	// ":9090").
	MetricsBindAddr string
}

func defaultConfig() (Config, error) {
	clientID, err := generateClientID()
	if err != nil {
		return Config{}, err
	}

	return Config{
		ClientID:                 clientID,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
		DialTimeout:              7 * time.Second,
		KeepAliveInterval:        2 * time.Minute,
		PeerInactivityDuration:   2 * time.Minute,
		MaxFrameSize:             1 << 24,
		DefaultBlockSize:         16384,
		DefaultUnchokeSlots:      4,
		PeerOutboundQueueBacklog: 256,
		MetricsEnabled:           false,
		MetricsBindAddr:          ":9090",
	}, nil
}

func generateClientID() ([sha1.Size]byte, error) {
	var peerID [sha1.Size]byte

	prefix := []byte("-PW0001-")
	copy(peerID[:], prefix)

	if _, err := rand.Read(peerID[len(prefix):]); err != nil {
		return [sha1.Size]byte{}, err
	}

	return peerID, nil
}

var cfg atomic.Value

// Init seeds the global config with its defaults. Safe to call more than
// once; the last call wins.
func Init() error {
	dcfg, err := defaultConfig()
	if err != nil {
		return err
	}
	cfg.Store(&dcfg)
	return nil
}

// Load returns the current config. Treat the returned value as read-only;
// mutate through Update.
func Load() *Config {
	v, _ := cfg.Load().(*Config)
	if v == nil {
		dcfg, err := defaultConfig()
		if err != nil {
			panic(err)
		}
		v = &dcfg
		cfg.Store(v)
	}
	return v
}

// Update applies mut to a copy of the current config and swaps it in
// atomically.
func Update(mut func(*Config)) *Config {
	curr := Load()
	next := *curr
	mut(&next)
	cfg.Store(&next)
	return &next
}
