// Command peerwire-demo is a thin runnable harness over the peer-wire
// core: it can dial a single remote peer, or listen for inbound peers,
// performing the handshake and then running the resulting channel's
// read/write loops while logging every transition. It schedules no work
// of its own (no piece selection, no choking algorithm); it exists to
// exercise internal/peer.Channel end to end.
package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prxssh/peerwire/internal/config"
	"github.com/prxssh/peerwire/internal/inspector"
	"github.com/prxssh/peerwire/internal/logging"
	"github.com/prxssh/peerwire/internal/peer"
	"github.com/prxssh/peerwire/internal/protocol"
	"golang.org/x/net/netutil"
)

func main() {
	slog.SetDefault(logging.NewDefault())

	if err := config.Init(); err != nil {
		slog.Error("failed to initialize config", "error", err)
		os.Exit(1)
	}

	var (
		listenAddr   = flag.String("listen", "", "address to accept inbound peer connections on, e.g. :6881")
		dialAddr     = flag.String("dial", "", "address of a single peer to dial, e.g. 1.2.3.4:6881")
		infoHashHex  = flag.String("info-hash", "", "40-character hex-encoded info hash")
		maxInbound   = flag.Int("max-inbound", 50, "maximum concurrent inbound connections admitted at once")
		inspectAddr  = flag.String("inspect", "", "bind address for the read-only inspector, e.g. :9090 (disabled if empty, unless config.MetricsEnabled is set)")
	)
	flag.Parse()

	infoHash, err := parseInfoHash(*infoHashHex)
	if err != nil {
		slog.Error("invalid -info-hash", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := inspector.NewRegistry()
	addr := *inspectAddr
	if addr == "" && config.Load().MetricsEnabled {
		addr = config.Load().MetricsBindAddr
	}
	if addr != "" {
		srv := inspector.NewServer(registry, slog.Default(), config.Load().PeerInactivityDuration, 2*time.Second)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				slog.Error("inspector server stopped", "error", err)
			}
		}()
	}

	if *dialAddr != "" {
		runDial(ctx, *dialAddr, infoHash, registry)
		return
	}

	if *listenAddr != "" {
		runListen(ctx, *listenAddr, infoHash, *maxInbound, registry)
		return
	}

	slog.Error("nothing to do: pass -dial or -listen")
	os.Exit(2)
}

func parseInfoHash(s string) ([sha1.Size]byte, error) {
	var h [sha1.Size]byte
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

func runDial(ctx context.Context, addr string, infoHash [sha1.Size]byte, registry *inspector.Registry) {
	log := slog.With("component", "dial", "addr", addr)

	conn, err := net.DialTimeout("tcp", addr, config.Load().DialTimeout)
	if err != nil {
		log.Error("dial failed", "error", err)
		os.Exit(1)
	}

	local := *protocol.NewHandshake(infoHash, config.Load().ClientID, protocol.CapFastExtension)
	_, ch, err := peer.Open(conn, local, true)
	if err != nil {
		log.Error("handshake failed", "error", err)
		os.Exit(1)
	}

	id := registry.Register(addr, ch)
	defer registry.Unregister(id)

	runChannel(ctx, log, ch)
}

func runListen(ctx context.Context, addr string, infoHash [sha1.Size]byte, maxInbound int, registry *inspector.Registry) {
	log := slog.With("component", "listen", "addr", addr)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("listen failed", "error", err)
		os.Exit(1)
	}
	ln = netutil.LimitListener(ln, maxInbound)

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			log.Warn("accept failed", "error", err)
			continue
		}

		go func() {
			local := *protocol.NewHandshake(infoHash, config.Load().ClientID, protocol.CapFastExtension)
			_, ch, err := peer.Open(conn, local, infoHash != [sha1.Size]byte{})
			if err != nil {
				log.Warn("handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
				return
			}

			id := registry.Register(conn.RemoteAddr().String(), ch)
			defer registry.Unregister(id)

			runChannel(ctx, log.With("remote", conn.RemoteAddr().String()), ch)
		}()
	}
}

func runChannel(ctx context.Context, log *slog.Logger, ch *peer.Channel) {
	outbox := make(chan *protocol.Message, config.Load().PeerOutboundQueueBacklog)
	defer close(outbox)

	err := ch.Run(ctx, outbox, config.Load().KeepAliveInterval, func(m *protocol.Message) {
		if protocol.IsKeepAlive(m) {
			log.Debug("received keep-alive")
			return
		}
		log.Debug("received message", "id", m.ID.String(), "size", len(m.Payload))
	})
	if err != nil {
		log.Warn("channel stopped", "error", err)
	}
}
