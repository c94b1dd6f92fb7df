// Package stats turns a peer.Channel's counters into a generic,
// JSON-friendly map for diagnostic consumers (the inspector, a future
// metrics exporter) without hand-listing every field twice.
package stats

import (
	"encoding/hex"
	"time"

	"github.com/prxssh/peerwire/internal/peer"
	"github.com/tkrajina/go-reflector/reflector"
)

// ChannelSnapshot is the diagnostic view of one peer.Channel at an
// instant: its identity, negotiated capabilities, session status and
// frame/byte counters. Each field's json tag doubles as the key ToMap
// produces for it.
type ChannelSnapshot struct {
	PeerID       string `json:"peerId"`
	Addr         string `json:"addr"`
	FastExtension bool  `json:"fastExtension"`
	ExtensionProtocol bool `json:"extensionProtocol"`

	ClientChoking    bool `json:"clientChoking"`
	ClientInterested bool `json:"clientInterested"`
	PeerChoking      bool `json:"peerChoking"`
	PeerInterested   bool `json:"peerInterested"`

	FramesSent         uint64 `json:"framesSent"`
	FramesReceived     uint64 `json:"framesReceived"`
	KeepAlivesSent     uint64 `json:"keepAlivesSent"`
	KeepAlivesReceived uint64 `json:"keepAlivesReceived"`
	BytesUploaded      uint64 `json:"bytesUploaded"`
	BytesDownloaded    uint64 `json:"bytesDownloaded"`
	RequestsSent       uint64 `json:"requestsSent"`
	RequestsReceived   uint64 `json:"requestsReceived"`

	ConnectedAt  time.Time     `json:"connectedAt"`
	ConnectedFor time.Duration `json:"connectedFor"`
	Idle         bool          `json:"idle"`
}

// FromChannel builds a ChannelSnapshot from a live channel's current
// identity, negotiated capabilities, session status and counters.
func FromChannel(ch *peer.Channel, addr string, idleThreshold time.Duration) ChannelSnapshot {
	id := ch.Identity()
	status := ch.Status()
	s := ch.Stats()

	return ChannelSnapshot{
		PeerID:            hex.EncodeToString(id.PeerID[:]),
		Addr:              addr,
		FastExtension:     ch.Negotiated().FastExtension(),
		ExtensionProtocol: ch.Negotiated().ExtensionProtocol(),

		ClientChoking:    status.Client.Choking,
		ClientInterested: status.Client.Interested,
		PeerChoking:      status.Peer.Choking,
		PeerInterested:   status.Peer.Interested,

		FramesSent:         s.FramesSent,
		FramesReceived:     s.FramesReceived,
		KeepAlivesSent:     s.KeepAlivesSent,
		KeepAlivesReceived: s.KeepAlivesReceived,
		BytesUploaded:      s.BytesUploaded,
		BytesDownloaded:    s.BytesDownloaded,
		RequestsSent:       s.RequestsSent,
		RequestsReceived:   s.RequestsReceived,

		ConnectedAt:  s.ConnectedAt,
		ConnectedFor: s.ConnectedFor,
		Idle:         ch.Idle(idleThreshold),
	}
}

// ToMap walks snap's fields via reflection, keyed by each field's json
// tag (falling back to its Go name), so adding a field to ChannelSnapshot
// is the only place a new diagnostic needs to be declared.
func ToMap(snap ChannelSnapshot) (map[string]any, error) {
	obj := reflector.New(snap)

	fields, err := obj.FieldsAll()
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		key := f.Name()
		if tag, tagErr := f.Tag("json"); tagErr == nil && tag != "" && tag != "-" {
			key = tag
		}

		val, err := f.Get()
		if err != nil {
			return nil, err
		}

		if d, ok := val.(time.Duration); ok {
			out[key] = d.String()
			continue
		}
		if tm, ok := val.(time.Time); ok {
			out[key] = tm.Format(time.RFC3339Nano)
			continue
		}

		out[key] = val
	}

	return out, nil
}
