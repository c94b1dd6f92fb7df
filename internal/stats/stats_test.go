package stats

import (
	"testing"
	"time"
)

func TestToMap_UsesJSONTagsAndFormatsSpecialTypes(t *testing.T) {
	snap := ChannelSnapshot{
		PeerID:       "aabbcc",
		Addr:         "127.0.0.1:6881",
		ClientChoking: true,
		FramesSent:   3,
		ConnectedAt:  time.Unix(0, 0).UTC(),
		ConnectedFor: 2 * time.Second,
	}

	m, err := ToMap(snap)
	if err != nil {
		t.Fatalf("ToMap error: %v", err)
	}

	if m["peerId"] != "aabbcc" {
		t.Fatalf("peerId = %v, want aabbcc", m["peerId"])
	}
	if m["addr"] != "127.0.0.1:6881" {
		t.Fatalf("addr = %v, want 127.0.0.1:6881", m["addr"])
	}
	if m["clientChoking"] != true {
		t.Fatalf("clientChoking = %v, want true", m["clientChoking"])
	}
	if m["framesSent"] != uint64(3) {
		t.Fatalf("framesSent = %v, want 3", m["framesSent"])
	}
	if m["connectedFor"] != "2s" {
		t.Fatalf("connectedFor = %v, want \"2s\"", m["connectedFor"])
	}
	if m["connectedAt"] != "1970-01-01T00:00:00Z" {
		t.Fatalf("connectedAt = %v, want RFC3339Nano epoch", m["connectedAt"])
	}
}
