package protocol

import "testing"

func TestCapabilitiesReservedRoundTrip(t *testing.T) {
	c := CapFastExtension.With(CapDHT)

	reserved := c.Reserved()
	got := CapabilitiesFromReserved(reserved)

	if got != c {
		t.Fatalf("round-trip = %#x, want %#x", uint64(got), uint64(c))
	}
	if !got.HasFastExtension() || !got.HasDHT() {
		t.Fatalf("expected fast extension and dht bits set: %#x", uint64(got))
	}
	if got.HasExtensionProtocol() {
		t.Fatalf("extension protocol bit should not be set")
	}
}

func TestNegotiateIsIntersection(t *testing.T) {
	local := CapFastExtension.With(CapExtensionProtocol)
	remote := CapFastExtension.With(CapDHT)

	n := Negotiate(local, remote)

	if !n.FastExtension() {
		t.Fatalf("fast extension should be negotiated (present on both sides)")
	}
	if n.ExtensionProtocol() {
		t.Fatalf("extension protocol should not be negotiated (remote lacks it)")
	}
	if n.DHT() {
		t.Fatalf("dht should not be negotiated (local lacks it)")
	}
}
