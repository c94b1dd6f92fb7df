package session

import "testing"

func TestSession_InitialState(t *testing.T) {
	s := New()

	if !s.AmChoking() || !s.PeerChoking() {
		t.Fatalf("both sides should start choking")
	}
	if s.AmInterested() || s.PeerInterested() {
		t.Fatalf("neither side should start interested")
	}
	if s.CanUpload() || s.CanDownload() {
		t.Fatalf("initial state must permit neither upload nor download")
	}
}

// TestSession_StateTransitions follows the message sequence of spec.md
// scenario S6: from initial state, recv Interested then send Unchoke
// yields can_upload=true, can_download=false; a subsequent recv Choke only
// sets peer.choking, so can_upload stays true and can_download stays false
// (client never declared interest).
func TestSession_StateTransitions(t *testing.T) {
	s := New()

	s.ReceiveInterested()
	s.SendUnchoke()

	if !s.CanUpload() {
		t.Fatalf("expected CanUpload after recv Interested + send Unchoke")
	}
	if s.CanDownload() {
		t.Fatalf("expected CanDownload false, client never expressed interest")
	}

	s.ReceiveChoke()
	if !s.CanUpload() {
		t.Fatalf("ReceiveChoke must not affect CanUpload (peer-choking has no bearing on upload)")
	}
	if s.CanDownload() {
		t.Fatalf("CanDownload should remain false")
	}
}

func TestSession_EachControlMessageTogglesExactlyOneBit(t *testing.T) {
	s := New()

	before := s.Snapshot()
	s.SendChoke()
	after := s.Snapshot()
	if after.Client.Choking != true || after.Client.Interested != before.Client.Interested {
		t.Fatalf("SendChoke must only affect client.Choking")
	}

	s.SendInterested()
	after = s.Snapshot()
	if !after.Client.Interested || after.Peer != before.Peer {
		t.Fatalf("SendInterested must only affect client.Interested")
	}

	s.ReceiveUnchoke()
	after = s.Snapshot()
	if after.Peer.Choking {
		t.Fatalf("ReceiveUnchoke must clear peer.Choking")
	}

	s.ReceiveInterested()
	after = s.Snapshot()
	if !after.Peer.Interested {
		t.Fatalf("ReceiveInterested must set peer.Interested")
	}
}

func TestSession_CanUploadCanDownloadPureFunctions(t *testing.T) {
	cases := []struct {
		status       Status
		wantUpload   bool
		wantDownload bool
	}{
		{Status{}, false, false},
		{Status{Peer: Flags{Interested: true}}, true, false},
		{Status{Client: Flags{Interested: true}, Peer: Flags{Choking: false}}, false, true},
		{
			Status{
				Client: Flags{Interested: true},
				Peer:   Flags{Interested: true},
			},
			true, true,
		},
	}

	for _, tc := range cases {
		if got := CanUpload(tc.status); got != tc.wantUpload {
			t.Fatalf("CanUpload(%+v) = %v, want %v", tc.status, got, tc.wantUpload)
		}
		if got := CanDownload(tc.status); got != tc.wantDownload {
			t.Fatalf("CanDownload(%+v) = %v, want %v", tc.status, got, tc.wantDownload)
		}
	}
}

func TestDefaultUnchokeSlots(t *testing.T) {
	if DefaultUnchokeSlots != 4 {
		t.Fatalf("DefaultUnchokeSlots = %d, want 4", DefaultUnchokeSlots)
	}
}
