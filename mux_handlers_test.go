package ssh

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// TestHandleChannelOpenConfirmAddressesByOurLocalID is a regression
// test for the swapped-field bug found during review: the peer's
// confirmation must be looked up by the id we allocated (RemoteID on
// the wire) and must set our notion of the peer's id from LocalID on
// the wire, not the reverse.
func TestHandleChannelOpenConfirmAddressesByOurLocalID(t *testing.T) {
	s := testSession(t)
	c := newChannel(s, "session")
	s.channelsMu.Lock()
	c.localID = s.nextChanID
	s.nextChanID++
	s.channels[c.localID] = c
	s.channelsMu.Unlock()

	confirm := &msg.ChannelOpenConfirm{
		RemoteID:      c.localID, // the id we allocated, echoed back
		LocalID:       42,        // the server's own id for this channel
		RemoteWindow:  1 << 20,
		MaxPacketSize: 1 << 15,
	}
	if err := s.handleChannelOpenConfirm(wire.Marshal(confirm)); err != nil {
		t.Fatalf("handleChannelOpenConfirm: %v", err)
	}

	select {
	case result := <-c.openResultCh:
		if !result.confirmed {
			t.Fatal("expected confirmed open result")
		}
	case <-time.After(time.Second):
		t.Fatal("openResultCh never fired; lookup by our local id failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remoteID != 42 {
		t.Fatalf("c.remoteID = %d, want 42 (the server's id from confirm.LocalID)", c.remoteID)
	}
}

// TestFailSendsDisconnect is a regression test: a fatal transport
// error must produce a best-effort SSH_MSG_DISCONNECT with a reason
// code derived from the error, not a silent close.
func TestFailSendsDisconnect(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() { local.Close(); remote.Close() })

	s := &Session{
		cfg:      DefaultConfig(),
		conn:     local,
		t:        newTransport(local),
		channels: make(map[uint32]*Channel),
		closeCh:  make(chan struct{}),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	peer := newTransport(remote)

	done := make(chan struct{})
	var gotPacket []byte
	go func() {
		packet, err := peer.readPacket()
		if err == nil {
			gotPacket = packet
		}
		close(done)
	}()

	s.fail(&MacError{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fail never wrote a DISCONNECT packet")
	}
	if len(gotPacket) == 0 {
		t.Fatal("expected a non-empty DISCONNECT packet")
	}
	var d msg.Disconnect
	if err := wire.Unmarshal(gotPacket, &d); err != nil {
		t.Fatalf("Unmarshal Disconnect: %v", err)
	}
	if d.Reason != msg.DisconnectMACError {
		t.Fatalf("Reason = %d, want %d (MAC error)", d.Reason, msg.DisconnectMACError)
	}
}

func TestDisconnectReasonForMapping(t *testing.T) {
	cases := []struct {
		err  error
		want uint32
	}{
		{&MacError{}, msg.DisconnectMACError},
		{&KexError{Reason: "no common algorithm"}, msg.DisconnectKeyExchangeFailed},
		{&ProtocolError{Reason: "bad packet"}, msg.DisconnectProtocolError},
		{&ConnectionError{Op: "read"}, msg.DisconnectByApplication},
	}
	for _, c := range cases {
		if got := disconnectReasonFor(c.err); got != c.want {
			t.Errorf("disconnectReasonFor(%T) = %d, want %d", c.err, got, c.want)
		}
	}
}
