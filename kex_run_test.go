package ssh

import (
	"net"
	"testing"
	"time"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// TestRunKexStrictViolationYieldsKexError is the end-to-end regression
// test for spec scenario 2: a non-KEX message (here DEBUG) arriving in
// place of the expected KEX reply must surface as a *KexError, not a
// bare protocol/unexpected-message error, so the caller's DISCONNECT
// carries reason KeyExchangeFailed(3) rather than DisconnectByApplication.
func TestRunKexStrictViolationYieldsKexError(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() { local.Close(); remote.Close() })

	cfg := DefaultConfig()
	cfg.KexAlgorithms = []string{"curve25519-sha256"}
	cfg.HostKeyCallback = InsecureIgnoreHostKey()

	clientT := newTransport(local)
	peer := newTransport(remote)

	serverDone := make(chan error, 1)
	go func() {
		packet, err := peer.readPacket()
		if err != nil {
			serverDone <- err
			return
		}
		var clientInit msg.KexInit
		if err := wire.Unmarshal(packet, &clientInit); err != nil {
			serverDone <- err
			return
		}

		serverInit := &msg.KexInit{
			KexAlgorithms:              []string{"curve25519-sha256", kexStrictServerExtension},
			ServerHostKeyAlgorithms:    DefaultHostKeyAlgorithms,
			CiphersClientToServer:      DefaultCiphers,
			CiphersServerToClient:      DefaultCiphers,
			MACsClientToServer:         DefaultMACs,
			MACsServerToClient:         DefaultMACs,
			CompressionClientToServer:  DefaultCompression,
			CompressionServerToClient:  DefaultCompression,
			LanguagesClientToServer:    []string{},
			LanguagesServerToClient:    []string{},
		}
		if err := peer.writePacket(wire.Marshal(serverInit)); err != nil {
			serverDone <- err
			return
		}

		// The client now sends KEX_ECDH_INIT; consume it without caring
		// about its contents, then violate strict-KEX by answering with
		// DEBUG instead of KEX_ECDH_REPLY.
		if _, err := peer.readPacket(); err != nil {
			serverDone <- err
			return
		}
		serverDone <- peer.writePacket(wire.Marshal(&msg.Debug{Message: "not a kex reply"}))
	}()

	_, _, err := runKex(clientT, cfg, []byte("SSH-2.0-client"), []byte("SSH-2.0-server"), nil, true, nil)
	select {
	case serverErr := <-serverDone:
		if serverErr != nil {
			t.Fatalf("peer goroutine failed: %v", serverErr)
		}
	case <-time.After(time.Second):
		t.Fatal("peer goroutine never finished")
	}

	if err == nil {
		t.Fatal("expected runKex to fail when DEBUG arrives in place of the KEX reply")
	}
	if _, ok := err.(*KexError); !ok {
		t.Fatalf("runKex error = %T (%v), want *KexError", err, err)
	}
	if got := disconnectReasonFor(err); got != msg.DisconnectKeyExchangeFailed {
		t.Fatalf("disconnectReasonFor(err) = %d, want %d (KeyExchangeFailed)", got, msg.DisconnectKeyExchangeFailed)
	}
}
