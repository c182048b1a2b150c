package msg

import (
	"bytes"
	"testing"

	"github.com/chara-x/sshcore/wire"
)

func TestDecodeUnambiguous(t *testing.T) {
	in := &Disconnect{Reason: DisconnectByApplication, Message: "bye", Language: ""}
	v, ok, err := Decode(wire.Marshal(in))
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	out, ok := v.(*Disconnect)
	if !ok {
		t.Fatalf("Decode returned %T, want *Disconnect", v)
	}
	if out.Reason != in.Reason || out.Message != in.Message {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestDecodeAmbiguousNumberNotOwned(t *testing.T) {
	// 30/31/60 are reused across KEX families and userauth sub-states;
	// Decoders deliberately has no entry for them.
	for _, n := range []byte{30, 31, 60} {
		if _, found := Decoders[n]; found {
			t.Fatalf("message number %d should not have an unambiguous decoder", n)
		}
	}
}

func TestDecodeEmptyPacket(t *testing.T) {
	_, _, err := Decode(nil)
	if err == nil {
		t.Fatal("expected error for empty packet")
	}
}

func TestDecodeUnknownNumber(t *testing.T) {
	_, ok, err := Decode([]byte{200})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for unknown message number")
	}
}

func TestChannelOpenDirectTCPIPFragment(t *testing.T) {
	open := &ChannelOpen{ChanType: "direct-tcpip", LocalID: 3, LocalWindow: 1 << 20, MaxPacketSize: 1 << 15}
	payload := &ChannelOpenDirectTCPIP{Host: "example.com", Port: 80, OriginHost: "0.0.0.0", OriginPort: 0}
	open.TypeData = wire.Marshal(payload)

	packet := wire.Marshal(open)
	var got ChannelOpen
	if err := wire.Unmarshal(packet, &got); err != nil {
		t.Fatalf("Unmarshal ChannelOpen: %v", err)
	}
	var gotPayload ChannelOpenDirectTCPIP
	if err := wire.Unmarshal(got.TypeData, &gotPayload); err != nil {
		t.Fatalf("Unmarshal ChannelOpenDirectTCPIP: %v", err)
	}
	if gotPayload.Host != payload.Host || gotPayload.Port != payload.Port {
		t.Fatalf("got %+v, want %+v", gotPayload, payload)
	}
}

func TestKexInitRoundTrip(t *testing.T) {
	in := &KexInit{
		KexAlgorithms:           []string{"curve25519-sha256", "diffie-hellman-group14-sha256"},
		ServerHostKeyAlgorithms: []string{"ssh-ed25519"},
		CiphersClientToServer:   []string{"chacha20-poly1305@openssh.com"},
		CiphersServerToClient:   []string{"chacha20-poly1305@openssh.com"},
		MACsClientToServer:      []string{"hmac-sha2-256"},
		MACsServerToClient:      []string{"hmac-sha2-256"},
		CompressionClientToServer: []string{"none"},
		CompressionServerToClient: []string{"none"},
		LanguagesClientToServer: []string{},
		LanguagesServerToClient: []string{},
	}
	copy(in.Cookie[:], bytes.Repeat([]byte{0xAB}, 16))

	var out KexInit
	if err := wire.Unmarshal(wire.Marshal(in), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Cookie != in.Cookie {
		t.Fatalf("cookie mismatch")
	}
	if len(out.KexAlgorithms) != len(in.KexAlgorithms) || out.KexAlgorithms[0] != in.KexAlgorithms[0] {
		t.Fatalf("KexAlgorithms mismatch: %v", out.KexAlgorithms)
	}
}
