package ssh

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"testing"
)

func TestStreamPacketCipherRoundTripMACThenEncrypt(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	rand.Read(key)
	rand.Read(iv)
	macKey := make([]byte, 32)
	rand.Read(macKey)

	send := newStreamCipher(key, iv).(*streamPacketCipher).withMAC(findMAC("hmac-sha2-256").newMac(macKey), false)
	recv := newStreamCipher(key, iv).(*streamPacketCipher).withMAC(findMAC("hmac-sha2-256").newMac(macKey), false)

	testPacketCipherRoundTrip(t, send, recv, 5)
}

func TestStreamPacketCipherRoundTripEncryptThenMAC(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 16)
	rand.Read(key)
	rand.Read(iv)
	macKey := make([]byte, 64)
	rand.Read(macKey)

	send := newStreamCipher(key, iv).(*streamPacketCipher).withMAC(findMAC("hmac-sha2-512-etm@openssh.com").newMac(macKey), true)
	recv := newStreamCipher(key, iv).(*streamPacketCipher).withMAC(findMAC("hmac-sha2-512-etm@openssh.com").newMac(macKey), true)

	testPacketCipherRoundTrip(t, send, recv, 5)
}

func TestStreamPacketCipherMACRejectsTamper(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	macKey := make([]byte, 32)
	send := newStreamCipher(key, iv).(*streamPacketCipher).withMAC(findMAC("hmac-sha2-256").newMac(macKey), false)
	recv := newStreamCipher(key, iv).(*streamPacketCipher).withMAC(findMAC("hmac-sha2-256").newMac(macKey), false)

	var buf bytes.Buffer
	if err := send.writePacket(0, &buf, rand.Reader, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	tampered := buf.Bytes()
	tampered[len(tampered)-1] ^= 0xff
	if _, err := recv.readPacket(0, bytes.NewReader(tampered)); err == nil {
		t.Fatal("expected MAC verification to fail on tampered packet")
	}
}

func TestAEADChaCha20Poly1305RoundTrip(t *testing.T) {
	key := make([]byte, 64)
	rand.Read(key)
	send := newChaCha20Poly1305Cipher(append([]byte{}, key...))
	recv := newChaCha20Poly1305Cipher(append([]byte{}, key...))
	testPacketCipherRoundTrip(t, send, recv, 5)
}

func TestAEADGCMRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 12)
	rand.Read(key)
	rand.Read(iv)
	send := newGCMCipher(append([]byte{}, key...), append([]byte{}, iv...))
	recv := newGCMCipher(append([]byte{}, key...), append([]byte{}, iv...))
	testPacketCipherRoundTrip(t, send, recv, 5)
}

// TestFixedNonceGCMNoncesDiffer is a direct regression test for the
// nonce-derivation bug found during review: two packets of identical
// length must never produce the same AES-GCM nonce.
func TestFixedNonceGCMNoncesDiffer(t *testing.T) {
	iv := []byte{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 9}
	g := newFixedNonceGCM(nil, iv)
	g.setSeq(0)
	n0 := append([]byte{}, g.nonceFor(g.seq)...)
	g.setSeq(1)
	n1 := append([]byte{}, g.nonceFor(g.seq)...)
	if bytes.Equal(n0, n1) {
		t.Fatal("nonces for different sequence numbers must differ")
	}
}

// TestFixedNonceGCMSeedsCounterFromIV is a regression test for the
// counter-seeding bug found during review: the invocation counter
// must start at the derived IV's lower 8 bytes, per RFC 5647 section
// 7.1, not at zero.
func TestFixedNonceGCMSeedsCounterFromIV(t *testing.T) {
	iv := []byte{10, 20, 30, 40, 0, 0, 0, 0, 0, 0, 0, 5}
	g := newFixedNonceGCM(nil, iv)
	g.setSeq(0)
	nonce := g.nonceFor(g.seq)
	want := []byte{10, 20, 30, 40, 0, 0, 0, 0, 0, 0, 0, 5}
	if !bytes.Equal(nonce, want) {
		t.Fatalf("nonceFor(0) = %x, want %x (counter seeded from iv[4:12])", nonce, want)
	}
	g.setSeq(1)
	nonce = g.nonceFor(g.seq)
	want = []byte{10, 20, 30, 40, 0, 0, 0, 0, 0, 0, 0, 6}
	if !bytes.Equal(nonce, want) {
		t.Fatalf("nonceFor(1) = %x, want %x (counter advances by one per packet)", nonce, want)
	}
}

func TestAEADGCMSamePacketLengthDifferentSeqNoReuse(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 12)
	rand.Read(key)
	rand.Read(iv)
	send := newGCMCipher(append([]byte{}, key...), append([]byte{}, iv...))
	recv := newGCMCipher(append([]byte{}, key...), append([]byte{}, iv...))

	payload := []byte("same length payload")
	var buf bytes.Buffer
	if err := send.writePacket(0, &buf, rand.Reader, append([]byte{}, payload...)); err != nil {
		t.Fatal(err)
	}
	first := append([]byte{}, buf.Bytes()...)
	buf.Reset()
	if err := send.writePacket(1, &buf, rand.Reader, append([]byte{}, payload...)); err != nil {
		t.Fatal(err)
	}
	second := buf.Bytes()
	if bytes.Equal(first, second) {
		t.Fatal("identical-length packets at different sequence numbers must not produce identical ciphertext")
	}

	got, err := recv.readPacket(0, bytes.NewReader(first))
	if err != nil {
		t.Fatalf("readPacket(seq=0): %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
	got, err = recv.readPacket(1, bytes.NewReader(second))
	if err != nil {
		t.Fatalf("readPacket(seq=1): %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func testPacketCipherRoundTrip(t *testing.T, send, recv packetCipher, n int) {
	t.Helper()
	for seq := uint32(0); seq < uint32(n); seq++ {
		payload := sha256.Sum256([]byte{byte(seq)})
		var buf bytes.Buffer
		if err := send.writePacket(seq, &buf, rand.Reader, append([]byte{}, payload[:]...)); err != nil {
			t.Fatalf("seq %d: writePacket: %v", seq, err)
		}
		got, err := recv.readPacket(seq, bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("seq %d: readPacket: %v", seq, err)
		}
		if !bytes.Equal(got, payload[:]) {
			t.Fatalf("seq %d: got %x, want %x", seq, got, payload)
		}
	}
}
