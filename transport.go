package ssh

import (
	"bufio"
	"crypto/rand"
	"io"
	"net"
	"sync"
)

// transport is the Binary Packet Protocol: it owns the raw
// connection, one packetCipher and sequence counter per direction,
// and the strict-KEX bookkeeping from spec section 4.3. It has no
// knowledge of message semantics above the framing layer.
//
// Per spec section 5, reads happen only on the session's single
// receive task; writes are serialized by writeMu, which also
// protects (packet, sequence increment, cipher advance) as one unit.
type transport struct {
	conn net.Conn
	r    *bufio.Reader // shared with the version exchange; see exchangeVersions

	writeMu   sync.Mutex
	writeSeq  uint32
	writeCipher packetCipher

	readSeq    uint32
	readCipher packetCipher

	strict bool // true once both sides have reciprocated kex-strict-*-v00@openssh.com

	bytesSinceRekey int64
}

func newTransport(conn net.Conn) *transport {
	return &transport{conn: conn, r: bufio.NewReaderSize(conn, maxVersionLineLength+2), writeCipher: noneCipher{}, readCipher: noneCipher{}}
}

// readPacket blocks until a full, decrypted, verified packet arrives.
// It is called by one goroutine at a time: Connect's handshake (KEX,
// service request, authentication) before the receive loop starts,
// then only the receive loop.
func (t *transport) readPacket() ([]byte, error) {
	packet, err := t.readCipher.readPacket(t.readSeq, t.r)
	if err != nil {
		return nil, err
	}
	t.readSeq++
	// Empty packets are legal at the wire level (a zero-length
	// payload still carries a type byte normally, but a defensive
	// check here turns a peer bug into a ProtocolError instead of an
	// index panic in the dispatcher).
	if len(packet) == 0 {
		return nil, &ProtocolError{Reason: "empty packet payload"}
	}
	return packet, nil
}

// writePacket frames, encrypts, and sends packet under the write
// mutex, then advances the outbound sequence number. Callers must
// never retain packet after this returns, since stream ciphers
// encrypt it in place.
func (t *transport) writePacket(packet []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.writeCipher.writePacket(t.writeSeq, t.conn, rand.Reader, packet); err != nil {
		return err
	}
	t.writeSeq++
	t.bytesSinceRekey += int64(len(packet))
	return nil
}

// setReadCipher installs newly derived keys for the inbound
// direction, called once per NEWKEYS received. If strict-KEX is in
// effect this also resets the sequence counter to zero (spec section
// 4.3, "Strict KEX").
func (t *transport) setReadCipher(c packetCipher) {
	t.readCipher = c
	if t.strict {
		t.readSeq = 0
	}
}

// setWriteCipher is the write-direction analogue of setReadCipher,
// called once per NEWKEYS sent.
func (t *transport) setWriteCipher(c packetCipher) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.writeCipher = c
	if t.strict {
		t.writeSeq = 0
	}
	t.bytesSinceRekey = 0
}

func (t *transport) Close() error { return t.conn.Close() }

var _ io.Closer = (*transport)(nil)
