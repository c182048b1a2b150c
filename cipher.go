package ssh

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"hash"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"
)

const (
	packetSizeMultiple = 16
	maxPacketLength    = 256 * 1024
	prefixLen          = 5
)

// packetCipher frames, encrypts/MACs, and decrypts/verifies one
// direction of a session's traffic. Implementations hold no mutable
// state beyond their own key material and per-call scratch buffers;
// the BPP layer is responsible for sequence numbers and for never
// calling into a cipher concurrently.
type packetCipher interface {
	readPacket(seqNum uint32, r io.Reader) ([]byte, error)
	writePacket(seqNum uint32, w io.Writer, rand io.Reader, packet []byte) error
	blockSize() int
	minSize() int
}

// cipherAlgo names one entry in the negotiated cipher list and knows
// how to build a packetCipher for it given derived key material.
type cipherAlgo struct {
	name      string
	keySize   int
	ivSize    int
	blockSize int
	aead      bool
	new       func(key, iv []byte) packetCipher
}

func findCipher(name string) *cipherAlgo {
	for i := range cipherAlgos {
		if cipherAlgos[i].name == name {
			return &cipherAlgos[i]
		}
	}
	return nil
}

var cipherAlgos = []cipherAlgo{
	{
		name: "chacha20-poly1305@openssh.com", keySize: 64, ivSize: 0, blockSize: 8, aead: true,
		new: func(key, _ []byte) packetCipher { return newChaCha20Poly1305Cipher(key) },
	},
	{
		name: "aes128-gcm@openssh.com", keySize: 16, ivSize: 12, blockSize: 16, aead: true,
		new: func(key, iv []byte) packetCipher { return newGCMCipher(key, iv) },
	},
	{
		name: "aes256-gcm@openssh.com", keySize: 32, ivSize: 12, blockSize: 16, aead: true,
		new: func(key, iv []byte) packetCipher { return newGCMCipher(key, iv) },
	},
	{
		name: "aes128-ctr", keySize: 16, ivSize: aes.BlockSize, blockSize: aes.BlockSize,
		new: func(key, iv []byte) packetCipher { return newStreamCipher(key, iv) },
	},
	{
		name: "aes192-ctr", keySize: 24, ivSize: aes.BlockSize, blockSize: aes.BlockSize,
		new: func(key, iv []byte) packetCipher { return newStreamCipher(key, iv) },
	},
	{
		name: "aes256-ctr", keySize: 32, ivSize: aes.BlockSize, blockSize: aes.BlockSize,
		new: func(key, iv []byte) packetCipher { return newStreamCipher(key, iv) },
	},
}

// macAlgo names a traditional (non-AEAD) MAC and whether it runs in
// encrypt-then-MAC order.
type macAlgo struct {
	name   string
	size   int
	etm    bool
	newMac func(key []byte) hash.Hash
}

var macAlgos = []macAlgo{
	{name: "hmac-sha2-256-etm@openssh.com", size: 32, etm: true, newMac: func(k []byte) hash.Hash { return hmac.New(sha256.New, k) }},
	{name: "hmac-sha2-512-etm@openssh.com", size: 64, etm: true, newMac: func(k []byte) hash.Hash { return hmac.New(sha512.New, k) }},
	{name: "hmac-sha2-256", size: 32, etm: false, newMac: func(k []byte) hash.Hash { return hmac.New(sha256.New, k) }},
	{name: "hmac-sha2-512", size: 64, etm: false, newMac: func(k []byte) hash.Hash { return hmac.New(sha512.New, k) }},
}

func findMAC(name string) *macAlgo {
	for i := range macAlgos {
		if macAlgos[i].name == name {
			return &macAlgos[i]
		}
	}
	return nil
}

// noneCipher is in effect before the first NEWKEYS: no encryption, no
// MAC, packets are framed but sent in the clear.
type noneCipher struct{}

func (noneCipher) blockSize() int { return packetSizeMultiple }
func (noneCipher) minSize() int   { return packetSizeMultiple }

func (noneCipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	length := binary.BigEndian.Uint32(prefix[0:4])
	paddingLength := uint32(prefix[4])
	if length == 0 || length > maxPacketLength {
		return nil, &ProtocolError{Reason: "invalid packet length"}
	}
	if paddingLength+1 > length {
		return nil, &ProtocolError{Reason: "invalid padding length"}
	}
	rest := make([]byte, length-1)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	return rest[:uint32(len(rest))-paddingLength], nil
}

func (noneCipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, packet []byte) error {
	frame, err := frameCleartext(packet, packetSizeMultiple, rand)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// frameCleartext builds the length/padding-length/payload/padding
// frame described in spec section 4.2 steps 2-3, without any
// encryption or MAC. Every cipher's writePacket shares this shape;
// AEAD and MAC-bearing variants encrypt/authenticate afterward.
func frameCleartext(packet []byte, blockSize int, rand io.Reader) ([]byte, error) {
	if len(packet) > maxPacketLength {
		return nil, &ProtocolError{Reason: "packet too large"}
	}
	paddingLength := blockSize - (prefixLen+len(packet))%blockSize
	if paddingLength < 4 {
		paddingLength += blockSize
	}
	length := len(packet) + 1 + paddingLength
	frame := make([]byte, 0, 4+length)
	frame = appendUint32(frame, uint32(length))
	frame = append(frame, byte(paddingLength))
	frame = append(frame, packet...)
	padStart := len(frame)
	frame = append(frame, make([]byte, paddingLength)...)
	if _, err := io.ReadFull(rand, frame[padStart:]); err != nil {
		return nil, err
	}
	return frame, nil
}

func appendUint32(to []byte, n uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], n)
	return append(to, b[:]...)
}

// streamPacketCipher is a block/stream cipher (AES-CTR) paired with a
// traditional HMAC, in either MAC-then-encrypt or encrypt-then-MAC
// order. Grounded on the teacher's StreamPacketCipher, generalized to
// take its MAC and ETM-ness from negotiation instead of being
// hardcoded to SHA-256.
type streamPacketCipher struct {
	cipher cipher.Stream
	mac    hash.Hash
	etm    bool
}

func newStreamCipher(key, iv []byte) packetCipher {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err) // key size is fixed by cipherAlgo and always valid for AES
	}
	return &streamPacketCipher{cipher: cipher.NewCTR(block, iv)}
}

func (s *streamPacketCipher) withMAC(m hash.Hash, etm bool) *streamPacketCipher {
	s.mac, s.etm = m, etm
	return s
}

func (streamPacketCipher) blockSize() int { return aes.BlockSize }
func (streamPacketCipher) minSize() int   { return packetSizeMultiple }

func (s *streamPacketCipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	var encryptedPaddingLength [1]byte
	if s.mac != nil && s.etm {
		copy(encryptedPaddingLength[:], prefix[4:5])
		s.cipher.XORKeyStream(prefix[4:5], prefix[4:5])
	} else {
		s.cipher.XORKeyStream(prefix[:], prefix[:])
	}
	length := binary.BigEndian.Uint32(prefix[0:4])
	paddingLength := uint32(prefix[4])
	var macSize uint32
	if s.mac != nil {
		s.mac.Reset()
		writeSeqNum(s.mac, seqNum)
		if s.etm {
			s.mac.Write(prefix[:4])
			s.mac.Write(encryptedPaddingLength[:])
		} else {
			s.mac.Write(prefix[:])
		}
		macSize = uint32(s.mac.Size())
	}
	if length == 0 || length <= paddingLength+1 || length > maxPacketLength {
		return nil, &ProtocolError{Reason: "invalid packet length"}
	}
	packetData := make([]byte, length-1+macSize)
	if _, err := io.ReadFull(r, packetData); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	mac := packetData[length-1:]
	data := packetData[:length-1]
	if s.mac != nil && s.etm {
		s.mac.Write(data)
	}
	s.cipher.XORKeyStream(data, data)
	if s.mac != nil {
		if !s.etm {
			s.mac.Write(data)
		}
		result := s.mac.Sum(nil)
		if subtle.ConstantTimeCompare(result, mac) != 1 {
			return nil, &MacError{}
		}
	}
	return packetData[:length-1-paddingLength], nil
}

func (s *streamPacketCipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, packet []byte) error {
	if len(packet) > maxPacketLength {
		return &ProtocolError{Reason: "packet too large"}
	}
	paddingLength := packetSizeMultiple - (prefixLen+len(packet))%packetSizeMultiple
	if paddingLength < 4 {
		paddingLength += packetSizeMultiple
	}
	length := len(packet) + 1 + paddingLength
	var prefix [prefixLen]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(length))
	prefix[4] = byte(paddingLength)
	padding := make([]byte, paddingLength)
	if _, err := io.ReadFull(rand, padding); err != nil {
		return err
	}
	var mac []byte
	if s.mac != nil {
		s.mac.Reset()
		writeSeqNum(s.mac, seqNum)
		if s.etm {
			s.cipher.XORKeyStream(prefix[4:5], prefix[4:5])
		}
		s.mac.Write(prefix[:])
		if !s.etm {
			s.mac.Write(packet)
			s.mac.Write(padding)
		}
	}
	if !(s.mac != nil && s.etm) {
		s.cipher.XORKeyStream(prefix[:], prefix[:])
	}
	s.cipher.XORKeyStream(packet, packet)
	s.cipher.XORKeyStream(padding, padding)
	if s.mac != nil && s.etm {
		s.mac.Write(packet)
		s.mac.Write(padding)
	}
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := w.Write(packet); err != nil {
		return err
	}
	if _, err := w.Write(padding); err != nil {
		return err
	}
	if s.mac != nil {
		mac = s.mac.Sum(mac)
		if _, err := w.Write(mac); err != nil {
			return err
		}
	}
	return nil
}

func writeSeqNum(h hash.Hash, seqNum uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], seqNum)
	h.Write(b[:])
}

// aeadPacketCipher handles AES-GCM, the only AEAD here that fits
// cipher.AEAD directly: the length prefix travels as unencrypted
// associated data, per RFC 5647.
type aeadPacketCipher struct {
	aead cipher.AEAD
}

func newGCMCipher(key, iv []byte) packetCipher {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &aeadPacketCipher{aead: newFixedNonceGCM(aead, iv)}
}

func (aeadPacketCipher) blockSize() int { return 8 }
func (aeadPacketCipher) minSize() int   { return packetSizeMultiple }

func (c *aeadPacketCipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	var lengthBytes [4]byte
	if _, err := io.ReadFull(r, lengthBytes[:]); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if length == 0 || length > maxPacketLength {
		return nil, &ProtocolError{Reason: "invalid packet length"}
	}
	rest := make([]byte, int(length)+c.aead.Overhead())
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	g := c.aead.(*fixedNonceGCM)
	g.setSeq(seqNum)
	plain, err := g.Open(nil, nil, rest, lengthBytes[:])
	if err != nil {
		return nil, &MacError{}
	}
	paddingLength := uint32(plain[0])
	if paddingLength+1 > uint32(len(plain)) {
		return nil, &ProtocolError{Reason: "invalid padding length"}
	}
	return plain[1 : uint32(len(plain))-paddingLength], nil
}

func (c *aeadPacketCipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, packet []byte) error {
	if len(packet) > maxPacketLength {
		return &ProtocolError{Reason: "packet too large"}
	}
	paddingLength := packetSizeMultiple - (4+1+len(packet))%packetSizeMultiple
	if paddingLength < 4 {
		paddingLength += packetSizeMultiple
	}
	length := len(packet) + 1 + paddingLength
	plain := make([]byte, 1+len(packet)+paddingLength)
	plain[0] = byte(paddingLength)
	copy(plain[1:], packet)
	if _, err := io.ReadFull(rand, plain[1+len(packet):]); err != nil {
		return err
	}
	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(length))
	g := c.aead.(*fixedNonceGCM)
	g.setSeq(seqNum)
	sealed := g.Seal(nil, nil, plain, lengthBytes[:])
	if _, err := w.Write(lengthBytes[:]); err != nil {
		return err
	}
	_, err := w.Write(sealed)
	return err
}

// chachaPoly1305Cipher implements chacha20-poly1305@openssh.com per
// OpenSSH's PROTOCOL.chacha20poly1305: two independent chacha20
// instances, lengthKey (the derived material's first 32 bytes)
// encrypting only the 4-byte length prefix, contentKey (the second
// 32 bytes) encrypting the payload starting at block 1, with block 0
// of the contentKey stream serving as the Poly1305 one-time key. This
// is the same split golang.org/x/crypto/ssh uses, not the generic
// cipher.AEAD path the rest of this file's AEAD ciphers take.
type chachaPoly1305Cipher struct {
	lengthKey  [32]byte
	contentKey [32]byte
}

func newChaCha20Poly1305Cipher(key []byte) packetCipher {
	c := &chachaPoly1305Cipher{}
	copy(c.lengthKey[:], key[:32])
	copy(c.contentKey[:], key[32:])
	return c
}

func (chachaPoly1305Cipher) blockSize() int { return 8 }
func (chachaPoly1305Cipher) minSize() int   { return packetSizeMultiple }

func chachaNonce(seqNum uint32) []byte {
	var n [12]byte
	binary.BigEndian.PutUint32(n[8:], seqNum)
	return n[:]
}

func (c *chachaPoly1305Cipher) readPacket(seqNum uint32, r io.Reader) ([]byte, error) {
	nonce := chachaNonce(seqNum)

	contentCipher, err := chacha20.NewUnauthenticatedCipher(c.contentKey[:], nonce)
	if err != nil {
		return nil, err
	}
	var polyKey [32]byte
	contentCipher.XORKeyStream(polyKey[:], polyKey[:])
	contentCipher.SetCounter(1)

	var encryptedLength [4]byte
	if _, err := io.ReadFull(r, encryptedLength[:]); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	lengthCipher, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], nonce)
	if err != nil {
		return nil, err
	}
	var lengthBytes [4]byte
	lengthCipher.XORKeyStream(lengthBytes[:], encryptedLength[:])
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if length == 0 || length > maxPacketLength {
		return nil, &ProtocolError{Reason: "invalid packet length"}
	}

	rest := make([]byte, int(length)+poly1305.TagSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, &ConnectionError{Op: "read", Err: err}
	}
	ciphertext, tag := rest[:length], rest[length:]

	authenticated := make([]byte, 0, 4+length)
	authenticated = append(authenticated, encryptedLength[:]...)
	authenticated = append(authenticated, ciphertext...)
	var wantTag [poly1305.TagSize]byte
	poly1305.Sum(&wantTag, authenticated, &polyKey)
	if subtle.ConstantTimeCompare(wantTag[:], tag) != 1 {
		return nil, &MacError{}
	}

	plain := make([]byte, length)
	contentCipher.XORKeyStream(plain, ciphertext)

	paddingLength := uint32(plain[0])
	if paddingLength+1 > uint32(len(plain)) {
		return nil, &ProtocolError{Reason: "invalid padding length"}
	}
	return plain[1 : uint32(len(plain))-paddingLength], nil
}

func (c *chachaPoly1305Cipher) writePacket(seqNum uint32, w io.Writer, rand io.Reader, packet []byte) error {
	if len(packet) > maxPacketLength {
		return &ProtocolError{Reason: "packet too large"}
	}
	paddingLength := packetSizeMultiple - (4+1+len(packet))%packetSizeMultiple
	if paddingLength < 4 {
		paddingLength += packetSizeMultiple
	}
	length := len(packet) + 1 + paddingLength
	plain := make([]byte, 1+len(packet)+paddingLength)
	plain[0] = byte(paddingLength)
	copy(plain[1:], packet)
	if _, err := io.ReadFull(rand, plain[1+len(packet):]); err != nil {
		return err
	}

	nonce := chachaNonce(seqNum)
	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(length))
	lengthCipher, err := chacha20.NewUnauthenticatedCipher(c.lengthKey[:], nonce)
	if err != nil {
		return err
	}
	var encryptedLength [4]byte
	lengthCipher.XORKeyStream(encryptedLength[:], lengthBytes[:])

	contentCipher, err := chacha20.NewUnauthenticatedCipher(c.contentKey[:], nonce)
	if err != nil {
		return err
	}
	var polyKey [32]byte
	contentCipher.XORKeyStream(polyKey[:], polyKey[:])
	contentCipher.SetCounter(1)
	ciphertext := make([]byte, len(plain))
	contentCipher.XORKeyStream(ciphertext, plain)

	authenticated := make([]byte, 0, 4+len(ciphertext))
	authenticated = append(authenticated, encryptedLength[:]...)
	authenticated = append(authenticated, ciphertext...)
	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, authenticated, &polyKey)

	if _, err := w.Write(encryptedLength[:]); err != nil {
		return err
	}
	if _, err := w.Write(ciphertext); err != nil {
		return err
	}
	_, err = w.Write(tag[:])
	return err
}

// fixedNonceGCM builds AES-GCM's 12-byte nonce from a fixed 4-byte IV
// prefix (derived key material) plus an 8-byte invocation counter, per
// RFC 5647 section 7.1. The counter is initialized to the lower 8
// bytes of the same derived IV, not to zero, and advances by one per
// packet from there.
type fixedNonceGCM struct {
	aead cipher.AEAD
	iv   []byte
	base uint64
	seq  uint32
}

func newFixedNonceGCM(aead cipher.AEAD, iv []byte) *fixedNonceGCM {
	return &fixedNonceGCM{aead: aead, iv: append([]byte{}, iv...), base: binary.BigEndian.Uint64(iv[4:12])}
}

func (g *fixedNonceGCM) setSeq(seq uint32) { g.seq = seq }
func (g *fixedNonceGCM) NonceSize() int    { return g.aead.NonceSize() }
func (g *fixedNonceGCM) Overhead() int     { return g.aead.Overhead() }
func (g *fixedNonceGCM) nonceFor(seq uint32) []byte {
	nonce := make([]byte, 12)
	copy(nonce, g.iv[:4])
	binary.BigEndian.PutUint64(nonce[4:], g.base+uint64(seq))
	return nonce
}
func (g *fixedNonceGCM) Seal(dst, _, plaintext, ad []byte) []byte {
	return g.aead.Seal(dst, g.nonceFor(g.seq), plaintext, ad)
}
func (g *fixedNonceGCM) Open(dst, _, ciphertext, ad []byte) ([]byte, error) {
	return g.aead.Open(dst, g.nonceFor(g.seq), ciphertext, ad)
}
