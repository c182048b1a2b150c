package ssh

import (
	"crypto"
	"math/big"

	"github.com/chara-x/sshcore/wire"
)

// kexResult is everything a completed key exchange hands to the BPP
// layer: the shared secret K, the exchange hash H, the negotiated
// hash algorithm, and the session's immutable session_id (H from the
// very first KEX, per spec section 3).
type kexResult struct {
	K         []byte
	H         []byte
	Hash      crypto.Hash
	SessionID []byte
	HostKey   []byte
	Signature []byte
}

// deriveKeyMaterial is the RFC 4253 section 7.2 iterated-hash
// construction: K1 = HASH(K || H || tag || session_id), K2 =
// HASH(K || H || K1), ..., concatenated until out is filled. Grounded
// on the teacher's generateKeyMaterial/generateKey, generalized to
// take its hash algorithm from the negotiated KEX instead of always
// SHA-256.
func deriveKeyMaterial(out []byte, tag byte, r *kexResult) {
	h := r.Hash.New()
	var digestsSoFar []byte
	kBytes := mpintBytes(r.K)
	for len(out) > 0 {
		h.Reset()
		h.Write(kBytes)
		h.Write(r.H)
		if len(digestsSoFar) == 0 {
			h.Write([]byte{tag})
			h.Write(r.SessionID)
		} else {
			h.Write(digestsSoFar)
		}
		digest := h.Sum(nil)
		n := copy(out, digest)
		out = out[n:]
		if len(out) > 0 {
			digestsSoFar = append(digestsSoFar, digest...)
		}
	}
}

// mpintBytes re-encodes K as the mpint RFC 4253 section 8 requires
// when folding it into a hash: a length-prefixed two's-complement
// integer, not a raw big-endian magnitude.
func mpintBytes(k []byte) []byte {
	n := new(big.Int).SetBytes(k)
	out := make([]byte, 0, wire.MpintLength(n))
	return wire.PutMpint(out, n)
}

// Key derivation tags, RFC 4253 section 7.2.
const (
	keyTagIVClientToServer  = 'A'
	keyTagIVServerToClient  = 'B'
	keyTagKeyClientToServer = 'C'
	keyTagKeyServerToClient = 'D'
	keyTagMACClientToServer = 'E'
	keyTagMACServerToClient = 'F'
)
