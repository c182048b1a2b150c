package msg

import "math/big"

// KexECDHInit is SSH_MSG_KEX_ECDH_INIT (RFC 5656 section 4), also
// used as-is for curve25519-sha256 (RFC 8731) with ClientPubKey a
// raw 32-byte point instead of an SEC1-encoded EC point.
type KexECDHInit struct {
	ClientPubKey []byte `sshtype:"30"`
}

// KexECDHReply is SSH_MSG_KEX_ECDH_REPLY (RFC 5656 section 4).
type KexECDHReply struct {
	HostKey         []byte `sshtype:"31"`
	EphemeralPubKey []byte
	Signature       []byte
}

// KexDHInit is SSH_MSG_KEXDH_INIT (RFC 4253 section 8), used by the
// fixed diffie-hellman-groupN-shaM families.
type KexDHInit struct {
	X *big.Int `sshtype:"30"`
}

// KexDHReply is SSH_MSG_KEXDH_REPLY (RFC 4253 section 8).
type KexDHReply struct {
	HostKey   []byte `sshtype:"31"`
	Y         *big.Int
	Signature []byte
}

// KexDHGexRequest is SSH_MSG_KEX_DH_GEX_REQUEST (RFC 4419 section 3).
type KexDHGexRequest struct {
	Min uint32 `sshtype:"34"`
	N   uint32
	Max uint32
}

// KexDHGexGroup is SSH_MSG_KEX_DH_GEX_GROUP (RFC 4419 section 3).
type KexDHGexGroup struct {
	P *big.Int `sshtype:"31"`
	G *big.Int
}

// KexDHGexInit is SSH_MSG_KEX_DH_GEX_INIT (RFC 4419 section 3).
type KexDHGexInit struct {
	X *big.Int `sshtype:"32"`
}

// KexDHGexReply is SSH_MSG_KEX_DH_GEX_REPLY (RFC 4419 section 3).
type KexDHGexReply struct {
	HostKey   []byte `sshtype:"33"`
	Y         *big.Int
	Signature []byte
}

// KexHybridInit is SSH_MSG_KEX_HYBRID_INIT, used by the PQ-hybrid
// families (sntrup761x25519-sha512, mlkem768x25519-sha256): ClientPub
// concatenates the KEM encapsulation key and the classical ECDH
// public point.
type KexHybridInit struct {
	ClientPub []byte `sshtype:"30"`
}

// KexHybridReply is SSH_MSG_KEX_HYBRID_REPLY. ServerPub concatenates
// the KEM ciphertext (S_CT2) and the server's classical ECDH public
// point (S_PK1), per spec section 4.3.
type KexHybridReply struct {
	HostKey   []byte `sshtype:"31"`
	ServerPub []byte
	Signature []byte
}
