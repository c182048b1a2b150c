package ssh

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"io"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// kemScheme is a post-quantum key encapsulation mechanism as used by
// the hybrid KEX families: GenerateKeyPair produces an encapsulation
// key, Encapsulate (server side, not implemented here) is unused by a
// client, and Decapsulate recovers the shared secret from the
// server's ciphertext. No example in the retrieval pack vendors a
// sntrup761 or ML-KEM implementation, so the two schemes below return
// errNoHybridSupport — see DESIGN.md for the gap this leaves.
type kemScheme interface {
	name() string
	publicKeySize() int
	ciphertextSize() int
	sharedSecretSize() int
	generateKeyPair() (public, private []byte, err error)
	decapsulate(private, ciphertext []byte) (sharedSecret []byte, err error)
}

type sntrup761x25519 struct{}

func (sntrup761x25519) name() string            { return "sntrup761" }
func (sntrup761x25519) publicKeySize() int      { return 1158 }
func (sntrup761x25519) ciphertextSize() int     { return 1039 }
func (sntrup761x25519) sharedSecretSize() int   { return 32 }
func (sntrup761x25519) generateKeyPair() ([]byte, []byte, error) { return nil, nil, errNoHybridSupport }
func (sntrup761x25519) decapsulate([]byte, []byte) ([]byte, error) { return nil, errNoHybridSupport }

type mlkem768x25519 struct{}

func (mlkem768x25519) name() string          { return "mlkem768" }
func (mlkem768x25519) publicKeySize() int    { return 1184 }
func (mlkem768x25519) ciphertextSize() int   { return 1088 }
func (mlkem768x25519) sharedSecretSize() int { return 32 }
func (mlkem768x25519) generateKeyPair() ([]byte, []byte, error) { return nil, nil, errNoHybridSupport }
func (mlkem768x25519) decapsulate([]byte, []byte) ([]byte, error) { return nil, errNoHybridSupport }

// hybridKEX runs the two-message SSH_MSG_KEX_HYBRID_INIT/_REPLY
// exchange (spec section 4.3): the client's public value concatenates
// the KEM encapsulation key and a curve25519 point; the server's
// reply concatenates the KEM ciphertext and its own curve25519 point;
// the combined secret is derived by combineHybridSecret from
// KEM_secret || ECDH_secret rather than used as that raw concatenation.
type hybridKEX struct {
	scheme kemScheme
	hash   crypto.Hash
}

func (k *hybridKEX) Client(t *transport, magics *handshakeMagics) (*kexResult, error) {
	kemPub, kemPriv, err := k.scheme.generateKeyPair()
	if err != nil {
		return nil, &KexError{Reason: k.scheme.name() + ": " + err.Error()}
	}
	var ecdhSecret [32]byte
	if _, err := rand.Read(ecdhSecret[:]); err != nil {
		return nil, err
	}
	ecdhPub, err := curve25519.X25519(ecdhSecret[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	clientPub := append(append([]byte{}, kemPub...), ecdhPub...)
	if err := t.writePacket(wire.Marshal(&msg.KexHybridInit{ClientPub: clientPub})); err != nil {
		return nil, err
	}
	packet, err := t.readPacket()
	if err != nil {
		return nil, err
	}
	var reply msg.KexHybridReply
	if err := unmarshalKexPacket(packet, &reply); err != nil {
		return nil, err
	}
	ctLen := k.scheme.ciphertextSize()
	if len(reply.ServerPub) != ctLen+32 {
		return nil, &KexError{Reason: "hybrid kex: malformed server public value"}
	}
	kemCT, serverECDHPub := reply.ServerPub[:ctLen], reply.ServerPub[ctLen:]
	kemSecret, err := k.scheme.decapsulate(kemPriv, kemCT)
	if err != nil {
		return nil, &KexError{Reason: k.scheme.name() + ": " + err.Error()}
	}
	ecdhShared, err := curve25519.X25519(ecdhSecret[:], serverECDHPub)
	if err != nil {
		return nil, &KexError{Reason: "hybrid kex: " + err.Error()}
	}
	secret, err := combineHybridSecret(k.hash, kemSecret, ecdhShared)
	if err != nil {
		return nil, &KexError{Reason: "hybrid kex: secret combination: " + err.Error()}
	}
	hash := k.hash
	if hash == 0 {
		hash = crypto.SHA512
	}
	var h hashWriter
	if hash == crypto.SHA256 {
		h = sha256.New()
	} else {
		h = sha512.New()
	}
	out := magics.writeTo(nil)
	out = wire.PutString(out, reply.HostKey)
	out = wire.PutString(out, clientPub)
	out = wire.PutString(out, reply.ServerPub)
	out = appendMpintBytes(out, secret)
	h.Write(out)
	return &kexResult{
		K:         secret,
		H:         h.Sum(nil),
		Hash:      hash,
		HostKey:   reply.HostKey,
		Signature: reply.Signature,
	}, nil
}

// combineHybridSecret folds the KEM shared secret and the ECDH shared
// point into the single value the hybrid draft treats as K, via
// HKDF-Extract rather than bare concatenation, so neither half alone
// determines any output byte.
func combineHybridSecret(hash crypto.Hash, kemSecret, ecdhShared []byte) ([]byte, error) {
	h := hash
	if h == 0 {
		h = crypto.SHA512
	}
	r := hkdf.Extract(h.New, append(append([]byte{}, kemSecret...), ecdhShared...), []byte("ssh hybrid kex"))
	out := make([]byte, h.Size())
	if _, err := io.ReadFull(hkdfExpandReader(h, r), out); err != nil {
		return nil, err
	}
	return out, nil
}

func hkdfExpandReader(h crypto.Hash, prk []byte) io.Reader {
	return hkdf.Expand(h.New, prk, nil)
}
