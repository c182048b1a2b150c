package ssh

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"math/big"

	"github.com/chara-x/sshcore/wire"
)

// parsePublicKey decodes an RFC 4253 section 6.6 public-key blob into
// a crypto.PublicKey plus the algorithm name found inside the blob
// itself (which the caller should cross-check against the negotiated
// host-key algorithm for ssh-rsa/rsa-sha2-* ambiguity).
func parsePublicKey(blob []byte) (crypto.PublicKey, string, error) {
	algo, rest, err := wire.ReadString(blob)
	if err != nil {
		return nil, "", &ProtocolError{Reason: "host key: " + err.Error()}
	}
	switch string(algo) {
	case "ssh-rsa":
		e, rest, err := wire.ReadMpint(rest)
		if err != nil {
			return nil, "", err
		}
		n, _, err := wire.ReadMpint(rest)
		if err != nil {
			return nil, "", err
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, "ssh-rsa", nil
	case "ssh-ed25519":
		key, _, err := wire.ReadString(rest)
		if err != nil {
			return nil, "", err
		}
		return ed25519.PublicKey(key), "ssh-ed25519", nil
	case "ecdsa-sha2-nistp256", "ecdsa-sha2-nistp384", "ecdsa-sha2-nistp521":
		_, rest, err := wire.ReadString(rest) // curve name, redundant with algo
		if err != nil {
			return nil, "", err
		}
		point, _, err := wire.ReadString(rest)
		if err != nil {
			return nil, "", err
		}
		curve := curveForHostKeyAlgo(string(algo))
		x, y := elliptic.Unmarshal(curve, point)
		if x == nil {
			return nil, "", &ProtocolError{Reason: "host key: invalid EC point"}
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, string(algo), nil
	default:
		return nil, "", &KexError{Reason: "host key: unsupported algorithm " + string(algo)}
	}
}

func curveForHostKeyAlgo(algo string) elliptic.Curve {
	switch algo {
	case "ecdsa-sha2-nistp384":
		return elliptic.P384()
	case "ecdsa-sha2-nistp521":
		return elliptic.P521()
	default:
		return elliptic.P256()
	}
}

// verifyHostKeySignature checks sigBlob (RFC 4253 section 6.6's
// signature format: string algo-name, string sig) against h using
// pub. sigAlgo is the negotiated host-key algorithm, which for RSA
// keys selects between ssh-rsa (SHA-1, legacy), rsa-sha2-256, and
// rsa-sha2-512 independently of the key blob's own "ssh-rsa" tag; a
// signature blob naming any other algorithm is rejected.
func verifyHostKeySignature(pub crypto.PublicKey, sigAlgo string, h, sigBlob []byte) error {
	algo, sig, err := wire.ReadString(sigBlob)
	if err != nil {
		return &ProtocolError{Reason: "signature: " + err.Error()}
	}
	if string(algo) != sigAlgo {
		return &KexError{Reason: "signature: algorithm " + string(algo) + " does not match negotiated " + sigAlgo}
	}
	sigValue, _, err := wire.ReadString(sig)
	if err != nil {
		return &ProtocolError{Reason: "signature: " + err.Error()}
	}
	switch string(algo) {
	case "ssh-ed25519":
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return &KexError{Reason: "signature: key/algorithm mismatch"}
		}
		if !ed25519.Verify(key, h, sigValue) {
			return &KexError{Reason: "signature: ed25519 verification failed"}
		}
		return nil
	case "rsa-sha2-256", "rsa-sha2-512", "ssh-rsa":
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return &KexError{Reason: "signature: key/algorithm mismatch"}
		}
		hash, digest := rsaHashFor(string(algo), h)
		if err := rsa.VerifyPKCS1v15(key, hash, digest, sigValue); err != nil {
			return &KexError{Reason: "signature: rsa verification failed"}
		}
		return nil
	case "ecdsa-sha2-nistp256", "ecdsa-sha2-nistp384", "ecdsa-sha2-nistp521":
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return &KexError{Reason: "signature: key/algorithm mismatch"}
		}
		r, s, err := unmarshalECDSASignature(sigValue)
		if err != nil {
			return err
		}
		digest := ecdsaHashFor(string(algo), h)
		if !ecdsa.Verify(key, digest, r, s) {
			return &KexError{Reason: "signature: ecdsa verification failed"}
		}
		return nil
	default:
		return &KexError{Reason: "signature: unsupported algorithm " + string(algo)}
	}
}

func rsaHashFor(algo string, h []byte) (crypto.Hash, []byte) {
	switch algo {
	case "rsa-sha2-512":
		d := sha512.Sum512(h)
		return crypto.SHA512, d[:]
	case "ssh-rsa":
		d := sha1.Sum(h)
		return crypto.SHA1, d[:]
	default:
		d := sha256.Sum256(h)
		return crypto.SHA256, d[:]
	}
}

func ecdsaHashFor(algo string, h []byte) []byte {
	switch algo {
	case "ecdsa-sha2-nistp384":
		d := sha512.Sum384(h)
		return d[:]
	case "ecdsa-sha2-nistp521":
		d := sha512.Sum512(h)
		return d[:]
	default:
		d := sha256.Sum256(h)
		return d[:]
	}
}

func unmarshalECDSASignature(blob []byte) (r, s *big.Int, err error) {
	r, rest, err := wire.ReadMpint(blob)
	if err != nil {
		return nil, nil, &ProtocolError{Reason: "ecdsa signature: " + err.Error()}
	}
	s, _, err = wire.ReadMpint(rest)
	if err != nil {
		return nil, nil, &ProtocolError{Reason: "ecdsa signature: " + err.Error()}
	}
	return r, s, nil
}

var errNoHostKeyCallback = errors.New("ssh: ClientConfig.HostKeyCallback must be set")
