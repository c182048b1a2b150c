package ssh

import (
	"crypto"
	"crypto/rand"
	"errors"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// kexAlgorithm is one key-exchange family: curve25519, an ECDH curve,
// a fixed DH group, DH group-exchange, or a PQ hybrid. Client runs
// the client side of the exchange over t and returns the shared
// secret/exchange hash pair, with the host key and its signature
// still unverified — verification is the caller's job, via
// ClientConfig.HostKeyCallback.
type kexAlgorithm interface {
	Client(t *transport, magics *handshakeMagics) (*kexResult, error)
}

var kexAlgorithms = map[string]kexAlgorithm{
	"curve25519-sha256":            &curve25519KEX{},
	"curve25519-sha256@libssh.org": &curve25519KEX{},
	"ecdh-sha2-nistp256":           newECDHKEX(ecdhP256),
	"ecdh-sha2-nistp384":           newECDHKEX(ecdhP384),
	"ecdh-sha2-nistp521":           newECDHKEX(ecdhP521),
	"diffie-hellman-group14-sha256": dhGroup14,
	"diffie-hellman-group16-sha512": dhGroup16,
	"diffie-hellman-group18-sha512": dhGroup18,
	"diffie-hellman-group-exchange-sha256": &dhGroupExchangeKEX{},
	"sntrup761x25519-sha512@openssh.com":   &hybridKEX{scheme: sntrup761x25519{}, hash: crypto.SHA512},
	"mlkem768x25519-sha256":                &hybridKEX{scheme: mlkem768x25519{}, hash: crypto.SHA256},
}

// handshakeMagics is the (V_C, V_S, I_C, I_S) tuple every KEX family
// folds into its exchange hash, per RFC 4253 section 8.
type handshakeMagics struct {
	clientVersion, serverVersion []byte
	clientKexInit, serverKexInit []byte
}

func (m *handshakeMagics) writeTo(out []byte) []byte {
	out = wire.PutString(out, m.clientVersion)
	out = wire.PutString(out, m.serverVersion)
	out = wire.PutString(out, m.clientKexInit)
	out = wire.PutString(out, m.serverKexInit)
	return out
}

// negotiatedAlgorithms is the result of pairing our KexInit against
// the peer's: one winner per negotiation category.
type negotiatedAlgorithms struct {
	kex                   string
	hostKey               string
	cipherClientToServer  string
	cipherServerToClient  string
	macClientToServer     string
	macServerToClient     string
	compressClientToServer string
	compressServerToClient string
}

// pickAlgorithm implements RFC 4253 section 7.1: the first name on
// the client's list that also appears anywhere in the server's list
// wins. Returns "" if the lists share nothing.
func pickAlgorithm(clientPrefs, serverOffers []string) string {
	for _, c := range clientPrefs {
		for _, s := range serverOffers {
			if c == s {
				return c
			}
		}
	}
	return ""
}

func negotiateAlgorithms(cfg *ClientConfig, client, server *msg.KexInit) (*negotiatedAlgorithms, error) {
	n := &negotiatedAlgorithms{
		kex:                    pickAlgorithm(client.KexAlgorithms, server.KexAlgorithms),
		hostKey:                pickAlgorithm(client.ServerHostKeyAlgorithms, server.ServerHostKeyAlgorithms),
		cipherClientToServer:   pickAlgorithm(client.CiphersClientToServer, server.CiphersClientToServer),
		cipherServerToClient:   pickAlgorithm(client.CiphersServerToClient, server.CiphersServerToClient),
		macClientToServer:      pickAlgorithm(client.MACsClientToServer, server.MACsClientToServer),
		macServerToClient:      pickAlgorithm(client.MACsServerToClient, server.MACsServerToClient),
		compressClientToServer: pickAlgorithm(client.CompressionClientToServer, server.CompressionClientToServer),
		compressServerToClient: pickAlgorithm(client.CompressionServerToClient, server.CompressionServerToClient),
	}
	switch {
	case n.kex == "":
		return nil, &KexError{Reason: "no common key exchange algorithm"}
	case n.hostKey == "":
		return nil, &KexError{Reason: "no common host key algorithm"}
	case n.cipherClientToServer == "" || n.cipherServerToClient == "":
		return nil, &KexError{Reason: "no common cipher"}
	case n.compressClientToServer == "" || n.compressServerToClient == "":
		return nil, &KexError{Reason: "no common compression method"}
	}
	if c := findCipher(n.cipherClientToServer); c == nil || !c.aead {
		if n.macClientToServer == "" || n.macServerToClient == "" {
			return nil, &KexError{Reason: "no common MAC"}
		}
	}
	return n, nil
}

// buildKexInit constructs this side's KexInit. strict controls
// whether the OpenSSH strict-KEX pseudo-algorithm is appended; it
// must be true only on the very first KexInit of the connection.
func buildKexInit(cfg *ClientConfig, strict bool) *msg.KexInit {
	kexAlgos := append([]string{}, cfg.KexAlgorithms...)
	if strict {
		kexAlgos = append(kexAlgos, kexStrictClientExtension)
	}
	init := &msg.KexInit{
		KexAlgorithms:              kexAlgos,
		ServerHostKeyAlgorithms:    cfg.HostKeyAlgorithms,
		CiphersClientToServer:      cfg.Ciphers,
		CiphersServerToClient:      cfg.Ciphers,
		MACsClientToServer:         cfg.MACs,
		MACsServerToClient:         cfg.MACs,
		CompressionClientToServer:  cfg.Compression,
		CompressionServerToClient:  cfg.Compression,
		LanguagesClientToServer:    []string{},
		LanguagesServerToClient:    []string{},
	}
	rand.Read(init.Cookie[:])
	return init
}

// serverSupportsStrictKex reports whether the pseudo-algorithm
// appears in the server's first KexInit.
func serverSupportsStrictKex(server *msg.KexInit) bool {
	for _, a := range server.KexAlgorithms {
		if a == kexStrictServerExtension {
			return true
		}
	}
	return false
}

var errNoHybridSupport = errors.New("ssh: no PQ-hybrid KEM implementation available in this build")

// unmarshalKexPacket decodes a packet expected mid-KEX into v,
// wrapping a type mismatch (wire.UnexpectedMessageError, e.g. a
// DEBUG or other non-KEX message arriving where a KEX reply was
// expected) as a *KexError rather than letting it surface as a bare
// protocol error: spec section 4.6 treats any such intrusion as a
// strict-KEX violation, reported as DISCONNECT reason
// KeyExchangeFailed(3).
func unmarshalKexPacket(packet []byte, v interface{}) error {
	if err := wire.Unmarshal(packet, v); err != nil {
		if _, ok := err.(*wire.UnexpectedMessageError); ok {
			return &KexError{Reason: "unexpected message during key exchange: " + err.Error()}
		}
		return err
	}
	return nil
}
