package ssh

import (
	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// runKex drives one complete key-exchange round per spec section 4.3:
// exchange KEXINIT, negotiate algorithms, run the winning family,
// verify the host key, exchange NEWKEYS, and install the derived
// ciphers on t. first is true only for the connection's very first
// KEX, which both sets session_id and decides strict-KEX.
//
// It is called from the session's single goroutine: either inline
// during Connect, or from the receive loop when a re-key KEXINIT
// arrives or a rekey threshold is crossed. pendingServerInit is nil
// unless the receive loop already consumed the peer's KEXINIT before
// recognizing it as the start of a rekey, in which case that packet
// is reused here instead of reading a second one.
func runKex(t *transport, cfg *ClientConfig, clientVersion, serverVersion []byte, prevSessionID []byte, first bool, pendingServerInit []byte) (*kexResult, bool, error) {
	clientInit := buildKexInit(cfg, first)
	clientInitBytes := wire.Marshal(clientInit)
	if err := t.writePacket(clientInitBytes); err != nil {
		return nil, false, err
	}

	packet := pendingServerInit
	if packet == nil {
		var err error
		packet, err = t.readPacket()
		if err != nil {
			return nil, false, err
		}
	}
	var serverInit msg.KexInit
	if err := unmarshalKexPacket(packet, &serverInit); err != nil {
		return nil, false, err
	}

	strict := first && serverSupportsStrictKex(&serverInit)

	algos, err := negotiateAlgorithms(cfg, clientInit, &serverInit)
	if err != nil {
		return nil, false, err
	}
	family, ok := kexAlgorithms[algos.kex]
	if !ok {
		return nil, false, &KexError{Reason: "unimplemented key exchange algorithm " + algos.kex}
	}

	magics := &handshakeMagics{
		clientVersion: clientVersion,
		serverVersion: serverVersion,
		clientKexInit: clientInitBytes,
		serverKexInit: packet,
	}

	result, err := family.Client(t, magics)
	if err != nil {
		return nil, false, err
	}

	pub, hostKeyAlgo, err := parsePublicKey(result.HostKey)
	if err != nil {
		return nil, false, err
	}
	if cfg.HostKeyCallback == nil {
		return nil, false, errNoHostKeyCallback
	}
	if err := cfg.HostKeyCallback(hostKeyAlgo, result.HostKey); err != nil {
		return nil, false, &KexError{Reason: "host key rejected: " + err.Error()}
	}
	if err := verifyHostKeySignature(pub, algos.hostKey, result.H, result.Signature); err != nil {
		return nil, false, err
	}

	if first {
		result.SessionID = result.H
	} else {
		result.SessionID = prevSessionID
	}

	// NEWKEYS has no payload; send and expect it directly rather than
	// going through the struct-based codec (see msg.KexInit's comment).
	if err := t.writePacket([]byte{msg.MsgNewKeys}); err != nil {
		return nil, false, err
	}

	cipherAlgoC2S, cipherAlgoS2C := findCipher(algos.cipherClientToServer), findCipher(algos.cipherServerToClient)
	macAlgoC2S, macAlgoS2C := findMAC(algos.macClientToServer), findMAC(algos.macServerToClient)

	writeCipher := installCipher(result, cipherAlgoC2S, macAlgoC2S, keyTagIVClientToServer, keyTagKeyClientToServer, keyTagMACClientToServer)
	t.strict = t.strict || strict
	t.setWriteCipher(writeCipher)

	packet, err = t.readPacket()
	if err != nil {
		return nil, false, err
	}
	if len(packet) != 1 || packet[0] != msg.MsgNewKeys {
		return nil, false, &ProtocolError{Reason: "expected NEWKEYS"}
	}
	readCipher := installCipher(result, cipherAlgoS2C, macAlgoS2C, keyTagIVServerToClient, keyTagKeyServerToClient, keyTagMACServerToClient)
	t.strict = t.strict || strict
	t.setReadCipher(readCipher)

	return result, strict, nil
}

// installCipher derives key material for one direction and builds
// its packetCipher. ivTag/keyTag/macTag select which of the six RFC
// 4253 section 7.2 outputs this direction needs.
func installCipher(r *kexResult, c *cipherAlgo, m *macAlgo, ivTag, keyTag, macTag byte) packetCipher {
	iv := make([]byte, c.ivSize)
	key := make([]byte, c.keySize)
	deriveKeyMaterial(iv, ivTag, r)
	deriveKeyMaterial(key, keyTag, r)
	pc := c.new(key, iv)
	if !c.aead {
		sc := pc.(*streamPacketCipher)
		macKey := make([]byte, m.size)
		deriveKeyMaterial(macKey, macTag, r)
		sc.withMAC(m.newMac(macKey), m.etm)
	}
	return pc
}
