package ssh

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha1"
	"fmt"
	"math/big"

	"github.com/hashicorp/go-multierror"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

func bigFromInt(n int) *big.Int { return big.NewInt(int64(n)) }

// Signer produces an SSH-formatted signature over data, and reports
// the public-key blob and algorithm name it signs for. Implementing
// this directly lets callers plug in any private-key source (file,
// agent, HSM) without this package parsing key file formats itself —
// a deliberate Non-goal per spec section 1.
type Signer interface {
	PublicKeyBlob() []byte
	AlgorithmName() string
	Sign(data []byte) ([]byte, error)
}

// authenticate runs the ordered method chain from spec section 4.4
// against the already-accepted ssh-userauth service. It is called
// once from Connect, before the receive loop starts, so it still owns
// the transport directly.
func (s *Session) authenticate(cfg *ClientConfig) error {
	if len(cfg.Auth) == 0 {
		return &AuthenticationError{Methods: nil}
	}
	var allowed []string
	var partial bool
	var attempts *multierror.Error
	tried := map[string]bool{}

	for _, m := range cfg.Auth {
		name := m.method()
		if tried[name] {
			continue
		}
		if len(allowed) > 0 && !contains(allowed, name) && name != "none" {
			continue
		}
		tried[name] = true
		ok, nextAllowed, partialOK, err := s.tryAuthMethod(cfg, m)
		if err != nil {
			attempts = multierror.Append(attempts, fmt.Errorf("%s: %w", name, err))
		}
		if ok {
			return nil
		}
		if partialOK {
			partial = true
		}
		if nextAllowed != nil {
			allowed = nextAllowed
		}
	}
	return &AuthenticationError{Methods: allowed, PartialSuccess: partial, Attempts: attempts}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// tryAuthMethod runs exactly one attempt of one configured method and
// reports whether authentication succeeded, the server's up-to-date
// allowed-method list, and whether a partial success was reported.
func (s *Session) tryAuthMethod(cfg *ClientConfig, m AuthMethod) (ok bool, allowed []string, partial bool, err error) {
	switch method := m.(type) {
	case NoneMethod:
		return s.sendUserAuthRequest("none", nil)
	case PasswordMethod:
		return s.sendUserAuthRequest("password", payloadForPassword(method.Password))
	case PublicKeyMethod:
		return s.tryPublicKey(method.Signer)
	case KeyboardInteractiveMethod:
		return s.tryKeyboardInteractive(method)
	default:
		return false, nil, false, &AuthenticationError{Methods: allowed}
	}
}

func payloadForPassword(password string) []byte {
	return wire.Marshal(&msg.PasswordAuthMethod{ChangePassword: false, Password: password})
}

// sendUserAuthRequest sends one USERAUTH_REQUEST with the given
// method and method-specific payload, then waits for
// SUCCESS/FAILURE/BANNER (looping past banners) directly off the
// transport.
func (s *Session) sendUserAuthRequest(method string, methodData []byte) (ok bool, allowed []string, partial bool, err error) {
	req := &msg.UserAuthRequest{User: s.cfg.User, Service: "ssh-connection", Method: method, MethodData: methodData}
	if err := s.t.writePacket(wire.Marshal(req)); err != nil {
		return false, nil, false, err
	}
	for {
		packet, err := s.t.readPacket()
		if err != nil {
			return false, nil, false, err
		}
		switch packet[0] {
		case msg.MsgUserAuthSuccess:
			return true, nil, false, nil
		case msg.MsgUserAuthFailure:
			var failure msg.UserAuthFailure
			if err := wire.Unmarshal(packet, &failure); err != nil {
				return false, nil, false, err
			}
			return false, failure.Methods, failure.PartialSuccess, nil
		case msg.MsgUserAuthBanner:
			var banner msg.UserAuthBanner
			if err := wire.Unmarshal(packet, &banner); err == nil && s.cfg.BannerCallback != nil {
				s.cfg.BannerCallback(banner.Message)
			}
			continue
		default:
			return false, nil, false, &ProtocolError{Reason: "unexpected message during authentication"}
		}
	}
}

// tryPublicKey implements the two-phase publickey method (spec
// section 4.4): probe without a signature, and on PK_OK, resend
// signed over session_id || the request packet's unsigned prefix.
func (s *Session) tryPublicKey(signer Signer) (ok bool, allowed []string, partial bool, err error) {
	if rs, isRSA := signer.(*RSASigner); isRSA {
		rs.selectAlgorithm(s.ServerSigAlgs())
	}
	blob := signer.PublicKeyBlob()
	algo := signer.AlgorithmName()
	probe := wire.Marshal(&msg.PublicKeyAuthMethodProbe{HasSignature: false, Algorithm: algo, PublicKey: blob})

	req := &msg.UserAuthRequest{User: s.cfg.User, Service: "ssh-connection", Method: "publickey", MethodData: probe}
	if err := s.t.writePacket(wire.Marshal(req)); err != nil {
		return false, nil, false, err
	}
	packet, err := s.t.readPacket()
	if err != nil {
		return false, nil, false, err
	}
	if packet[0] == msg.MsgUserAuthFailure {
		var failure msg.UserAuthFailure
		wire.Unmarshal(packet, &failure)
		return false, failure.Methods, failure.PartialSuccess, nil
	}
	if packet[0] != msg.MsgUserAuthPubKeyOk {
		return false, nil, false, &ProtocolError{Reason: "expected PK_OK"}
	}

	toSign := wire.PutString(nil, s.sessionID)
	toSign = append(toSign, byte(msg.MsgUserAuthRequest))
	toSign = wire.PutString(toSign, []byte(s.cfg.User))
	toSign = wire.PutString(toSign, []byte("ssh-connection"))
	toSign = wire.PutString(toSign, []byte("publickey"))
	toSign = wire.PutBool(toSign, true)
	toSign = wire.PutString(toSign, []byte(algo))
	toSign = wire.PutString(toSign, blob)

	sig, err := signer.Sign(toSign)
	if err != nil {
		return false, nil, false, err
	}
	signed := wire.Marshal(&msg.PublicKeyAuthMethodSigned{HasSignature: true, Algorithm: algo, PublicKey: blob, Signature: sig})

	return s.sendUserAuthRequest("publickey", signed)
}

// tryKeyboardInteractive implements the INFO_REQUEST/INFO_RESPONSE
// loop of spec section 4.4, repeating until the server sends a
// terminal SUCCESS or FAILURE.
func (s *Session) tryKeyboardInteractive(method KeyboardInteractiveMethod) (ok bool, allowed []string, partial bool, err error) {
	req := &msg.UserAuthRequest{User: s.cfg.User, Service: "ssh-connection", Method: "keyboard-interactive", MethodData: wire.PutString(wire.PutString(nil, nil), nil)}
	if err := s.t.writePacket(wire.Marshal(req)); err != nil {
		return false, nil, false, err
	}
	for {
		packet, err := s.t.readPacket()
		if err != nil {
			return false, nil, false, err
		}
		switch packet[0] {
		case msg.MsgUserAuthSuccess:
			return true, nil, false, nil
		case msg.MsgUserAuthFailure:
			var failure msg.UserAuthFailure
			wire.Unmarshal(packet, &failure)
			return false, failure.Methods, failure.PartialSuccess, nil
		case msg.MsgUserAuthInfoRequest:
			name, prompts, echos, instruction, perr := parseInfoRequest(packet)
			if perr != nil {
				return false, nil, false, perr
			}
			answers, rerr := method.Respond(name, instruction, prompts, echos)
			if rerr != nil {
				return false, nil, false, rerr
			}
			var resp []byte
			for _, a := range answers {
				resp = wire.PutString(resp, []byte(a))
			}
			reply := &msg.UserAuthInfoResponse{NumResponses: uint32(len(answers)), ResponseData: resp}
			if err := s.t.writePacket(wire.Marshal(reply)); err != nil {
				return false, nil, false, err
			}
		default:
			return false, nil, false, &ProtocolError{Reason: "unexpected message during keyboard-interactive"}
		}
	}
}

// parseInfoRequest reads the NumPrompts (prompt string, echo bool)
// pairs out of req.PromptData; wire.Unmarshal has already consumed
// Name/Instruction/Language/NumPrompts into their own fields.
func parseInfoRequest(packet []byte) (name string, prompts []string, echos []bool, instruction string, err error) {
	var req msg.UserAuthInfoRequest
	if err := wire.Unmarshal(packet, &req); err != nil {
		return "", nil, nil, "", err
	}
	rest := req.PromptData
	for i := uint32(0); i < req.NumPrompts; i++ {
		var p []byte
		var e error
		p, rest, e = wire.ReadString(rest)
		if e != nil {
			return "", nil, nil, "", e
		}
		var echo bool
		echo, rest, e = wire.ReadBool(rest)
		if e != nil {
			return "", nil, nil, "", e
		}
		prompts = append(prompts, string(p))
		echos = append(echos, echo)
	}
	return req.Name, prompts, echos, req.Instruction, nil
}

// RSASigner and Ed25519Signer are minimal Signer implementations
// usable directly with an in-memory crypto key, for callers that
// already have one (e.g. from crypto/x509 or an agent); file-format
// parsing stays outside the core per spec section 1.
type RSASigner struct {
	Key *rsa.PrivateKey

	algorithm string // set by selectAlgorithm; defaults to rsa-sha2-512
}

// selectAlgorithm picks the strongest RSA signature variant the peer
// advertised via RFC 8308 server-sig-algs (SPEC_FULL.md's ext-info
// supplement), falling back to rsa-sha2-512 when the peer sent none.
func (s *RSASigner) selectAlgorithm(serverSigAlgs []string) {
	s.algorithm = "rsa-sha2-512"
	if len(serverSigAlgs) == 0 {
		return
	}
	if contains(serverSigAlgs, "rsa-sha2-512") {
		s.algorithm = "rsa-sha2-512"
	} else if contains(serverSigAlgs, "rsa-sha2-256") {
		s.algorithm = "rsa-sha2-256"
	} else if contains(serverSigAlgs, "ssh-rsa") {
		s.algorithm = "ssh-rsa"
	}
}

func (s *RSASigner) AlgorithmName() string {
	if s.algorithm == "" {
		return "rsa-sha2-512"
	}
	return s.algorithm
}

func (s *RSASigner) PublicKeyBlob() []byte {
	out := wire.PutString(nil, []byte("ssh-rsa"))
	out = wire.PutMpint(out, bigFromInt(s.Key.PublicKey.E))
	out = wire.PutMpint(out, s.Key.PublicKey.N)
	return out
}

func (s *RSASigner) Sign(data []byte) ([]byte, error) {
	hash := crypto.SHA512
	if s.AlgorithmName() == "rsa-sha2-256" {
		hash = crypto.SHA256
	} else if s.AlgorithmName() == "ssh-rsa" {
		hash = crypto.SHA1
	}
	h := hash.New()
	h.Write(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.Key, hash, h.Sum(nil))
	if err != nil {
		return nil, err
	}
	out := wire.PutString(nil, []byte(s.AlgorithmName()))
	return wire.PutString(out, sig), nil
}

type Ed25519Signer struct {
	Key ed25519.PrivateKey
}

func (s *Ed25519Signer) AlgorithmName() string { return "ssh-ed25519" }

func (s *Ed25519Signer) PublicKeyBlob() []byte {
	out := wire.PutString(nil, []byte("ssh-ed25519"))
	return wire.PutString(out, s.Key.Public().(ed25519.PublicKey))
}

func (s *Ed25519Signer) Sign(data []byte) ([]byte, error) {
	sig := ed25519.Sign(s.Key, data)
	out := wire.PutString(nil, []byte("ssh-ed25519"))
	return wire.PutString(out, sig), nil
}
