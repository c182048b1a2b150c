package ssh

import (
	"log/slog"
	"time"
)

// Default algorithm preference lists, most preferred first. A client's
// first KEXINIT of a connection appends kexStrictClientExtension to
// KexAlgorithms; re-key KEXINITs must not repeat it.
var (
	DefaultKexAlgorithms = []string{
		"curve25519-sha256", "curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256", "ecdh-sha2-nistp384", "ecdh-sha2-nistp521",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group16-sha512", "diffie-hellman-group18-sha512", "diffie-hellman-group14-sha256",
	}
	DefaultHostKeyAlgorithms = []string{
		"ssh-ed25519", "rsa-sha2-512", "rsa-sha2-256", "ecdsa-sha2-nistp256", "ssh-rsa",
	}
	DefaultCiphers = []string{
		"chacha20-poly1305@openssh.com", "aes128-gcm@openssh.com", "aes256-gcm@openssh.com", "aes128-ctr", "aes192-ctr", "aes256-ctr",
	}
	DefaultMACs = []string{
		"hmac-sha2-256-etm@openssh.com", "hmac-sha2-512-etm@openssh.com", "hmac-sha2-256", "hmac-sha2-512",
	}
	DefaultCompression = []string{"none", "zlib@openssh.com"}
)

const kexStrictClientExtension = "kex-strict-c-v00@openssh.com"
const kexStrictServerExtension = "kex-strict-s-v00@openssh.com"

// AuthMethod is a single configured authentication attempt: a method
// name ("none", "password", "publickey", "keyboard-interactive") and
// whatever data the driver needs to build its USERAUTH_REQUEST.
type AuthMethod interface {
	method() string
}

// PasswordMethod tries "password" authentication with a fixed
// password, supplied eagerly rather than read from a callback.
type PasswordMethod struct{ Password string }

func (PasswordMethod) method() string { return "password" }

// PublicKeyMethod tries "publickey" authentication using Signer to
// produce the session-bound signature after the server's PK_OK.
type PublicKeyMethod struct{ Signer Signer }

func (PublicKeyMethod) method() string { return "publickey" }

// KeyboardInteractiveMethod tries "keyboard-interactive", relaying
// each server prompt set through Respond and sending back its answers.
type KeyboardInteractiveMethod struct {
	Respond func(name, instruction string, prompts []string, echos []bool) (answers []string, err error)
}

func (KeyboardInteractiveMethod) method() string { return "keyboard-interactive" }

// NoneMethod probes the server with SSH_MSG_USERAUTH_REQUEST method
// "none", which commonly elicits the allowed-method list for free.
type NoneMethod struct{}

func (NoneMethod) method() string { return "none" }

// HostKeyCallback is invoked once per KEX with the server's host-key
// blob and its advertised algorithm name. Returning a non-nil error
// aborts the KEX with that error as cause.
type HostKeyCallback func(hostKeyAlgorithm string, hostKeyBlob []byte) error

// InsecureIgnoreHostKey accepts any host key. Intended for tests and
// throwaway connections only.
func InsecureIgnoreHostKey() HostKeyCallback {
	return func(string, []byte) error { return nil }
}

// BannerCallback receives SSH_MSG_USERAUTH_BANNER text as it arrives
// during authentication.
type BannerCallback func(message string)

// ClientConfig collects everything Connect needs: identity, the
// ordered authentication chain, the host-key policy, and algorithm
// preferences. There is no global/default instance; build one with
// DefaultConfig and override fields.
type ClientConfig struct {
	User            string
	Auth            []AuthMethod
	HostKeyCallback HostKeyCallback
	BannerCallback  BannerCallback

	ClientVersion string

	KexAlgorithms       []string
	HostKeyAlgorithms   []string
	Ciphers             []string
	MACs                []string
	Compression         []string

	Timeout            time.Duration
	KeepAliveInterval  time.Duration // zero or negative disables keep-alive
	RekeyThreshold     int64         // bytes transferred before a forced rekey; 0 uses the default
	RekeyInterval      time.Duration // zero uses the default

	ChannelInitialWindow uint32
	ChannelMaxPacket     uint32

	// Logger receives structured diagnostics (kex/rekey/auth/channel
	// lifecycle). Nil uses a package-level slog.Logger backed by
	// jplog's handler.
	Logger *slog.Logger
}

// DefaultConfig returns a ClientConfig with the library's default
// algorithm preferences and flow-control sizes. Callers still must
// set User, Auth, and HostKeyCallback.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ClientVersion: "SSH-2.0-sshcore",

		KexAlgorithms:     append([]string{}, DefaultKexAlgorithms...),
		HostKeyAlgorithms: append([]string{}, DefaultHostKeyAlgorithms...),
		Ciphers:           append([]string{}, DefaultCiphers...),
		MACs:              append([]string{}, DefaultMACs...),
		Compression:       append([]string{}, DefaultCompression...),

		Timeout:           30 * time.Second,
		KeepAliveInterval: 0,
		RekeyThreshold:    1 << 30, // 1 GiB, per spec section 4.6
		RekeyInterval:     time.Hour,

		ChannelInitialWindow: 1 << 20,
		ChannelMaxPacket:     1 << 15,
	}
}
