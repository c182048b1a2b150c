package msg

// Disconnect is SSH_MSG_DISCONNECT (RFC 4253 section 11.1).
type Disconnect struct {
	Reason   uint32 `sshtype:"1"`
	Message  string
	Language string
}

// Disconnect reason codes, RFC 4253 section 11.1.
const (
	DisconnectHostNotAllowedToConnect uint32 = 1
	DisconnectProtocolError           uint32 = 2
	DisconnectKeyExchangeFailed       uint32 = 3
	DisconnectReserved                uint32 = 4
	DisconnectMACError                uint32 = 5
	DisconnectCompressionError        uint32 = 6
	DisconnectServiceNotAvailable     uint32 = 7
	DisconnectProtocolVersionNotSupported uint32 = 8
	DisconnectHostKeyNotVerifiable    uint32 = 9
	DisconnectConnectionLost          uint32 = 10
	DisconnectByApplication           uint32 = 11
	DisconnectTooManyConnections      uint32 = 12
	DisconnectAuthCancelledByUser     uint32 = 13
	DisconnectNoMoreAuthMethods       uint32 = 14
	DisconnectIllegalUserName         uint32 = 15
)

// Ignore is SSH_MSG_IGNORE (RFC 4253 section 11.2). It is padding
// data that both sides must silently accept and that a strict-KEX
// peer must reject during key exchange.
type Ignore struct {
	Data []byte `sshtype:"2" ssh:"rest"`
}

// Unimplemented is SSH_MSG_UNIMPLEMENTED (RFC 4253 section 11.4),
// sent in reply to a message number the receiver does not
// understand.
type Unimplemented struct {
	Sequence uint32 `sshtype:"3"`
}

// Debug is SSH_MSG_DEBUG (RFC 4253 section 11.3): display-only, never
// fatal.
type Debug struct {
	AlwaysDisplay bool `sshtype:"4"`
	Message       string
	Language      string
}
