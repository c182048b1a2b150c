package msg

// KexInit is SSH_MSG_KEXINIT (RFC 4253 section 7.1). The client's
// first KexInit of a connection carries the pseudo-algorithm
// "kex-strict-c-v00@openssh.com" appended to KexAlgorithms; later
// KexInits (re-keys) must not repeat it.
type KexInit struct {
	Cookie                  [16]byte `sshtype:"20"`
	KexAlgorithms           []string
	ServerHostKeyAlgorithms []string
	CiphersClientToServer   []string
	CiphersServerToClient   []string
	MACsClientToServer      []string
	MACsServerToClient      []string
	CompressionClientToServer []string
	CompressionServerToClient []string
	LanguagesClientToServer []string
	LanguagesServerToClient []string
	FirstKexFollows         bool
	Reserved                uint32
}

// NEWKEYS, EXT_INFO's trailing "none" marker case aside, carries no
// payload beyond its type byte, so it has no struct of its own; code
// that needs to recognize it compares the raw packet's first byte
// against MsgNewKeys directly.
