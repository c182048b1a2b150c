package msg

// ServiceRequest is SSH_MSG_SERVICE_REQUEST (RFC 4253 section 10).
type ServiceRequest struct {
	Service string `sshtype:"5"`
}

// ServiceAccept is SSH_MSG_SERVICE_ACCEPT (RFC 4253 section 10).
type ServiceAccept struct {
	Service string `sshtype:"6"`
}

// ExtInfo is SSH_MSG_EXT_INFO (RFC 8308), sent immediately after the
// first NEWKEYS. Extensions is a flattened name/value list: each
// extension-name is followed by its extension-value.
type ExtInfo struct {
	NumExtensions uint32 `sshtype:"7"`
	Extensions    []byte `ssh:"rest"`
}
