package msg

// ChannelRequest is SSH_MSG_CHANNEL_REQUEST (RFC 4254 section 5.4):
// exec, shell, subsystem, pty-req, env, window-change, signal and
// exit-status/exit-signal all travel as RequestData on this message.
type ChannelRequest struct {
	RemoteID    uint32 `sshtype:"98"`
	RequestType string
	WantReply   bool
	RequestData []byte `ssh:"rest"`
}

// ChannelSuccess is SSH_MSG_CHANNEL_SUCCESS (RFC 4254 section 5.4).
type ChannelSuccess struct {
	RemoteID uint32 `sshtype:"99"`
}

// ChannelFailure is SSH_MSG_CHANNEL_FAILURE (RFC 4254 section 5.4).
type ChannelFailure struct {
	RemoteID uint32 `sshtype:"100"`
}

// PtyRequest is the RequestData of a "pty-req" ChannelRequest.
type PtyRequest struct {
	Term     string
	Columns  uint32
	Rows     uint32
	Width    uint32
	Height   uint32
	Modelist string
}

// ExecRequest is the RequestData of an "exec" ChannelRequest.
type ExecRequest struct {
	Command string
}

// SubsystemRequest is the RequestData of a "subsystem" ChannelRequest.
type SubsystemRequest struct {
	Name string
}

// WindowChangeRequest is the RequestData of a "window-change"
// ChannelRequest.
type WindowChangeRequest struct {
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
}

// ExitStatusRequest is the RequestData of an "exit-status"
// ChannelRequest sent by the server when a remote command finishes.
type ExitStatusRequest struct {
	ExitStatus uint32
}

// ExitSignalRequest is the RequestData of an "exit-signal"
// ChannelRequest sent when a remote command was terminated by a
// signal instead of exiting normally.
type ExitSignalRequest struct {
	Signal       string
	CoreDumped   bool
	ErrorMessage string
	Language     string
}

// EnvRequest is the RequestData of an "env" ChannelRequest.
type EnvRequest struct {
	Name  string
	Value string
}
