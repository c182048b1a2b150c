package msg

// ChannelData is SSH_MSG_CHANNEL_DATA (RFC 4254 section 5.2).
type ChannelData struct {
	RemoteID uint32 `sshtype:"94"`
	Data     []byte
}

// ChannelExtendedData is SSH_MSG_CHANNEL_EXTENDED_DATA (RFC 4254
// section 5.2). DataTypeCode is ExtendedDataStderr for every
// currently defined use.
type ChannelExtendedData struct {
	RemoteID     uint32 `sshtype:"95"`
	DataTypeCode uint32
	Data         []byte
}

// ChannelWindowAdjust is SSH_MSG_CHANNEL_WINDOW_ADJUST (RFC 4254
// section 5.2).
type ChannelWindowAdjust struct {
	RemoteID        uint32 `sshtype:"93"`
	AdditionalBytes uint32
}

// ChannelEOF is SSH_MSG_CHANNEL_EOF (RFC 4254 section 5.3).
type ChannelEOF struct {
	RemoteID uint32 `sshtype:"96"`
}

// ChannelClose is SSH_MSG_CHANNEL_CLOSE (RFC 4254 section 5.3).
type ChannelClose struct {
	RemoteID uint32 `sshtype:"97"`
}
