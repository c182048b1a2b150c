package msg

// Decoders maps an unambiguous SSH message number to a constructor
// for the Go type that represents it. Message numbers that are
// reused across contexts (30/31 during KEX, 60 during userauth) are
// deliberately absent: the caller that knows which KEX family or
// auth method is in flight picks the right struct itself instead of
// dispatching blindly on the wire byte.
var Decoders = map[byte]func() interface{}{
	MsgDisconnect:     func() interface{} { return new(Disconnect) },
	MsgIgnore:         func() interface{} { return new(Ignore) },
	MsgUnimplemented:  func() interface{} { return new(Unimplemented) },
	MsgDebug:          func() interface{} { return new(Debug) },
	MsgServiceRequest: func() interface{} { return new(ServiceRequest) },
	MsgServiceAccept:  func() interface{} { return new(ServiceAccept) },
	MsgExtInfo:        func() interface{} { return new(ExtInfo) },
	MsgKexInit:        func() interface{} { return new(KexInit) },

	MsgUserAuthFailure:      func() interface{} { return new(UserAuthFailure) },
	MsgUserAuthBanner:       func() interface{} { return new(UserAuthBanner) },
	MsgUserAuthInfoResponse: func() interface{} { return new(UserAuthInfoResponse) },

	MsgGlobalRequest:  func() interface{} { return new(GlobalRequest) },
	MsgRequestSuccess: func() interface{} { return new(RequestSuccess) },
	MsgRequestFailure: func() interface{} { return new(RequestFailure) },

	MsgChannelOpen:         func() interface{} { return new(ChannelOpen) },
	MsgChannelOpenConfirm:  func() interface{} { return new(ChannelOpenConfirm) },
	MsgChannelOpenFailure:  func() interface{} { return new(ChannelOpenFailure) },
	MsgChannelWindowAdjust: func() interface{} { return new(ChannelWindowAdjust) },
	MsgChannelData:         func() interface{} { return new(ChannelData) },
	MsgChannelExtendedData: func() interface{} { return new(ChannelExtendedData) },
	MsgChannelEOF:          func() interface{} { return new(ChannelEOF) },
	MsgChannelClose:        func() interface{} { return new(ChannelClose) },
	MsgChannelRequest:      func() interface{} { return new(ChannelRequest) },
	MsgChannelSuccess:      func() interface{} { return new(ChannelSuccess) },
	MsgChannelFailure:      func() interface{} { return new(ChannelFailure) },
}
