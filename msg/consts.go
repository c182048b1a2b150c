package msg

// Message type numbers, RFC 4251/4252/4253/4254 plus RFC 8308
// (ext-info) and the OpenSSH curve25519/hybrid-KEX extensions. See
// spec section 3 ("Message") for the subset the core must recognize.
const (
	MsgDisconnect     = 1
	MsgIgnore         = 2
	MsgUnimplemented  = 3
	MsgDebug          = 4
	MsgServiceRequest = 5
	MsgServiceAccept  = 6
	MsgExtInfo        = 7

	MsgKexInit  = 20
	MsgNewKeys  = 21

	MsgKexECDHInit   = 30
	MsgKexDHInit     = 30
	MsgKexHybridInit = 30
	MsgKexECDHReply  = 31
	MsgKexDHReply    = 31
	MsgKexHybridReply = 31
	MsgKexDHGexRequest = 34
	MsgKexDHGexGroup   = 31
	MsgKexDHGexInit    = 32
	MsgKexDHGexReply   = 33

	MsgUserAuthRequest     = 50
	MsgUserAuthFailure     = 51
	MsgUserAuthSuccess     = 52
	MsgUserAuthBanner      = 53
	MsgUserAuthPubKeyOk    = 60
	MsgUserAuthInfoRequest = 60
	MsgUserAuthInfoResponse = 61
	MsgUserAuthPasswdChangeReq = 60

	MsgGlobalRequest  = 80
	MsgRequestSuccess = 81
	MsgRequestFailure = 82

	MsgChannelOpen         = 90
	MsgChannelOpenConfirm  = 91
	MsgChannelOpenFailure  = 92
	MsgChannelWindowAdjust = 93
	MsgChannelData         = 94
	MsgChannelExtendedData = 95
	MsgChannelEOF          = 96
	MsgChannelClose        = 97
	MsgChannelRequest      = 98
	MsgChannelSuccess      = 99
	MsgChannelFailure      = 100
)

// ExtendedData data_type_code values, RFC 4254 section 5.2.
const ExtendedDataStderr = 1
