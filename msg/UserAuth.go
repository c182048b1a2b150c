package msg

// UserAuthRequest is SSH_MSG_USERAUTH_REQUEST (RFC 4252 section 5).
// MethodData carries the method-specific remainder of the payload.
type UserAuthRequest struct {
	User       string `sshtype:"50"`
	Service    string
	Method     string
	MethodData []byte `ssh:"rest"`
}

// UserAuthFailure is SSH_MSG_USERAUTH_FAILURE (RFC 4252 section 5.1).
type UserAuthFailure struct {
	Methods        []string `sshtype:"51"`
	PartialSuccess bool
}

// UserAuthBanner is SSH_MSG_USERAUTH_BANNER (RFC 4252 section 5.4).
type UserAuthBanner struct {
	Message  string `sshtype:"53"`
	Language string
}

// UserAuthPubKeyOk is SSH_MSG_USERAUTH_PK_OK (RFC 4252 section 7),
// the server's response to an unsigned publickey probe.
type UserAuthPubKeyOk struct {
	Algorithm string `sshtype:"60"`
	PublicKey []byte
}

// UserAuthPasswdChangeReq is SSH_MSG_USERAUTH_PASSWD_CHANGEREQ (RFC
// 4252 section 8), sent by a server whose password auth method
// demands a password change before it will succeed.
type UserAuthPasswdChangeReq struct {
	Prompt   string `sshtype:"60"`
	Language string
}

// UserAuthInfoRequest is SSH_MSG_USERAUTH_INFO_REQUEST (RFC 4256
// section 3.2), used by "keyboard-interactive". PromptData packs
// NumPrompts pairs of (prompt string, echo bool).
type UserAuthInfoRequest struct {
	Name        string `sshtype:"60"`
	Instruction string
	Language    string
	NumPrompts  uint32
	PromptData  []byte `ssh:"rest"`
}

// UserAuthInfoResponse is SSH_MSG_USERAUTH_INFO_RESPONSE (RFC 4256
// section 3.3).
type UserAuthInfoResponse struct {
	NumResponses uint32 `sshtype:"61"`
	ResponseData []byte `ssh:"rest"`
}

// PasswordAuthMethod is the MethodData for Method == "password".
type PasswordAuthMethod struct {
	ChangePassword bool
	Password       string
}

// PublicKeyAuthMethodProbe is the MethodData for Method ==
// "publickey" when HasSignature is false (the two-phase offer).
type PublicKeyAuthMethodProbe struct {
	HasSignature bool
	Algorithm    string
	PublicKey    []byte
}

// PublicKeyAuthMethodSigned is the MethodData for Method ==
// "publickey" when HasSignature is true (the signed follow-up).
type PublicKeyAuthMethodSigned struct {
	HasSignature bool
	Algorithm    string
	PublicKey    []byte
	Signature    []byte
}
