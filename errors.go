package ssh

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ConnectionError reports a socket-level failure: refused, reset, DNS
// failure, or a local interface problem.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("ssh: connection error: %s: %v", e.Op, e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed packet, an unexpected message for
// the current state, or a version-line violation.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "ssh: protocol error: " + e.Reason }

// MacError is a ProtocolError subtype: a MAC or AEAD tag mismatch.
// It is always fatal and triggers DISCONNECT reason MAC error (5).
type MacError struct{}

func (e *MacError) Error() string { return "ssh: protocol error: MAC verification failed" }

// KexError reports a key-exchange failure: no common algorithm, a
// bad host-key signature, or a strict-KEX violation.
type KexError struct {
	Reason string
}

func (e *KexError) Error() string { return "ssh: key exchange failed: " + e.Reason }

// AuthenticationError is returned when every configured
// authentication method has been tried without success. Methods is
// the list from the server's last USERAUTH_FAILURE; PartialSuccess is
// true if any USERAUTH_FAILURE during the attempt reported partial
// success.
type AuthenticationError struct {
	Methods        []string
	PartialSuccess bool
	Attempts       *multierror.Error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("ssh: authentication failed, server allows %v (partial success seen: %v): %v", e.Methods, e.PartialSuccess, e.Attempts)
}

func (e *AuthenticationError) Unwrap() error {
	if e.Attempts == nil {
		return nil
	}
	return e.Attempts.ErrorOrNil()
}

// ChannelError reports an open refused with its reason, an operation
// on a closed channel, or a window-accounting violation by the peer.
type ChannelError struct {
	Reason  uint32
	Message string
}

func (e *ChannelError) Error() string { return "ssh: channel error: " + e.Message }

// OperationCanceled is returned by Connect when its context is
// canceled before the handshake completes. No other call in this
// package takes a cancellation signal or returns it.
type OperationCanceled struct{ Cause error }

func (e *OperationCanceled) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ssh: operation canceled: %v", e.Cause)
	}
	return "ssh: operation canceled"
}
func (e *OperationCanceled) Unwrap() error { return e.Cause }

// Timeout reports an operation whose deadline elapsed before a reply
// arrived. It implements net.Error. No call in this package returns
// it; a dial that exceeds ClientConfig.Timeout fails with a
// ConnectionError.
type Timeout struct{ Op string }

func (e *Timeout) Error() string   { return "ssh: timeout: " + e.Op }
func (e *Timeout) Timeout() bool   { return true }
func (e *Timeout) Temporary() bool { return true }

// DisconnectedByPeer wraps a received SSH_MSG_DISCONNECT.
type DisconnectedByPeer struct {
	Reason  uint32
	Message string
}

func (e *DisconnectedByPeer) Error() string {
	return fmt.Sprintf("ssh: disconnected by peer (reason %d): %s", e.Reason, e.Message)
}

// InvalidState is returned when the peer completes a channel open
// (OPEN_CONFIRMATION or OPEN_FAILURE) a second time. Per
// spec section 9's open question, double-completion is undefined in
// general; this library chooses to fail loudly rather than silently
// succeed.
type InvalidState struct{ Reason string }

func (e *InvalidState) Error() string { return "ssh: invalid state: " + e.Reason }

// errNotConnected is returned by every channel/forwarding operation
// invoked before a successful Connect, without touching the network.
var errNotConnected = &ConnectionError{Op: "not connected", Err: fmt.Errorf("session has no active transport")}
