package ssh

import (
	"bytes"
	"sync"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// channelState mirrors spec section 3's Channel state set.
type channelState int

const (
	channelOpening channelState = iota
	channelOpen
	channelSentEOF
	channelReceivedEOF
	channelClosing
	channelClosed
)

// channelRequestWaiter is one entry in a channel's FIFO of pending
// want_reply=true channel requests (spec section 4.5, P7).
type channelRequestWaiter struct{ resultCh chan bool }

// Channel is one multiplexed logical stream over a Session: an
// interactive shell, a command execution, a subsystem, or a
// forwarded/direct TCP stream. Flow control follows spec section 4.5:
// inbound data consumes localWindow and triggers WINDOW_ADJUST at the
// half-empty mark; outbound writes block until remoteWindow admits
// them.
type Channel struct {
	session  *Session
	localID  uint32
	remoteID uint32
	chanType string

	mu    sync.Mutex
	cond  *sync.Cond
	state channelState

	localWindow    uint32
	localWindowMax uint32
	localMaxPacket uint32

	remoteWindow    uint32
	remoteMaxPacket uint32

	inbound    bytes.Buffer
	extInbound bytes.Buffer
	readErr    error

	openResultCh chan *channelOpenResult

	requestMu  sync.Mutex
	requestFIFO []*channelRequestWaiter

	exitStatus *uint32
	exitSignal *string

	closeSent, closeReceived bool
}

type channelOpenResult struct {
	confirmed bool
	failure   *msg.ChannelOpenFailure
}

// newChannel allocates local bookkeeping for a channel whose
// CHANNEL_OPEN has not yet been sent. The caller must register it in
// s.channels under s.channelsMu before sending the packet.
func newChannel(s *Session, chanType string) *Channel {
	c := &Channel{
		session:        s,
		chanType:       chanType,
		state:          channelOpening,
		localWindow:    s.cfg.ChannelInitialWindow,
		localWindowMax: s.cfg.ChannelInitialWindow,
		localMaxPacket: s.cfg.ChannelMaxPacket,
		openResultCh:   make(chan *channelOpenResult, 1),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// OpenChannel sends CHANNEL_OPEN for chanType with extraData as the
// type-specific payload and waits for OPEN_CONFIRMATION/OPEN_FAILURE.
// Per spec scenario 6, calling this before a successful Connect must
// fail without touching the network.
func (s *Session) OpenChannel(chanType string, extraData []byte) (*Channel, error) {
	if s.getState() != stateAuthenticated {
		return nil, errNotConnected
	}
	c := newChannel(s, chanType)

	s.channelsMu.Lock()
	c.localID = s.nextChanID
	s.nextChanID++
	s.channels[c.localID] = c
	s.channelsMu.Unlock()

	open := &msg.ChannelOpen{
		ChanType:      chanType,
		LocalID:       c.localID,
		LocalWindow:   c.localWindow,
		MaxPacketSize: c.localMaxPacket,
		TypeData:      extraData,
	}
	if err := s.SendMessage(open); err != nil {
		s.removeChannel(c.localID)
		return nil, err
	}

	select {
	case result := <-c.openResultCh:
		if !result.confirmed {
			s.removeChannel(c.localID)
			return nil, &ChannelError{Reason: result.failure.Reason, Message: result.failure.Message}
		}
		return c, nil
	case <-s.closeCh:
		return nil, s.Err()
	}
}

func (s *Session) removeChannel(id uint32) {
	s.channelsMu.Lock()
	delete(s.channels, id)
	s.channelsMu.Unlock()
}

// Read returns inbound DATA payload bytes, blocking until some are
// available, EOF is received, or the channel/session closes.
func (c *Channel) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.inbound.Len() == 0 && c.readErr == nil {
		c.cond.Wait()
	}
	if c.inbound.Len() == 0 {
		return 0, c.readErr
	}
	n, _ := c.inbound.Read(p)
	c.maybeSendWindowAdjustLocked()
	return n, nil
}

// ReadExtended reads SSH_EXTENDED_DATA_STDERR bytes the same way Read
// reads ordinary DATA bytes.
func (c *Channel) ReadExtended(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.extInbound.Len() == 0 && c.readErr == nil {
		c.cond.Wait()
	}
	if c.extInbound.Len() == 0 {
		return 0, c.readErr
	}
	return c.extInbound.Read(p)
}

// maybeSendWindowAdjustLocked implements spec section 4.5: once the
// locally buffered window has dropped below half of its initial
// value, top it back up and tell the peer. Called with c.mu held.
func (c *Channel) maybeSendWindowAdjustLocked() {
	consumed := c.localWindowMax - c.localWindow - uint32(c.inbound.Len()+c.extInbound.Len())
	if consumed == 0 || c.localWindow > c.localWindowMax/2 {
		return
	}
	c.localWindow += consumed
	remoteID := c.remoteID
	go c.session.SendMessage(&msg.ChannelWindowAdjust{RemoteID: remoteID, AdditionalBytes: consumed})
}

// Write sends data as one or more CHANNEL_DATA messages, split at
// remoteMaxPacket boundaries, blocking while remoteWindow is
// exhausted (spec section 4.5, P5).
func (c *Channel) Write(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		c.mu.Lock()
		for c.remoteWindow == 0 && c.state == channelOpen {
			c.cond.Wait()
		}
		if c.state != channelOpen {
			c.mu.Unlock()
			return written, &ChannelError{Message: "write on non-open channel"}
		}
		n := uint32(len(data) - written)
		if n > c.remoteMaxPacket {
			n = c.remoteMaxPacket
		}
		if n > c.remoteWindow {
			n = c.remoteWindow
		}
		c.remoteWindow -= n
		remoteID := c.remoteID
		c.mu.Unlock()

		if err := c.session.SendMessage(&msg.ChannelData{RemoteID: remoteID, Data: data[written : written+int(n)]}); err != nil {
			return written, err
		}
		written += int(n)
	}
	return written, nil
}

// SendEOF sends CHANNEL_EOF. Per spec section 4.5, CLOSE must follow
// EOF and only after no more DATA is pending.
func (c *Channel) SendEOF() error {
	c.mu.Lock()
	if c.state == channelOpen {
		c.state = channelSentEOF
	}
	remoteID := c.remoteID
	c.mu.Unlock()
	return c.session.SendMessage(&msg.ChannelEOF{RemoteID: remoteID})
}

// Close sends CHANNEL_CLOSE. The local channel number is only
// reclaimed once CLOSE has also been received (spec section 4.5, P6).
func (c *Channel) Close() error {
	c.mu.Lock()
	already := c.closeSent
	c.closeSent = true
	remoteID := c.remoteID
	c.mu.Unlock()
	if already {
		return nil
	}
	return c.session.SendMessage(&msg.ChannelClose{RemoteID: remoteID})
}

// SendRequest sends a CHANNEL_REQUEST. If wantReply, it blocks for
// the matching SUCCESS/FAILURE, which the receive loop guarantees
// arrives in FIFO order with other such requests (spec section 4.5,
// P7).
func (c *Channel) SendRequest(requestType string, wantReply bool, payload []byte) (bool, error) {
	var waiter *channelRequestWaiter
	if wantReply {
		waiter = &channelRequestWaiter{resultCh: make(chan bool, 1)}
		c.requestMu.Lock()
		c.requestFIFO = append(c.requestFIFO, waiter)
		c.requestMu.Unlock()
	}
	c.mu.Lock()
	remoteID := c.remoteID
	c.mu.Unlock()
	req := &msg.ChannelRequest{RemoteID: remoteID, RequestType: requestType, WantReply: wantReply, RequestData: payload}
	if err := c.session.SendMessage(req); err != nil {
		return false, err
	}
	if !wantReply {
		return true, nil
	}
	select {
	case ok := <-waiter.resultCh:
		return ok, nil
	case <-c.session.closeCh:
		return false, c.session.Err()
	}
}

// ExitStatus returns the exit status carried by an "exit-status"
// channel request, if one has arrived yet.
func (c *Channel) ExitStatus() (status uint32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exitStatus == nil {
		return 0, false
	}
	return *c.exitStatus, true
}

// Convenience request helpers, grounded on the teacher's
// Channel.SendRequest / Client.Shell but expanded to cover the
// request set spec section 6 names.

// RequestPty sends a "pty-req" channel request.
func (c *Channel) RequestPty(term string, cols, rows, widthPx, heightPx uint32) error {
	payload := wire.Marshal(&msg.PtyRequest{Term: term, Columns: cols, Rows: rows, Width: widthPx, Height: heightPx})
	_, err := c.SendRequest("pty-req", true, payload)
	return err
}

// RequestShell sends a "shell" channel request, starting an
// interactive login shell on the peer.
func (c *Channel) RequestShell() error {
	_, err := c.SendRequest("shell", true, nil)
	return err
}

// RequestExec sends an "exec" channel request running command.
func (c *Channel) RequestExec(command string) error {
	payload := wire.Marshal(&msg.ExecRequest{Command: command})
	_, err := c.SendRequest("exec", true, payload)
	return err
}

// RequestSubsystem sends a "subsystem" channel request, e.g. "sftp".
func (c *Channel) RequestSubsystem(name string) error {
	payload := wire.Marshal(&msg.SubsystemRequest{Name: name})
	_, err := c.SendRequest("subsystem", true, payload)
	return err
}

// WindowChange sends a "window-change" channel request, want_reply
// false per RFC 4254 section 6.7.
func (c *Channel) WindowChange(cols, rows, widthPx, heightPx uint32) error {
	payload := wire.Marshal(&msg.WindowChangeRequest{Columns: cols, Rows: rows, Width: widthPx, Height: heightPx})
	_, err := c.SendRequest("window-change", false, payload)
	return err
}

// Setenv sends an "env" channel request.
func (c *Channel) Setenv(name, value string) error {
	payload := wire.Marshal(&msg.EnvRequest{Name: name, Value: value})
	_, err := c.SendRequest("env", true, payload)
	return err
}
