package ssh

import (
	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// forwardedConn is what a listener started by ListenTCP receives for
// each inbound "forwarded-tcpip" channel the server opens back at us.
type forwardedConn struct {
	channel *Channel
	origin  string
}

// handleGlobalRequest answers a peer-initiated GLOBAL_REQUEST. This
// core never listens on the peer's behalf by itself, so every request
// that wants a reply (keepalives included) gets REQUEST_FAILURE, per
// spec section 7's "never silently drop a want_reply message" rule.
func (s *Session) handleGlobalRequest(packet []byte) error {
	var req msg.GlobalRequest
	if err := wire.Unmarshal(packet, &req); err != nil {
		return err
	}
	if !req.WantReply {
		return nil
	}
	return s.SendMessage(&msg.RequestFailure{})
}

func (s *Session) handleGlobalReply(packet []byte) error {
	s.globalMu.Lock()
	if len(s.globalWaiters) == 0 {
		s.globalMu.Unlock()
		return nil
	}
	w := s.globalWaiters[0]
	s.globalWaiters = s.globalWaiters[1:]
	s.globalMu.Unlock()

	if packet[0] == msg.MsgRequestSuccess {
		var success msg.RequestSuccess
		wire.Unmarshal(packet, &success)
		w.resultCh <- globalReply{success: true, response: success.ResponseData}
	} else {
		w.resultCh <- globalReply{success: false}
	}
	return nil
}

// SendGlobalRequest sends one GLOBAL_REQUEST and, if wantReply, waits
// in FIFO order for the matching RequestSuccess/Failure (spec section
// 4.5, P7, generalized to the connection-protocol level).
func (s *Session) SendGlobalRequest(name string, wantReply bool, payload []byte) (bool, []byte, error) {
	var w *globalWaiter
	if wantReply {
		w = &globalWaiter{resultCh: make(chan globalReply, 1)}
		s.globalMu.Lock()
		s.globalWaiters = append(s.globalWaiters, w)
		s.globalMu.Unlock()
	}
	req := &msg.GlobalRequest{RequestType: name, WantReply: wantReply, RequestData: payload}
	if err := s.SendMessage(req); err != nil {
		return false, nil, err
	}
	if !wantReply {
		return true, nil, nil
	}
	select {
	case reply := <-w.resultCh:
		return reply.success, reply.response, nil
	case <-s.closeCh:
		return false, nil, s.Err()
	}
}

// handleChannelOpen answers a peer-initiated CHANNEL_OPEN. The only
// type this core originates from the peer side is "forwarded-tcpip",
// matched against a listener registered by ListenTCP; anything else
// is refused with OpenUnknownChannelType.
func (s *Session) handleChannelOpen(packet []byte) error {
	var open msg.ChannelOpen
	if err := wire.Unmarshal(packet, &open); err != nil {
		return err
	}
	if open.ChanType != "forwarded-tcpip" {
		return s.SendMessage(&msg.ChannelOpenFailure{
			RemoteID: open.LocalID,
			Reason:   msg.OpenUnknownChannelType,
			Message:  "unsupported channel type: " + open.ChanType,
		})
	}
	var fwd msg.ChannelOpenForwardedTCPIP
	if err := wire.Unmarshal(open.TypeData, &fwd); err != nil {
		return s.SendMessage(&msg.ChannelOpenFailure{RemoteID: open.LocalID, Reason: msg.OpenConnectFailed, Message: "malformed forwarded-tcpip payload"})
	}
	key := listenKey(fwd.BoundHost, fwd.BoundPort)
	s.forwardsMu.Lock()
	ch, ok := s.forwards[key]
	s.forwardsMu.Unlock()
	if !ok {
		return s.SendMessage(&msg.ChannelOpenFailure{RemoteID: open.LocalID, Reason: msg.OpenAdministrativelyProhibited, Message: "no listener for " + key})
	}

	c := newChannel(s, open.ChanType)
	c.remoteID = open.LocalID
	c.remoteWindow = open.LocalWindow
	c.remoteMaxPacket = open.MaxPacketSize
	c.state = channelOpen

	s.channelsMu.Lock()
	c.localID = s.nextChanID
	s.nextChanID++
	s.channels[c.localID] = c
	s.channelsMu.Unlock()

	if err := s.SendMessage(&msg.ChannelOpenConfirm{
		RemoteID:      open.LocalID,
		LocalID:       c.localID,
		RemoteWindow:  c.localWindow,
		MaxPacketSize: c.localMaxPacket,
	}); err != nil {
		return err
	}

	origin := fwd.OriginHost
	select {
	case ch <- forwardedConn{channel: c, origin: origin}:
	default:
		// Listener isn't draining; drop the connection rather than
		// block the receive loop. A future accept will simply never
		// see this one.
		c.Close()
	}
	return nil
}

func (s *Session) handleChannelOpenConfirm(packet []byte) error {
	var confirm msg.ChannelOpenConfirm
	if err := wire.Unmarshal(packet, &confirm); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(confirm.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	if c.state != channelOpening {
		c.mu.Unlock()
		return &InvalidState{Reason: "duplicate CHANNEL_OPEN_CONFIRMATION for a channel already opened"}
	}
	c.remoteID = confirm.LocalID
	c.remoteWindow = confirm.RemoteWindow
	c.remoteMaxPacket = confirm.MaxPacketSize
	c.state = channelOpen
	c.mu.Unlock()
	c.openResultCh <- &channelOpenResult{confirmed: true}
	return nil
}

func (s *Session) handleChannelOpenFailure(packet []byte) error {
	var failure msg.ChannelOpenFailure
	if err := wire.Unmarshal(packet, &failure); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(failure.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	if c.state != channelOpening {
		c.mu.Unlock()
		return &InvalidState{Reason: "duplicate CHANNEL_OPEN_FAILURE for a channel already opened"}
	}
	c.mu.Unlock()
	s.removeChannel(failure.RemoteID)
	c.openResultCh <- &channelOpenResult{confirmed: false, failure: &failure}
	return nil
}

func (s *Session) channelByLocalID(id uint32) (*Channel, bool) {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	c, ok := s.channels[id]
	return c, ok
}

func (s *Session) handleChannelWindowAdjust(packet []byte) error {
	var adj msg.ChannelWindowAdjust
	if err := wire.Unmarshal(packet, &adj); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(adj.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.remoteWindow += adj.AdditionalBytes
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (s *Session) handleChannelData(packet []byte) error {
	var data msg.ChannelData
	if err := wire.Unmarshal(packet, &data); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(data.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	if uint32(len(data.Data)) > c.localWindow {
		c.mu.Unlock()
		return &ProtocolError{Reason: "peer exceeded advertised window"}
	}
	c.localWindow -= uint32(len(data.Data))
	c.inbound.Write(data.Data)
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (s *Session) handleChannelExtendedData(packet []byte) error {
	var data msg.ChannelExtendedData
	if err := wire.Unmarshal(packet, &data); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(data.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	if uint32(len(data.Data)) > c.localWindow {
		c.mu.Unlock()
		return &ProtocolError{Reason: "peer exceeded advertised window"}
	}
	c.localWindow -= uint32(len(data.Data))
	c.extInbound.Write(data.Data)
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (s *Session) handleChannelEOF(packet []byte) error {
	var eof msg.ChannelEOF
	if err := wire.Unmarshal(packet, &eof); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(eof.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	if c.state == channelOpen {
		c.state = channelReceivedEOF
	} else if c.state == channelSentEOF {
		c.state = channelClosing
	}
	c.readErr = errChannelEOF
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

var errChannelEOF = &ChannelError{Message: "EOF"}

func (s *Session) handleChannelClose(packet []byte) error {
	var cl msg.ChannelClose
	if err := wire.Unmarshal(packet, &cl); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(cl.RemoteID)
	if !ok {
		return nil
	}
	c.mu.Lock()
	already := c.closeReceived
	c.closeReceived = true
	needReply := !c.closeSent
	c.state = channelClosed
	if c.readErr == nil {
		c.readErr = errChannelEOF
	}
	c.cond.Broadcast()
	c.mu.Unlock()
	if already {
		return nil
	}
	s.removeChannel(cl.RemoteID)
	if needReply {
		return c.Close()
	}
	return nil
}

// handleChannelRequest answers a peer-initiated CHANNEL_REQUEST. This
// core is a client; it originates shells and execs rather than
// serving them. "exit-status" and "exit-signal" are recorded on the
// channel; any other inbound request type is refused, per spec
// section 7.
func (s *Session) handleChannelRequest(packet []byte) error {
	var req msg.ChannelRequest
	if err := wire.Unmarshal(packet, &req); err != nil {
		return err
	}
	c, ok := s.channelByLocalID(req.RemoteID)
	if !ok {
		return nil
	}
	known := true
	switch req.RequestType {
	case "exit-status":
		var es msg.ExitStatusRequest
		if err := wire.Unmarshal(req.RequestData, &es); err == nil {
			c.mu.Lock()
			status := es.ExitStatus
			c.exitStatus = &status
			c.mu.Unlock()
		}
	case "exit-signal":
		var sig msg.ExitSignalRequest
		if err := wire.Unmarshal(req.RequestData, &sig); err == nil {
			c.mu.Lock()
			signal := sig.Signal
			c.exitSignal = &signal
			c.mu.Unlock()
		}
	default:
		known = false
	}
	if req.WantReply {
		c.mu.Lock()
		remoteID := c.remoteID
		c.mu.Unlock()
		if !known {
			return s.SendMessage(&msg.ChannelFailure{RemoteID: remoteID})
		}
		return s.SendMessage(&msg.ChannelSuccess{RemoteID: remoteID})
	}
	return nil
}

func (s *Session) handleChannelRequestReply(packet []byte) error {
	var remoteID uint32
	var ok bool
	if packet[0] == msg.MsgChannelSuccess {
		var success msg.ChannelSuccess
		wire.Unmarshal(packet, &success)
		remoteID, ok = success.RemoteID, true
	} else {
		var failure msg.ChannelFailure
		wire.Unmarshal(packet, &failure)
		remoteID, ok = failure.RemoteID, false
	}
	c, found := s.channelByLocalID(remoteID)
	if !found {
		return nil
	}
	c.requestMu.Lock()
	if len(c.requestFIFO) == 0 {
		c.requestMu.Unlock()
		return nil
	}
	w := c.requestFIFO[0]
	c.requestFIFO = c.requestFIFO[1:]
	c.requestMu.Unlock()
	w.resultCh <- ok
	return nil
}
