package ssh

import (
	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

// receiveLoop is the session's single dedicated receive task (spec
// section 5): the sole reader of the socket once Connect finishes,
// dispatching every inbound frame by message number and waking
// whichever foreground waiter owns it. It also owns rekeying,
// because only the receive task may safely read the socket during a
// KEX round.
func (s *Session) receiveLoop() {
	for {
		packet, err := s.t.readPacket()
		if err != nil {
			s.fail(err)
			return
		}
		if s.needsRekey() {
			if err := s.rekey(nil); err != nil {
				s.fail(err)
				return
			}
		}
		if err := s.dispatch(packet); err != nil {
			s.fail(err)
			return
		}
	}
}

// needsRekey implements spec section 4.6's triggers: a pending
// caller Rekey, 1 GiB transferred, or 1 hour elapsed since the last
// KEX, using the configured overrides when set.
func (s *Session) needsRekey() bool {
	s.forceRekeyMu.Lock()
	force := s.forceRekey
	s.forceRekeyMu.Unlock()
	if force {
		return true
	}
	threshold := s.cfg.RekeyThreshold
	if threshold <= 0 {
		threshold = DefaultConfig().RekeyThreshold
	}
	interval := s.cfg.RekeyInterval
	if interval <= 0 {
		interval = DefaultConfig().RekeyInterval
	}
	if s.t.bytesSinceRekey >= threshold {
		return true
	}
	return wallClock().Sub(s.lastRekey) >= interval
}

// Rekey forces a new key exchange, which the receive loop starts
// after the next inbound packet; Rekey returns once it completes. It
// is the
// caller-initiated trigger spec section 4.6 allows alongside the
// automatic byte/time thresholds. It must only be called from
// outside the receive loop; the loop itself calls rekey directly.
func (s *Session) Rekey() error {
	result := make(chan error, 1)
	s.rekeyRequestCh() <- result
	return <-result
}

// rekeyRequestCh is a tiny indirection so tests can intercept forced
// rekey requests; production code always returns the same channel.
func (s *Session) rekeyRequestCh() chan chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rekeyRequests == nil {
		s.rekeyRequests = make(chan chan error)
		go s.serveRekeyRequests()
	}
	return s.rekeyRequests
}

// serveRekeyRequests is not started until the first caller-initiated
// Rekey; it exists only to hand a forced-rekey flag to the receive
// loop without that loop polling a channel on every packet.
func (s *Session) serveRekeyRequests() {
	for reply := range s.rekeyRequests {
		s.forceRekeyMu.Lock()
		s.forceRekey = true
		s.forceRekeyReply = append(s.forceRekeyReply, reply)
		s.forceRekeyMu.Unlock()
	}
}

// dispatch routes one decoded packet to its handler. Message numbers
// 30/31/60 (context-dependent) never reach here outside an active
// KEX/auth round, both of which read the transport directly instead
// of going through this loop.
func (s *Session) dispatch(packet []byte) error {
	switch packet[0] {
	case msg.MsgDisconnect:
		var d msg.Disconnect
		wire.Unmarshal(packet, &d)
		s.fireDisconnect(d.Reason, d.Message)
		return &DisconnectedByPeer{Reason: d.Reason, Message: d.Message}
	case msg.MsgIgnore:
		return nil
	case msg.MsgDebug:
		var d msg.Debug
		if err := wire.Unmarshal(packet, &d); err == nil {
			s.log.Debug("peer debug message", "message", d.Message)
		}
		return nil
	case msg.MsgUnimplemented:
		return nil
	case msg.MsgKexInit:
		return s.rekey(packet)
	case msg.MsgGlobalRequest:
		return s.handleGlobalRequest(packet)
	case msg.MsgRequestSuccess, msg.MsgRequestFailure:
		return s.handleGlobalReply(packet)
	case msg.MsgChannelOpen:
		return s.handleChannelOpen(packet)
	case msg.MsgChannelOpenConfirm:
		return s.handleChannelOpenConfirm(packet)
	case msg.MsgChannelOpenFailure:
		return s.handleChannelOpenFailure(packet)
	case msg.MsgChannelWindowAdjust:
		return s.handleChannelWindowAdjust(packet)
	case msg.MsgChannelData:
		return s.handleChannelData(packet)
	case msg.MsgChannelExtendedData:
		return s.handleChannelExtendedData(packet)
	case msg.MsgChannelEOF:
		return s.handleChannelEOF(packet)
	case msg.MsgChannelClose:
		return s.handleChannelClose(packet)
	case msg.MsgChannelRequest:
		return s.handleChannelRequest(packet)
	case msg.MsgChannelSuccess, msg.MsgChannelFailure:
		return s.handleChannelRequestReply(packet)
	default:
		// Unknown message number: reply UNIMPLEMENTED, never fatal,
		// per spec section 7.
		return s.SendMessage(&msg.Unimplemented{Sequence: s.t.readSeq - 1})
	}
}

// rekey runs a full KEX round from within the receive loop.
// pendingServerInit is non-nil when the peer initiated the rekey (the
// KEXINIT packet that triggered this call); nil when the session's
// own threshold or a caller's Rekey triggered it, in which case we
// send our KEXINIT first and then read the peer's.
func (s *Session) rekey(pendingServerInit []byte) error {
	s.setState(stateKexInProgress)
	s.rekeyMu.Lock()
	result, _, err := runKex(s.t, s.cfg, s.clientVersion, s.serverVersion, s.sessionID, false, pendingServerInit)
	s.rekeyMu.Unlock()
	if err != nil {
		return err
	}
	s.lastRekey = wallClock()
	s.setState(stateAuthenticated)
	s.log.Debug("rekey complete")

	s.forceRekeyMu.Lock()
	pending := s.forceRekeyReply
	s.forceRekeyReply = nil
	s.forceRekey = false
	s.forceRekeyMu.Unlock()
	for _, reply := range pending {
		reply <- nil
	}
	_ = result
	return nil
}

func (s *Session) failChannels(err error) {
	s.channelsMu.Lock()
	channels := make([]*Channel, 0, len(s.channels))
	for _, c := range s.channels {
		channels = append(channels, c)
	}
	s.channelsMu.Unlock()
	for _, c := range channels {
		c.mu.Lock()
		c.state = channelClosed
		c.readErr = err
		c.cond.Broadcast()
		c.mu.Unlock()
		select {
		case c.openResultCh <- &channelOpenResult{confirmed: false, failure: &msg.ChannelOpenFailure{Message: err.Error()}}:
		default:
		}
	}
}

func (s *Session) failGlobalWaiters(err error) {
	s.globalMu.Lock()
	waiters := s.globalWaiters
	s.globalWaiters = nil
	s.globalMu.Unlock()
	for _, w := range waiters {
		w.resultCh <- globalReply{success: false}
	}
}
