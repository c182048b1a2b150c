package ssh

import (
	"fmt"
	"net"
	"time"

	"github.com/chara-x/sshcore/msg"
	"github.com/chara-x/sshcore/wire"
)

func listenKey(host string, port uint32) string { return fmt.Sprintf("%s:%d", host, port) }

// DialTCP opens a "direct-tcpip" channel asking the peer to connect
// out to addr on our behalf, generalizing the teacher's Tunnel.Dial.
// The returned Channel's Read/Write carry the proxied TCP stream.
func (s *Session) DialTCP(addr string) (*Channel, error) {
	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, err
	}
	payload := wire.Marshal(&msg.ChannelOpenDirectTCPIP{
		Host: host, Port: port,
		OriginHost: "0.0.0.0", OriginPort: 0,
	})
	return s.OpenChannel("direct-tcpip", payload)
}

// listener implements net.Listener over forwarded-tcpip channels
// opened by the peer against a port we asked it to bind with
// ListenTCP.
type listener struct {
	session    *Session
	bindHost   string
	bindPort   uint32
	acceptedCh chan forwardedConn
}

// ListenTCP asks the peer to listen on (host, port) via a
// "tcpip-forward" global request and returns a net.Listener whose
// Accept yields one net.Conn per inbound connection the peer
// forwards back as a "forwarded-tcpip" channel.
func (s *Session) ListenTCP(host string, port uint32) (net.Listener, error) {
	payload := wire.Marshal(&msg.TCPIPForwardRequest{BindAddress: host, BindPort: port})
	ok, response, err := s.SendGlobalRequest("tcpip-forward", true, payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ChannelError{Reason: 0, Message: "peer refused tcpip-forward"}
	}
	boundPort := port
	if port == 0 && len(response) > 0 {
		var resp msg.TCPIPForwardResponse
		if err := wire.Unmarshal(response, &resp); err == nil {
			boundPort = resp.BoundPort
		}
	}
	l := &listener{session: s, bindHost: host, bindPort: boundPort, acceptedCh: make(chan forwardedConn, 16)}
	s.forwardsMu.Lock()
	s.forwards[listenKey(host, boundPort)] = l.acceptedCh
	s.forwardsMu.Unlock()
	return l, nil
}

func (l *listener) Accept() (net.Conn, error) {
	select {
	case fc := <-l.acceptedCh:
		return &channelConn{Channel: fc.channel}, nil
	case <-l.session.closeCh:
		return nil, l.session.Err()
	}
}

func (l *listener) Close() error {
	l.session.forwardsMu.Lock()
	delete(l.session.forwards, listenKey(l.bindHost, l.bindPort))
	l.session.forwardsMu.Unlock()
	payload := wire.Marshal(&msg.CancelTCPIPForwardRequest{BindAddress: l.bindHost, BindPort: l.bindPort})
	_, _, err := l.session.SendGlobalRequest("cancel-tcpip-forward", true, payload)
	return err
}

func (l *listener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindHost), Port: int(l.bindPort)}
}

// channelConn adapts a Channel to net.Conn for callers (like
// net/http or io.Copy-based proxies) that want the forwarding surface
// to look like an ordinary socket.
type channelConn struct {
	*Channel
}

func (c *channelConn) LocalAddr() net.Addr       { return fakeAddr{} }
func (c *channelConn) RemoteAddr() net.Addr      { return fakeAddr{} }
func (c *channelConn) SetDeadline(time.Time) error     { return nil }
func (c *channelConn) SetReadDeadline(time.Time) error  { return nil }
func (c *channelConn) SetWriteDeadline(time.Time) error { return nil }

type fakeAddr struct{}

func (fakeAddr) Network() string { return "ssh" }
func (fakeAddr) String() string  { return "ssh-channel" }

func splitHostPort(addr string) (string, uint32, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, &ConnectionError{Op: "dial", Err: err}
	}
	var port uint32
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return "", 0, &ConnectionError{Op: "dial", Err: err}
	}
	return host, port, nil
}
