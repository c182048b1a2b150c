package ssh

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

// testSession builds a Session whose transport writes to one end of an
// in-memory pipe, with the other end drained in the background. It
// skips the handshake entirely: SendMessage only needs a live
// transport and a non-Closed state, which channel.go's methods rely
// on but never inspect beyond that.
func testSession(t *testing.T) *Session {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { local.Close(); remote.Close() })
	go io.Copy(io.Discard, remote)

	s := &Session{
		cfg:      DefaultConfig(),
		conn:     local,
		t:        newTransport(local),
		channels: make(map[uint32]*Channel),
		closeCh:  make(chan struct{}),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return s
}

func testChannel(t *testing.T) *Channel {
	s := testSession(t)
	c := newChannel(s, "session")
	c.remoteID = 1
	c.remoteWindow = 1 << 20
	c.remoteMaxPacket = 1 << 15
	c.state = channelOpen
	s.channelsMu.Lock()
	c.localID = s.nextChanID
	s.nextChanID++
	s.channels[c.localID] = c
	s.channelsMu.Unlock()
	return c
}

func TestChannelWriteRespectsRemoteWindow(t *testing.T) {
	c := testChannel(t)
	c.remoteWindow = 10
	c.remoteMaxPacket = 1 << 15

	done := make(chan struct{})
	go func() {
		n, err := c.Write([]byte("0123456789more"))
		if err != nil {
			t.Errorf("Write: %v", err)
		}
		if n != 14 {
			t.Errorf("Write returned %d, want 14", n)
		}
		close(done)
	}()

	// the write of the first 10 bytes should proceed immediately and
	// exhaust remoteWindow; the rest blocks until WindowAdjust arrives.
	deadline := time.Now().Add(time.Second)
	for {
		c.mu.Lock()
		w := c.remoteWindow
		c.mu.Unlock()
		if w == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("remoteWindow never reached 0")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-done:
		t.Fatal("Write returned before remoteWindow was replenished")
	case <-time.After(10 * time.Millisecond):
	}

	c.mu.Lock()
	c.remoteWindow += 4
	c.cond.Broadcast()
	c.mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write never completed after remoteWindow was replenished")
	}
}

func TestChannelWriteOnClosedChannelFails(t *testing.T) {
	c := testChannel(t)
	c.mu.Lock()
	c.state = channelClosed
	c.mu.Unlock()

	if _, err := c.Write([]byte("x")); err == nil {
		t.Fatal("expected error writing to a non-open channel")
	}
}

func TestChannelReadBlocksThenReturnsData(t *testing.T) {
	c := testChannel(t)
	done := make(chan struct{})
	var got []byte
	go func() {
		buf := make([]byte, 32)
		n, err := c.Read(buf)
		if err != nil {
			t.Errorf("Read: %v", err)
		}
		got = buf[:n]
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any data was available")
	case <-time.After(10 * time.Millisecond):
	}

	c.mu.Lock()
	c.inbound.WriteString("hello")
	c.cond.Broadcast()
	c.mu.Unlock()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read never returned after data arrived")
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestChannelReadReturnsErrorOnce(t *testing.T) {
	c := testChannel(t)
	wantErr := &ChannelError{Message: "eof"}
	c.mu.Lock()
	c.readErr = wantErr
	c.cond.Broadcast()
	c.mu.Unlock()

	buf := make([]byte, 8)
	_, err := c.Read(buf)
	if err != wantErr {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestChannelMaybeSendWindowAdjustAtHalfEmpty(t *testing.T) {
	c := testChannel(t)
	c.localWindowMax = 100
	c.localWindow = 100

	// simulate 60 bytes of DATA having arrived and been buffered,
	// draining localWindow the way the receive loop does.
	c.mu.Lock()
	c.localWindow -= 60
	c.inbound.Write(make([]byte, 60))
	c.mu.Unlock()

	buf := make([]byte, 60)
	if _, err := c.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}

	c.mu.Lock()
	w := c.localWindow
	c.mu.Unlock()
	if w != 100 {
		t.Fatalf("localWindow = %d, want fully replenished to 100 once consumption crossed the half-empty mark", w)
	}
}

func TestChannelSendRequestWaitsForFIFOReply(t *testing.T) {
	c := testChannel(t)

	resultCh := make(chan bool, 1)
	var waiter *channelRequestWaiter
	go func() {
		ok, err := c.SendRequest("exec", true, nil)
		if err != nil {
			t.Errorf("SendRequest: %v", err)
		}
		resultCh <- ok
	}()

	deadline := time.Now().Add(time.Second)
	for {
		c.requestMu.Lock()
		if len(c.requestFIFO) > 0 {
			waiter = c.requestFIFO[0]
			c.requestMu.Unlock()
			break
		}
		c.requestMu.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("request never registered in FIFO")
		}
		time.Sleep(time.Millisecond)
	}

	waiter.resultCh <- true
	select {
	case ok := <-resultCh:
		if !ok {
			t.Fatal("expected success reply")
		}
	case <-time.After(time.Second):
		t.Fatal("SendRequest never returned")
	}
}

func TestChannelSendRequestWithoutWantReplyReturnsImmediately(t *testing.T) {
	c := testChannel(t)
	ok, err := c.SendRequest("window-change", false, nil)
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for a fire-and-forget request")
	}
	c.requestMu.Lock()
	defer c.requestMu.Unlock()
	if len(c.requestFIFO) != 0 {
		t.Fatal("want_reply=false must not register a FIFO waiter")
	}
}

func TestChannelCloseIsIdempotent(t *testing.T) {
	c := testChannel(t)
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestChannelExitStatus(t *testing.T) {
	c := testChannel(t)
	if _, ok := c.ExitStatus(); ok {
		t.Fatal("expected no exit status before one arrives")
	}
	status := uint32(7)
	c.mu.Lock()
	c.exitStatus = &status
	c.mu.Unlock()
	got, ok := c.ExitStatus()
	if !ok || got != 7 {
		t.Fatalf("ExitStatus() = %d, %v, want 7, true", got, ok)
	}
}

func TestOpenChannelRejectsUnauthenticatedSession(t *testing.T) {
	s := testSession(t)
	// state defaults to stateInitial, never advanced to stateAuthenticated.
	if _, err := s.OpenChannel("session", nil); err != errNotConnected {
		t.Fatalf("got %v, want errNotConnected", err)
	}
}
