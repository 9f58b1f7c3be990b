package listener

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func TestListenerDeliversDatagrams(t *testing.T) {
	got := make(chan string, 4)
	l := New("ambient", "127.0.0.1:0", HandlerFunc(func(p []byte) error {
		got <- string(p)
		return nil
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener never became ready")
	}

	conn, err := net.Dial("udp4", l.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("21.5")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case p := <-got:
		if p != "21.5" {
			t.Errorf("payload: got %q, want 21.5", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandlerErrorDoesNotStopListener(t *testing.T) {
	calls := make(chan struct{}, 4)
	l := New("console", "127.0.0.1:0", HandlerFunc(func(p []byte) error {
		calls <- struct{}{}
		return errors.New("bad payload")
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)
	<-l.Ready()

	conn, err := net.Dial("udp4", l.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		conn.Write([]byte("x"))
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatalf("datagram %d not handled", i)
		}
	}
}

// fakeConn is a scripted net.PacketConn.
type fakeConn struct {
	reads     chan readResult
	closed    chan struct{}
	closeOnce sync.Once
}

type readResult struct {
	data []byte
	err  error
}

func newFakeConn(results ...readResult) *fakeConn {
	c := &fakeConn{reads: make(chan readResult, len(results)), closed: make(chan struct{})}
	for _, r := range results {
		c.reads <- r
	}
	return c
}

func (c *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case r := <-c.reads:
		if r.err != nil {
			return 0, nil, r.err
		}
		return copy(p, r.data), c.LocalAddr(), nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteTo(p []byte, addr net.Addr) (int, error) { return len(p), nil }
func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 3339}
}
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func TestReceiveErrorRestartsSocket(t *testing.T) {
	first := newFakeConn(readResult{err: errors.New("connection reset")})
	second := newFakeConn(readResult{data: []byte("after restart")})
	conns := []*fakeConn{first, second}

	var mu sync.Mutex
	var addrs []string
	got := make(chan string, 1)

	l := New("ambient", ":3339", HandlerFunc(func(p []byte) error {
		got <- string(p)
		return nil
	}), nil)
	l.RestartDelay = time.Millisecond
	l.listen = func(ctx context.Context, addr string) (net.PacketConn, error) {
		mu.Lock()
		defer mu.Unlock()
		addrs = append(addrs, addr)
		if len(conns) == 0 {
			return nil, errors.New("no more sockets")
		}
		c := conns[0]
		conns = conns[1:]
		return c, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	select {
	case p := <-got:
		if p != "after restart" {
			t.Errorf("payload: got %q", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not restart")
	}

	select {
	case <-first.closed:
	default:
		t.Error("failed socket was not closed")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(addrs) != 2 {
		t.Fatalf("expected 2 binds, got %d", len(addrs))
	}
	if addrs[1] != "127.0.0.1:3339" {
		t.Errorf("re-bind should reuse bound address, got %q", addrs[1])
	}
}

func TestBindFailureEndsListener(t *testing.T) {
	l := New("ambient", ":3339", HandlerFunc(func([]byte) error { return nil }), nil)
	l.listen = func(ctx context.Context, addr string) (net.PacketConn, error) {
		return nil, errors.New("address in use")
	}

	err := l.Run(context.Background())
	if !errors.Is(err, ErrBind) {
		t.Fatalf("expected ErrBind, got %v", err)
	}
	if l.LocalAddr() != nil {
		t.Error("LocalAddr should be nil when never bound")
	}
}

func TestBindFailureRealSocket(t *testing.T) {
	l := New("bad", "256.1.1.1:9", HandlerFunc(func([]byte) error { return nil }), nil)
	if err := l.Run(context.Background()); !errors.Is(err, ErrBind) {
		t.Fatalf("expected ErrBind, got %v", err)
	}
}
