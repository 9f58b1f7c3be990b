// Package listener runs one datagram receiver per port and hands every
// datagram to a Handler.
//
// A receive error restarts the socket; only a failure to bind ends the
// listener. Each listener runs in its own goroutine, so a slow handler only
// stalls its own port.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BufferSize is the largest datagram delivered to a handler; longer
// datagrams are truncated by the socket.
const BufferSize = 1048

// DefaultRestartDelay is the pause between a receive error and re-binding.
const DefaultRestartDelay = time.Second

// ErrBind is wrapped around socket creation and bind failures.
var ErrBind = errors.New("listener: unable to bind")

// Handler processes one received datagram. The payload is a private copy
// and is not NUL-terminated.
type Handler interface {
	Handle(payload []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(payload []byte) error

// Handle calls f(payload).
func (f HandlerFunc) Handle(payload []byte) error {
	return f(payload)
}

type listenFunc func(ctx context.Context, addr string) (net.PacketConn, error)

// Listener receives datagrams on a single UDP address.
type Listener struct {
	name    string
	handler Handler
	log     *zap.SugaredLogger

	// RestartDelay overrides DefaultRestartDelay when non-zero.
	RestartDelay time.Duration

	listen listenFunc

	mu        sync.Mutex
	addr      string
	localAddr net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a listener named name (used in logs) for addr, e.g. ":3339".
func New(name, addr string, h Handler, log *zap.SugaredLogger) *Listener {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Listener{
		name:    name,
		addr:    addr,
		handler: h,
		log:     log.With("task", name),
		listen:  listenUDP,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first bind succeeds.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// LocalAddr returns the bound address, or nil before the first bind.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.localAddr
}

// Run receives until ctx is done, returning nil. It returns an error
// wrapping ErrBind only if the socket cannot be created or bound.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.RestartDelay
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	buf := make([]byte, BufferSize)

	for {
		conn, err := l.bind(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.log.Errorw("socket unable to bind; listener exiting", "addr", l.currentAddr(), "err", err)
			return fmt.Errorf("%w: %s on %s: %v", ErrBind, l.name, l.currentAddr(), err)
		}

		l.serve(ctx, conn, buf)
		if ctx.Err() != nil {
			return nil
		}

		l.log.Errorw("shutting down socket and restarting", "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (l *Listener) bind(ctx context.Context) (net.PacketConn, error) {
	conn, err := l.listen(ctx, l.currentAddr())
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.localAddr = conn.LocalAddr()
	// Re-binds after a receive error must land on the same port, even if
	// addr asked for an ephemeral one.
	l.addr = conn.LocalAddr().String()
	l.mu.Unlock()

	l.readyOnce.Do(func() { close(l.ready) })
	l.log.Infow("listening", "addr", conn.LocalAddr().String())
	return conn, nil
}

// serve reads until the socket fails or ctx is done, then closes it.
func (l *Listener) serve(ctx context.Context, conn net.PacketConn, buf []byte) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() == nil {
				l.log.Errorw("receive failed", "err", err)
			}
			return
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		l.log.Debugw("received datagram", "bytes", n, "from", addrString(from))

		if err := l.handler.Handle(payload); err != nil {
			l.log.Warnw("datagram rejected", "err", err)
		}
	}
}

func (l *Listener) currentAddr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func listenUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: socketControl}
	return lc.ListenPacket(ctx, "udp4", addr)
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
