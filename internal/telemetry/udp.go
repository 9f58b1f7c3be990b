package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// UDPSink broadcasts each line as one datagram. The socket is opened lazily
// and dropped after any send error, so the next send starts with a fresh one.
type UDPSink struct {
	dest *net.UDPAddr
	log  *zap.SugaredLogger

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDPSink resolves addr (host:port, typically a subnet broadcast
// address) without opening a socket.
func NewUDPSink(addr string, log *zap.SugaredLogger) (*UDPSink, error) {
	dest, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address %q: %w", addr, err)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &UDPSink{dest: dest, log: log}, nil
}

// Send writes line to the broadcast address.
func (s *UDPSink) Send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		lc := net.ListenConfig{Control: broadcastControl}
		pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
		if err != nil {
			return fmt.Errorf("open broadcast socket: %w", err)
		}
		s.conn = pc.(*net.UDPConn)
	}

	if _, err := s.conn.WriteToUDP([]byte(line), s.dest); err != nil {
		s.log.Warnw("broadcast failed; resetting socket", "dest", s.dest.String(), "err", err)
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("broadcast to %s: %w", s.dest, err)
	}
	return nil
}

// Close releases the socket, if open.
func (s *UDPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
