//go:build linux

package telemetry

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// broadcastControl sets SO_BROADCAST; without it the kernel refuses sends
// to a subnet broadcast address.
func broadcastControl(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return serr
}
