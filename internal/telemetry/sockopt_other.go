//go:build !linux

package telemetry

import "syscall"

func broadcastControl(network, address string, c syscall.RawConn) error {
	return nil
}
