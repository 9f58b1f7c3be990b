//go:build !linux

package listener

import "syscall"

func socketControl(network, address string, c syscall.RawConn) error {
	return nil
}
