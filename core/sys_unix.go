//go:build !windows

package core

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket lets a restarted host rebind its port while old datagrams linger.
func controlSocket(network, address string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
